package padboard

import "errors"

var (
	// ErrNoSound — пэду не назначен клип.
	ErrNoSound = errors.New("no sound assigned")
	// ErrClipNotFound — хранилище не нашло клип.
	ErrClipNotFound = errors.New("clip not found")
	// ErrDecode — байты клипа не удалось декодировать (битый или неподдерживаемый формат).
	ErrDecode = errors.New("decode failed")
	// ErrNotArmed — аудиовыход не удалось активировать.
	ErrNotArmed = errors.New("audio output not armed")
	// ErrClosed — движок уже закрыт.
	ErrClosed = errors.New("engine closed")
)
