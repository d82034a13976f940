package dispatch

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownPad — событие не привязано ни к одному пэду.
	ErrUnknownPad = errors.New("no pad bound to event")
	// ErrUnknownCue — у пэда нет такой точки.
	ErrUnknownCue = errors.New("unknown cue")
	// ErrRemoteNotReady — удалённый плеер не подключён или ещё не готов.
	ErrRemoteNotReady = errors.New("remote player not ready")
)

// RemoteController управляет внешним плеером треков (стриминговым сервисом).
// Реализация живёт вне этого модуля.
type RemoteController interface {
	PlayTrack(ctx context.Context, track string, startOffset time.Duration, loop bool) error
	Pause(ctx context.Context) error
	SetVolume(ctx context.Context, v float64) error
	Ready() bool
}
