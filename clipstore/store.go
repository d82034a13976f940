// Package clipstore хранит исходные байты аудиоклипов по идентификатору.
package clipstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound возвращается, если клипа с таким идентификатором нет.
var ErrNotFound = errors.New("clip not found")

// Clip — сохранённый аудиофайл и его метаданные.
type Clip struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Type      string    `yaml:"type"` // MIME-тип, например audio/wav
	CreatedAt time.Time `yaml:"createdAt"`
	Data      []byte    `yaml:"-"`
}

// NewClip создаёт клип с новым уникальным идентификатором.
func NewClip(name, mimeType string, data []byte) Clip {
	return Clip{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      mimeType,
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
}

// Store — долговременное хранилище клипов.
type Store interface {
	// FetchBytes возвращает исходные байты клипа или ErrNotFound.
	FetchBytes(ctx context.Context, id string) ([]byte, error)
	Get(ctx context.Context, id string) (Clip, error)
	Put(ctx context.Context, clip Clip) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Clip, error)
}

// validateID не даёт идентификатору выйти за пределы каталога хранилища.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty clip id")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid clip id %q", id)
	}
	return nil
}
