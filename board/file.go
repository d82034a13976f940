package board

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Roman77St/padboard/clipstore"
)

// FileVersion записывается в каждый экспортированный файл доски.
const FileVersion = "v1.0.1"

// ErrInvalidFile возвращается при импорте файла без списка пэдов.
var ErrInvalidFile = errors.New("invalid board file")

// EmbeddedSound — клип, встроенный в файл доски как data URI.
type EmbeddedSound struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
	Type string `yaml:"type,omitempty"`
	Data string `yaml:"data"`
}

// File — сериализованная доска.
type File struct {
	Version   string          `yaml:"version"`
	CreatedAt time.Time       `yaml:"createdAt"`
	Pads      []Pad           `yaml:"pads"`
	Sounds    []EmbeddedSound `yaml:"sounds,omitempty"`
}

// Export собирает файл доски. При withAudio в файл встраиваются
// все клипы, на которые ссылаются пэды; пропавшие клипы пропускаются.
func Export(ctx context.Context, b *Board, clips clipstore.Store, withAudio bool) (*File, error) {
	f := &File{
		Version:   FileVersion,
		CreatedAt: time.Now().UTC(),
		Pads:      b.Pads(),
	}
	if !withAudio || clips == nil {
		return f, nil
	}

	for _, id := range b.ClipRefs() {
		c, err := clips.Get(ctx, id)
		if errors.Is(err, clipstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("export clip %s: %w", id, err)
		}
		f.Sounds = append(f.Sounds, EmbeddedSound{
			ID:   c.ID,
			Name: c.Name,
			Type: c.Type,
			Data: encodeDataURI(c.Type, c.Data),
		})
	}
	return f, nil
}

// Import заменяет все пэды доски содержимым файла и восстанавливает
// встроенные клипы в хранилище.
func Import(ctx context.Context, f *File, b *Board, clips clipstore.Store) error {
	if f == nil || f.Pads == nil {
		return ErrInvalidFile
	}
	for _, p := range f.Pads {
		if !b.contains(p.Bank, p.Index) {
			return fmt.Errorf("%w: pad %s is outside the grid", ErrInvalidFile, p.ID())
		}
	}

	b.Reset()
	for _, p := range f.Pads {
		if err := b.Put(p); err != nil {
			return err
		}
	}

	if clips == nil {
		return nil
	}
	for _, s := range f.Sounds {
		if s.Data == "" {
			continue
		}
		mime, data, err := decodeDataURI(s.Data)
		if err != nil {
			return fmt.Errorf("import clip %s: %w", s.ID, err)
		}
		if s.Type == "" {
			s.Type = mime
		}
		clip := clipstore.Clip{ID: s.ID, Name: s.Name, Type: s.Type, CreatedAt: time.Now().UTC(), Data: data}
		if err := clips.Put(ctx, clip); err != nil {
			return fmt.Errorf("import clip %s: %w", s.ID, err)
		}
	}
	return nil
}

// Write сериализует файл доски в YAML.
func (f *File) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

// ReadFile разбирает файл доски из YAML.
func ReadFile(r io.Reader) (*File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &f, nil
}

func encodeDataURI(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeDataURI(uri string) (string, []byte, error) {
	head, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(head, "data:") || !strings.HasSuffix(head, ";base64") {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
	if mime == "" {
		mime = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mime, data, nil
}
