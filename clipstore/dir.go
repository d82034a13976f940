package clipstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	dataExt = ".clip"
	metaExt = ".yaml"
)

// Dir хранит каждый клип двумя файлами в каталоге:
// <id>.clip с исходными байтами и <id>.yaml с метаданными.
type Dir struct {
	root string
}

// OpenDir открывает (и при необходимости создаёт) каталог хранилища.
func OpenDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(id, ext string) string {
	return filepath.Join(d.root, id+ext)
}

func (d *Dir) FetchBytes(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(id, dataExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read clip %s: %w", id, err)
	}
	return data, nil
}

func (d *Dir) readMeta(id string) (Clip, error) {
	raw, err := os.ReadFile(d.path(id, metaExt))
	if errors.Is(err, fs.ErrNotExist) {
		// Метаданные могли не сохраниться — клип всё равно пригоден.
		return Clip{ID: id, Name: id}, nil
	}
	if err != nil {
		return Clip{}, err
	}
	var c Clip
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Clip{}, fmt.Errorf("parse clip meta %s: %w", id, err)
	}
	c.ID = id
	return c, nil
}

func (d *Dir) Get(ctx context.Context, id string) (Clip, error) {
	data, err := d.FetchBytes(ctx, id)
	if err != nil {
		return Clip{}, err
	}
	c, err := d.readMeta(id)
	if err != nil {
		return Clip{}, err
	}
	c.Data = data
	return c, nil
}

// Put записывает данные через временный файл, чтобы читатель
// никогда не увидел наполовину записанный клип.
func (d *Dir) Put(ctx context.Context, clip Clip) error {
	if err := validateID(clip.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.root, "clip-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp clip: %w", err)
	}
	if _, err := tmp.Write(clip.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write clip %s: %w", clip.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), d.path(clip.ID, dataExt)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store clip %s: %w", clip.ID, err)
	}

	meta := clip
	meta.Data = nil
	raw, err := yaml.Marshal(&meta)
	if err != nil {
		return err
	}
	return os.WriteFile(d.path(clip.ID, metaExt), raw, 0o644)
}

func (d *Dir) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	err := os.Remove(d.path(id, dataExt))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	_ = os.Remove(d.path(id, metaExt))
	return nil
}

func (d *Dir) List(ctx context.Context) ([]Clip, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var out []Clip
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dataExt) {
			continue
		}
		c, err := d.readMeta(strings.TrimSuffix(e.Name(), dataExt))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
