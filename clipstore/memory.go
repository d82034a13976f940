package clipstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory хранит клипы в оперативной памяти. Удобно для тестов и импорта.
type Memory struct {
	mu    sync.RWMutex
	clips map[string]Clip
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{clips: make(map[string]Clip)}
}

func (m *Memory) FetchBytes(ctx context.Context, id string) ([]byte, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Data, nil
}

func (m *Memory) Get(ctx context.Context, id string) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clips[id]
	if !ok {
		return Clip{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	c.Data = append([]byte(nil), c.Data...)
	return c, nil
}

func (m *Memory) Put(ctx context.Context, clip Clip) error {
	if err := validateID(clip.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	clip.Data = append([]byte(nil), clip.Data...)
	m.mu.Lock()
	m.clips[clip.ID] = clip
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clips[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.clips, id)
	return nil
}

// List возвращает метаданные клипов без данных, по имени.
func (m *Memory) List(ctx context.Context) ([]Clip, error) {
	m.mu.RLock()
	out := make([]Clip, 0, len(m.clips))
	for _, c := range m.clips {
		c.Data = nil
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
