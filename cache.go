package padboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// FetchFunc возвращает исходные байты клипа.
type FetchFunc func(ctx context.Context) ([]byte, error)

// BufferCache запоминает декодированные клипы по идентификатору.
// Вытеснения по размеру нет: запись удаляется только через Invalidate.
type BufferCache struct {
	items  *cache.Cache
	flight singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64 // растёт при каждом Invalidate

	log     *slog.Logger
	metrics *Metrics
}

// NewBufferCache создаёт пустой кэш. Без срока жизни и без фоновой очистки.
func NewBufferCache() *BufferCache {
	return &BufferCache{
		items: cache.New(cache.NoExpiration, 0),
		gen:   make(map[string]uint64),
		log:   slog.Default().With("module", "cache"),
	}
}

func (c *BufferCache) generation(clipID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[clipID]
}

// GetOrDecode возвращает декодированный клип, при первом обращении
// загружая и декодируя его. Одновременные вызовы для одного клипа
// ждут одно общее декодирование. Ошибка не создаёт записи в кэше.
func (c *BufferCache) GetOrDecode(ctx context.Context, clipID string, fetch FetchFunc) (*DecodedBuffer, error) {
	if buf, ok := c.Peek(clipID); ok {
		c.metrics.cacheHit()
		return buf, nil
	}

	ch := c.flight.DoChan(clipID, func() (any, error) {
		gen := c.generation(clipID)
		if buf, ok := c.Peek(clipID); ok {
			return buf, nil
		}

		// Декодирование общее: отмена одного из ожидающих не должна его прерывать.
		data, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		started := time.Now()
		buf, err := decodeClip(clipID, data)
		c.metrics.decoded(err, time.Since(started))
		if err != nil {
			c.log.Warn("decode failed", "clip", clipID, "error", err)
			return nil, err
		}

		c.mu.Lock()
		if c.gen[clipID] == gen {
			c.items.Set(clipID, buf, cache.NoExpiration)
		}
		c.mu.Unlock()
		c.metrics.cached(c.Len())

		c.log.Debug("clip decoded", "clip", clipID, "frames", buf.Frames,
			"sample_rate", buf.SampleRate, "elapsed", time.Since(started))
		return buf, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrDecode) || errors.Is(res.Err, ErrClipNotFound) {
				return nil, res.Err
			}
			return nil, fmt.Errorf("fetch clip %s: %w", clipID, res.Err)
		}
		return res.Val.(*DecodedBuffer), nil
	}
}

// Peek возвращает буфер, только если он уже в кэше.
func (c *BufferCache) Peek(clipID string) (*DecodedBuffer, bool) {
	v, ok := c.items.Get(clipID)
	if !ok {
		return nil, false
	}
	return v.(*DecodedBuffer), true
}

// Invalidate удаляет клип из кэша (например, при удалении клипа).
// Идущее в этот момент декодирование не вернёт устаревший буфер в кэш.
func (c *BufferCache) Invalidate(clipID string) {
	c.mu.Lock()
	c.gen[clipID]++
	c.items.Delete(clipID)
	c.mu.Unlock()
	c.flight.Forget(clipID)
	c.metrics.cached(c.Len())
}

// Len возвращает количество закэшированных клипов.
func (c *BufferCache) Len() int {
	return c.items.ItemCount()
}
