package padboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetch отдаёт данные только после закрытия release.
type blockingFetch struct {
	data    []byte
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingFetch(data []byte) *blockingFetch {
	return &blockingFetch{data: data, release: make(chan struct{})}
}

func (f *blockingFetch) fetch(ctx context.Context) ([]byte, error) {
	f.calls.Add(1)
	<-f.release
	return f.data, nil
}

func (f *blockingFetch) waitStarted(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return f.calls.Load() > 0 }, time.Second, time.Millisecond)
}

func TestCacheConcurrentRequestsShareOneDecode(t *testing.T) {
	c := NewBufferCache()
	f := newBlockingFetch(wavBytes(testRate, 1, 0.25, 0.5))

	const n = 8
	results := make([]*DecodedBuffer, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := c.GetOrDecode(context.Background(), "clip", f.fetch)
			assert.NoError(t, err)
			results[i] = buf
		}()
	}

	f.waitStarted(t)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, buf := range results {
		require.NotNil(t, buf)
		assert.Same(t, results[0], buf)
	}
	assert.Equal(t, 1, c.Len())
}

func TestCacheFailureIsNotCached(t *testing.T) {
	c := NewBufferCache()
	boom := errors.New("network down")

	_, err := c.GetOrDecode(context.Background(), "clip", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	_, err = c.GetOrDecode(context.Background(), "clip", func(context.Context) ([]byte, error) {
		return []byte("garbage"), nil
	})
	require.ErrorIs(t, err, ErrDecode)
	assert.Zero(t, c.Len())

	buf, err := c.GetOrDecode(context.Background(), "clip", func(context.Context) ([]byte, error) {
		return wavBytes(testRate, 1, 0.1, 0.5), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 800, buf.Frames)

	cached, ok := c.Peek("clip")
	require.True(t, ok)
	assert.Same(t, buf, cached)
}

func TestCacheHitSkipsFetch(t *testing.T) {
	c := NewBufferCache()
	var calls int
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return wavBytes(testRate, 1, 0.1, 0.5), nil
	}

	a, err := c.GetOrDecode(context.Background(), "clip", fetch)
	require.NoError(t, err)
	b, err := c.GetOrDecode(context.Background(), "clip", fetch)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
}

func TestCacheInvalidateDuringDecode(t *testing.T) {
	c := NewBufferCache()
	f := newBlockingFetch(wavBytes(testRate, 1, 0.1, 0.5))

	done := make(chan *DecodedBuffer)
	go func() {
		buf, err := c.GetOrDecode(context.Background(), "clip", f.fetch)
		assert.NoError(t, err)
		done <- buf
	}()

	f.waitStarted(t)
	c.Invalidate("clip")
	close(f.release)

	assert.NotNil(t, <-done, "the waiting caller still gets its buffer")
	_, ok := c.Peek("clip")
	assert.False(t, ok, "a buffer decoded before Invalidate is not cached")
}

func TestCacheCallerCancellation(t *testing.T) {
	c := NewBufferCache()
	f := newBlockingFetch(wavBytes(testRate, 1, 0.1, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := c.GetOrDecode(ctx, "clip", f.fetch)
		errc <- err
	}()

	f.waitStarted(t)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// Отмена одного вызывающего не прерывает общее декодирование.
	close(f.release)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
}
