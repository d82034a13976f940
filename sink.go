package padboard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Sink — конечная точка конвейера: забирает смешанный сигнал у движка.
// src отдаёт float32 LE, 2 канала, и никогда не заканчивается.
type Sink interface {
	Open(sampleRate int, src io.Reader) error
	Close() error
}

var (
	otoCtx  *oto.Context
	otoOnce sync.Once
	otoRate int
	otoErr  error
)

// otoContext инициализирует аудиоконтекст Oto один раз за всё время работы программы.
// Oto не позволяет создать второй контекст, поэтому его делят все OtoSink.
func otoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatFloat32LE,
			BufferSize:   20 * time.Millisecond,
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(op)
		if otoErr == nil {
			<-ready
			otoRate = sampleRate
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio context already running at %d Hz, requested %d Hz", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoSink выводит звук на устройство через ebitengine/oto.
type OtoSink struct {
	mu     sync.Mutex
	player *oto.Player
}

func (s *OtoSink) Open(sampleRate int, src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		return nil
	}

	ctx, err := otoContext(sampleRate)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return err
	}

	player := ctx.NewPlayer(src)
	// Маленький буфер плеера — меньше задержка между нажатием и звуком.
	player.SetBufferSize(sampleRate / 50 * bytesPerFrame)
	player.Play()
	s.player = player
	return nil
}

func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

// ClockSink читает сигнал в реальном темпе и выбрасывает его.
// Нужен без звуковой карты: аудиочасы идут так же, как с устройством.
type ClockSink struct {
	Tick time.Duration // период чтения, по умолчанию 10 мс

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *ClockSink) Open(sampleRate int, src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	tick := s.Tick
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		started := time.Now()
		var rendered int64
		buf := make([]byte, 0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			due := secondsToFrames(time.Since(started).Seconds(), sampleRate) - rendered
			if due <= 0 {
				continue
			}
			n := int(due) * bytesPerFrame
			if cap(buf) < n {
				buf = make([]byte, n)
			}
			m, err := src.Read(buf[:n])
			if err != nil {
				return
			}
			rendered += int64(m / bytesPerFrame)
		}
	}()
	return nil
}

func (s *ClockSink) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
