package padboard

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Roman77St/padboard/board"
	"github.com/Roman77St/padboard/clipstore"
)

const testRate = 8000

// manualSink отрисовывает микшер по команде теста вместо звуковой карты.
type manualSink struct {
	mu       sync.Mutex
	src      io.Reader
	rate     int
	openErr  error
	closed   bool
	openings int
}

func (s *manualSink) Open(sampleRate int, src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.src = src
	s.rate = sampleRate
	s.openings++
	return nil
}

func (s *manualSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// render продвигает аудиочасы на seconds и возвращает отрисованные сэмплы.
func (s *manualSink) render(t *testing.T, seconds float64) []float32 {
	t.Helper()
	s.mu.Lock()
	src, rate := s.src, s.rate
	s.mu.Unlock()
	require.NotNil(t, src, "sink is not open")

	total := int(secondsToFrames(seconds, rate))
	out := make([]float32, 0, total*channelCount)
	chunk := make([]byte, 64*bytesPerFrame)
	for total > 0 {
		n := min(total, 64)
		m, err := src.Read(chunk[:n*bytesPerFrame])
		require.NoError(t, err)
		for i := 0; i < m; i += bytesPerSample {
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(chunk[i:])))
		}
		total -= m / bytesPerFrame
	}
	return out
}

// wavBytes собирает 16-битный PCM WAV с постоянным уровнем level.
func wavBytes(sampleRate, channels int, seconds, level float64) []byte {
	frames := int(seconds * float64(sampleRate))
	dataLen := frames * channels * 2

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))

	v := int16(level * 32767)
	for i := 0; i < frames*channels; i++ {
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

type testRig struct {
	engine *Engine
	sink   *manualSink
	clips  *clipstore.Memory

	mu    sync.Mutex
	ended []Instance
}

func newRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	r := &testRig{sink: &manualSink{}, clips: clipstore.NewMemory()}
	opts = append([]Option{
		WithSampleRate(testRate),
		WithSink(r.sink),
		WithEndedHook(func(inst Instance) {
			r.mu.Lock()
			r.ended = append(r.ended, inst)
			r.mu.Unlock()
		}),
	}, opts...)
	r.engine = New(r.clips, opts...)
	t.Cleanup(func() { r.engine.Close() })
	return r
}

func (r *testRig) arm(t *testing.T) {
	t.Helper()
	require.NoError(t, r.engine.Arm())
}

func (r *testRig) addClip(t *testing.T, id string, seconds float64) {
	t.Helper()
	data := wavBytes(testRate, 1, seconds, 0.5)
	require.NoError(t, r.clips.Put(context.Background(), clipstore.Clip{ID: id, Name: id, Type: "audio/wav", Data: data}))
}

func (r *testRig) endedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.ended))
	for i, inst := range r.ended {
		ids[i] = inst.ID
	}
	return ids
}

func testPad(index int, clipID string) board.Pad {
	p := board.DefaultPad(1, index)
	p.Sound.SetClip(clipID)
	return p
}
