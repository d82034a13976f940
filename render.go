package padboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PullSink не связан ни со звуковой картой, ни со временем: аудиочасы
// движка идут только при вызове Pull. Нужен для офлайн-рендера.
type PullSink struct {
	mu   sync.Mutex
	src  io.Reader
	rate int
	buf  []byte
}

func (s *PullSink) Open(sampleRate int, src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		s.src = src
		s.rate = sampleRate
	}
	return nil
}

func (s *PullSink) Close() error {
	s.mu.Lock()
	s.src = nil
	s.mu.Unlock()
	return nil
}

// Pull отрисовывает frames кадров и возвращает чередующиеся стереосэмплы.
func (s *PullSink) Pull(frames int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return nil, ErrNotArmed
	}
	n := frames * bytesPerFrame
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	out := make([]float32, 0, frames*channelCount)
	for read := 0; read < n; {
		m, err := s.src.Read(s.buf[read:n])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			return nil, io.ErrNoProgress
		}
		read += m
	}
	for i := 0; i < n; i += bytesPerSample {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(s.buf[i:])))
	}
	return out, nil
}

// SampleRate возвращает частоту, с которой синк был открыт.
func (s *PullSink) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// WAVWriter записывает стереосигнал движка в целочисленный PCM WAV.
type WAVWriter struct {
	enc   *wav.Encoder
	buf   *audio.IntBuffer
	scale float64
}

// NewWAVWriter начинает WAV-файл. bits — 16 или 24.
func NewWAVWriter(w io.WriteSeeker, sampleRate, bits int) (*WAVWriter, error) {
	if bits != 16 && bits != 24 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", bits)
	}
	return &WAVWriter{
		enc: wav.NewEncoder(w, sampleRate, bits, channelCount, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channelCount},
			SourceBitDepth: bits,
		},
		scale: float64(int64(1)<<(bits-1) - 1),
	}, nil
}

// Write добавляет сэмплы; значения за пределами [-1, 1] обрезаются.
func (w *WAVWriter) Write(samples []float32) error {
	if len(samples)%channelCount != 0 {
		return errors.New("odd number of samples for stereo output")
	}
	data := w.buf.Data[:0]
	for _, s := range samples {
		v := max(-1, min(1, float64(s)))
		data = append(data, int(math.Round(v*w.scale)))
	}
	w.buf.Data = data
	return w.enc.Write(w.buf)
}

// Close дописывает заголовок. Сам io.WriteSeeker не закрывается.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}
