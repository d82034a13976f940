package padboard

import (
	"encoding/binary"
	"math"
	"sync"
)

const (
	channelCount   = 2
	bytesPerSample = 4 // float32
	bytesPerFrame  = channelCount * bytesPerSample
)

// mixer — выходной конвейер движка: сумма голосов -> общая громкость -> выход.
// Read вызывается аудиовыходом (oto или ClockSink) и двигает аудиочасы.
type mixer struct {
	sampleRate int

	mu     sync.Mutex
	frame  int64 // количество отрисованных кадров = аудиочасы
	master float64
	voices []*voice
	buf    []float32

	onEnded func(*voice)
}

func newMixer(sampleRate int, master float64) *mixer {
	return &mixer{sampleRate: sampleRate, master: master}
}

// now возвращает текущее время аудиочасов в секундах.
func (m *mixer) now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowLocked()
}

func (m *mixer) nowLocked() float64 {
	return framesToSeconds(m.frame, m.sampleRate)
}

func (m *mixer) setMaster(v float64) {
	m.mu.Lock()
	m.master = v
	m.mu.Unlock()
}

func (m *mixer) masterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// start ставит голос в очередь. schedule вызывается под замком микшера
// с текущим временем, чтобы время старта и расписание громкости
// совпадали с тем кадром, с которого голос начнёт звучать.
func (m *mixer) start(v *voice, schedule func(now float64)) {
	m.mu.Lock()
	schedule(m.nowLocked())
	m.voices = append(m.voices, v)
	m.mu.Unlock()
}

// fadeOut возвращает число отменённых событий громкости.
func (m *mixer) fadeOut(v *voice, fade float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.done {
		return 0
	}
	return v.fadeOut(m.nowLocked(), fade)
}

func (m *mixer) rampGain(v *voice, target, ramp float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.done {
		return false
	}
	return v.rampTo(m.nowLocked(), target, ramp)
}

func (m *mixer) halt(v *voice) {
	m.mu.Lock()
	if !v.done {
		v.halt(m.nowLocked())
	}
	m.mu.Unlock()
}

// gainAt возвращает запланированную громкость голоса в момент t.
func (m *mixer) gainAt(v *voice, t float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return v.gain.valueAt(t)
}

// Read отдаёт смешанный сигнал в формате float32 LE, стерео.
// Никогда не возвращает io.EOF: между звуками выход звучит тишиной.
func (m *mixer) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(m.buf) < frames*channelCount {
		m.buf = make([]float32, frames*channelCount)
	}
	out := m.buf[:frames*channelCount]

	ended := m.render(out)

	for i, s := range out {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(s))
	}

	// Колбэки вызываются без замка микшера: они берут замок движка.
	for _, v := range ended {
		if m.onEnded != nil {
			m.onEnded(v)
		}
	}
	return frames * bytesPerFrame, nil
}

// render заполняет out и возвращает голоса, завершившиеся в этом блоке.
func (m *mixer) render(out []float32) []*voice {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range out {
		out[i] = 0
	}

	var ended []*voice
	frames := len(out) / channelCount
	master := float32(m.master)

	for f := 0; f < frames; f++ {
		t := framesToSeconds(m.frame+int64(f), m.sampleRate)
		var l, r float32
		for _, v := range m.voices {
			if v.done {
				continue
			}
			vl, vr, finished := v.sample(t)
			if finished {
				v.done = true
				ended = append(ended, v)
				continue
			}
			l += vl
			r += vr
		}
		out[2*f] = clip(l * master)
		out[2*f+1] = clip(r * master)
	}
	m.frame += int64(frames)

	if len(ended) > 0 {
		alive := m.voices[:0]
		for _, v := range m.voices {
			if !v.done {
				alive = append(alive, v)
			}
		}
		for i := len(alive); i < len(m.voices); i++ {
			m.voices[i] = nil
		}
		m.voices = alive
	}
	return ended
}

// drain снимает все голоса без отрисовки (при закрытии движка).
func (m *mixer) drain() []*voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ended []*voice
	for _, v := range m.voices {
		if !v.done {
			v.done = true
			ended = append(ended, v)
		}
	}
	m.voices = nil
	return ended
}

func (m *mixer) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func clip(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
