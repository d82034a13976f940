// Package padboard — движок воспроизведения для саундборда: сетка пэдов,
// каждый из которых мгновенно проигрывает клип с обрезкой, затуханиями,
// скоростью, петлёй и эксклюзивными группами.
package padboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Roman77St/padboard/board"
	"github.com/Roman77St/padboard/clipstore"
)

// DefaultSampleRate — частота выхода по умолчанию.
const DefaultSampleRate = 44100

// ClipSource отдаёт исходные байты клипа по идентификатору.
type ClipSource interface {
	FetchBytes(ctx context.Context, clipID string) ([]byte, error)
}

// Schedule — фактическое расписание экземпляра после всех ограничений.
// Времена StartAt/StopAt — на аудиочасах движка, Offset/End/Loop* — в секундах клипа.
type Schedule struct {
	StartAt   float64
	StopAt    float64 // 0, если AutoStop == false
	AutoStop  bool
	Offset    float64
	End       float64
	Loop      bool
	LoopStart float64
	LoopEnd   float64
	Rate      float64 // скорость пэда после ограничения
	Detune    float64 // центы
	Gain      float64 // целевая громкость после ограничения
	FadeIn    float64
	FadeOut   float64
}

// Instance — неизменяемый снимок запущенного экземпляра.
type Instance struct {
	ID       string
	PadID    string
	ClipID   string
	Group    string
	Mode     board.TriggerMode
	Loop     bool
	Schedule Schedule
}

type instance struct {
	info  Instance
	voice *voice
	seq   uint64
}

// Engine владеет выходным конвейером и реестром экземпляров.
// Каждый Engine независим: своя общая громкость, свой флаг активации, свой реестр.
type Engine struct {
	clips      ClipSource
	cache      *BufferCache
	sink       Sink
	sampleRate int
	maxVoices  int
	log        *slog.Logger
	metrics    *Metrics
	onEnded    func(Instance)

	mix *mixer

	mu        sync.Mutex
	armed     bool
	closed    bool
	instances map[string]*instance
	seq       uint64
}

// Option настраивает Engine.
type Option func(*Engine)

// WithSampleRate задаёт частоту выхода.
func WithSampleRate(rate int) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithSink задаёт аудиовыход (по умолчанию OtoSink).
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithCache позволяет нескольким движкам делить один кэш буферов.
func WithCache(c *BufferCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics подключает метрики Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxVoices ограничивает число одновременных экземпляров.
// При переполнении самый старый экземпляр останавливается без затухания.
// 0 — без ограничения.
func WithMaxVoices(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxVoices = n
		}
	}
}

// WithEndedHook задаёт функцию, которая вызывается ровно один раз
// для каждого экземпляра, когда его звук окончательно прекратился.
func WithEndedHook(fn func(Instance)) Option {
	return func(e *Engine) { e.onEnded = fn }
}

// New создаёт движок. Звук не слышен, пока не вызван Arm.
func New(clips ClipSource, opts ...Option) *Engine {
	e := &Engine{
		clips:      clips,
		sampleRate: DefaultSampleRate,
		instances:  make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("module", "engine")
	if e.cache == nil {
		e.cache = NewBufferCache()
	}
	if e.cache.metrics == nil {
		e.cache.metrics = e.metrics
	}
	if e.sink == nil {
		e.sink = &OtoSink{}
	}
	e.mix = newMixer(e.sampleRate, 1)
	e.mix.onEnded = e.voiceEnded
	return e
}

// Arm активирует аудиовыход. Вызывается после действия пользователя.
// Повторный вызов ничего не делает.
func (e *Engine) Arm() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.armed {
		return nil
	}
	if err := e.sink.Open(e.sampleRate, e.mix); err != nil {
		e.log.Warn("audio arm failed", "error", err)
		return fmt.Errorf("%w: %v", ErrNotArmed, err)
	}
	e.armed = true
	e.log.Info("audio armed", "sample_rate", e.sampleRate)
	return nil
}

// Armed сообщает, активирован ли выход.
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// SetMasterVolume меняет общую громкость, в том числе во время воспроизведения.
func (e *Engine) SetMasterVolume(v float64) {
	e.mix.setMaster(clamp(v, 0, maxVolume, 1))
}

// MasterVolume возвращает общую громкость.
func (e *Engine) MasterVolume() float64 {
	return e.mix.masterVolume()
}

// Now возвращает время аудиочасов в секундах.
func (e *Engine) Now() float64 {
	return e.mix.now()
}

// Voices возвращает число голосов в микшере, включая затухающие
// после остановки.
func (e *Engine) Voices() int {
	return e.mix.active()
}

// SampleRate возвращает частоту выхода.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Cache возвращает кэш декодированных буферов.
func (e *Engine) Cache() *BufferCache { return e.cache }

// ForgetClip убирает клип из кэша, например после его удаления из хранилища.
func (e *Engine) ForgetClip(clipID string) {
	e.cache.Invalidate(clipID)
}

// Preload декодирует клип заранее, чтобы первое нажатие не ждало декодера.
func (e *Engine) Preload(ctx context.Context, clipID string) error {
	_, err := e.buffer(ctx, clipID)
	return err
}

func (e *Engine) buffer(ctx context.Context, clipID string) (*DecodedBuffer, error) {
	return e.cache.GetOrDecode(ctx, clipID, func(ctx context.Context) ([]byte, error) {
		data, err := e.clips.FetchBytes(ctx, clipID)
		if errors.Is(err, clipstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
		}
		return data, err
	})
}

// Close останавливает все экземпляры и закрывает аудиовыход.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.armed = false
	e.instances = make(map[string]*instance)
	e.metrics.voices(0)
	e.mu.Unlock()

	err := e.sink.Close()

	// Выход больше не читает микшер — завершаем оставшиеся голоса сами.
	for _, v := range e.mix.drain() {
		e.voiceEnded(v)
	}
	return err
}
