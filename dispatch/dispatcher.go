package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/board"
)

// DefaultGateTimeout — через сколько отпускается gate-пэд, запущенный
// источником без событий отпускания.
const DefaultGateTimeout = 300 * time.Millisecond

// Player — часть движка, которой пользуется диспетчер.
type Player interface {
	Play(ctx context.Context, pad board.Pad, clipID string, mode board.TriggerMode, opts ...padboard.PlayOption) (string, error)
	StopPad(padID string, fadeOut float64) bool
	FindByPad(padID string) (padboard.Instance, bool)
}

// Dispatcher направляет каждое событие ровно по одному пути:
// локальный клип через Player или удалённый трек через RemoteController.
type Dispatcher struct {
	resolver    *Resolver
	player      Player
	remote      RemoteController
	gateTimeout time.Duration
	noRelease   map[Source]bool
	log         *slog.Logger

	mu          sync.Mutex
	gates       map[string]*time.Timer
	held        map[string]Trigger // нажатые gate-пэды по клавише или ноте
	remotePadID string             // пэд, который сейчас играет удалённым плеером
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithRemote подключает удалённый плеер.
func WithRemote(rc RemoteController) Option {
	return func(d *Dispatcher) { d.remote = rc }
}

// WithGateTimeout задаёт время автоматического отпускания gate-пэдов
// для источников без отпусканий. 0 отключает автоотпускание.
func WithGateTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.gateTimeout = timeout }
}

// WithoutRelease помечает источник, который никогда не присылает отпускание
// (терминал, часть MIDI-контроллеров).
func WithoutRelease(sources ...Source) Option {
	return func(d *Dispatcher) {
		for _, s := range sources {
			d.noRelease[s] = true
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func New(r *Resolver, p Player, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:    r,
		player:      p,
		gateTimeout: DefaultGateTimeout,
		noRelease:   make(map[Source]bool),
		gates:       make(map[string]*time.Timer),
		held:        make(map[string]Trigger),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("module", "dispatch")
	return d
}

// Handle обрабатывает одно событие ввода.
// Отпускание gate-пэда относится к тому пэду, который был нажат,
// даже если между нажатием и отпусканием сменился банк.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	if ev.Source == SourceKeyboard && ev.Action == Press && d.navigate(ev.Key) {
		return nil
	}

	if ev.Action == Release {
		if tr, ok := d.release(ev); ok {
			d.log.Debug("trigger", "pad", tr.PadID, "mode", string(tr.Mode), "action", tr.Action.String(), "source", string(tr.Source))
			return d.route(ctx, tr)
		}
	}

	tr, ok := d.resolver.ResolveTrigger(ev)
	if !ok {
		if tr.PadID != "" {
			return fmt.Errorf("pad %s: %w %q", tr.PadID, ErrUnknownCue, ev.CueID)
		}
		if ev.Action == Release {
			return nil
		}
		return fmt.Errorf("%s event %s: %w", ev.Source, describe(ev), ErrUnknownPad)
	}

	d.log.Debug("trigger", "pad", tr.PadID, "mode", string(tr.Mode), "action", tr.Action.String(), "source", string(tr.Source))

	if err := d.route(ctx, tr); err != nil {
		return err
	}
	if tr.Action == Press && tr.Mode == board.ModeGate {
		d.mu.Lock()
		d.held[holdKey(ev)] = tr
		d.mu.Unlock()
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, tr Trigger) error {
	if tr.Pad.Sound.IsRemote() {
		return d.handleRemote(ctx, tr)
	}
	return d.handleLocal(ctx, tr)
}

// release забирает пэд, запомненный при нажатии той же клавиши или ноты.
func (d *Dispatcher) release(ev Event) (Trigger, bool) {
	k := holdKey(ev)
	d.mu.Lock()
	defer d.mu.Unlock()
	tr, ok := d.held[k]
	if !ok {
		return Trigger{}, false
	}
	delete(d.held, k)
	tr.Action = Release
	tr.Cue = nil
	return tr, true
}

// holdKey связывает нажатие с отпусканием: по явному пэду, ноте или клавише.
func holdKey(ev Event) string {
	switch {
	case ev.PadID != "":
		return "pad:" + ev.PadID
	case ev.Source == SourceMIDI:
		return fmt.Sprintf("midi:%d", ev.Note)
	default:
		return string(ev.Source) + ":" + strings.ToUpper(strings.TrimSpace(ev.Key))
	}
}

// navigate переключает банки клавишами PageUp/PageDown.
func (d *Dispatcher) navigate(key string) bool {
	switch {
	case strings.EqualFold(key, "PageUp"):
		d.log.Info("bank selected", "bank", d.resolver.SetBank(d.resolver.Bank()-1))
	case strings.EqualFold(key, "PageDown"):
		d.log.Info("bank selected", "bank", d.resolver.SetBank(d.resolver.Bank()+1))
	default:
		return false
	}
	return true
}

func (d *Dispatcher) handleLocal(ctx context.Context, tr Trigger) error {
	pad := tr.Pad

	if tr.Action == Release {
		if tr.Mode == board.ModeGate {
			d.cancelGate(tr.PadID)
			d.player.StopPad(tr.PadID, pad.FadeOut)
		}
		return nil
	}

	var opts []padboard.PlayOption
	if tr.Cue != nil {
		opts = append(opts, padboard.WithCue(tr.Cue.Time))
	}

	switch tr.Mode {
	case board.ModeToggleLoop:
		if _, playing := d.player.FindByPad(tr.PadID); playing {
			d.player.StopPad(tr.PadID, pad.FadeOut)
			return nil
		}
		opts = append(opts, padboard.WithLoop())
		_, err := d.player.Play(ctx, pad, pad.Sound.Clip, tr.Mode, opts...)
		return err

	case board.ModeGate:
		if _, err := d.player.Play(ctx, pad, pad.Sound.Clip, tr.Mode, opts...); err != nil {
			return err
		}
		if d.noRelease[tr.Source] && d.gateTimeout > 0 {
			d.scheduleGate(tr.PadID, pad.FadeOut)
		}
		return nil

	default:
		_, err := d.player.Play(ctx, pad, pad.Sound.Clip, tr.Mode, opts...)
		return err
	}
}

func (d *Dispatcher) handleRemote(ctx context.Context, tr Trigger) error {
	if d.remote == nil || !d.remote.Ready() {
		if tr.Action == Release {
			return nil
		}
		return fmt.Errorf("pad %s: %w", tr.PadID, ErrRemoteNotReady)
	}

	d.mu.Lock()
	active := d.remotePadID == tr.PadID
	d.mu.Unlock()

	if tr.Action == Release {
		if tr.Mode == board.ModeGate && active {
			return d.pauseRemote(ctx, tr.PadID)
		}
		return nil
	}
	if tr.Mode == board.ModeToggleLoop && active {
		return d.pauseRemote(ctx, tr.PadID)
	}

	start := tr.Pad.TrimStart
	if tr.Cue != nil {
		start = tr.Cue.Time
	}
	offset := time.Duration(max(0, start) * float64(time.Second))
	loop := tr.Mode == board.ModeToggleLoop

	if err := d.remote.PlayTrack(ctx, tr.Pad.Sound.Track, offset, loop); err != nil {
		return fmt.Errorf("pad %s: play track: %w", tr.PadID, err)
	}
	d.mu.Lock()
	d.remotePadID = tr.PadID
	d.mu.Unlock()
	d.log.Debug("remote track started", "pad", tr.PadID, "track", tr.Pad.Sound.Track, "offset", offset, "loop", loop)
	return nil
}

func (d *Dispatcher) pauseRemote(ctx context.Context, padID string) error {
	if err := d.remote.Pause(ctx); err != nil {
		return fmt.Errorf("pad %s: pause: %w", padID, err)
	}
	d.mu.Lock()
	if d.remotePadID == padID {
		d.remotePadID = ""
	}
	d.mu.Unlock()
	return nil
}

// scheduleGate отпускает gate-пэд по таймеру. Новое нажатие того же пэда
// перезапускает таймер.
func (d *Dispatcher) scheduleGate(padID string, fadeOut float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.gates[padID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.gateTimeout, func() {
		d.mu.Lock()
		if d.gates[padID] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.gates, padID)
		d.forgetHeld(padID)
		d.mu.Unlock()
		d.player.StopPad(padID, fadeOut)
	})
	d.gates[padID] = timer
}

func (d *Dispatcher) cancelGate(padID string) {
	d.mu.Lock()
	if t, ok := d.gates[padID]; ok {
		t.Stop()
		delete(d.gates, padID)
	}
	d.mu.Unlock()
}

// forgetHeld снимает нажатия пэда, отпущенного таймером. Вызывается под d.mu.
func (d *Dispatcher) forgetHeld(padID string) {
	for k, tr := range d.held {
		if tr.PadID == padID {
			delete(d.held, k)
		}
	}
}

// Close отменяет ожидающие автоотпускания.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for id, t := range d.gates {
		t.Stop()
		delete(d.gates, id)
	}
	clear(d.held)
	d.mu.Unlock()
}

func describe(ev Event) string {
	switch {
	case ev.PadID != "":
		return ev.PadID
	case ev.Source == SourceMIDI:
		return fmt.Sprintf("note %d", ev.Note)
	default:
		return fmt.Sprintf("key %q", ev.Key)
	}
}
