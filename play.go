package padboard

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/Roman77St/padboard/board"
)

type playOptions struct {
	cue  *float64
	loop bool
}

// PlayOption уточняет отдельный вызов Play.
type PlayOption func(*playOptions)

// WithCue начинает воспроизведение с точки cue (секунды клипа) вместо trimStart.
func WithCue(sec float64) PlayOption {
	return func(o *playOptions) { o.cue = &sec }
}

// WithLoop зацикливает воспроизведение независимо от режима пэда.
func WithLoop() PlayOption {
	return func(o *playOptions) { o.loop = true }
}

// Play запускает новый экземпляр звука пэда и возвращает его идентификатор.
//
// До Arm вызов молча ничего не делает и возвращает "", nil.
// Пустой clipID, отсутствующий клип и ошибка декодирования возвращаются
// как ошибка этого вызова и не влияют на остальные пэды.
func (e *Engine) Play(ctx context.Context, pad board.Pad, clipID string, mode board.TriggerMode, opts ...PlayOption) (string, error) {
	var po playOptions
	for _, opt := range opts {
		opt(&po)
	}

	if !e.Armed() {
		e.metrics.play(outcomeUnarmed)
		e.log.Debug("play ignored: audio not armed", "pad", pad.ID())
		return "", nil
	}
	if clipID == "" {
		e.metrics.play(outcomeNoSound)
		return "", fmt.Errorf("pad %s: %w", pad.ID(), ErrNoSound)
	}
	if !mode.Valid() {
		mode = pad.EffectiveMode()
	}

	// Сначала глушим группу, потом запускаем новый звук.
	group := pad.ExclusiveGroup()
	if group != "" {
		e.StopGroup(group)
	}

	params := validateParams(pad, mode, po)

	buf, err := e.buffer(ctx, clipID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.metrics.play(outcomeCanceled)
		} else {
			e.metrics.play(outcomeFailed)
		}
		e.log.Warn("play failed", "pad", pad.ID(), "clip", clipID, "error", err)
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.armed {
		// Движок закрыли, пока шло декодирование.
		e.metrics.play(outcomeUnarmed)
		return "", nil
	}

	// Пока декодировался клип, в группе мог стартовать другой пэд.
	if group != "" {
		e.stopGroupLocked(group)
	}
	for e.maxVoices > 0 && len(e.instances) >= e.maxVoices {
		e.stealOldestLocked()
	}

	info := Instance{
		ID:     uuid.NewString(),
		PadID:  pad.ID(),
		ClipID: clipID,
		Group:  group,
		Mode:   mode,
		Loop:   params.loop,
	}
	v := &voice{buf: buf, stopAt: -1, tailAt: -1, gain: newAutomation(silence)}
	e.mix.start(v, func(now float64) {
		info.Schedule = params.apply(v, buf, now, e.sampleRate)
		v.info = info
	})

	e.seq++
	e.instances[info.ID] = &instance{info: info, voice: v, seq: e.seq}
	e.metrics.play(outcomeStarted)
	e.metrics.voices(len(e.instances))

	e.log.Debug("instance started", "id", info.ID, "pad", info.PadID, "clip", clipID,
		"mode", string(mode), "loop", info.Loop, "offset", info.Schedule.Offset, "end", info.Schedule.End)
	return info.ID, nil
}

// apply строит расписание голоса: окно воспроизведения, скорость, петлю,
// нарастание громкости и, для oneshot без петли, автоостановку с затуханием.
func (p playParams) apply(v *voice, buf *DecodedBuffer, now float64, outRate int) Schedule {
	dur := buf.Duration()
	start, end := playWindow(p.offset, p.trimEnd, dur)
	if p.loop && start >= dur {
		start, end = playWindow(0, p.trimEnd, dur)
	}

	speed := p.rate * detuneFactor(p.detune)
	clipRate := float64(buf.SampleRate)

	v.step = speed * clipRate / float64(outRate)
	v.pos = start * clipRate
	v.startAt = now
	v.loop = p.loop
	if p.loop {
		v.loopStart = start * clipRate
		v.loopEnd = end * clipRate
	}

	// Громкость всегда нарастает от почти тишины, даже при fadeIn = 0.
	v.gain.setValueAt(silence, now)
	v.gain.exponentialRampTo(math.Max(silence, p.volume), now+p.fadeIn)

	s := Schedule{
		StartAt: now,
		Offset:  start,
		End:     end,
		Loop:    p.loop,
		Rate:    p.rate,
		Detune:  p.detune,
		Gain:    p.volume,
		FadeIn:  p.fadeIn,
		FadeOut: p.fadeOut,
	}
	if p.loop {
		s.LoopStart, s.LoopEnd = start, end
	}

	if p.oneshot && !p.loop {
		remaining := math.Max(0, end-start) / speed
		stopAt := now + remaining + p.fadeOut
		v.tailAt = stopAt - p.fadeOut
		v.tailTau = math.Max(minFade, p.fadeOut/5)
		v.gain.setTargetAt(silence, v.tailAt, v.tailTau)
		v.stopAt = stopAt
		s.AutoStop = true
		s.StopAt = stopAt
	}
	return s
}
