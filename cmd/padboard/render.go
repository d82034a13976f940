package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/board"
)

// renderBlock — кадров за один шаг офлайн-рендера.
const renderBlock = 1024

// maxRenderTail ограничивает рендер после остановки экземпляра.
const maxRenderTail = 2 * time.Second

type renderFlags struct {
	playFlags
	output string
	bits   int
}

// renderCommand проигрывает клип с настройками пэда быстрее реального
// времени и сохраняет результат в WAV.
func renderCommand(a *app) *cobra.Command {
	f := &renderFlags{playFlags: playFlags{pad: board.DefaultPad(1, 0)}}

	cmd := &cobra.Command{
		Use:   "render <file|clip-id>",
		Short: "Render a clip with pad settings into a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.loop && f.duration <= 0 {
				return errors.New("--loop needs --duration")
			}
			return a.render(cmd.Context(), args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&f.pad.Volume, "volume", board.DefaultVolume, "Volume 0..2")
	fl.Float64Var(&f.pad.Rate, "rate", board.DefaultRate, "Playback rate 0.25..4")
	fl.Float64Var(&f.pad.Detune, "detune", 0, "Detune in cents")
	fl.Float64Var(&f.pad.FadeIn, "fade-in", board.DefaultFade, "Fade-in seconds")
	fl.Float64Var(&f.pad.FadeOut, "fade-out", board.DefaultFade, "Fade-out seconds")
	fl.Float64Var(&f.pad.TrimStart, "trim-start", 0, "Start offset in seconds")
	fl.Float64Var(&f.pad.TrimEnd, "trim-end", 0, "End offset in seconds, 0 for clip end")
	fl.Float64Var(&f.cue, "cue", -1, "Start from this cue time instead of trim-start")
	fl.BoolVar(&f.loop, "loop", false, "Loop the trimmed window (requires --duration)")
	fl.DurationVar(&f.duration, "duration", 0, "Stop after this much audio (0 renders to the end)")
	fl.StringVarP(&f.output, "output", "o", "out.wav", "Output WAV file")
	fl.IntVar(&f.bits, "bits", 16, "Output bit depth: 16 or 24")
	return cmd
}

func (a *app) render(ctx context.Context, source string, f *renderFlags) error {
	clips, clipID, err := a.resolveClip(ctx, source)
	if err != nil {
		return err
	}

	var ended atomic.Bool
	sink := &padboard.PullSink{}
	engine, err := a.newEngine(clips, nil,
		padboard.WithSink(sink),
		padboard.WithEndedHook(func(padboard.Instance) { ended.Store(true) }),
	)
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.Arm(); err != nil {
		return err
	}

	pad := f.pad
	pad.Sound.SetClip(clipID)
	mode := board.ModeOneShot
	if f.loop {
		mode = board.ModeToggleLoop
	}
	var opts []padboard.PlayOption
	if f.cue >= 0 {
		opts = append(opts, padboard.WithCue(f.cue))
	}
	id, err := engine.Play(ctx, pad, clipID, mode, opts...)
	if err != nil {
		return err
	}

	out, err := os.Create(f.output)
	if err != nil {
		return err
	}
	defer out.Close()
	w, err := padboard.NewWAVWriter(out, sink.SampleRate(), f.bits)
	if err != nil {
		return err
	}

	rate := sink.SampleRate()
	var (
		rendered  int64
		stopAt    int64 = -1
		tailLimit       = int64(maxRenderTail.Seconds() * float64(rate))
	)
	if f.duration > 0 {
		stopAt = int64(f.duration.Seconds() * float64(rate))
	}
	stopped := false
	for !ended.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stopAt >= 0 && rendered >= stopAt {
			if !stopped {
				engine.StopInstance(id, pad.FadeOut)
				stopped = true
			}
			if rendered-stopAt > tailLimit {
				break
			}
		}
		samples, err := sink.Pull(renderBlock)
		if err != nil {
			return err
		}
		if err := w.Write(samples); err != nil {
			return err
		}
		rendered += renderBlock
	}
	if err := w.Close(); err != nil {
		return err
	}

	a.log.Info("rendered", "clip", clipID, "output", f.output,
		"seconds", fmt.Sprintf("%.2f", float64(rendered)/float64(rate)))
	return out.Close()
}
