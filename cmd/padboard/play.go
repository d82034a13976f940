package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/board"
	"github.com/Roman77St/padboard/clipstore"
)

type playFlags struct {
	pad      board.Pad
	loop     bool
	cue      float64
	duration time.Duration
}

// playCommand проигрывает один файл (или клип из библиотеки) с настройками пэда.
func playCommand(a *app) *cobra.Command {
	f := &playFlags{pad: board.DefaultPad(1, 0)}

	cmd := &cobra.Command{
		Use:   "play <file|clip-id>",
		Short: "Play a single audio file with pad settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.play(ctx, args[0], f)
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
	fl.BoolVar(&f.loop, "loop", false, "Loop the trimmed window until interrupted")
	fl.DurationVar(&f.duration, "duration", 0, "Stop after this long (0 plays to the end)")
	return cmd
}

func (a *app) play(ctx context.Context, source string, f *playFlags) error {
	clips, clipID, err := a.resolveClip(ctx, source)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	var once sync.Once
	engine, err := a.newEngine(clips, nil, padboard.WithEndedHook(func(padboard.Instance) {
		once.Do(func() { close(done) })
	}))
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
	inst, _ := engine.Lookup(id)
	a.log.Info("playing", "clip", clipID, "offset", inst.Schedule.Offset, "end", inst.Schedule.End, "loop", inst.Loop)

	var timeout <-chan time.Time
	if f.duration > 0 {
		timer := time.NewTimer(f.duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	case <-timeout:
	}

	// Дать затуханию доиграть перед закрытием выхода.
	engine.StopInstance(id, pad.FadeOut)
	select {
	case <-done:
	case <-time.After(time.Duration(max(pad.FadeOut, 0.005)*float64(time.Second)) + 200*time.Millisecond):
	}
	return nil
}

// resolveClip: путь к файлу загружается в память, иначе аргумент считается
// идентификатором клипа из библиотеки.
func (a *app) resolveClip(ctx context.Context, source string) (clipstore.Store, string, error) {
	data, err := os.ReadFile(source)
	if err == nil {
		mem := clipstore.NewMemory()
		clip := clipstore.NewClip(filepath.Base(source), mime.TypeByExtension(filepath.Ext(source)), data)
		if err := mem.Put(ctx, clip); err != nil {
			return nil, "", err
		}
		return mem, clip.ID, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}

	lib, err := a.openClips()
	if err != nil {
		return nil, "", err
	}
	if _, err := lib.Get(ctx, source); err != nil {
		return nil, "", fmt.Errorf("%s is neither a file nor a clip in %s: %w", source, a.clipsLocation(), err)
	}
	return lib, source, nil
}
