package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Roman77St/padboard/dispatch"
	"github.com/Roman77St/padboard/internal/httpapi"
	"github.com/Roman77St/padboard/internal/tui"
)

func runCommand(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Live mode: trigger pads from the keyboard and MIDI",
		Long: "Loads the board, arms audio and routes keyboard and MIDI input to pads.\n" +
			"With --plain, key labels are read line by line from stdin instead of the terminal UI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Read key labels from stdin, one or more per line")
	cmd.Flags().String("midi-port", "", "MIDI input port name (see 'padboard ports')")
	cmd.Flags().Duration("gate-timeout", dispatch.DefaultGateTimeout, "Auto-release for gate pads when no key-up arrives")
	cmd.Flags().String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("http", "", "Serve the pad HTTP API on this address, e.g. :8080")
	return cmd
}

func (a *app) run(ctx context.Context, plain bool) error {
	clips, err := a.openClips()
	if err != nil {
		return err
	}
	b, err := a.loadBoard(ctx)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	engine, err := a.newEngine(clips, reg)
	if err != nil {
		return err
	}
	defer engine.Close()
	a.serveMetrics(ctx, reg)

	if err := engine.Arm(); err != nil {
		return err
	}

	// Декодируем всё заранее, чтобы первое нажатие не ждало.
	for _, id := range b.ClipRefs() {
		if err := engine.Preload(ctx, id); err != nil {
			a.log.Warn("preload failed", "clip", id, "error", err)
		}
	}

	resolver := dispatch.NewResolver(b)
	d := dispatch.New(resolver, engine,
		dispatch.WithLogger(a.log),
		dispatch.WithGateTimeout(a.settings.MIDI.GateTimeout),
		dispatch.WithoutRelease(dispatch.SourceKeyboard, dispatch.SourceMIDI),
	)
	defer d.Close()

	handle := func(ev dispatch.Event) {
		if err := d.Handle(ctx, ev); err != nil {
			a.log.Warn("trigger failed", "source", string(ev.Source), "error", err)
		}
	}

	if addr := a.settings.HTTP.Listen; addr != "" {
		srv := httpapi.New(resolver, engine, d.Handle, a.settings.Engine.StopFade, a.log)
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				a.log.Warn("http api failed", "addr", addr, "error", err)
			}
		}()
	}

	if port := a.settings.MIDI.Port; port != "" {
		in, err := dispatch.ListenMIDI(port, handle, a.log)
		if err != nil {
			return err
		}
		defer in.Close()
	}

	defer func() {
		// Затухание StopAll должно успеть прозвучать до закрытия выхода.
		fade := a.settings.Engine.StopFade
		engine.StopAll(fade)
		time.Sleep(time.Duration(fade * float64(time.Second)))
	}()

	if plain {
		a.log.Info("reading key labels from stdin", "bank", resolver.Bank())
		err := dispatch.NewKeyboardInput(os.Stdin).Run(ctx, handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	model := tui.NewModel(ctx, b, resolver, engine, d.Handle)
	model.StopFade = a.settings.Engine.StopFade
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	return err
}
