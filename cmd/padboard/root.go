package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/board"
	"github.com/Roman77St/padboard/clipstore"
	"github.com/Roman77St/padboard/internal/conf"
)

// app — общее состояние команд: настройки и логгер.
type app struct {
	configPath string
	settings   *conf.Settings
	log        *slog.Logger
	clips      clipstore.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "padboard",
		Short:         "Soundboard with instant pad playback",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	setupFlags(rootCmd, a)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load(a.configPath, cmd.Flags())
		if err != nil {
			return err
		}
		log, err := conf.NewLogger(settings.Log.Level, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(log)
		a.settings = settings
		a.log = log
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return a.closeClips()
	}

	rootCmd.AddCommand(
		playCommand(a),
		renderCommand(a),
		runCommand(a),
		portsCommand(),
		exportCommand(a),
		importCommand(a),
		assignCommand(a),
		clipsCommand(a),
	)
	return rootCmd
}

// setupFlags задаёт глобальные флаги. Значения по умолчанию берутся из
// настроек, поэтому здесь только описания.
func setupFlags(rootCmd *cobra.Command, a *app) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to padboard.yaml")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Int("samplerate", padboard.DefaultSampleRate, "Output sample rate in Hz")
	flags.Bool("headless", false, "Run without a sound card (audio is rendered and discarded)")
	flags.String("audio-backend", "oto", "Audio output backend: oto or malgo")
	flags.String("audio-device", "", "Playback device name for the malgo backend (see 'padboard ports --audio')")
	flags.Int("max-voices", 0, "Maximum simultaneous instances, 0 for unlimited")
	flags.String("board", "board.yaml", "Board file")
	flags.String("clips", "clips", "Clip library directory")
	flags.String("clips-backend", "dir", "Clip library backend: dir or sqlite")
	flags.String("clips-db", "clips.db", "Clip database file for the sqlite backend")
}

// openClips открывает библиотеку клипов один раз на команду.
func (a *app) openClips() (clipstore.Store, error) {
	if a.clips != nil {
		return a.clips, nil
	}
	var (
		store clipstore.Store
		err   error
	)
	switch a.settings.Clips.Backend {
	case "sqlite":
		store, err = clipstore.OpenSQLite(a.settings.Clips.DB)
	default:
		store, err = clipstore.OpenDir(a.settings.Clips.Dir)
	}
	if err != nil {
		return nil, err
	}
	a.clips = store
	return store, nil
}

func (a *app) closeClips() error {
	c, ok := a.clips.(io.Closer)
	a.clips = nil
	if !ok {
		return nil
	}
	return c.Close()
}

// clipsLocation описывает библиотеку для сообщений об ошибках.
func (a *app) clipsLocation() string {
	if a.settings.Clips.Backend == "sqlite" {
		return a.settings.Clips.DB
	}
	return a.settings.Clips.Dir
}

// loadBoard читает доску из board.path. Отсутствующий файл даёт пустую доску.
func (a *app) loadBoard(ctx context.Context) (*board.Board, error) {
	b := board.New(a.settings.Board.Banks, a.settings.Board.Pads)

	f, err := os.Open(a.settings.Board.Path)
	if errors.Is(err, os.ErrNotExist) {
		a.log.Info("board file not found, starting empty", "path", a.settings.Board.Path)
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bf, err := board.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", a.settings.Board.Path, err)
	}
	if err := board.Import(ctx, bf, b, nil); err != nil {
		return nil, fmt.Errorf("board %s: %w", a.settings.Board.Path, err)
	}
	return b, nil
}

// saveBoard атомарно записывает доску без встроенного аудио.
func (a *app) saveBoard(ctx context.Context, b *board.Board) error {
	bf, err := board.Export(ctx, b, nil, false)
	if err != nil {
		return err
	}
	path := a.settings.Board.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".board-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := bf.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// newEngine собирает движок по настройкам. reg может быть nil.
func (a *app) newEngine(clips padboard.ClipSource, reg prometheus.Registerer, opts ...padboard.Option) (*padboard.Engine, error) {
	base := []padboard.Option{
		padboard.WithSampleRate(a.settings.Audio.SampleRate),
		padboard.WithMaxVoices(a.settings.Engine.MaxVoices),
		padboard.WithLogger(a.log),
	}
	switch {
	case a.settings.Audio.Headless:
		base = append(base, padboard.WithSink(&padboard.ClockSink{}))
	case a.settings.Audio.Backend == "malgo":
		base = append(base, padboard.WithSink(&padboard.MalgoSink{DeviceName: a.settings.Audio.Device}))
	}
	if reg != nil {
		m, err := padboard.NewMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		base = append(base, padboard.WithMetrics(m))
	}
	// Опции вызывающего идут последними и перекрывают настройки.
	return padboard.New(clips, append(base, opts...)...), nil
}

// serveMetrics отдаёт /metrics, пока не отменён ctx.
func (a *app) serveMetrics(ctx context.Context, reg *prometheus.Registry) {
	addr := a.settings.Metrics.Listen
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics endpoint failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
