package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 44100, s.Audio.SampleRate)
	assert.False(t, s.Audio.Headless)
	assert.Equal(t, 0, s.Engine.MaxVoices)
	assert.Equal(t, 0.05, s.Engine.StopFade)
	assert.Equal(t, 72, s.Board.Banks)
	assert.Equal(t, 120, s.Board.Pads)
	assert.Equal(t, 300*time.Millisecond, s.MIDI.GateTimeout)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "dir", s.Clips.Backend)
	assert.Equal(t, "oto", s.Audio.Backend)
	assert.Equal(t, "clips.db", s.Clips.DB)
	assert.Empty(t, s.HTTP.Listen)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "padboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio:
  samplerate: 48000
  headless: true
engine:
  maxvoices: 16
midi:
  port: "Launchpad X"
  gatetimeout: 250ms
log:
  level: debug
`), 0o644))

	t.Setenv("PADBOARD_ENGINE_MAXVOICES", "8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "warn"}))

	s, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 48000, s.Audio.SampleRate)
	assert.True(t, s.Audio.Headless)
	assert.Equal(t, 8, s.Engine.MaxVoices, "environment overrides the file")
	assert.Equal(t, "Launchpad X", s.MIDI.Port)
	assert.Equal(t, 250*time.Millisecond, s.MIDI.GateTimeout)
	assert.Equal(t, "warn", s.Log.Level, "flags override everything")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  samplerate: 10\nlog:\n  level: loud\n"), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio.samplerate")
	assert.Contains(t, err.Error(), "loud")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PADBOARD_CLIPS_BACKEND", "s3")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clips.backend")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("WARN", &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "pad", "1:0")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "pad=1:0")

	_, err = NewLogger("verbose", &buf)
	assert.Error(t, err)
}
