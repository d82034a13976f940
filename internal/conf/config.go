// Package conf загружает настройки padboard из файла, окружения и флагов.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения: PADBOARD_AUDIO_SAMPLERATE и т.д.
const EnvPrefix = "PADBOARD"

type Settings struct {
	Audio struct {
		SampleRate int    // частота выхода, Гц
		Headless   bool   // без звуковой карты: ClockSink вместо oto
		Backend    string // oto или malgo
		Device     string // имя устройства для malgo, пусто — по умолчанию
	}

	Engine struct {
		MaxVoices int     // 0 — без ограничения
		StopFade  float64 // затухание StopAll, секунды
	}

	Board struct {
		Path  string // YAML-файл доски
		Banks int
		Pads  int // пэдов в банке
	}

	Clips struct {
		Backend string // dir или sqlite
		Dir     string
		DB      string // файл базы для sqlite
	}

	MIDI struct {
		Port        string
		GateTimeout time.Duration
	}

	Metrics struct {
		Listen string // адрес /metrics, пусто — выключено
	}

	HTTP struct {
		Listen string // адрес HTTP API пэдов, пусто — выключено
	}

	Log struct {
		Level string
	}
}

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.headless", false)
	v.SetDefault("audio.backend", "oto")
	v.SetDefault("audio.device", "")

	v.SetDefault("engine.maxvoices", 0)
	v.SetDefault("engine.stopfade", 0.05)

	v.SetDefault("board.path", "board.yaml")
	v.SetDefault("board.banks", 72)
	v.SetDefault("board.pads", 120)

	v.SetDefault("clips.backend", "dir")
	v.SetDefault("clips.dir", "clips")
	v.SetDefault("clips.db", "clips.db")

	v.SetDefault("midi.port", "")
	v.SetDefault("midi.gatetimeout", 300*time.Millisecond)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("http.listen", "")

	v.SetDefault("log.level", "info")
}

// flagKeys связывает флаги командной строки с ключами настроек.
var flagKeys = map[string]string{
	"samplerate":    "audio.samplerate",
	"headless":      "audio.headless",
	"audio-backend": "audio.backend",
	"audio-device":  "audio.device",
	"max-voices":    "engine.maxvoices",
	"board":         "board.path",
	"clips":         "clips.dir",
	"clips-backend": "clips.backend",
	"clips-db":      "clips.db",
	"http":          "http.listen",
	"midi-port":     "midi.port",
	"gate-timeout":  "midi.gatetimeout",
	"metrics":       "metrics.listen",
	"log-level":     "log.level",
}

// Load читает настройки. Приоритет: флаги, окружение, файл, значения по умолчанию.
// Пустой path означает поиск padboard.yaml в текущем каталоге и в
// пользовательском каталоге настроек; отсутствие файла не ошибка.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("padboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "padboard"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate проверяет значения, которые движок не может исправить сам.
func (s *Settings) Validate() error {
	var errs []error
	if s.Audio.SampleRate < 8000 || s.Audio.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.samplerate %d out of range 8000..192000", s.Audio.SampleRate))
	}
	if s.Engine.MaxVoices < 0 {
		errs = append(errs, errors.New("engine.maxvoices must not be negative"))
	}
	if s.Engine.StopFade < 0 {
		errs = append(errs, errors.New("engine.stopfade must not be negative"))
	}
	if s.Board.Banks <= 0 || s.Board.Pads <= 0 {
		errs = append(errs, fmt.Errorf("board size %dx%d is invalid", s.Board.Banks, s.Board.Pads))
	}
	switch s.Audio.Backend {
	case "oto", "malgo":
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q must be oto or malgo", s.Audio.Backend))
	}
	switch s.Clips.Backend {
	case "dir", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("clips.backend %q must be dir or sqlite", s.Clips.Backend))
	}
	if s.MIDI.GateTimeout < 0 {
		errs = append(errs, errors.New("midi.gatetimeout must not be negative"))
	}
	if _, err := ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return nil
}
