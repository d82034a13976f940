// Package board описывает конфигурацию пэдов и сетку банков.
package board

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TriggerMode определяет, как диспетчер запускает и останавливает пэд.
type TriggerMode string

const (
	ModeOneShot    TriggerMode = "oneshot"    // Играет до конца (или до trimEnd) с автоматическим затуханием
	ModeGate       TriggerMode = "gate"       // Играет, пока клавиша/нота удерживается
	ModeToggleLoop TriggerMode = "toggleLoop" // Первое нажатие запускает петлю, второе останавливает
)

// Valid сообщает, известен ли режим.
func (m TriggerMode) Valid() bool {
	switch m {
	case ModeOneShot, ModeGate, ModeToggleLoop:
		return true
	}
	return false
}

// Значения по умолчанию, с которыми создаётся новый пэд.
const (
	DefaultVolume = 1.0
	DefaultRate   = 1.0
	DefaultFade   = 0.03
	DefaultColor  = "#1f2937"
)

// SoundRef ссылается либо на локальный клип, либо на удалённый трек.
// Активна только одна ссылка: назначение одной очищает другую.
type SoundRef struct {
	Clip  string `yaml:"clip,omitempty"`
	Track string `yaml:"track,omitempty"`
}

// SetClip назначает локальный клип и сбрасывает удалённый трек.
func (s *SoundRef) SetClip(id string) {
	s.Clip = strings.TrimSpace(id)
	if s.Clip != "" {
		s.Track = ""
	}
}

// SetTrack назначает удалённый трек и сбрасывает локальный клип.
func (s *SoundRef) SetTrack(ref string) {
	s.Track = strings.TrimSpace(ref)
	if s.Track != "" {
		s.Clip = ""
	}
}

// Clear убирает любой назначенный звук.
func (s *SoundRef) Clear() { *s = SoundRef{} }

// Empty возвращает true, если пэду ничего не назначено.
func (s SoundRef) Empty() bool { return s.Clip == "" && s.Track == "" }

// IsRemote возвращает true для пэдов, управляемых удалённым плеером.
func (s SoundRef) IsRemote() bool { return s.Clip == "" && s.Track != "" }

// Cue — именованная альтернативная точка старта внутри клипа.
type Cue struct {
	ID    string  `yaml:"id"`
	Label string  `yaml:"label,omitempty"`
	Time  float64 `yaml:"time"`
}

// Pad — одна ячейка сетки. Движок только читает её, никогда не изменяет.
type Pad struct {
	Bank  int `yaml:"bank"`
	Index int `yaml:"index"`

	Name  string   `yaml:"name,omitempty"`
	Color string   `yaml:"color,omitempty"`
	Tags  []string `yaml:"tags,omitempty"`

	Sound SoundRef    `yaml:"sound,omitempty"`
	Mode  TriggerMode `yaml:"mode"`
	Group string      `yaml:"group,omitempty"`

	Volume    float64 `yaml:"volume"`
	Rate      float64 `yaml:"rate"`
	Detune    float64 `yaml:"detune,omitempty"` // в центах
	FadeIn    float64 `yaml:"fadeIn"`
	FadeOut   float64 `yaml:"fadeOut"`
	TrimStart float64 `yaml:"trimStart,omitempty"`
	TrimEnd   float64 `yaml:"trimEnd,omitempty"` // 0 = до конца клипа

	Key      string `yaml:"key,omitempty"`
	MIDINote *uint8 `yaml:"midiNote,omitempty"`

	Cues []Cue `yaml:"cues,omitempty"`
}

// DefaultPad возвращает пустой пэд с настройками по умолчанию.
func DefaultPad(bank, index int) Pad {
	return Pad{
		Bank:    bank,
		Index:   index,
		Color:   DefaultColor,
		Mode:    ModeOneShot,
		Volume:  DefaultVolume,
		Rate:    DefaultRate,
		FadeIn:  DefaultFade,
		FadeOut: DefaultFade,
	}
}

// UnmarshalYAML заполняет отсутствующие в файле поля значениями
// DefaultPad: пэд, записанный вручную без volume или rate, всё равно звучит.
func (p *Pad) UnmarshalYAML(value *yaml.Node) error {
	type plain Pad
	v := plain(DefaultPad(0, 0))
	if err := value.Decode(&v); err != nil {
		return err
	}
	*p = Pad(v)
	return nil
}

// ID возвращает стабильный идентификатор пэда вида "bank:index".
func (p Pad) ID() string { return PadID(p.Bank, p.Index) }

// ExclusiveGroup возвращает метку группы без пробелов ("" — группы нет).
func (p Pad) ExclusiveGroup() string { return strings.TrimSpace(p.Group) }

// EffectiveMode возвращает режим пэда; неизвестные значения считаются oneshot.
func (p Pad) EffectiveMode() TriggerMode {
	if p.Mode.Valid() {
		return p.Mode
	}
	return ModeOneShot
}

// Cue ищет точку старта по идентификатору или метке.
func (p Pad) Cue(key string) (Cue, bool) {
	for _, c := range p.Cues {
		if c.ID == key || (c.Label != "" && c.Label == key) {
			return c, true
		}
	}
	return Cue{}, false
}

// AddCue добавляет точку старта, сохраняя порядок по времени.
func (p *Pad) AddCue(c Cue) {
	if c.Time < 0 {
		c.Time = 0
	}
	p.Cues = append(p.Cues, c)
	sort.SliceStable(p.Cues, func(i, j int) bool { return p.Cues[i].Time < p.Cues[j].Time })
}

// Clone возвращает глубокую копию, чтобы снимки не делили срезы с оригиналом.
func (p Pad) Clone() Pad {
	out := p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Cues != nil {
		out.Cues = append([]Cue(nil), p.Cues...)
	}
	if p.MIDINote != nil {
		n := *p.MIDINote
		out.MIDINote = &n
	}
	return out
}

// PadID собирает идентификатор пэда.
func PadID(bank, index int) string {
	return strconv.Itoa(bank) + ":" + strconv.Itoa(index)
}

// ParsePadID разбирает идентификатор "bank:index".
func ParsePadID(id string) (bank, index int, err error) {
	b, i, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid pad id %q", id)
	}
	if bank, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("invalid pad id %q: %w", id, err)
	}
	if index, err = strconv.Atoi(i); err != nil {
		return 0, 0, fmt.Errorf("invalid pad id %q: %w", id, err)
	}
	return bank, index, nil
}
