package dispatch

import (
	"fmt"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// MIDIInput слушает входной MIDI-порт и превращает ноты в события.
// Драйвер (например rtmididrv) регистрирует вызывающая программа.
type MIDIInput struct {
	port drivers.In
	stop func()
	log  *slog.Logger
}

// Ports возвращает имена доступных входных MIDI-портов.
func Ports() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// ListenMIDI открывает порт по имени и передаёт каждое нажатие и отпускание
// ноты в handle. handle вызывается из горутины драйвера.
func ListenMIDI(portName string, handle func(Event), log *slog.Logger) (*MIDIInput, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("module", "midi", "port", portName)

	in, err := midi.FindInPort(portName)
	if err != nil {
		return nil, fmt.Errorf("MIDI input %q not found: %w", portName, err)
	}
	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("open MIDI input %q: %w", portName, err)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		if ev, ok := noteEvent(msg); ok {
			handle(ev)
		}
	}, midi.HandleError(func(err error) {
		log.Warn("MIDI listener error, device likely disconnected", "error", err)
	}))
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("listen on MIDI input %q: %w", portName, err)
	}

	log.Info("MIDI input connected")
	return &MIDIInput{port: in, stop: stop, log: log}, nil
}

// Close прекращает прослушивание и закрывает порт.
func (m *MIDIInput) Close() error {
	m.stop()
	err := m.port.Close()
	m.log.Info("MIDI input closed")
	return err
}

// noteEvent: NoteOn с velocity > 0 — нажатие,
// NoteOff и NoteOn с velocity 0 — отпускание.
func noteEvent(msg midi.Message) (Event, bool) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		return Event{Source: SourceMIDI, Note: key, Velocity: velocity, Action: Press}, true
	case msg.GetNoteEnd(&channel, &key):
		return Event{Source: SourceMIDI, Note: key, Action: Release}, true
	}
	return Event{}, false
}
