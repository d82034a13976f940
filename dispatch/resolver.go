// Package dispatch превращает события ввода (клавиатура, указатель, MIDI)
// в команды движку или удалённому плееру.
package dispatch

import (
	"sync"

	"github.com/Roman77St/padboard/board"
)

// Source — откуда пришло событие.
type Source string

const (
	SourcePointer  Source = "pointer"
	SourceKeyboard Source = "keyboard"
	SourceMIDI     Source = "midi"
)

// Action — нажатие или отпускание.
type Action int

const (
	Press Action = iota
	Release
)

func (a Action) String() string {
	if a == Release {
		return "release"
	}
	return "press"
}

// Event — сырое событие ввода. Для клавиатуры заполняется Key,
// для MIDI — Note/Velocity, для указателя — PadID.
// Bank == 0 означает текущий банк резолвера.
type Event struct {
	Source   Source
	Bank     int
	Key      string
	Note     uint8
	Velocity uint8
	PadID    string
	CueID    string
	Action   Action
}

// Trigger — событие, сопоставленное с пэдом.
type Trigger struct {
	PadID  string
	Pad    board.Pad
	Mode   board.TriggerMode
	Action Action
	Cue    *board.Cue
	Source Source
}

// Resolver находит пэд по событию. Не обращается к движку.
type Resolver struct {
	board *board.Board

	mu   sync.Mutex
	bank int
}

func NewResolver(b *board.Board) *Resolver {
	return &Resolver{board: b, bank: 1}
}

// Bank возвращает текущий банк.
func (r *Resolver) Bank() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bank
}

// SetBank переключает текущий банк; номера вне сетки ограничиваются.
func (r *Resolver) SetBank(n int) int {
	n = max(1, min(n, r.board.Banks()))
	r.mu.Lock()
	r.bank = n
	r.mu.Unlock()
	return n
}

// ResolveTrigger сопоставляет событие с пэдом. ok == false, если пэда нет
// или запрошенная точка не найдена (тогда Trigger.PadID заполнен).
func (r *Resolver) ResolveTrigger(ev Event) (Trigger, bool) {
	bank := ev.Bank
	if bank == 0 {
		bank = r.Bank()
	}

	var (
		pad   board.Pad
		found bool
	)
	switch {
	case ev.PadID != "":
		p, err := r.board.Pad(ev.PadID)
		pad, found = p, err == nil
	case ev.Source == SourceMIDI:
		pad, found = r.board.FindByMIDINote(bank, ev.Note)
	case ev.Key != "":
		pad, found = r.board.FindByKey(bank, ev.Key)
	}
	if !found {
		return Trigger{}, false
	}

	tr := Trigger{
		PadID:  pad.ID(),
		Pad:    pad,
		Mode:   pad.EffectiveMode(),
		Action: ev.Action,
		Source: ev.Source,
	}
	if ev.CueID != "" {
		c, ok := pad.Cue(ev.CueID)
		if !ok {
			return tr, false
		}
		tr.Cue = &c
	}
	return tr, true
}
