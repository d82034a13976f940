package board

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Размер сетки по умолчанию: 72 банка по 120 пэдов (12 x 10).
const (
	DefaultBanks       = 72
	DefaultPadsPerBank = 120
)

// Board хранит конфигурацию всех пэдов сетки.
// Читатели получают копии, поэтому снимок пэда не меняется под ногами у движка.
type Board struct {
	banks       int
	padsPerBank int

	mu   sync.RWMutex
	pads map[string]Pad
}

// New создаёт пустую доску заданного размера.
// Нулевые или отрицательные размеры заменяются значениями по умолчанию.
func New(banks, padsPerBank int) *Board {
	if banks <= 0 {
		banks = DefaultBanks
	}
	if padsPerBank <= 0 {
		padsPerBank = DefaultPadsPerBank
	}
	return &Board{
		banks:       banks,
		padsPerBank: padsPerBank,
		pads:        make(map[string]Pad),
	}
}

// Banks возвращает количество банков.
func (b *Board) Banks() int { return b.banks }

// PadsPerBank возвращает количество пэдов в банке.
func (b *Board) PadsPerBank() int { return b.padsPerBank }

func (b *Board) contains(bank, index int) bool {
	return bank >= 1 && bank <= b.banks && index >= 0 && index < b.padsPerBank
}

// Pad возвращает снимок пэда. Незаполненная ячейка возвращается
// с настройками по умолчанию.
func (b *Board) Pad(id string) (Pad, error) {
	bank, index, err := ParsePadID(id)
	if err != nil {
		return Pad{}, err
	}
	if !b.contains(bank, index) {
		return Pad{}, fmt.Errorf("pad %s is outside the %dx%d grid", id, b.banks, b.padsPerBank)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.pads[PadID(bank, index)]; ok {
		return p.Clone(), nil
	}
	return DefaultPad(bank, index), nil
}

// Put сохраняет пэд (замещая прежнюю конфигурацию той же ячейки).
func (b *Board) Put(p Pad) error {
	if !b.contains(p.Bank, p.Index) {
		return fmt.Errorf("pad %s is outside the %dx%d grid", p.ID(), b.banks, b.padsPerBank)
	}
	b.mu.Lock()
	b.pads[p.ID()] = p.Clone()
	b.mu.Unlock()
	return nil
}

// Update атомарно применяет fn к пэду и сохраняет результат.
func (b *Board) Update(id string, fn func(*Pad)) (Pad, error) {
	p, err := b.Pad(id)
	if err != nil {
		return Pad{}, err
	}
	bank, index := p.Bank, p.Index
	key := PadID(bank, index)

	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.pads[key]; ok {
		p = cur.Clone()
	}
	fn(&p)
	p.Bank, p.Index = bank, index
	b.pads[key] = p.Clone()
	return p.Clone(), nil
}

// Bank возвращает все пэды банка по порядку индексов, заполняя пустые ячейки.
func (b *Board) Bank(bank int) []Pad {
	if bank < 1 || bank > b.banks {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Pad, 0, b.padsPerBank)
	for i := 0; i < b.padsPerBank; i++ {
		if p, ok := b.pads[PadID(bank, i)]; ok {
			out = append(out, p.Clone())
			continue
		}
		out = append(out, DefaultPad(bank, i))
	}
	return out
}

// Pads возвращает все явно сохранённые пэды, отсортированные по банку и индексу.
func (b *Board) Pads() []Pad {
	b.mu.RLock()
	out := make([]Pad, 0, len(b.pads))
	for _, p := range b.pads {
		out = append(out, p.Clone())
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Bank != out[j].Bank {
			return out[i].Bank < out[j].Bank
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// Reset удаляет все сохранённые пэды.
func (b *Board) Reset() {
	b.mu.Lock()
	b.pads = make(map[string]Pad)
	b.mu.Unlock()
}

// FindByKey ищет в банке пэд, привязанный к клавише.
func (b *Board) FindByKey(bank int, label string) (Pad, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Pad{}, false
	}
	for _, p := range b.Bank(bank) {
		if p.Key != "" && strings.EqualFold(p.Key, label) {
			return p, true
		}
	}
	return Pad{}, false
}

// FindByMIDINote ищет в банке пэд, привязанный к MIDI-ноте.
func (b *Board) FindByMIDINote(bank int, note uint8) (Pad, bool) {
	for _, p := range b.Bank(bank) {
		if p.MIDINote != nil && *p.MIDINote == note {
			return p, true
		}
	}
	return Pad{}, false
}

// ClipRefs возвращает множество клипов, на которые ссылаются пэды.
func (b *Board) ClipRefs() []string {
	seen := make(map[string]struct{})
	for _, p := range b.Pads() {
		if p.Sound.Clip != "" {
			seen[p.Sound.Clip] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
