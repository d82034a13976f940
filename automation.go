package padboard

import (
	"math"
	"sort"
)

type eventKind int

const (
	eventSetValue eventKind = iota // мгновенная установка значения
	eventLinearRamp                // линейный переход к значению к моменту time
	eventExpRamp                   // экспоненциальный переход к значению к моменту time
	eventSetTarget                 // экспоненциальное приближение к value с постоянной tau
)

type gainEvent struct {
	kind  eventKind
	time  float64 // секунды аудиочасов
	value float64
	tau   float64
}

// automation — расписание изменений громкости одного экземпляра на аудиочасах.
// Не потокобезопасна: все вызовы идут под замком микшера.
type automation struct {
	base   float64
	events []gainEvent
}

func newAutomation(initial float64) *automation {
	return &automation{base: initial}
}

func (a *automation) insert(e gainEvent) {
	// Событие с тем же временем встаёт после уже существующих.
	i := sort.Search(len(a.events), func(i int) bool { return a.events[i].time > e.time })
	a.events = append(a.events, gainEvent{})
	copy(a.events[i+1:], a.events[i:])
	a.events[i] = e
}

func (a *automation) setValueAt(v, t float64) {
	a.insert(gainEvent{kind: eventSetValue, time: t, value: v})
}

func (a *automation) linearRampTo(v, t float64) {
	a.insert(gainEvent{kind: eventLinearRamp, time: t, value: v})
}

func (a *automation) exponentialRampTo(v, t float64) {
	a.insert(gainEvent{kind: eventExpRamp, time: t, value: v})
}

func (a *automation) setTargetAt(target, t, tau float64) {
	a.insert(gainEvent{kind: eventSetTarget, time: t, value: target, tau: tau})
}

// cancel удаляет все события, запланированные на момент t и позже.
func (a *automation) cancel(t float64) {
	i := sort.Search(len(a.events), func(i int) bool { return a.events[i].time >= t })
	a.events = a.events[:i]
}

// pending возвращает количество событий, которые ещё не начались к моменту t.
func (a *automation) pending(t float64) int {
	n := 0
	for _, e := range a.events {
		if e.time > t {
			n++
		}
	}
	return n
}

// valueAt вычисляет громкость в момент t.
func (a *automation) valueAt(t float64) float64 {
	v, from := a.base, 0.0
	var target *gainEvent

	for i := range a.events {
		e := &a.events[i]
		if target != nil {
			end := math.Min(e.time, t)
			v = approach(v, target.value, end-from, target.tau)
			from = end
			target = nil
			if e.time > t {
				return interpolate(v, from, e, t)
			}
		}
		if e.time > t {
			return interpolate(v, from, e, t)
		}
		switch e.kind {
		case eventSetTarget:
			target = e
			from = e.time
		default:
			v, from = e.value, e.time
		}
	}
	if target != nil {
		v = approach(v, target.value, t-from, target.tau)
	}
	return v
}

// interpolate возвращает значение внутри ещё не завершённого перехода к событию e.
func interpolate(v, from float64, e *gainEvent, t float64) float64 {
	span := e.time - from
	if span <= 0 {
		return v
	}
	frac := (t - from) / span
	switch e.kind {
	case eventLinearRamp:
		return v + (e.value-v)*frac
	case eventExpRamp:
		if v <= 0 || e.value <= 0 {
			return v + (e.value-v)*frac
		}
		return v * math.Pow(e.value/v, frac)
	}
	return v
}

func approach(v, target, dt, tau float64) float64 {
	if dt <= 0 {
		return v
	}
	if tau <= 0 {
		return target
	}
	return target + (v-target)*math.Exp(-dt/tau)
}
