package padboard

import (
	"math"

	"github.com/Roman77St/padboard/board"
)

const (
	minRate   = 0.25
	maxRate   = 4.0
	maxVolume = 2.0

	// minFade — нижняя граница любого нарастания/затухания (5 мс).
	// Нулевая длительность даёт слышимый щелчок.
	minFade = 0.005
	// silence — "почти тишина": экспоненциальная кривая не может начинаться с нуля.
	silence = 0.0001
)

// secondsToFrames переводит секунды в количество кадров.
func secondsToFrames(seconds float64, sampleRate int) int64 {
	return int64(math.Round(seconds * float64(sampleRate)))
}

// framesToSeconds переводит кадры в секунды.
func framesToSeconds(frames int64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(frames) / float64(sampleRate)
}

// clamp ограничивает v диапазоном [lo, hi]. NaN заменяется на def.
func clamp(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Max(lo, math.Min(hi, v))
}

// floorFade не даёт длительности перехода стать нулевой.
func floorFade(sec float64) float64 {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return minFade
	}
	return math.Max(minFade, sec)
}

// nonNegative возвращает v или 0 для отрицательных и нечисловых значений.
func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// detuneFactor переводит расстройку в центах в множитель скорости.
func detuneFactor(cents float64) float64 {
	if math.IsNaN(cents) || math.IsInf(cents, 0) {
		return 1
	}
	return math.Pow(2, cents/1200)
}

// playParams — параметры пэда после проверки и ограничения.
type playParams struct {
	volume  float64
	rate    float64
	detune  float64
	fadeIn  float64
	fadeOut float64
	offset  float64 // секунды клипа, с которых начинается воспроизведение
	trimEnd float64
	loop    bool
	oneshot bool
}

// validateParams проверяет и корректирует параметры перед запуском.
// Некорректные значения никогда не отклоняются, только ограничиваются.
func validateParams(p board.Pad, mode board.TriggerMode, opts playOptions) playParams {
	if !mode.Valid() {
		mode = p.EffectiveMode()
	}
	pp := playParams{
		volume:  clamp(p.Volume, 0, maxVolume, board.DefaultVolume),
		rate:    clamp(p.Rate, minRate, maxRate, board.DefaultRate),
		detune:  p.Detune,
		fadeIn:  floorFade(p.FadeIn),
		fadeOut: floorFade(p.FadeOut),
		offset:  nonNegative(p.TrimStart),
		trimEnd: nonNegative(p.TrimEnd),
		loop:    mode == board.ModeToggleLoop || opts.loop,
		oneshot: mode == board.ModeOneShot,
	}
	if opts.cue != nil {
		pp.offset = nonNegative(*opts.cue)
	}
	return pp
}

// playWindow вычисляет фактические границы воспроизведения в секундах клипа.
// trimEnd == 0, trimEnd за концом клипа и trimEnd <= start означают "до конца клипа".
func playWindow(offset, trimEnd, duration float64) (start, end float64) {
	start = offset
	end = duration
	if trimEnd > 0 && trimEnd <= duration {
		end = trimEnd
	}
	if end <= start {
		end = duration
	}
	return start, end
}
