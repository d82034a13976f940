package padboard

import "math"

// voice — звучащая реализация экземпляра внутри микшера:
// источник (буфер со скоростью и петлёй) -> собственная громкость.
// Все поля меняются только под замком микшера.
type voice struct {
	info Instance
	buf  *DecodedBuffer

	step float64 // кадров клипа на один выходной кадр
	pos  float64 // текущая позиция в кадрах клипа

	startAt float64 // секунды аудиочасов
	stopAt  float64 // секунды аудиочасов; < 0 — остановка не запланирована
	tailAt  float64 // начало автозатухания oneshot; < 0 — его нет
	tailTau float64

	loop      bool
	loopStart float64 // кадры клипа
	loopEnd   float64

	gain *automation
	done bool
}

// sample возвращает следующий стереокадр для момента t и признак завершения.
func (v *voice) sample(t float64) (l, r float32, finished bool) {
	if v.stopAt >= 0 && t >= v.stopAt {
		return 0, 0, true
	}
	if t < v.startAt {
		return 0, 0, false
	}

	frames := v.buf.Frames
	if !v.loop && v.pos >= float64(frames) {
		// Источник исчерпан.
		return 0, 0, true
	}

	i := int(v.pos)
	frac := float32(v.pos - float64(i))
	next := i + 1
	if v.loop && float64(next) >= v.loopEnd {
		next = int(v.loopStart)
	}
	if next >= frames {
		next = frames - 1
	}

	d := v.buf.Data
	l = d[2*i] + (d[2*next]-d[2*i])*frac
	r = d[2*i+1] + (d[2*next+1]-d[2*i+1])*frac

	g := float32(v.gain.valueAt(t))
	l, r = l*g, r*g

	v.pos += v.step
	if v.loop && v.pos >= v.loopEnd {
		span := v.loopEnd - v.loopStart
		v.pos = v.loopStart + math.Mod(v.pos-v.loopEnd, span)
	}
	return l, r, false
}

// fadeOut отменяет запланированные изменения громкости, плавно уводит
// текущую громкость в тишину и назначает остановку через fade секунд.
// Возвращает число отменённых событий.
func (v *voice) fadeOut(now, fade float64) int {
	dropped := v.gain.pending(now)
	hold := v.gain.valueAt(now)
	v.gain.cancel(now)
	v.gain.setValueAt(hold, now)
	v.gain.setTargetAt(silence, now, math.Max(minFade, fade/5))
	v.stopAt = now + fade
	v.tailAt = now
	return dropped
}

// rampTo линейно ведёт громкость к target за ramp секунд. Автозатухание
// oneshot остаётся на месте, а рампа не заходит за его начало.
// false — голос уже затухает.
func (v *voice) rampTo(now, target, ramp float64) bool {
	if v.tailAt >= 0 && now >= v.tailAt {
		return false
	}
	end := now + ramp
	if v.tailAt >= 0 {
		end = math.Min(end, v.tailAt)
	}
	hold := v.gain.valueAt(now)
	v.gain.cancel(now)
	v.gain.setValueAt(hold, now)
	v.gain.linearRampTo(target, end)
	if v.tailAt >= 0 {
		v.gain.setTargetAt(silence, v.tailAt, v.tailTau)
	}
	return true
}

// halt останавливает голос без затухания.
func (v *voice) halt(now float64) {
	v.gain.cancel(now)
	v.gain.setValueAt(0, now)
	v.stopAt = now
	v.tailAt = now
}
