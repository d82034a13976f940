package padboard

// voiceEnded вызывается микшером ровно один раз, когда голос замолк:
// источник исчерпан, наступило время автоостановки или сработала Stop.
// Снимает экземпляр с учёта, если его ещё не сняла явная остановка.
func (e *Engine) voiceEnded(v *voice) {
	e.mu.Lock()
	if inst, ok := e.instances[v.info.ID]; ok && inst.voice == v {
		delete(e.instances, v.info.ID)
		e.metrics.voices(len(e.instances))
		e.log.Debug("instance finished", "id", v.info.ID, "pad", v.info.PadID)
	}
	hook := e.onEnded
	e.mu.Unlock()

	if hook != nil {
		hook(v.info)
	}
}

// GainAt возвращает запланированную громкость зарегистрированного экземпляра
// в момент t аудиочасов.
func (e *Engine) GainAt(id string, t float64) (float64, bool) {
	e.mu.Lock()
	inst, ok := e.instances[id]
	e.mu.Unlock()
	if !ok {
		return 0, false
	}
	return e.mix.gainAt(inst.voice, t), true
}
