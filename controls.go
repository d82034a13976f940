package padboard

// StopInstance плавно останавливает экземпляр: отменяет запланированные
// изменения громкости, уводит её в тишину за fadeOut секунд и только потом
// прекращает звук. Экземпляр сразу пропадает из реестра.
// Возвращает false, если экземпляр уже остановлен или закончился.
func (e *Engine) StopInstance(id string, fadeOut float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return false
	}
	e.stopLocked(inst, fadeOut)
	return true
}

// StopPad останавливает экземпляр, связанный с пэдом.
func (e *Engine) StopPad(padID string, fadeOut float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst := e.findByPadLocked(padID)
	if inst == nil {
		return false
	}
	e.stopLocked(inst, fadeOut)
	return true
}

// Stop принимает идентификатор экземпляра или пэда.
func (e *Engine) Stop(target string, fadeOut float64) bool {
	if e.StopInstance(target, fadeOut) {
		return true
	}
	return e.StopPad(target, fadeOut)
}

func (e *Engine) stopLocked(inst *instance, fadeOut float64) {
	delete(e.instances, inst.info.ID)
	dropped := e.mix.fadeOut(inst.voice, floorFade(fadeOut))
	e.metrics.voices(len(e.instances))
	e.log.Debug("instance stopped", "id", inst.info.ID, "pad", inst.info.PadID,
		"fade_out", fadeOut, "cancelled_events", dropped)
}

// SetInstanceVolume линейно за ramp секунд меняет громкость звучащего
// экземпляра. Громкость ограничивается [0, 2], ramp — не меньше 5 мс.
// false — экземпляра нет или он уже затухает.
func (e *Engine) SetInstanceVolume(id string, volume, ramp float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return false
	}
	v := clamp(volume, 0, maxVolume, inst.info.Schedule.Gain)
	if !e.mix.rampGain(inst.voice, v, floorFade(ramp)) {
		return false
	}
	inst.info.Schedule.Gain = v
	e.log.Debug("instance volume", "id", id, "volume", v, "ramp", ramp)
	return true
}

// StopGroup мгновенно (без затухания) останавливает все экземпляры группы.
// Используется при быстром перезапуске внутри эксклюзивной группы.
func (e *Engine) StopGroup(label string) int {
	if label == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopGroupLocked(label)
}

func (e *Engine) stopGroupLocked(label string) int {
	n := 0
	for id, inst := range e.instances {
		if inst.info.Group != label {
			continue
		}
		delete(e.instances, id)
		e.mix.halt(inst.voice)
		n++
	}
	if n > 0 {
		e.metrics.voices(len(e.instances))
		e.log.Debug("group stopped", "group", label, "count", n)
	}
	return n
}

// StopAll плавно останавливает все экземпляры и очищает реестр.
func (e *Engine) StopAll(fadeOut float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fade := floorFade(fadeOut)
	for _, inst := range e.instances {
		e.mix.fadeOut(inst.voice, fade)
	}
	n := len(e.instances)
	e.instances = make(map[string]*instance)
	e.metrics.voices(0)
	if n > 0 {
		e.log.Debug("all instances stopped", "count", n, "fade_out", fade)
	}
}

// stealOldestLocked освобождает место под новый экземпляр при заданном WithMaxVoices.
func (e *Engine) stealOldestLocked() {
	var oldest *instance
	for _, inst := range e.instances {
		if oldest == nil || inst.seq < oldest.seq {
			oldest = inst
		}
	}
	if oldest == nil {
		return
	}
	delete(e.instances, oldest.info.ID)
	e.mix.halt(oldest.voice)
	e.log.Debug("voice limit reached, oldest instance stolen", "id", oldest.info.ID, "pad", oldest.info.PadID)
}

// FindByPad возвращает самый ранний ещё звучащий экземпляр пэда.
func (e *Engine) FindByPad(padID string) (Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.findByPadLocked(padID)
	if inst == nil {
		return Instance{}, false
	}
	return inst.info, true
}

func (e *Engine) findByPadLocked(padID string) *instance {
	var found *instance
	for _, inst := range e.instances {
		if inst.info.PadID != padID {
			continue
		}
		if found == nil || inst.seq < found.seq {
			found = inst
		}
	}
	return found
}

// Lookup возвращает экземпляр по идентификатору.
func (e *Engine) Lookup(id string) (Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	if !ok {
		return Instance{}, false
	}
	return inst.info, true
}

// Instances возвращает снимок реестра в порядке запуска.
func (e *Engine) Instances() []Instance {
	e.mu.Lock()
	list := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		list = append(list, inst)
	}
	e.mu.Unlock()

	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].seq < list[j-1].seq; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
	out := make([]Instance, len(list))
	for i, inst := range list {
		out[i] = inst.info
	}
	return out
}
