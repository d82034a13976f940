package padboard

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoSink выводит звук через miniaudio (gen2brain/malgo).
// В отличие от OtoSink, позволяет выбрать устройство по имени.
type MalgoSink struct {
	DeviceName string // пусто — устройство по умолчанию

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	dev *malgo.Device
}

var _ Sink = (*MalgoSink)(nil)

func (s *MalgoSink) Open(sampleRate int, src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio context init: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = channelCount
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = 10

	if s.DeviceName != "" {
		info, err := findPlaybackDevice(ctx, s.DeviceName)
		if err != nil {
			freeContext(ctx)
			return err
		}
		cfg.Playback.DeviceID = info.ID.Pointer()
	}

	onSamples := func(out, _ []byte, frames uint32) {
		n := min(int(frames)*bytesPerFrame, len(out))
		if _, err := io.ReadFull(src, out[:n]); err != nil {
			clear(out[:n])
		}
	}
	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		freeContext(ctx)
		return fmt.Errorf("audio device init: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		freeContext(ctx)
		return fmt.Errorf("audio device start: %w", err)
	}
	s.ctx, s.dev = ctx, dev
	return nil
}

func (s *MalgoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	s.dev.Uninit()
	freeContext(s.ctx)
	s.ctx, s.dev = nil, nil
	return nil
}

// PlaybackDevices возвращает имена устройств вывода miniaudio.
func PlaybackDevices() ([]string, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio context init: %w", err)
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func findPlaybackDevice(ctx *malgo.AllocatedContext, name string) (malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return malgo.DeviceInfo{}, err
	}
	for _, info := range infos {
		if info.Name() == name {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("playback device %q not found", name)
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
