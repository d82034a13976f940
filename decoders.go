package padboard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/tphakala/flac"
	"github.com/youpy/go-wav"
)

// DecodedBuffer — декодированный клип: чередующиеся стереокадры float32.
// После создания не изменяется и может одновременно питать несколько пэдов.
type DecodedBuffer struct {
	ClipID     string
	SampleRate int
	Frames     int
	Data       []float32 // len == Frames*2
}

// Duration возвращает длительность клипа в секундах.
func (b *DecodedBuffer) Duration() float64 {
	return framesToSeconds(int64(b.Frames), b.SampleRate)
}

const wavPCM = 1

// decodeClip выбирает декодер (WAV, FLAC или MP3) по сигнатуре содержимого.
func decodeClip(clipID string, data []byte) (*DecodedBuffer, error) {
	var (
		buf *DecodedBuffer
		err error
	)
	switch {
	case isWAV(data):
		buf, err = decodeWAV(data)
	case isFLAC(data):
		buf, err = decodeFLAC(data)
	default:
		buf, err = decodeMP3(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: clip %s: %v", ErrDecode, clipID, err)
	}
	if buf.Frames == 0 || buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: clip %s: no audio frames", ErrDecode, clipID)
	}
	buf.ClipID = clipID
	return buf, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isFLAC(data []byte) bool {
	return len(data) >= 4 && string(data[0:4]) == "fLaC"
}

// padRIFF дописывает байт выравнивания, если последний чанк нечётной длины
// записан без него (так бывает у 8-битных моно файлов), и правит размер RIFF.
func padRIFF(data []byte) []byte {
	if len(data)%2 == 0 || len(data) < 12 {
		return data
	}
	out := make([]byte, len(data)+1)
	copy(out, data)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

// decodeWAV читает PCM WAV через youpy/go-wav. Моно дублируется в оба канала,
// из многоканальных файлов берутся первые два канала.
func decodeWAV(data []byte) (*DecodedBuffer, error) {
	r := wav.NewReader(bytes.NewReader(padRIFF(data)))
	format, err := r.Format()
	if err != nil {
		return nil, err
	}
	if format.AudioFormat != wavPCM {
		return nil, fmt.Errorf("unsupported wav encoding %d", format.AudioFormat)
	}
	channels := int(format.NumChannels)
	if channels < 1 {
		return nil, fmt.Errorf("unsupported wav channel count %d", channels)
	}
	bits := int(format.BitsPerSample)
	var scale float32
	switch bits {
	case 8, 16, 24, 32:
		scale = float32(int64(1) << (bits - 1))
	default:
		return nil, fmt.Errorf("unsupported wav bit depth %d", bits)
	}

	out := &DecodedBuffer{SampleRate: int(format.SampleRate)}
	for {
		samples, err := r.ReadSamples(4096)
		for _, s := range samples {
			l := s.Values[0]
			rv := l
			if channels > 1 {
				rv = s.Values[1]
			}
			if bits == 8 {
				// 8-битный WAV беззнаковый.
				l, rv = l-128, rv-128
			}
			out.Data = append(out.Data, float32(l)/scale, float32(rv)/scale)
		}
		if errors.Is(err, io.EOF) || (err == nil && len(samples) == 0) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	out.Frames = len(out.Data) / channelCount
	return out, nil
}

// decodeMP3 декодирует MP3; go-mp3 всегда выдаёт 16-битное стерео.
func decodeMP3(data []byte) (*DecodedBuffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}

	samples := len(pcm) / 2
	out := &DecodedBuffer{
		SampleRate: d.SampleRate(),
		Data:       make([]float32, samples-samples%channelCount),
	}
	for i := range out.Data {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out.Data[i] = float32(v) / 32768
	}
	out.Frames = len(out.Data) / channelCount
	return out, nil
}

// decodeFLAC читает FLAC покадрово. Decoder.Next отдаёт чередующиеся
// little-endian сэмплы всех каналов; из многоканальных берутся первые два.
func decodeFLAC(data []byte) (*DecodedBuffer, error) {
	d, err := flac.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	channels := d.NChannels
	if channels < 1 {
		return nil, fmt.Errorf("unsupported flac channel count %d", channels)
	}
	width := d.BitsPerSample / 8
	switch d.BitsPerSample {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported flac bit depth %d", d.BitsPerSample)
	}
	scale := float32(int64(1) << (d.BitsPerSample - 1))

	out := &DecodedBuffer{SampleRate: d.SampleRate}
	if d.TotalSamples > 0 {
		out.Data = make([]float32, 0, int(d.TotalSamples)*channelCount)
	}
	stride := width * channels
	for {
		frame, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := 0; i+stride <= len(frame); i += stride {
			l := pcmSample(frame[i:], width)
			r := l
			if channels > 1 {
				r = pcmSample(frame[i+width:], width)
			}
			out.Data = append(out.Data, float32(l)/scale, float32(r)/scale)
		}
	}
	out.Frames = len(out.Data) / channelCount
	return out, nil
}

// pcmSample читает знаковый little-endian сэмпл шириной width байт.
func pcmSample(b []byte, width int) int32 {
	switch width {
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xffffff
		}
		return v
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}
