package padboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Roman77St/padboard/board"
)

func TestPullSinkBeforeOpen(t *testing.T) {
	var s PullSink
	_, err := s.Pull(10)
	assert.ErrorIs(t, err, ErrNotArmed)
}

func TestRenderToWAV(t *testing.T) {
	pull := &PullSink{}
	r := newRig(t, WithSink(pull))
	r.arm(t)
	r.addClip(t, "c", 1)
	assert.Equal(t, testRate, pull.SampleRate())

	_, err := r.engine.Play(context.Background(), testPad(0, "c"), "c", board.ModeOneShot)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := NewWAVWriter(f, testRate, 16)
	require.NoError(t, err)

	// 1.25 с блоками по 1000 кадров.
	for range 10 {
		samples, err := pull.Pull(1000)
		require.NoError(t, err)
		require.Len(t, samples, 2000)
		require.NoError(t, w.Write(samples))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	buf, err := decodeClip("out", data)
	require.NoError(t, err)
	assert.Equal(t, testRate, buf.SampleRate)
	assert.Equal(t, 10000, buf.Frames)

	mid := 4000 * channelCount
	assert.InDelta(t, 0.5, buf.Data[mid], 1e-3)
	assert.InDelta(t, 0.5, buf.Data[mid+1], 1e-3)
	assert.InDelta(t, 0, buf.Data[len(buf.Data)-1], 1e-3, "clip ended before the last block")
	assert.Equal(t, []string{"c"}, clipIDs(r.ended))
}

func TestWAVWriterClips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loud.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := NewWAVWriter(f, testRate, 16)
	require.NoError(t, err)
	require.NoError(t, w.Write([]float32{2, -2, 0.25, -0.25}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	buf, err := decodeClip("loud", data)
	require.NoError(t, err)
	require.Equal(t, 2, buf.Frames)
	assert.InDeltaSlice(t, []float32{1, -1, 0.25, -0.25}, buf.Data, 1e-3)
}

func TestWAVWriterRejectsBitDepth(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	defer f.Close()
	_, err = NewWAVWriter(f, testRate, 12)
	assert.Error(t, err)
	w, err := NewWAVWriter(f, testRate, 16)
	require.NoError(t, err)
	assert.Error(t, w.Write([]float32{1}))
}

func clipIDs(list []Instance) []string {
	out := make([]string, len(list))
	for i, inst := range list {
		out[i] = inst.ClipID
	}
	return out
}
