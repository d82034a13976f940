package dispatch

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/board"
)

type call struct {
	op    string
	padID string
	mode  board.TriggerMode
	opts  int
}

// fakePlayer записывает вызовы и помнит, какие пэды "играют".
type fakePlayer struct {
	mu      sync.Mutex
	calls   []call
	playing map[string]bool
	err     error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{playing: make(map[string]bool)}
}

func (p *fakePlayer) Play(ctx context.Context, pad board.Pad, clipID string, mode board.TriggerMode, opts ...padboard.PlayOption) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{op: "play", padID: pad.ID(), mode: mode, opts: len(opts)})
	if p.err != nil {
		return "", p.err
	}
	p.playing[pad.ID()] = true
	return "inst-" + pad.ID(), nil
}

func (p *fakePlayer) StopPad(padID string, fadeOut float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{op: "stop", padID: padID})
	was := p.playing[padID]
	delete(p.playing, padID)
	return was
}

func (p *fakePlayer) FindByPad(padID string) (padboard.Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing[padID] {
		return padboard.Instance{}, false
	}
	return padboard.Instance{ID: "inst-" + padID, PadID: padID}, true
}

func (p *fakePlayer) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.op + " " + c.padID
	}
	return out
}

type fakeRemote struct {
	ready  bool
	played []string
	offset time.Duration
	loop   bool
	pauses int
}

func (r *fakeRemote) PlayTrack(ctx context.Context, track string, startOffset time.Duration, loop bool) error {
	r.played = append(r.played, track)
	r.offset = startOffset
	r.loop = loop
	return nil
}

func (r *fakeRemote) Pause(ctx context.Context) error { r.pauses++; return nil }

func (r *fakeRemote) SetVolume(ctx context.Context, v float64) error { return nil }

func (r *fakeRemote) Ready() bool { return r.ready }

func note(n uint8) *uint8 { return &n }

func testBoard(t *testing.T) *board.Board {
	t.Helper()
	b := board.New(2, 8)

	one := board.DefaultPad(1, 0)
	one.Sound.SetClip("kick")
	one.Key = "A"
	one.MIDINote = note(36)
	one.AddCue(board.Cue{ID: "c1", Label: "drop", Time: 1.5})

	gate := board.DefaultPad(1, 1)
	gate.Sound.SetClip("pad")
	gate.Mode = board.ModeGate
	gate.Key = "S"
	gate.MIDINote = note(37)

	loop := board.DefaultPad(1, 2)
	loop.Sound.SetClip("beat")
	loop.Mode = board.ModeToggleLoop
	loop.Key = "D"

	remote := board.DefaultPad(1, 3)
	remote.Sound.SetTrack("track:42")
	remote.Mode = board.ModeToggleLoop
	remote.TrimStart = 2
	remote.Key = "F"

	empty := board.DefaultPad(1, 4)
	empty.Key = "G"

	other := board.DefaultPad(2, 0)
	other.Sound.SetClip("snare")
	other.Key = "A"

	for _, p := range []board.Pad{one, gate, loop, remote, empty, other} {
		require.NoError(t, b.Put(p))
	}
	return b
}

func TestResolveTrigger(t *testing.T) {
	r := NewResolver(testBoard(t))

	tr, ok := r.ResolveTrigger(Event{Source: SourceKeyboard, Key: "a"})
	require.True(t, ok)
	assert.Equal(t, "1:0", tr.PadID)
	assert.Equal(t, board.ModeOneShot, tr.Mode)

	tr, ok = r.ResolveTrigger(Event{Source: SourceMIDI, Note: 37, Action: Release})
	require.True(t, ok)
	assert.Equal(t, "1:1", tr.PadID)
	assert.Equal(t, Release, tr.Action)

	tr, ok = r.ResolveTrigger(Event{Source: SourcePointer, PadID: "1:0", CueID: "drop"})
	require.True(t, ok)
	require.NotNil(t, tr.Cue)
	assert.Equal(t, 1.5, tr.Cue.Time)

	tr, ok = r.ResolveTrigger(Event{Source: SourcePointer, PadID: "1:0", CueID: "nope"})
	assert.False(t, ok)
	assert.Equal(t, "1:0", tr.PadID)

	_, ok = r.ResolveTrigger(Event{Source: SourceKeyboard, Key: "Z"})
	assert.False(t, ok)
	_, ok = r.ResolveTrigger(Event{Source: SourcePointer, PadID: "9:0"})
	assert.False(t, ok)

	r.SetBank(2)
	tr, ok = r.ResolveTrigger(Event{Source: SourceKeyboard, Key: "A"})
	require.True(t, ok)
	assert.Equal(t, "2:0", tr.PadID)

	assert.Equal(t, 2, r.SetBank(10))
	assert.Equal(t, 1, r.SetBank(-3))
}

func TestDispatchOneShot(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p)

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "A"}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "A", Action: Release}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "A"}))

	assert.Equal(t, []string{"play 1:0", "play 1:0"}, p.ops(), "one-shots ignore release and stack")
}

func TestDispatchGate(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p)

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceMIDI, Note: 37, Velocity: 100}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceMIDI, Note: 37, Action: Release}))

	assert.Equal(t, []string{"play 1:1", "stop 1:1"}, p.ops())
}

func TestDispatchGateAutoRelease(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p,
		WithGateTimeout(20*time.Millisecond), WithoutRelease(SourceMIDI))
	defer d.Close()

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceMIDI, Note: 37, Velocity: 90}))
	assert.Equal(t, []string{"play 1:1"}, p.ops())

	require.Eventually(t, func() bool {
		return len(p.ops()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"play 1:1", "stop 1:1"}, p.ops())
}

func TestDispatchGateReleaseCancelsTimer(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p,
		WithGateTimeout(30*time.Millisecond), WithoutRelease(SourceMIDI))
	defer d.Close()

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceMIDI, Note: 37, Velocity: 90}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceMIDI, Note: 37, Action: Release}))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"play 1:1", "stop 1:1"}, p.ops(), "no second stop from the timer")
}

func TestDispatchToggleLoop(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p)

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "D"}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "D", Action: Release}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "D"}))
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "D"}))

	assert.Equal(t, []string{"play 1:2", "stop 1:2", "play 1:2"}, p.ops())
	assert.Equal(t, 1, p.calls[0].opts, "loop option is passed")
}

func TestDispatchCue(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p)

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourcePointer, PadID: "1:0", CueID: "c1"}))
	assert.Equal(t, 1, p.calls[0].opts)

	err := d.Handle(context.Background(), Event{Source: SourcePointer, PadID: "1:0", CueID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownCue)
}

func TestDispatchErrors(t *testing.T) {
	p := newFakePlayer()
	d := New(NewResolver(testBoard(t)), p)

	err := d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "Q"})
	assert.ErrorIs(t, err, ErrUnknownPad)
	assert.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "Q", Action: Release}))

	p.err = padboard.ErrNoSound
	err = d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "G"})
	assert.ErrorIs(t, err, padboard.ErrNoSound)
}

func TestDispatchRemote(t *testing.T) {
	p := newFakePlayer()
	rc := &fakeRemote{}
	d := New(NewResolver(testBoard(t)), p, WithRemote(rc))

	err := d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "F"})
	assert.ErrorIs(t, err, ErrRemoteNotReady)

	rc.ready = true
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "F"}))
	assert.Equal(t, []string{"track:42"}, rc.played)
	assert.Equal(t, 2*time.Second, rc.offset)
	assert.True(t, rc.loop)

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "F"}))
	assert.Equal(t, 1, rc.pauses, "second toggle press pauses")
	assert.Empty(t, p.ops(), "remote pads never reach the engine")
}

func TestDispatchWithoutRemote(t *testing.T) {
	d := New(NewResolver(testBoard(t)), newFakePlayer())
	err := d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "F"})
	assert.ErrorIs(t, err, ErrRemoteNotReady)
}

func TestDispatchBankNavigation(t *testing.T) {
	p := newFakePlayer()
	r := NewResolver(testBoard(t))
	d := New(r, p)

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "PageDown"}))
	assert.Equal(t, 2, r.Bank())
	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "A"}))
	assert.Equal(t, []string{"play 2:0"}, p.ops())

	require.NoError(t, d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "pageup"}))
	assert.Equal(t, 1, r.Bank())
}

func TestDispatchGateReleaseFollowsPressedPad(t *testing.T) {
	b := testBoard(t)
	gate2 := board.DefaultPad(2, 1)
	gate2.Sound.SetClip("pad2")
	gate2.Mode = board.ModeGate
	gate2.Key = "S"
	gate2.MIDINote = note(37)
	require.NoError(t, b.Put(gate2))

	p := newFakePlayer()
	r := NewResolver(b)
	d := New(r, p)
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "S"}))
	require.NoError(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "PageDown"}))
	require.NoError(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "s", Action: Release}))
	assert.Equal(t, []string{"play 1:1", "stop 1:1"}, p.ops())

	require.NoError(t, d.Handle(ctx, Event{Source: SourceMIDI, Note: 37, Velocity: 100}))
	r.SetBank(1)
	require.NoError(t, d.Handle(ctx, Event{Source: SourceMIDI, Note: 37, Action: Release}))
	assert.Equal(t, []string{"play 1:1", "stop 1:1", "play 2:1", "stop 2:1"}, p.ops())

	// Без запомненного нажатия отпускание разрешается по текущему банку.
	require.NoError(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "S", Action: Release}))
	assert.Equal(t, "stop 1:1", p.ops()[4])
}

func TestDispatchFailedPressIsNotHeld(t *testing.T) {
	p := newFakePlayer()
	p.err = errors.New("decode failed")
	r := NewResolver(testBoard(t))
	d := New(r, p)
	ctx := context.Background()

	require.Error(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "S"}))
	require.NoError(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "PageDown"}))
	require.NoError(t, d.Handle(ctx, Event{Source: SourceKeyboard, Key: "S", Action: Release}))
	assert.Equal(t, []string{"play 1:1"}, p.ops(), "nothing is bound to S in bank 2")
}

func TestDispatchPropagatesPlayErrors(t *testing.T) {
	p := newFakePlayer()
	p.err = errors.New("decode failed")
	d := New(NewResolver(testBoard(t)), p)

	err := d.Handle(context.Background(), Event{Source: SourceKeyboard, Key: "S"})
	assert.EqualError(t, err, "decode failed")
}

func TestNoteEvent(t *testing.T) {
	ev, ok := noteEvent(midi.NoteOn(0, 36, 100))
	require.True(t, ok)
	assert.Equal(t, Event{Source: SourceMIDI, Note: 36, Velocity: 100, Action: Press}, ev)

	ev, ok = noteEvent(midi.NoteOn(0, 36, 0))
	require.True(t, ok)
	assert.Equal(t, Release, ev.Action)

	ev, ok = noteEvent(midi.NoteOff(3, 40))
	require.True(t, ok)
	assert.Equal(t, uint8(40), ev.Note)
	assert.Equal(t, Release, ev.Action)

	_, ok = noteEvent(midi.ControlChange(0, 7, 100))
	assert.False(t, ok)
}

func TestKeyboardInput(t *testing.T) {
	in := NewKeyboardInput(strings.NewReader("a\n\n s  d \n"))

	var keys []string
	err := in.Run(context.Background(), func(ev Event) {
		assert.Equal(t, SourceKeyboard, ev.Source)
		assert.Equal(t, Press, ev.Action)
		keys = append(keys, ev.Key)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "s", "d"}, keys)
}

func TestKeyboardInputCanceled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewKeyboardInput(r).Run(ctx, func(Event) {})
	assert.ErrorIs(t, err, context.Canceled)
}
