package player

import (
	"sync"
	"testing"

	"dacapo/internal/media"
	"dacapo/pkg/models"
)

// fakeTransport lets tests push engine events and observe transport writes.
type fakeTransport struct {
	mu     sync.Mutex
	pos    float64
	dur    float64
	rate   float64
	muted  bool
	played bool
	paused bool

	events chan media.Event
	closed bool
}

func newFakeTransport(duration float64) *fakeTransport {
	return &fakeTransport{
		dur:    duration,
		rate:   1,
		events: make(chan media.Event, 16),
	}
}

func (f *fakeTransport) Play()  { f.mu.Lock(); f.played = true; f.paused = false; f.mu.Unlock() }
func (f *fakeTransport) Pause() { f.mu.Lock(); f.paused = true; f.mu.Unlock() }

func (f *fakeTransport) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeTransport) Seek(seconds float64) {
	f.mu.Lock()
	f.pos = seconds
	f.mu.Unlock()
}

func (f *fakeTransport) Duration() float64 { return f.dur }

func (f *fakeTransport) SetRate(rate float64) {
	f.mu.Lock()
	f.rate = rate
	f.mu.Unlock()
}

func (f *fakeTransport) SetMuted(muted bool) {
	f.mu.Lock()
	f.muted = muted
	f.mu.Unlock()
}

func (f *fakeTransport) Events() <-chan media.Event { return f.events }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// tick pushes a time update and waits until the controller published the
// resulting status.
func (f *fakeTransport) tick(c *Controller, pos float64) Status {
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)
	f.events <- media.Event{Kind: media.TimeUpdate, Position: pos, Duration: f.dur}
	return <-ch
}

// fakeCommitter records marker commits against a single recording.
type fakeCommitter struct {
	mu  sync.Mutex
	rec models.Recording
}

func (fc *fakeCommitter) Current() *models.Recording {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	rec := fc.rec.Clone()
	return &rec
}

func (fc *fakeCommitter) UpdateItem(rec models.Recording) <-chan error {
	fc.mu.Lock()
	fc.rec = rec.Clone()
	fc.mu.Unlock()
	done := make(chan error, 1)
	done <- nil
	return done
}

func (fc *fakeCommitter) markers() []models.LoopMarker {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]models.LoopMarker(nil), fc.rec.Markers...)
}

func newTestController(t *testing.T, duration float64) (*Controller, *fakeTransport, *fakeCommitter) {
	t.Helper()
	transport := newFakeTransport(duration)
	committer := &fakeCommitter{rec: models.Recording{ID: "rec-1", Name: "take.wav"}}
	c := NewController(transport, SourceItem{ID: "rec-1", FileName: "take.wav"}, committer, nil)
	c.handleLoadedMetadata(duration)
	t.Cleanup(func() { c.Close() })
	return c, transport, committer
}

func TestSetLoopAToggleIdempotence(t *testing.T) {
	c, _, _ := newTestController(t, 60)

	c.SetLoopA(10)
	if st := c.Status(); st.ALoop == nil || *st.ALoop != 10 {
		t.Fatalf("Expected ALoop=10, got %+v", st.ALoop)
	}

	c.SetLoopA(15) // second toggle clears regardless of the position argument
	if st := c.Status(); st.ALoop != nil {
		t.Errorf("Expected ALoop cleared, got %v", *st.ALoop)
	}
}

func TestSetLoopBOrderGuard(t *testing.T) {
	c, _, _ := newTestController(t, 60)

	c.SetLoopA(10)
	c.SetLoopB(5)
	if st := c.Status(); st.BLoop != nil {
		t.Errorf("Expected B at or before A to be rejected, got %v", *st.BLoop)
	}

	c.SetLoopB(10) // equality is rejected too
	if st := c.Status(); st.BLoop != nil {
		t.Errorf("Expected B equal to A to be rejected, got %v", *st.BLoop)
	}

	c.SetLoopB(20)
	if st := c.Status(); st.BLoop == nil || *st.BLoop != 20 {
		t.Errorf("Expected BLoop=20, got %+v", st.BLoop)
	}
}

func TestSetLoopADiscardsStaleB(t *testing.T) {
	c, _, _ := newTestController(t, 60)

	c.SetLoopB(20)
	c.SetLoopA(30) // A at or after staged B: the newer point wins

	st := c.Status()
	if st.ALoop == nil || *st.ALoop != 30 {
		t.Fatalf("Expected ALoop=30, got %+v", st.ALoop)
	}
	if st.BLoop != nil {
		t.Errorf("Expected stale BLoop discarded, got %v", *st.BLoop)
	}
}

func TestLoopClampAtB(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetLoopA(10)
	c.SetLoopB(20)
	c.ToggleLoop()

	for _, pos := range []float64{20, 25, 59.9} {
		st := transport.tick(c, pos)
		if st.Position != 10 {
			t.Errorf("tick(%v): expected published position 10, got %v", pos, st.Position)
		}
		if transport.Position() != 10 {
			t.Errorf("tick(%v): expected transport seeked to 10, got %v", pos, transport.Position())
		}
	}
}

func TestLoopClampBeforeA(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetLoopA(10)
	c.ToggleLoop()

	st := transport.tick(c, 3)
	if st.Position != 10 {
		t.Errorf("Expected playhead pulled forward to A, got %v", st.Position)
	}

	// Inside the open-ended window the playhead runs free.
	st = transport.tick(c, 30)
	if st.Position != 30 {
		t.Errorf("Expected free playhead at 30, got %v", st.Position)
	}
}

func TestLoopDisabledDoesNotClamp(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetLoopA(10)
	c.SetLoopB(20)
	// isLoop stays false

	st := transport.tick(c, 25)
	if st.Position != 25 {
		t.Errorf("Expected no clamp while loop is off, got %v", st.Position)
	}
}

func TestTimeUpdateDerivesDisplayFields(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	st := transport.tick(c, 15)
	if st.Fraction != 0.25 {
		t.Errorf("Expected fraction 0.25, got %v", st.Fraction)
	}
	if st.Elapsed != "00:15" {
		t.Errorf("Expected elapsed 00:15, got %q", st.Elapsed)
	}
}

func TestEndedWithLoopRepositionsWithoutResume(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetLoopA(10)
	c.ToggleLoop()
	c.TogglePlay()

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)
	transport.events <- media.Event{Kind: media.Ended, Position: 60, Duration: 60}
	st := <-ch

	if st.IsPlaying {
		t.Error("Expected playback stopped after ended")
	}
	if transport.Position() != 10 {
		t.Errorf("Expected playhead repositioned to A, got %v", transport.Position())
	}
	if st.Elapsed != "00:00" || st.Fraction != 0 {
		t.Errorf("Expected elapsed display reset to zero, got %q / %v", st.Elapsed, st.Fraction)
	}
	transport.mu.Lock()
	played := transport.played
	transport.mu.Unlock()
	if !played {
		t.Fatal("sanity: play should have been requested earlier")
	}
}

func TestAddPlaybackRateClamp(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetPlaybackRate(1.9)
	for i := 0; i < 10; i++ {
		c.AddPlaybackRate(0.1)
	}

	if st := c.Status(); st.PlaybackRate != 2.0 {
		t.Errorf("Expected rate pinned at 2.0, got %v", st.PlaybackRate)
	}
	transport.mu.Lock()
	rate := transport.rate
	transport.mu.Unlock()
	if rate != 2.0 {
		t.Errorf("Expected transport rate 2.0, got %v", rate)
	}
}

func TestAddPlaybackRateAvoidsFloatDrift(t *testing.T) {
	c, _, _ := newTestController(t, 60)

	// 0.1 is not exactly representable; integer cents keep the sum exact.
	for i := 0; i < 3; i++ {
		c.AddPlaybackRate(0.1)
	}
	if st := c.Status(); st.PlaybackRate != 1.3 {
		t.Errorf("Expected exactly 1.3, got %v", st.PlaybackRate)
	}

	for i := 0; i < 3; i++ {
		c.AddPlaybackRate(-0.1)
	}
	if st := c.Status(); st.PlaybackRate != 1.0 {
		t.Errorf("Expected exactly 1.0, got %v", st.PlaybackRate)
	}
}

func TestSetPlaybackRateRejectsOutOfRange(t *testing.T) {
	c, _, _ := newTestController(t, 60)

	c.SetPlaybackRate(2.5)
	if st := c.Status(); st.PlaybackRate != 1.0 {
		t.Errorf("Expected out-of-range rate rejected, got %v", st.PlaybackRate)
	}
	c.SetPlaybackRate(-0.1)
	if st := c.Status(); st.PlaybackRate != 1.0 {
		t.Errorf("Expected negative rate rejected, got %v", st.PlaybackRate)
	}
}

func TestAddLoopMarker(t *testing.T) {
	c, _, committer := newTestController(t, 200)

	c.SetLoopA(5)
	c.SetLoopB(125)
	c.AddLoopMarker()

	markers := committer.markers()
	if len(markers) != 1 {
		t.Fatalf("Expected one marker, got %d", len(markers))
	}
	m := markers[0]
	if m.A != 5 || m.B != 125 {
		t.Errorf("Expected range 5..125, got %v..%v", m.A, m.B)
	}
	if m.Title != "00:05 ~ 02:05" {
		t.Errorf("Expected derived title, got %q", m.Title)
	}
	if m.ID == "" {
		t.Error("Expected a generated marker id")
	}

	// Staging points are discarded on commit.
	st := c.Status()
	if st.ALoop != nil || st.BLoop != nil {
		t.Error("Expected staged points cleared after commit")
	}
}

func TestAddLoopMarkerRejectsDuplicateRange(t *testing.T) {
	c, _, committer := newTestController(t, 200)

	c.SetLoop(5, 125)
	c.AddLoopMarker()
	c.SetLoop(5, 125)
	c.AddLoopMarker()

	if markers := committer.markers(); len(markers) != 1 {
		t.Errorf("Expected duplicate range rejected, got %d markers", len(markers))
	}
}

func TestAddLoopMarkerNeedsBothPoints(t *testing.T) {
	c, _, committer := newTestController(t, 200)

	c.SetLoopA(5)
	c.AddLoopMarker()

	if markers := committer.markers(); len(markers) != 0 {
		t.Errorf("Expected no commit without B, got %d markers", len(markers))
	}
}

func TestSetLoopRecallsCommittedRange(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetLoop(10, 20)
	c.ToggleLoop()

	st := transport.tick(c, 21)
	if st.Position != 10 {
		t.Errorf("Expected recalled range enforced, got position %v", st.Position)
	}
}

func TestSeekToClamps(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SeekTo(120)
	if transport.Position() != 60 {
		t.Errorf("Expected seek clamped to duration, got %v", transport.Position())
	}
	c.SeekTo(-5)
	if transport.Position() != 0 {
		t.Errorf("Expected seek clamped to zero, got %v", transport.Position())
	}
}

func TestCloseStopsPlayback(t *testing.T) {
	transport := newFakeTransport(60)
	c := NewController(transport, SourceItem{}, nil, nil)

	c.TogglePlay()
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if !transport.paused {
		t.Error("Expected transport paused on close")
	}
	if transport.pos != 0 {
		t.Errorf("Expected playhead reset to zero, got %v", transport.pos)
	}
	if !transport.closed {
		t.Error("Expected transport closed")
	}
}

func TestMuteMirroredInStatus(t *testing.T) {
	c, transport, _ := newTestController(t, 60)

	c.SetMuted(true)
	if st := c.Status(); !st.IsMuted {
		t.Error("Expected muted status")
	}
	transport.mu.Lock()
	muted := transport.muted
	transport.mu.Unlock()
	if !muted {
		t.Error("Expected transport muted")
	}
}
