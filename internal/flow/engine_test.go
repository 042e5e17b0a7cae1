package flow

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"natalbot/internal/domain"
	"natalbot/internal/geocode"
	"natalbot/internal/session"
	"natalbot/internal/store"
)

var (
	londonLoc = domain.ResolvedLocation{
		Name:       "London, England, United Kingdom",
		Latitude:   51.5074,
		Longitude:  -0.1278,
		Timezone:   "Europe/London",
		Confidence: 0.95,
	}
	springfieldIL = domain.ResolvedLocation{
		Name:       "Springfield, Illinois, USA",
		Latitude:   39.7817,
		Longitude:  -89.6501,
		Timezone:   "America/Chicago",
		Confidence: 0.6,
	}
	springfieldMA = domain.ResolvedLocation{
		Name:       "Springfield, Massachusetts, USA",
		Latitude:   42.1015,
		Longitude:  -72.5898,
		Timezone:   "America/New_York",
		Confidence: 0.5,
	}
)

type fakeResolver struct {
	mu      sync.Mutex
	byPlace map[string][]domain.ResolvedLocation
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(_ context.Context, place string) ([]domain.ResolvedLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byPlace[place], nil
}

func (f *fakeResolver) set(err error, byPlace map[string][]domain.ResolvedLocation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.byPlace = byPlace
}

type fakeGenerator struct {
	png  []byte
	err  error
	gate chan struct{}

	mu       sync.Mutex
	gotName  string
	gotHour  int
	gotPlace string
	calls    int
}

func (f *fakeGenerator) Generate(_ context.Context, draft domain.BirthDraft) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.gotName = draft.Name
	f.gotHour = draft.EffectiveTime().Hour
	f.gotPlace = draft.Location.Name
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.png, f.err
}

type captureReplier struct {
	ch chan []Reply
}

func (r *captureReplier) Deliver(_ context.Context, _ string, replies ...Reply) error {
	r.ch <- replies
	return nil
}

func newTestEngine(geo geocode.Resolver, gen Generator, opts Options) (*Engine, *session.Store, *captureReplier) {
	st := session.New(30 * time.Minute)
	rep := &captureReplier{ch: make(chan []Reply, 8)}
	e := New(Deps{Store: st, Geo: geo, Generator: gen, Replier: rep}, opts)
	return e, st, rep
}

func send(t *testing.T, e *Engine, identity, text string) []Reply {
	t.Helper()
	replies, err := e.HandleEvent(context.Background(), Event{Identity: identity, Text: text})
	require.NoError(t, err)
	return replies
}

func waitAsync(t *testing.T, rep *captureReplier) []Reply {
	t.Helper()
	select {
	case replies := <-rep.ch:
		return replies
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for asynchronous reply")
		return nil
	}
}

func requireNoAsync(t *testing.T, rep *captureReplier) {
	t.Helper()
	select {
	case replies := <-rep.ch:
		t.Fatalf("unexpected asynchronous reply: %+v", replies)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHappyPathAutoConfirm(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {londonLoc}}}
	gen := &fakeGenerator{png: []byte("png-bytes")}
	e, st, rep := newTestEngine(geo, gen, Options{})

	replies := send(t, e, "u1", "/start")
	require.Len(t, replies, 1)
	require.Equal(t, promptName, replies[0].Text)

	replies = send(t, e, "u1", "Ada Lovelace")
	require.Contains(t, replies[0].Text, "Ada Lovelace")

	replies = send(t, e, "u1", "1990-05-15")
	require.Equal(t, promptTime, replies[0].Text)

	replies = send(t, e, "u1", "2:30 PM")
	require.Equal(t, promptPlace, replies[0].Text)

	replies = send(t, e, "u1", "London")
	require.Equal(t, noticeGenerating, replies[0].Text)

	async := waitAsync(t, rep)
	require.Len(t, async, 1)
	require.Equal(t, []byte("png-bytes"), async[0].Image)
	require.Contains(t, async[0].Caption, "Ada Lovelace")
	require.Contains(t, async[0].Caption, "1990-05-15")
	require.Contains(t, async[0].Caption, "14:30")
	require.NotContains(t, async[0].Caption, "birth time unknown")

	require.Equal(t, 14, gen.gotHour)
	require.Equal(t, londonLoc.Name, gen.gotPlace)
	require.Equal(t, 0, st.Len(), "session must be destroyed after delivery")
}

func TestAmbiguousPlaceListsCandidates(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{
		"Springfield": {springfieldIL, springfieldMA},
	}}
	gen := &fakeGenerator{png: []byte("png")}
	e, st, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Homer")
	send(t, e, "u1", "1980-01-02")
	send(t, e, "u1", "08:00")
	replies := send(t, e, "u1", "Springfield")
	require.Contains(t, replies[0].Text, "1. "+springfieldIL.Name)
	require.Contains(t, replies[0].Text, "2. "+springfieldMA.Name)

	snap, ok := st.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitingLocationConfirm, snap.State)

	replies = send(t, e, "u1", "2")
	require.Equal(t, noticeGenerating, replies[0].Text)

	waitAsync(t, rep)
	require.Equal(t, springfieldMA.Name, gen.gotPlace)
}

func TestLocationConfirmRejectsBadNumber(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{
		"Springfield": {springfieldIL, springfieldMA},
	}}
	e, _, _ := newTestEngine(geo, &fakeGenerator{png: []byte("png")}, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Homer")
	send(t, e, "u1", "1980-01-02")
	send(t, e, "u1", "08:00")
	send(t, e, "u1", "Springfield")

	replies := send(t, e, "u1", "7")
	require.True(t, strings.HasPrefix(replies[0].Text, "❌"))
	require.Contains(t, replies[0].Text, springfieldIL.Name)
}

func TestLocationConfirmAcceptsNewPlace(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{
		"Springfield": {springfieldIL, springfieldMA},
		"London":      {londonLoc},
	}}
	gen := &fakeGenerator{png: []byte("png")}
	e, _, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Homer")
	send(t, e, "u1", "1980-01-02")
	send(t, e, "u1", "08:00")
	send(t, e, "u1", "Springfield")

	replies := send(t, e, "u1", "London")
	require.Equal(t, noticeGenerating, replies[0].Text)

	waitAsync(t, rep)
	require.Equal(t, londonLoc.Name, gen.gotPlace)
}

func TestRetypedPlaceGetsFreshRetryBudget(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{
		"Springfield": {springfieldIL, springfieldMA},
	}}
	e, st, _ := newTestEngine(geo, &fakeGenerator{}, Options{MaxRetries: 2})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Homer")
	send(t, e, "u1", "1980-01-02")
	send(t, e, "u1", "08:00")
	send(t, e, "u1", "Springfield")

	// One failed pick, one short of the budget.
	replies := send(t, e, "u1", "9")
	require.True(t, strings.HasPrefix(replies[0].Text, "❌"))

	// Retyping a place is a state transition and resets the counter, so the
	// unknown place re-prompts instead of aborting.
	replies = send(t, e, "u1", "Atlantis")
	require.NotEqual(t, noticeTooManyRetries, replies[0].Text)
	require.Contains(t, replies[0].Text, `"Atlantis"`)

	snap, ok := st.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitingPlace, snap.State)
	require.Equal(t, 1, snap.Retries)
}

func TestCancelDestroysSession(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	replies := send(t, e, "u1", "/cancel")
	require.Equal(t, noticeCancelled, replies[0].Text)
	require.Equal(t, 0, st.Len())

	_, ok := st.Snapshot("u1")
	require.False(t, ok)
}

func TestCancelWithoutConversation(t *testing.T) {
	e, _, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{})

	replies := send(t, e, "u1", "/cancel")
	require.Equal(t, noticeNothingToCancel, replies[0].Text)
}

func TestRetriesExhaustedDestroysSession(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{MaxRetries: 3})

	send(t, e, "u1", "/start")
	for i := 0; i < 2; i++ {
		replies := send(t, e, "u1", "12345")
		require.True(t, strings.HasPrefix(replies[0].Text, "❌"), "attempt %d should re-prompt", i+1)
	}

	replies := send(t, e, "u1", "12345")
	require.Equal(t, noticeTooManyRetries, replies[0].Text)
	require.Equal(t, 0, st.Len())
}

func TestRetryCounterResetsOnSuccess(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{MaxRetries: 2})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "12345")
	send(t, e, "u1", "Ada")

	// A fresh budget applies to the date state.
	replies := send(t, e, "u1", "not a date")
	require.True(t, strings.HasPrefix(replies[0].Text, "❌"))
	require.Equal(t, 1, st.Len())
}

func TestGeocodingOutageDoesNotConsumeRetries(t *testing.T) {
	geo := &fakeResolver{err: fmt.Errorf("%w: connection refused", domain.ErrGeocodingUnavailable)}
	gen := &fakeGenerator{png: []byte("png")}
	e, _, rep := newTestEngine(geo, gen, Options{MaxRetries: 2})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")

	for i := 0; i < 4; i++ {
		replies := send(t, e, "u1", "London")
		require.Equal(t, noticeGeocodingUnavailable, replies[0].Text)
	}

	// Once the provider recovers the same answer succeeds.
	geo.set(nil, map[string][]domain.ResolvedLocation{"London": {londonLoc}})
	replies := send(t, e, "u1", "London")
	require.Equal(t, noticeGenerating, replies[0].Text)
	waitAsync(t, rep)
}

func TestPlaceNotFoundConsumesRetries(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{}}
	e, st, _ := newTestEngine(geo, &fakeGenerator{}, Options{MaxRetries: 2})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")

	replies := send(t, e, "u1", "Atlantis")
	require.Contains(t, replies[0].Text, `"Atlantis"`)

	replies = send(t, e, "u1", "Atlantis")
	require.Equal(t, noticeTooManyRetries, replies[0].Text)
	require.Equal(t, 0, st.Len())
}

func TestUnknownTimeDefaultsToNoon(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {londonLoc}}}
	gen := &fakeGenerator{png: []byte("png")}
	e, _, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")

	replies := send(t, e, "u1", "unknown")
	require.Len(t, replies, 2)
	require.Equal(t, noticeTimeDefaulted, replies[0].Text)
	require.Equal(t, promptPlace, replies[1].Text)

	send(t, e, "u1", "London")
	async := waitAsync(t, rep)
	require.Contains(t, async[0].Caption, "12:00")
	require.Contains(t, async[0].Caption, "birth time unknown")
	require.Equal(t, 12, gen.gotHour)
}

func TestGenerationFailureDestroysSession(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {londonLoc}}}
	gen := &fakeGenerator{err: fmt.Errorf("engine boom")}
	e, st, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")
	send(t, e, "u1", "London")

	async := waitAsync(t, rep)
	require.Equal(t, noticeGenerationFailed, async[0].Text)
	require.Equal(t, 0, st.Len())
}

func TestLateResultDiscardedAfterCancel(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {londonLoc}}}
	png := []byte("secret-chart")
	gen := &fakeGenerator{png: png, gate: make(chan struct{})}
	e, st, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")
	send(t, e, "u1", "London")

	replies := send(t, e, "u1", "/cancel")
	require.Equal(t, noticeCancelled, replies[0].Text)
	require.Equal(t, 0, st.Len())

	close(gen.gate)
	requireNoAsync(t, rep)

	require.Eventually(t, func() bool {
		return bytes.Equal(png, make([]byte, len(png)))
	}, 2*time.Second, 10*time.Millisecond, "discarded chart bytes must be scrubbed")
}

func TestMessageWhileGenerating(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {londonLoc}}}
	gen := &fakeGenerator{png: []byte("png"), gate: make(chan struct{})}
	e, _, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")
	send(t, e, "u1", "London")

	replies := send(t, e, "u1", "are you done yet?")
	require.Equal(t, noticeStillGenerating, replies[0].Text)

	close(gen.gate)
	async := waitAsync(t, rep)
	require.NotEmpty(t, async[0].Image)
}

func TestImplicitStart(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{})

	replies := send(t, e, "u1", "hello there")
	require.Equal(t, promptName, replies[0].Text)

	// The greeting was not consumed as the name.
	snap, ok := st.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitingName, snap.State)
	require.Empty(t, snap.Draft.Name)

	replies = send(t, e, "u1", "Ada")
	require.Contains(t, replies[0].Text, "Ada")
}

func TestExpiredSessionStartsFresh(t *testing.T) {
	st := session.New(20 * time.Millisecond)
	rep := &captureReplier{ch: make(chan []Reply, 8)}
	e := New(Deps{Store: st, Geo: &fakeResolver{}, Generator: &fakeGenerator{}, Replier: rep}, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	time.Sleep(40 * time.Millisecond)

	// The first message after expiry opens a fresh conversation with no
	// residue of the old draft.
	replies := send(t, e, "u1", "hello again")
	require.Equal(t, promptName, replies[0].Text)

	snap, ok := st.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitingName, snap.State)
	require.Empty(t, snap.Draft.Name)
}

func TestStartDiscardsPriorDraft(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")

	replies := send(t, e, "u1", "/start")
	require.Equal(t, promptName, replies[0].Text)

	snap, ok := st.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitingName, snap.State)
	require.Empty(t, snap.Draft.Name)
	require.Nil(t, snap.Draft.Date)
}

func TestStartCancelsPendingGeneration(t *testing.T) {
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {londonLoc}}}
	gen := &fakeGenerator{png: []byte("png"), gate: make(chan struct{})}
	e, _, rep := newTestEngine(geo, gen, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")
	send(t, e, "u1", "London")

	// Restarting bumps the session version; the in-flight result no longer
	// matches and must be dropped.
	send(t, e, "u1", "/start")
	close(gen.gate)
	requireNoAsync(t, rep)
}

type recordingUsage struct {
	mu    sync.Mutex
	kinds []string
}

func (u *recordingUsage) RecordEvent(_ context.Context, kind string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.kinds = append(u.kinds, kind)
	return nil
}

func (u *recordingUsage) CountSince(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (u *recordingUsage) Ping(context.Context) error { return nil }
func (u *recordingUsage) Close() error               { return nil }

func (u *recordingUsage) recorded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.kinds...)
}

func TestUsageEventsRecorded(t *testing.T) {
	st := session.New(30 * time.Minute)
	usage := &recordingUsage{}
	rep := &captureReplier{ch: make(chan []Reply, 8)}
	e := New(Deps{
		Store:     st,
		Geo:       &fakeResolver{},
		Generator: &fakeGenerator{},
		Replier:   rep,
		Usage:     usage,
	}, Options{MaxRetries: 2})

	send(t, e, "u1", "hello")
	send(t, e, "u1", "12345")
	send(t, e, "u1", "12345")

	require.Equal(t, []string{
		store.EventConversationStarted,
		store.EventRetriesExhausted,
	}, usage.recorded())
}

func TestHelpAndUnknownCommand(t *testing.T) {
	e, st, _ := newTestEngine(&fakeResolver{}, &fakeGenerator{}, Options{})

	replies := send(t, e, "u1", "/help")
	require.Equal(t, helpText, replies[0].Text)

	replies = send(t, e, "u1", "/frobnicate")
	require.Equal(t, unknownCommandText, replies[0].Text)

	// Neither command opens a session.
	require.Equal(t, 0, st.Len())
}

func TestLowConfidenceSingleCandidateAsksForConfirmation(t *testing.T) {
	low := londonLoc
	low.Confidence = 0.4
	geo := &fakeResolver{byPlace: map[string][]domain.ResolvedLocation{"London": {low}}}
	e, st, _ := newTestEngine(geo, &fakeGenerator{}, Options{})

	send(t, e, "u1", "/start")
	send(t, e, "u1", "Ada")
	send(t, e, "u1", "1990-05-15")
	send(t, e, "u1", "14:30")

	replies := send(t, e, "u1", "London")
	require.Contains(t, replies[0].Text, "1. "+low.Name)

	snap, ok := st.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, domain.StateAwaitingLocationConfirm, snap.State)
}
