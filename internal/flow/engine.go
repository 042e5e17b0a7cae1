// Package flow implements the conversation state machine that collects birth
// data step by step, validates every answer, and hands the completed draft to
// chart generation. Every path back to Idle destroys the draft first.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"natalbot/internal/chart"
	"natalbot/internal/domain"
	"natalbot/internal/geocode"
	"natalbot/internal/metrics"
	"natalbot/internal/normalize"
	"natalbot/internal/session"
	"natalbot/internal/store"
)

// Event is one inbound chat event: an opaque user identity plus raw text.
type Event struct {
	Identity string
	Text     string
}

// Reply is one outbound message: text, or an image attachment with caption.
type Reply struct {
	Text      string
	Image     []byte
	ImageName string
	Caption   string
}

// Replier delivers replies produced outside the inbound request cycle:
// generation results and expiry notices.
type Replier interface {
	Deliver(ctx context.Context, identity string, replies ...Reply) error
}

// Generator produces the raster chart for a completed draft.
type Generator interface {
	Generate(ctx context.Context, draft domain.BirthDraft) ([]byte, error)
}

// Handler processes one chat event and returns the synchronous replies.
type Handler func(ctx context.Context, ev Event) ([]Reply, error)

// Options tunes the conversation flow.
type Options struct {
	// MaxRetries is the per-state budget of failed answers before the
	// conversation is aborted and the draft destroyed.
	MaxRetries int
	// MinBirthYear is the lower bound for accepted birth dates.
	MinBirthYear int
	// ConfidenceThreshold auto-confirms a single geocoding candidate at or
	// above this confidence.
	ConfidenceThreshold float64
	// GenerationTimeout bounds one chart generation attempt.
	GenerationTimeout time.Duration
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Deps are the engine's collaborators.
type Deps struct {
	Store     *session.Store
	Geo       geocode.Resolver
	Generator Generator
	Replier   Replier
	Usage     store.Repository
	Metrics   *metrics.Metrics
}

// Engine drives the conversation state machine.
type Engine struct {
	store     *session.Store
	geo       geocode.Resolver
	generator Generator
	replier   Replier
	usage     store.Repository
	metrics   *metrics.Metrics
	opts      Options
	handler   Handler
}

// New creates a conversation engine. Zero option fields get defaults.
func New(deps Deps, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MinBirthYear <= 0 {
		opts.MinBirthYear = 1900
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.8
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Usage == nil {
		deps.Usage = store.Noop{}
	}

	e := &Engine{
		store:     deps.Store,
		geo:       deps.Geo,
		generator: deps.Generator,
		replier:   deps.Replier,
		usage:     deps.Usage,
		metrics:   deps.Metrics,
		opts:      opts,
	}
	e.handler = Chain(e.dispatch, Logging(), Recovery(e))
	return e
}

// HandleEvent runs one inbound event through the middleware chain and the
// state dispatch, returning the synchronous replies.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) ([]Reply, error) {
	e.metrics.ObserveEvent(eventKind(ev.Text))
	return e.handler(ctx, ev)
}

// NotifyExpired informs a user that the sweep destroyed their session. The
// session data is already gone when this runs.
func (e *Engine) NotifyExpired(identity string) {
	e.metrics.IncrementSessionsExpired()
	e.recordUsage(store.EventSessionExpired)
	if err := e.replier.Deliver(context.Background(), identity, Reply{Text: noticeExpired}); err != nil {
		slog.Warn("Failed to deliver expiry notice", "identity", identity, "error", err)
	}
}

func eventKind(text string) string {
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return "command"
	}
	return "message"
}

func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	return strings.TrimPrefix(strings.ToLower(fields[0]), "/"), true
}

// genJob is a snapshot handed to the asynchronous generation goroutine.
type genJob struct {
	draft   domain.BirthDraft
	version uint64
}

func (e *Engine) dispatch(ctx context.Context, ev Event) ([]Reply, error) {
	text := strings.TrimSpace(ev.Text)

	if cmd, ok := command(text); ok {
		switch cmd {
		case "start":
			return e.cmdStart(ev.Identity)
		case "help":
			return []Reply{{Text: helpText}}, nil
		case "cancel":
			return e.cmdCancel(ev.Identity)
		default:
			return []Reply{{Text: unknownCommandText}}, nil
		}
	}

	return e.handleAnswer(ctx, ev.Identity, text)
}

// cmdStart begins a fresh conversation, discarding any prior draft.
func (e *Engine) cmdStart(identity string) ([]Reply, error) {
	var replies []Reply
	err := e.store.WithSession(identity, func(s *domain.Session) (bool, error) {
		// Overwrite, never merge: the old draft is destroyed before the new
		// conversation starts.
		s.Wipe()
		e.advance(s, domain.StateAwaitingName)
		replies = []Reply{{Text: promptName}}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	e.recordUsage(store.EventConversationStarted)
	return replies, nil
}

// cmdCancel destroys the draft synchronously, then acknowledges.
func (e *Engine) cmdCancel(identity string) ([]Reply, error) {
	cancelled := false
	found, err := e.store.WithExisting(identity, func(s *domain.Session) (bool, error) {
		if s.State == domain.StateIdle {
			return false, nil
		}
		cancelled = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found || !cancelled {
		return []Reply{{Text: noticeNothingToCancel}}, nil
	}

	e.metrics.IncrementSessionsCancelled()
	e.recordUsage(store.EventSessionCancelled)
	return []Reply{{Text: noticeCancelled}}, nil
}

// handleAnswer routes a plain-text message to the current state's handler.
func (e *Engine) handleAnswer(ctx context.Context, identity, text string) ([]Reply, error) {
	var (
		replies   []Reply
		job       *genJob
		started   bool
		exhausted bool
	)

	err := e.store.WithSession(identity, func(s *domain.Session) (bool, error) {
		s.Touch(e.opts.Now())

		var destroy bool
		switch s.State {
		case domain.StateIdle:
			// First contact starts a conversation; the message itself is not
			// consumed as an answer.
			e.advance(s, domain.StateAwaitingName)
			replies = []Reply{{Text: promptName}}
			started = true
		case domain.StateAwaitingName:
			replies, destroy = e.handleName(s, text)
		case domain.StateAwaitingDate:
			replies, destroy = e.handleDate(s, text)
		case domain.StateAwaitingTime:
			replies, destroy, job = e.handleTime(s, text)
		case domain.StateAwaitingPlace:
			replies, destroy, job = e.handlePlace(ctx, s, text)
		case domain.StateAwaitingLocationConfirm:
			replies, destroy, job = e.handleLocationConfirm(ctx, s, text)
		case domain.StateGenerating:
			replies = []Reply{{Text: noticeStillGenerating}}
		}
		exhausted = destroy
		return destroy, nil
	})
	if err != nil {
		return replies, err
	}

	// Usage recording does I/O and stays outside the session lock.
	if started {
		e.recordUsage(store.EventConversationStarted)
	}
	if exhausted {
		e.recordUsage(store.EventRetriesExhausted)
	}
	if job != nil {
		go e.runGeneration(identity, job.draft, job.version)
	}
	return replies, nil
}

func (e *Engine) handleName(s *domain.Session, text string) ([]Reply, bool) {
	name, err := normalize.Name(text)
	if err != nil {
		return e.failValidation(s, err)
	}

	s.Draft.Name = name
	e.advance(s, domain.StateAwaitingDate)
	return []Reply{{Text: promptDate(name)}}, false
}

func (e *Engine) handleDate(s *domain.Session, text string) ([]Reply, bool) {
	date, err := normalize.Date(text, e.opts.MinBirthYear, e.opts.Now())
	if err != nil {
		return e.failValidation(s, err)
	}

	s.Draft.Date = &date
	e.advance(s, domain.StateAwaitingTime)
	return []Reply{{Text: promptTime}}, false
}

// timeUnknownAnswers are accepted in place of a birth time and trigger the
// documented noon default.
var timeUnknownAnswers = map[string]bool{
	"unknown": true,
	"skip":    true,
	"idk":     true,
}

func (e *Engine) handleTime(s *domain.Session, text string) ([]Reply, bool, *genJob) {
	if timeUnknownAnswers[strings.ToLower(text)] {
		tm := domain.DefaultBirthTime
		s.Draft.Time = &tm
		s.Draft.TimeDefaulted = true
		e.advance(s, domain.StateAwaitingPlace)
		return []Reply{{Text: noticeTimeDefaulted}, {Text: promptPlace}}, false, nil
	}

	tm, err := normalize.Time(text)
	if err != nil {
		replies, destroy := e.failValidation(s, err)
		return replies, destroy, nil
	}

	s.Draft.Time = &tm
	s.Draft.TimeDefaulted = false
	e.advance(s, domain.StateAwaitingPlace)
	return []Reply{{Text: promptPlace}}, false, nil
}

func (e *Engine) handlePlace(ctx context.Context, s *domain.Session, text string) ([]Reply, bool, *genJob) {
	place, err := normalize.Place(text)
	if err != nil {
		replies, destroy := e.failValidation(s, err)
		return replies, destroy, nil
	}

	candidates, err := e.geo.Resolve(ctx, place)
	if err != nil {
		// Provider failure is not the user's fault and must not consume the
		// retry budget.
		if !errors.Is(err, domain.ErrGeocodingUnavailable) {
			slog.Error("Unexpected geocoding failure", "identity", s.Identity, "error", err)
		}
		return []Reply{{Text: noticeGeocodingUnavailable}}, false, nil
	}

	if len(candidates) == 0 {
		replies, destroy := e.failText(s, promptLocationNotFound(place))
		return replies, destroy, nil
	}

	s.Draft.Place = place

	if len(candidates) == 1 && candidates[0].Confidence >= e.opts.ConfidenceThreshold {
		loc := candidates[0]
		s.Draft.Location = &loc
		reply, job := e.beginGeneration(s)
		return []Reply{reply}, false, job
	}

	s.Candidates = candidates
	e.advance(s, domain.StateAwaitingLocationConfirm)
	return []Reply{{Text: promptLocationChoices(candidates)}}, false, nil
}

func (e *Engine) handleLocationConfirm(ctx context.Context, s *domain.Session, text string) ([]Reply, bool, *genJob) {
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
		if n < 1 || n > len(s.Candidates) {
			replies, destroy := e.failText(s, promptLocationChoices(s.Candidates))
			return replies, destroy, nil
		}

		loc := s.Candidates[n-1]
		s.Draft.Location = &loc
		for i := range s.Candidates {
			s.Candidates[i] = domain.ResolvedLocation{}
		}
		s.Candidates = nil

		reply, job := e.beginGeneration(s)
		return []Reply{reply}, false, job
	}

	// Anything else is a fresh place attempt, with a fresh retry budget.
	for i := range s.Candidates {
		s.Candidates[i] = domain.ResolvedLocation{}
	}
	s.Candidates = nil
	e.advance(s, domain.StateAwaitingPlace)
	return e.handlePlace(ctx, s, text)
}

// beginGeneration transitions into Generating and snapshots the draft for
// the asynchronous worker.
func (e *Engine) beginGeneration(s *domain.Session) (Reply, *genJob) {
	e.advance(s, domain.StateGenerating)
	return Reply{Text: noticeGenerating}, &genJob{
		draft:   s.Draft.Clone(),
		version: s.Version,
	}
}

// runGeneration performs the engine and raster calls off the session lock,
// then applies the result only if the session is still the same generation
// attempt. A result arriving after /cancel or /start is discarded.
func (e *Engine) runGeneration(identity string, draft domain.BirthDraft, version uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.GenerationTimeout)
	defer cancel()

	png, genErr := e.generator.Generate(ctx, draft)
	draft.Wipe()

	var replies []Reply
	applied := false
	_, _ = e.store.WithExisting(identity, func(s *domain.Session) (bool, error) {
		if s.State != domain.StateGenerating || s.Version != version {
			return false, nil
		}
		applied = true
		if genErr != nil {
			replies = []Reply{{Text: noticeGenerationFailed}}
		} else {
			replies = []Reply{{Image: png, ImageName: "natal_chart.png", Caption: successCaption(&s.Draft)}}
		}
		// Success or failure, the session ends here and the draft dies with it.
		return true, nil
	})

	if !applied {
		chart.Scrub(png)
		slog.Info("Discarded generation result for destroyed session", "identity", identity)
		return
	}

	if genErr != nil {
		slog.Error("Chart generation failed", "identity", identity, "error", genErr)
		e.metrics.IncrementGenerationFailures()
		e.recordUsage(store.EventGenerationFailed)
	} else {
		e.metrics.IncrementChartsGenerated()
		e.recordUsage(store.EventChartGenerated)
	}

	if err := e.replier.Deliver(context.Background(), identity, replies...); err != nil {
		slog.Warn("Failed to deliver generation result", "identity", identity, "error", err)
	}
}

// advance moves the session to the next state, resetting the retry counter,
// bumping the version, and refreshing activity.
func (e *Engine) advance(s *domain.Session, next domain.State) {
	s.State = next
	s.Retries = 0
	s.Version++
	s.Touch(e.opts.Now())
}

// failValidation re-prompts with the validation error, or aborts the
// conversation once the retry budget is exhausted.
func (e *Engine) failValidation(s *domain.Session, err error) ([]Reply, bool) {
	return e.failText(s, err.Error())
}

func (e *Engine) failText(s *domain.Session, msg string) ([]Reply, bool) {
	s.Retries++
	if s.Retries >= e.opts.MaxRetries {
		return []Reply{{Text: noticeTooManyRetries}}, true
	}
	return []Reply{{Text: "❌ " + msg}}, false
}

func (e *Engine) recordUsage(kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.usage.RecordEvent(ctx, kind); err != nil {
		slog.Warn("Failed to record usage event", "kind", kind, "error", err)
	}
}
