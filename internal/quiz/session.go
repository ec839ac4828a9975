// Package quiz runs timed quiz sessions and folds the score into the player's XP.
package quiz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/models"
)

var (
	ErrInvalidState  = errors.New("quiz action not allowed in the current state")
	ErrEmptyAnswer   = errors.New("answer is required")
	ErrSessionActive = errors.New("a quiz session is already running")
	ErrNoSession     = errors.New("no quiz session")
	ErrClosed        = errors.New("quiz sessions are shutting down")
)

const (
	DefaultDuration       = 120 * time.Second
	DefaultAward          = int64(5000)
	gradingAttempts       = 3
	defaultPersistTimeout = 10 * time.Second
)

// Provider generates and grades questions.
type Provider interface {
	GenerateQuestion(ctx context.Context, userID, topicsHint string) (models.Question, error)
	GradeAnswer(ctx context.Context, userID string, question models.Question, answer string) (models.Solution, error)
}

// XPStore reads the player's profile and adds the session score to it.
type XPStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	AddXP(ctx context.Context, userID string, delta int64) (int64, error)
}

type Recorder interface {
	QuizStarted()
	QuizEnded(score int64, persisted bool)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type settings struct {
	duration       time.Duration
	award          int64
	persistTimeout time.Duration
	newTicker      func(time.Duration) Ticker
	now            func() time.Time
	recorder       Recorder
}

type Option func(*settings)

// WithDuration sets the countdown length. Values under one second are ignored.
func WithDuration(d time.Duration) Option {
	return func(s *settings) {
		if d >= time.Second {
			s.duration = d
		}
	}
}

// WithAward sets the points added for each correct answer.
func WithAward(points int64) Option {
	return func(s *settings) {
		if points >= 0 {
			s.award = points
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

func WithTicker(factory func(time.Duration) Ticker) Option {
	return func(s *settings) { s.newTicker = factory }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func defaultSettings(opts []Option) settings {
	s := settings{
		duration:       DefaultDuration,
		award:          DefaultAward,
		persistTimeout: defaultPersistTimeout,
		newTicker:      newTimeTicker,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Session is one player's quiz. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id         string
	userID     string
	status     models.QuizStatus
	question   models.Question
	answer     string
	solution   *models.Solution
	remaining  int
	score      int64
	priorXP    int64
	finalXP    int64
	topics     string
	startedAt  time.Time
	endedAt    *time.Time
	persisted  bool
	persistErr string
	busy       bool
	stop       chan struct{}

	provider Provider
	store    XPStore
	cfg      settings
	onEnd    func(*Session)
}

func NewSession(userID string, provider Provider, store XPStore, opts ...Option) *Session {
	return newSession(userID, provider, store, defaultSettings(opts))
}

func newSession(userID string, provider Provider, store XPStore, cfg settings) *Session {
	return &Session{
		id:       uuid.NewString(),
		userID:   userID,
		status:   models.QuizIdle,
		provider: provider,
		store:    store,
		cfg:      cfg,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Start records the prior XP, fetches the first question and starts the countdown.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != models.QuizIdle || s.busy {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.busy = true
	s.mu.Unlock()

	profile, err := s.store.GetProfile(ctx, s.userID)
	if err != nil {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		return err
	}
	question := s.fetchQuestion(ctx, profile.StudyTopics())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.priorXP = profile.XP
	s.topics = profile.StudyTopics()
	s.question = question
	s.remaining = int(s.cfg.duration / time.Second)
	s.startedAt = s.cfg.now().UTC()
	s.status = models.QuizPlaying
	s.stop = make(chan struct{})
	go s.run(s.cfg.newTicker(time.Second), s.stop)

	if s.cfg.recorder != nil {
		s.cfg.recorder.QuizStarted()
	}
	return nil
}

func (s *Session) run(t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.Tick()
		}
	}
}

// Tick advances the countdown by one second. It only counts while playing and
// ends the session when the time runs out.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.status != models.QuizPlaying {
		s.mu.Unlock()
		return
	}
	s.remaining--
	expired := s.remaining <= 0
	if expired {
		s.remaining = 0
	}
	s.mu.Unlock()

	if !expired {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.persistTimeout)
	defer cancel()
	if _, err := s.End(ctx); err != nil && !errors.Is(err, ErrInvalidState) {
		logging.Error("Failed to end expired quiz", map[string]interface{}{
			"error":   err.Error(),
			"user_id": s.userID,
		})
	}
}

// Submit grades answer against the current question. The countdown is
// suspended until Next.
func (s *Session) Submit(ctx context.Context, answer string) (models.QuizState, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s.Snapshot(), ErrEmptyAnswer
	}

	s.mu.Lock()
	if s.status != models.QuizPlaying {
		s.mu.Unlock()
		return s.Snapshot(), ErrInvalidState
	}
	s.status = models.QuizGrading
	s.answer = answer
	question := s.question
	s.mu.Unlock()

	solution := s.grade(ctx, question, answer)

	s.mu.Lock()
	if s.status != models.QuizGrading {
		s.mu.Unlock()
		return s.Snapshot(), ErrInvalidState
	}
	s.solution = &solution
	if solution.Correct {
		s.score += s.cfg.award
	}
	s.status = models.QuizGraded
	s.mu.Unlock()
	return s.Snapshot(), nil
}

func (s *Session) grade(ctx context.Context, question models.Question, answer string) models.Solution {
	var lastErr error
	for attempt := 1; attempt <= gradingAttempts; attempt++ {
		solution, err := s.provider.GradeAnswer(ctx, s.userID, question, answer)
		if err == nil {
			return solution
		}
		lastErr = err
		logging.Warn("Grading attempt failed", map[string]interface{}{
			"error":   err.Error(),
			"attempt": attempt,
			"user_id": s.userID,
		})
	}
	logging.Error("Grading failed", map[string]interface{}{
		"error":   lastErr.Error(),
		"user_id": s.userID,
	})
	return models.Solution{Correct: false, Response: models.FailedGradingMessage}
}

// Next moves on to a fresh question and resumes the countdown.
func (s *Session) Next(ctx context.Context) (models.QuizState, error) {
	s.mu.Lock()
	if s.status != models.QuizGraded || s.busy {
		s.mu.Unlock()
		return s.Snapshot(), ErrInvalidState
	}
	s.busy = true
	topics := s.topics
	s.mu.Unlock()

	question := s.fetchQuestion(ctx, topics)

	s.mu.Lock()
	s.busy = false
	if s.status != models.QuizGraded {
		s.mu.Unlock()
		return s.Snapshot(), ErrInvalidState
	}
	s.question = question
	s.answer = ""
	s.solution = nil
	s.status = models.QuizPlaying
	s.mu.Unlock()
	return s.Snapshot(), nil
}

func (s *Session) fetchQuestion(ctx context.Context, topics string) models.Question {
	question, err := s.provider.GenerateQuestion(ctx, s.userID, topics)
	if err != nil {
		logging.Warn("Question generation failed, using default question", map[string]interface{}{
			"error":   err.Error(),
			"user_id": s.userID,
		})
		return models.DefaultQuestion
	}
	return question
}

// End stops the countdown and adds the score to the stored XP. A failed
// write is logged and reported in the returned state.
func (s *Session) End(ctx context.Context) (models.QuizState, error) {
	s.mu.Lock()
	switch s.status {
	case models.QuizPlaying, models.QuizGrading, models.QuizGraded:
	default:
		s.mu.Unlock()
		return s.Snapshot(), ErrInvalidState
	}
	s.status = models.QuizEnded
	endedAt := s.cfg.now().UTC()
	s.endedAt = &endedAt
	close(s.stop)
	score := s.score
	s.finalXP = s.priorXP + score
	s.mu.Unlock()

	finalXP, err := s.store.AddXP(ctx, s.userID, score)

	s.mu.Lock()
	if err != nil {
		s.persistErr = err.Error()
		logging.Error("Failed to persist quiz score", map[string]interface{}{
			"error":   err.Error(),
			"user_id": s.userID,
			"score":   score,
		})
	} else {
		s.persisted = true
		s.finalXP = finalXP
	}
	persisted := s.persisted
	s.mu.Unlock()

	if s.cfg.recorder != nil {
		s.cfg.recorder.QuizEnded(score, persisted)
	}
	if s.onEnd != nil {
		s.onEnd(s)
	}
	return s.Snapshot(), nil
}

func (s *Session) Snapshot() models.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.QuizState{
		ID:           s.id,
		UserID:       s.userID,
		Status:       s.status,
		Question:     s.question,
		Answer:       s.answer,
		Remaining:    s.remaining,
		Score:        s.score,
		PriorXP:      s.priorXP,
		FinalXP:      s.finalXP,
		StartedAt:    s.startedAt,
		Persisted:    s.persisted,
		PersistError: s.persistErr,
	}
	if s.solution != nil {
		sol := *s.solution
		state.Solution = &sol
	}
	if s.endedAt != nil {
		t := *s.endedAt
		state.EndedAt = &t
	}
	return state
}
