// Package session implements the exam attempt runtime: one explicitly owned
// session object per attempt, holding the answer store, the countdown timer,
// the submission coordinator and, for speaking parts, the capture state
// machine. There are no ambient globals; the Manager constructs a session when
// an attempt starts and tears it down on submit or abandonment.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/scoring"
)

var (
	ErrAlreadySubmitted   = errors.New("attempt already submitted")
	ErrSessionClosed      = errors.New("session closed")
	ErrCaptureNotFinished = errors.New("speaking capture not finished")
	ErrInvalidAnswerKey   = errors.New("answer key does not address this exam part")
	ErrAudioNotExpected   = errors.New("no recording in flight for this attempt")
)

// Submitter persists the one submission an attempt is allowed to produce.
type Submitter interface {
	SaveSubmission(sub *model.ExamSubmission) error
}

// Config assembles a session. TimeLimit of zero means untimed (speaking and
// writing-without-limit); speaking sessions are additionally driven by the
// capture machine instead of the countdown.
type Config struct {
	AttemptID string
	ExamID    uint
	UserID    uint
	Def       *model.ExamDefinition
	TimeLimit time.Duration
	Clock     Clock
	Submitter Submitter
	Notifier  Notifier
	Logger    *zap.Logger
}

// Session is the per-attempt runtime. All state sits behind mu, and every
// transition (client event, timer tick, answer write, submit) takes the lock,
// so arbitrary interleavings serialize the same way they would in the exam
// client's single-threaded event loop.
type Session struct {
	mu sync.Mutex

	attemptID string
	examID    uint
	userID    uint
	def       *model.ExamDefinition
	clock     Clock
	submitter Submitter
	notifier  Notifier
	log       *zap.Logger

	phase        model.AttemptPhase
	startedAt    time.Time
	timeLimit    time.Duration
	deadline     time.Time // zero for untimed parts
	timeoutFired bool

	answers  *AnswerStore
	speaking *captureMachine

	submission *model.ExamSubmission

	ticker   Ticker
	stopTick chan struct{}
	closed   bool
}

func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Session{
		attemptID: cfg.AttemptID,
		examID:    cfg.ExamID,
		userID:    cfg.UserID,
		def:       cfg.Def,
		clock:     cfg.Clock,
		submitter: cfg.Submitter,
		notifier:  cfg.Notifier,
		log:       cfg.Logger,
		phase:     model.AttemptNotStarted,
		answers:   NewAnswerStore(),
		stopTick:  make(chan struct{}),
	}

	s.timeLimit = cfg.TimeLimit
	if cfg.Def.PartType == model.PartSpeaking {
		s.speaking = newCaptureMachine(cfg.Def, s.notifier.Notify)
	}
	return s
}

// Start moves the session to in-progress, anchors the countdown deadline and
// launches the tick forwarder. Tests may drive the session without Start by
// feeding TickEvents directly.
func (s *Session) Start() {
	s.mu.Lock()
	now := s.clock.Now()
	s.phase = model.AttemptInProgress
	s.startedAt = now
	if s.timeLimit > 0 && s.speaking == nil {
		s.deadline = now.Add(s.timeLimit)
	}
	if s.speaking != nil {
		s.speaking.start(now)
	}
	ticking := s.speaking != nil || !s.deadline.IsZero()
	s.mu.Unlock()

	// untimed parts have nothing to tick for
	if ticking {
		go s.runTicks()
	}
}

func (s *Session) runTicks() {
	s.ticker = s.clock.NewTicker(time.Second)
	defer s.ticker.Stop()
	for {
		select {
		case now := <-s.ticker.C():
			s.HandleEvent(TickEvent{Now: now})
		case <-s.stopTick:
			return
		}
	}
}

// HandleEvent is the single transition entry point. Events that arrive after
// submission or teardown are dropped.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.phase != model.AttemptInProgress {
		return
	}

	switch e := ev.(type) {
	case TickEvent:
		s.onTick(e.Now)
	case PlaybackEndedEvent, PlaybackErrorEvent:
		if s.speaking != nil {
			s.speaking.onPlaybackDone(s.clock.Now())
		}
	case RecordingStoppedEvent:
		if s.speaking != nil {
			s.speaking.onRecordingStopped(s.clock.Now())
		}
	case DeviceFailedEvent:
		if s.speaking != nil {
			s.log.Warn("capture device failed, skipping question",
				zap.String("attemptId", s.attemptID))
			s.speaking.onDeviceFailed(s.clock.Now())
		}
	}
}

func (s *Session) onTick(now time.Time) {
	if s.speaking != nil {
		s.speaking.onTick(now)
		return
	}
	if s.deadline.IsZero() {
		return
	}

	// the timeout submission fires once; if persistence fails the attempt
	// stays in progress and only a manual submit retries
	if s.timeoutFired {
		return
	}

	remaining := remainingSeconds(s.deadline, now)
	s.notifier.Notify(Notice{Type: NoticeRemaining, Data: remaining})
	if remaining <= 0 {
		s.timeoutFired = true
		if err := s.submitLocked(model.SubmitTimeout); err != nil {
			s.log.Error("auto-submit on timeout failed",
				zap.String("attemptId", s.attemptID), zap.Error(err))
		}
	}
}

// SetAnswer validates the key against the resolved definition and writes the
// value. Rejected once submitted: the UI must render from the submission
// snapshot, not live state.
func (s *Session) SetAnswer(key model.QuestionKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.phase == model.AttemptSubmitted {
		return ErrAlreadySubmitted
	}
	if err := validateKey(s.def, key); err != nil {
		return err
	}
	s.answers.Set(key, value)
	return nil
}

// SetMatchAnswer records a listening person-matching pick for one option.
func (s *Session) SetMatchAnswer(optionIndex int, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.phase == model.AttemptSubmitted {
		return ErrAlreadySubmitted
	}
	if s.def.PartType != model.PartListening || s.def.Listening == nil || s.def.Listening.Part2 == nil {
		return ErrInvalidAnswerKey
	}
	if optionIndex < 0 || optionIndex >= len(s.def.Listening.Part2.Options) {
		return ErrInvalidAnswerKey
	}
	s.answers.SetMatch(optionIndex, label)
	return nil
}

// Score evaluates the live answer store for display; safe at any time,
// including after submission.
func (s *Session) Score() scoring.Result {
	s.mu.Lock()
	values, matching := s.answers.Snapshot()
	s.mu.Unlock()
	return scoring.Evaluate(s.def, scoring.Answers{User: values, Matching: matching})
}

// Submit is the manual submission path. Speaking requires the capture machine
// to have completed; a second submit of any kind reports ErrAlreadySubmitted.
func (s *Session) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.speaking != nil && !s.speaking.completed() {
		return ErrCaptureNotFinished
	}
	return s.submitLocked(model.SubmitManual)
}

// submitLocked is the submission coordinator: exactly one persisted submission
// per attempt, whatever races between a manual click and a timeout tick. A
// persistence failure leaves the phase running so the user may retry; there is
// no automatic retry.
func (s *Session) submitLocked(reason model.SubmitReason) error {
	if s.phase == model.AttemptSubmitted {
		if reason == model.SubmitTimeout {
			return nil // stray tick racing a manual submit
		}
		return ErrAlreadySubmitted
	}

	values, matching := s.answers.Snapshot()
	submittedAt := s.clock.Now().UTC()

	data := model.SubmissionData{
		UserAnswers: values,
		PartType:    s.def.PartType,
		ExamID:      s.examID,
		ExamData:    s.def.Raw,
		SubmittedAt: submittedAt.Format(time.RFC3339),
	}
	if len(matching) > 0 {
		data.UserPart2Answers = matching
	}
	if s.speaking != nil {
		data.AudioPaths = s.speaking.paths()
	}

	sub := &model.ExamSubmission{
		AttemptID:   s.attemptID,
		ExamID:      s.examID,
		UserID:      s.userID,
		PartType:    s.def.PartType,
		Reason:      reason,
		SubmittedAt: submittedAt,
	}

	// objective parts carry a score; writing/speaking defer to manual review
	if s.def.PartType == model.PartReading || s.def.PartType == model.PartListening {
		result := scoring.Evaluate(s.def, scoring.Answers{User: values, Matching: matching})
		sub.Score = result.FormatScore()
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal submission payload: %w", err)
	}
	sub.JSONData = raw

	if err := s.submitter.SaveSubmission(sub); err != nil {
		s.notifier.Notify(Notice{Type: NoticeSubmitError, Data: err.Error()})
		return err
	}

	s.phase = model.AttemptSubmitted
	s.submission = sub
	s.answers.Freeze()
	s.notifier.Notify(Notice{Type: NoticeSubmitted, Data: map[string]interface{}{
		"reason": reason,
		"score":  sub.Score,
	}})
	return nil
}

// BeginSpeakingUpload accepts the captured audio blob for the current
// question. The returned index is where the storage path must land once the
// asynchronous upload resolves; the machine advances immediately so a slow or
// failed upload never blocks the next question.
func (s *Session) BeginSpeakingUpload() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	if s.speaking == nil {
		return 0, ErrInvalidAnswerKey
	}
	idx, ok := s.speaking.beginUpload(s.clock.Now())
	if !ok {
		return 0, ErrAudioNotExpected
	}
	return idx, nil
}

// CompleteSpeakingUpload lands an upload result. Results arriving after
// teardown are discarded with the session.
func (s *Session) CompleteSpeakingUpload(idx int, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.speaking == nil {
		return
	}
	if err != nil {
		s.log.Warn("speaking upload failed, leaving gap",
			zap.String("attemptId", s.attemptID), zap.Int("question", idx), zap.Error(err))
	}
	s.speaking.completeUpload(idx, path, err)
}

// Close tears the session down: stops the ticker, discards any in-flight
// capture, and marks a still-running attempt abandoned. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.phase == model.AttemptInProgress {
		s.phase = model.AttemptAbandoned
	}
	s.mu.Unlock()

	close(s.stopTick)
}

// State reports the externally visible session state.
type State struct {
	AttemptID        string             `json:"attemptId"`
	Phase            model.AttemptPhase `json:"phase"`
	RemainingSeconds *int               `json:"remainingSeconds,omitempty"`
	Capture          *CaptureState      `json:"capture,omitempty"`
}

type CaptureState struct {
	Part     int          `json:"part"`
	Question int          `json:"question"`
	Phase    CapturePhase `json:"phase"`
	TimeLeft int          `json:"timeLeft"`
	Uploaded int          `json:"uploaded"`
	Total    int          `json:"total"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{AttemptID: s.attemptID, Phase: s.phase}
	now := s.clock.Now()
	if !s.deadline.IsZero() && s.phase == model.AttemptInProgress {
		r := remainingSeconds(s.deadline, now)
		st.RemainingSeconds = &r
	}
	if s.speaking != nil {
		cs := &CaptureState{
			Part:     s.speaking.partNumber(),
			Question: s.speaking.question,
			Phase:    s.speaking.phase,
			Uploaded: s.speaking.uploaded,
			Total:    len(s.speaking.audioPaths),
		}
		if !s.speaking.deadline.IsZero() {
			cs.TimeLeft = remainingSeconds(s.speaking.deadline, now)
		}
		st.Capture = cs
	}
	return st
}

// Submission returns the persisted payload after a successful submit, nil
// before.
func (s *Session) Submission() *model.ExamSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submission
}

// AudioPaths exposes the capture machine's reference list (copies, gaps
// included) for display before the confirm step.
func (s *Session) AudioPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaking == nil {
		return nil
	}
	return s.speaking.paths()
}

func (s *Session) UserID() uint             { return s.userID }
func (s *Session) ExamID() uint             { return s.examID }
func (s *Session) AttemptID() string        { return s.attemptID }
func (s *Session) PartType() model.PartType { return s.def.PartType }

// remainingSeconds derives the remaining whole seconds from an absolute
// deadline, clamped at zero. Ceil, so a freshly started 30s countdown shows 30.
func remainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// validateKey checks that a composite key addresses a question the resolved
// definition actually contains, fixing each key's shape for the session.
func validateKey(def *model.ExamDefinition, key model.QuestionKey) error {
	if key.PartType != def.PartType {
		return ErrInvalidAnswerKey
	}

	inGroups := func(groups []model.QuestionGroup) bool {
		if key.Group < 0 || key.Group >= len(groups) {
			return false
		}
		return key.Question >= 0 && key.Question < len(groups[key.Group].Questions)
	}

	switch def.PartType {
	case model.PartReading:
		if def.Reading == nil {
			return ErrInvalidAnswerKey
		}
		switch key.Section {
		case 1:
			if inGroups(def.Reading.Part1) {
				return nil
			}
		case 2:
			if def.Reading.Part2 == nil {
				return ErrInvalidAnswerKey
			}
			n := 0
			for _, sent := range def.Reading.Part2.Sentences {
				if !sent.IsExample {
					n++
				}
			}
			if key.Question >= 0 && key.Question < n {
				return nil
			}
		case 3:
			if inGroups(def.Reading.Part3) {
				return nil
			}
		case 4:
			if inGroups(def.Reading.Part4) {
				return nil
			}
		}
	case model.PartListening:
		if def.Listening == nil {
			return ErrInvalidAnswerKey
		}
		switch key.Section {
		case 1:
			if inGroups(def.Listening.Part1) {
				return nil
			}
		case 3:
			if inGroups(def.Listening.Part3) {
				return nil
			}
		case 4:
			if inGroups(def.Listening.Part4) {
				return nil
			}
		}
	case model.PartWriting:
		if def.Writing != nil && key.Section == 1 && key.Group == 0 &&
			key.Question >= 0 && key.Question < len(def.Writing.Tasks) {
			return nil
		}
	case model.PartGrammarVocab:
		if def.GrammarVocab != nil && inGroups(def.GrammarVocab.Groups) {
			return nil
		}
	}
	return ErrInvalidAnswerKey
}
