package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lingua_exam_backend/internal/model"
)

// fakeClock lets tests move time by hand; its ticker never fires, tests feed
// TickEvents directly instead.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker { return &fakeTicker{c: make(chan time.Time)} }

type fakeTicker struct{ c chan time.Time }

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               {}

type fakeSubmitter struct {
	mu       sync.Mutex
	saved    []*model.ExamSubmission
	attempts int
	err      error
}

func (f *fakeSubmitter) SaveSubmission(sub *model.ExamSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, sub)
	return nil
}

func (f *fakeSubmitter) tries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (f *fakeNotifier) Notify(n Notice) {
	f.mu.Lock()
	f.notices = append(f.notices, n)
	f.mu.Unlock()
}

func (f *fakeNotifier) byType(t string) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notice
	for _, n := range f.notices {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func mustDef(t *testing.T, pt model.PartType, content string) *model.ExamDefinition {
	t.Helper()
	def, err := model.ParseDefinition(pt, json.RawMessage(content))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	return def
}

const readingContent = `{
	"part1": [{"questions": [
		{"prompt": "q1", "correct_answer": "library"},
		{"prompt": "q2", "correct_answer": "garden"}
	]}],
	"part2": {"sentences": [
		{"key": 1, "text": "First.", "is_example": true},
		{"key": 3, "text": "Third."},
		{"key": 2, "text": "Second."}
	]}
}`

func newTestSession(t *testing.T, pt model.PartType, content string, limit time.Duration) (*Session, *fakeClock, *fakeSubmitter, *fakeNotifier) {
	t.Helper()
	clock := newFakeClock()
	sub := &fakeSubmitter{}
	not := &fakeNotifier{}
	s := New(Config{
		AttemptID: "attempt-1",
		ExamID:    7,
		UserID:    42,
		Def:       mustDef(t, pt, content),
		TimeLimit: limit,
		Clock:     clock,
		Submitter: sub,
		Notifier:  not,
	})
	s.Start()
	t.Cleanup(s.Close)
	return s, clock, sub, not
}

func TestTimedAttemptAutoSubmitsOnce(t *testing.T) {
	s, clock, sub, not := newTestSession(t, model.PartReading, readingContent, time.Minute)

	if err := s.SetAnswer(model.QuestionKey{PartType: model.PartReading, Section: 1, Group: 0, Question: 0}, "Library"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	for i := 0; i < 61; i++ {
		s.HandleEvent(TickEvent{Now: clock.Advance(time.Second)})
	}
	if got := sub.count(); got != 1 {
		t.Fatalf("submissions after expiry = %d, want 1", got)
	}

	// late ticks and a manual submit must not produce a second row
	s.HandleEvent(TickEvent{Now: clock.Advance(time.Second)})
	if err := s.Submit(); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("Submit after timeout = %v, want ErrAlreadySubmitted", err)
	}
	if got := sub.count(); got != 1 {
		t.Fatalf("submissions after late events = %d, want 1", got)
	}

	saved := sub.saved[0]
	if saved.Reason != model.SubmitTimeout {
		t.Errorf("reason = %q, want timeout", saved.Reason)
	}
	if saved.Score != "1/4" {
		t.Errorf("score = %q, want 1/4", saved.Score)
	}
	if len(not.byType(NoticeSubmitted)) != 1 {
		t.Errorf("submitted notices = %d, want 1", len(not.byType(NoticeSubmitted)))
	}
}

func TestTimeoutSubmitFailureDoesNotAutoRetry(t *testing.T) {
	s, clock, sub, not := newTestSession(t, model.PartReading, readingContent, time.Minute)
	sub.setErr(errors.New("mysql gone away"))

	// ticks keep arriving long past the deadline; persistence is attempted once
	for i := 0; i < 70; i++ {
		s.HandleEvent(TickEvent{Now: clock.Advance(time.Second)})
	}
	if got := sub.tries(); got != 1 {
		t.Fatalf("persistence attempts after expiry = %d, want 1", got)
	}
	if got := len(not.byType(NoticeSubmitError)); got != 1 {
		t.Errorf("submit_error notices = %d, want 1", got)
	}
	if got := s.State().Phase; got != model.AttemptInProgress {
		t.Fatalf("phase = %q, want in_progress", got)
	}

	// recovery is user-initiated only
	sub.setErr(nil)
	if err := s.Submit(); err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	if got := sub.count(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
	if sub.saved[0].Reason != model.SubmitManual {
		t.Errorf("reason = %q, want manual", sub.saved[0].Reason)
	}
}

func TestManualSubmitWinsOverRacingTick(t *testing.T) {
	s, clock, sub, _ := newTestSession(t, model.PartReading, readingContent, time.Minute)

	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.HandleEvent(TickEvent{Now: clock.Advance(2 * time.Minute)})

	if got := sub.count(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
	if sub.saved[0].Reason != model.SubmitManual {
		t.Errorf("reason = %q, want manual", sub.saved[0].Reason)
	}
}

func TestSubmitFailureLeavesAttemptRunning(t *testing.T) {
	s, _, sub, not := newTestSession(t, model.PartReading, readingContent, 0)
	sub.setErr(errors.New("mysql gone away"))

	if err := s.Submit(); err == nil {
		t.Fatal("Submit succeeded despite persistence error")
	}
	if len(not.byType(NoticeSubmitError)) != 1 {
		t.Errorf("submit_error notices = %d, want 1", len(not.byType(NoticeSubmitError)))
	}

	// still in progress: answers remain writable and a retry succeeds
	key := model.QuestionKey{PartType: model.PartReading, Section: 1, Group: 0, Question: 1}
	if err := s.SetAnswer(key, "garden"); err != nil {
		t.Fatalf("SetAnswer after failed submit: %v", err)
	}
	sub.setErr(nil)
	if err := s.Submit(); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if got := sub.count(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}

	var data model.SubmissionData
	if err := json.Unmarshal(sub.saved[0].JSONData, &data); err != nil {
		t.Fatalf("unmarshal json_data: %v", err)
	}
	if data.UserAnswers["r1_g0_q1"] != "garden" {
		t.Errorf("persisted answer = %q, want garden", data.UserAnswers["r1_g0_q1"])
	}
	if data.ExamID != 7 || data.PartType != model.PartReading {
		t.Errorf("payload header = %d/%q", data.ExamID, data.PartType)
	}
	if _, err := time.Parse(time.RFC3339, data.SubmittedAt); err != nil {
		t.Errorf("submittedAt %q not RFC3339: %v", data.SubmittedAt, err)
	}
}

func TestAnswersRejectedAfterSubmission(t *testing.T) {
	s, _, _, _ := newTestSession(t, model.PartReading, readingContent, 0)

	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	key := model.QuestionKey{PartType: model.PartReading, Section: 1, Group: 0, Question: 0}
	if err := s.SetAnswer(key, "late"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("SetAnswer after submit = %v, want ErrAlreadySubmitted", err)
	}
}

func TestSetAnswerValidatesKeys(t *testing.T) {
	s, _, _, _ := newTestSession(t, model.PartReading, readingContent, 0)

	cases := []struct {
		name string
		key  model.QuestionKey
		ok   bool
	}{
		{"valid choice", model.QuestionKey{PartType: model.PartReading, Section: 1, Group: 0, Question: 1}, true},
		{"valid reorder position", model.ReorderKey(1), true},
		{"reorder position beyond non-example count", model.ReorderKey(2), false},
		{"question out of range", model.QuestionKey{PartType: model.PartReading, Section: 1, Group: 0, Question: 5}, false},
		{"group out of range", model.QuestionKey{PartType: model.PartReading, Section: 1, Group: 3, Question: 0}, false},
		{"absent section", model.QuestionKey{PartType: model.PartReading, Section: 3, Group: 0, Question: 0}, false},
		{"wrong part type", model.QuestionKey{PartType: model.PartListening, Section: 1, Group: 0, Question: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.SetAnswer(tc.key, "x")
			if tc.ok && err != nil {
				t.Fatalf("SetAnswer = %v, want nil", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidAnswerKey) {
				t.Fatalf("SetAnswer = %v, want ErrInvalidAnswerKey", err)
			}
		})
	}
}

func TestListeningMatchingAnswers(t *testing.T) {
	content := `{
		"part2": {
			"options": ["needs a quiet flat", "owns a dog", "works nights"],
			"people": [
				{"label": "A", "option_indexes": [0]},
				{"label": "B", "option_indexes": [1, 2]}
			]
		}
	}`
	s, _, sub, _ := newTestSession(t, model.PartListening, content, 0)

	if err := s.SetMatchAnswer(1, "B"); err != nil {
		t.Fatalf("SetMatchAnswer: %v", err)
	}
	if err := s.SetMatchAnswer(3, "A"); !errors.Is(err, ErrInvalidAnswerKey) {
		t.Fatalf("out-of-range option = %v, want ErrInvalidAnswerKey", err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var data model.SubmissionData
	if err := json.Unmarshal(sub.saved[0].JSONData, &data); err != nil {
		t.Fatalf("unmarshal json_data: %v", err)
	}
	if data.UserPart2Answers["o1"] != "B" {
		t.Errorf("userPart2Answers[o1] = %q, want B", data.UserPart2Answers["o1"])
	}
	if sub.saved[0].Score != "1/3" {
		t.Errorf("score = %q, want 1/3", sub.saved[0].Score)
	}
}

func TestWritingSubmissionCarriesNoScore(t *testing.T) {
	content := `{"tasks": [{"prompt": "Describe your hometown.", "min_words": 80}]}`
	s, _, sub, _ := newTestSession(t, model.PartWriting, content, 30*time.Minute)

	key := model.QuestionKey{PartType: model.PartWriting, Section: 1, Group: 0, Question: 0}
	if err := s.SetAnswer(key, "My hometown is a small port city..."); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.saved[0].Score != "" {
		t.Errorf("writing score = %q, want empty", sub.saved[0].Score)
	}
}

func TestCloseAbandonsRunningAttempt(t *testing.T) {
	s, clock, sub, _ := newTestSession(t, model.PartReading, readingContent, time.Minute)

	s.Close()
	if got := s.State().Phase; got != model.AttemptAbandoned {
		t.Fatalf("phase after Close = %q, want abandoned", got)
	}

	// closed sessions drop every late stimulus
	s.HandleEvent(TickEvent{Now: clock.Advance(2 * time.Minute)})
	if err := s.Submit(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Submit after Close = %v, want ErrSessionClosed", err)
	}
	if got := sub.count(); got != 0 {
		t.Fatalf("submissions after Close = %d, want 0", got)
	}
	s.Close() // idempotent
}

func TestRemainingSecondsDerivedFromDeadline(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"fresh", base, 30},
		{"mid flight", base.Add(12 * time.Second), 18},
		{"sub-second rounds up", base.Add(29*time.Second + 400*time.Millisecond), 1},
		{"expired", base.Add(30 * time.Second), 0},
		{"long past", base.Add(time.Hour), 0},
	}
	deadline := base.Add(30 * time.Second)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := remainingSeconds(deadline, tc.now); got != tc.want {
				t.Fatalf("remainingSeconds = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestManagerEnforcesSingleLiveAttempt(t *testing.T) {
	m := NewManager()
	mk := func(attemptID string, userID uint) *Session {
		return New(Config{
			AttemptID: attemptID,
			ExamID:    7,
			UserID:    userID,
			Def:       mustDef(t, model.PartReading, readingContent),
			Clock:     newFakeClock(),
			Submitter: &fakeSubmitter{},
		})
	}

	first := mk("a1", 42)
	if err := m.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(mk("a2", 42)); !errors.Is(err, ErrAttemptActive) {
		t.Fatalf("duplicate Register = %v, want ErrAttemptActive", err)
	}
	if err := m.Register(mk("a3", 43)); err != nil {
		t.Fatalf("Register other user: %v", err)
	}
	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}

	m.Remove("a1")
	if _, ok := m.Get("a1"); ok {
		t.Fatal("removed session still resolvable")
	}
	// the user slot frees up with the session
	if err := m.Register(mk("a4", 42)); err != nil {
		t.Fatalf("Register after Remove: %v", err)
	}

	m.CloseAll()
	if got := m.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount after CloseAll = %d, want 0", got)
	}
}
