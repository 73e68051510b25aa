package session

import "lingua_exam_backend/internal/model"

// AnswerStore holds the candidate's answers for one attempt. It is owned by the
// session and only ever touched under the session's lock, so it carries no
// locking of its own. Values are keyed by the canonical question-key string;
// the listening person-matching picks live in a separate map mirroring their
// separate field on the wire.
type AnswerStore struct {
	values   map[string]string
	matching map[string]string
	frozen   bool
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		values:   make(map[string]string),
		matching: make(map[string]string),
	}
}

func (s *AnswerStore) Set(key model.QuestionKey, value string) bool {
	if s.frozen {
		return false
	}
	s.values[key.String()] = value
	return true
}

func (s *AnswerStore) SetMatch(optionIndex int, label string) bool {
	if s.frozen {
		return false
	}
	s.matching[model.MatchKey(optionIndex)] = label
	return true
}

// Freeze makes the store read-only; called at the moment of submission so the
// persisted snapshot is the last word.
func (s *AnswerStore) Freeze() {
	s.frozen = true
}

// Snapshot returns deep copies, safe to hand to the scorer or a submission
// payload without further coordination.
func (s *AnswerStore) Snapshot() (values, matching map[string]string) {
	values = make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	matching = make(map[string]string, len(s.matching))
	for k, v := range s.matching {
		matching[k] = v
	}
	return values, matching
}
