package scoring

import (
	"testing"

	"lingua_exam_backend/internal/model"
)

func readingDef(t *testing.T) *model.ExamDefinition {
	t.Helper()
	return &model.ExamDefinition{
		PartType: model.PartReading,
		Reading: &model.ReadingDefinition{
			Part1: []model.QuestionGroup{
				{Questions: []model.ChoiceQuestion{
					{Prompt: "Capital of France?", CorrectAnswer: "Paris"},
					{Prompt: "Capital of Spain?", CorrectAnswer: "Madrid"},
				}},
			},
			Part2: &model.ReorderPart{
				Sentences: []model.Sentence{
					{Key: 0, Text: "example", IsExample: true},
					{Key: 3, Text: "third"},
					{Key: 1, Text: "first"},
					{Key: 2, Text: "second"},
				},
			},
			Part4: []model.QuestionGroup{
				{Questions: []model.ChoiceQuestion{
					{Options: []string{"a", "b", "c"}, CorrectAnswer: "2"},
				}},
			},
		},
	}
}

func TestEvaluateReadingSingleChoice(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]string
		correct int
	}{
		{name: "exact", answers: map[string]string{"r1_g0_q0": "Paris"}, correct: 1},
		{name: "case and whitespace insensitive", answers: map[string]string{"r1_g0_q0": " paris "}, correct: 1},
		{name: "wrong", answers: map[string]string{"r1_g0_q0": "Lyon"}, correct: 0},
		{name: "unanswered", answers: map[string]string{}, correct: 0},
		{name: "both parts answered", answers: map[string]string{"r1_g0_q0": "PARIS", "r1_g0_q1": "madrid"}, correct: 2},
	}

	def := &model.ExamDefinition{
		PartType: model.PartReading,
		Reading:  &model.ReadingDefinition{Part1: readingDef(t).Reading.Part1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(def, Answers{User: tc.answers})
			if got.Correct != tc.correct {
				t.Fatalf("expected correct=%d, got=%d", tc.correct, got.Correct)
			}
			if got.Total != 2 {
				t.Fatalf("expected total=2, got=%d", got.Total)
			}
		})
	}
}

func TestEvaluateReorderPartialCredit(t *testing.T) {
	// Sentences served as keys [3,1,2] (example excluded), canonical [1,2,3].
	// Candidate order [1,3,2]: only position 0 matches.
	def := &model.ExamDefinition{
		PartType: model.PartReading,
		Reading:  &model.ReadingDefinition{Part2: readingDef(t).Reading.Part2},
	}
	ans := Answers{User: map[string]string{
		"r2_q0": "1",
		"r2_q1": "3",
		"r2_q2": "2",
	}}

	got := Evaluate(def, ans)
	if got.Correct != 1 || got.Total != 3 {
		t.Fatalf("expected 1/3, got %d/%d", got.Correct, got.Total)
	}
}

func TestEvaluateReorderDefaultsToServedOrder(t *testing.T) {
	def := &model.ExamDefinition{
		PartType: model.PartReading,
		Reading:  &model.ReadingDefinition{Part2: readingDef(t).Reading.Part2},
	}

	// Unanswered: candidate order is the as-served [3,1,2] vs canonical [1,2,3],
	// no position matches.
	got := Evaluate(def, Answers{User: map[string]string{}})
	if got.Correct != 0 || got.Total != 3 {
		t.Fatalf("expected 0/3, got %d/%d", got.Correct, got.Total)
	}

	// A partially answered map falls back per position.
	got = Evaluate(def, Answers{User: map[string]string{"r2_q1": "2"}})
	if got.Correct != 1 || got.Total != 3 {
		t.Fatalf("expected 1/3, got %d/%d", got.Correct, got.Total)
	}
}

func listeningDef() *model.ExamDefinition {
	return &model.ExamDefinition{
		PartType: model.PartListening,
		Listening: &model.ListeningDefinition{
			Part1: []model.QuestionGroup{
				{Questions: []model.ChoiceQuestion{
					{Options: []string{"x", "y", "z"}, CorrectAnswer: "2"},
				}},
			},
			Part2: &model.MatchingPart{
				Options: []string{"opt0", "opt1", "opt2"},
				People: []model.MatchPerson{
					{Label: "A", OptionIndexes: []int{0}},
					{Label: "B", OptionIndexes: []int{0, 1}},
					// option 2 has no correct label defined: excluded from scoring
				},
			},
			Part4: []model.QuestionGroup{
				{Questions: []model.ChoiceQuestion{
					{Options: []string{"x", "y"}, CorrectAnswer: "1"},
				}},
			},
		},
	}
}

func TestEvaluateListeningMatching(t *testing.T) {
	tests := []struct {
		name     string
		matching map[string]string
		correct  int
	}{
		{name: "one of several labels", matching: map[string]string{"o0": "B"}, correct: 1},
		{name: "other accepted label", matching: map[string]string{"o0": "a"}, correct: 1},
		{name: "wrong label", matching: map[string]string{"o0": "C"}, correct: 0},
		{name: "excluded option ignored", matching: map[string]string{"o2": "A"}, correct: 0},
		{name: "both scorable correct", matching: map[string]string{"o0": "A", "o1": "B"}, correct: 2},
	}

	def := listeningDef()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(def, Answers{Matching: tc.matching})
			if got.Correct != tc.correct {
				t.Fatalf("expected correct=%d, got=%d", tc.correct, got.Correct)
			}
			// part1 (1) + matching scorable options (2) + part4 (1)
			if got.Total != 4 {
				t.Fatalf("expected total=4, got=%d", got.Total)
			}
		})
	}
}

func TestEvaluateListeningIndexComparison(t *testing.T) {
	def := listeningDef()
	got := Evaluate(def, Answers{User: map[string]string{
		"l1_g0_q0": " 2 ",
		"l4_g0_q0": "1",
	}})
	if got.Correct != 2 {
		t.Fatalf("expected index answers to match as strings, got correct=%d", got.Correct)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	def := readingDef(t)
	ans := Answers{User: map[string]string{"r1_g0_q0": "paris", "r2_q0": "1"}}

	first := Evaluate(def, ans)
	second := Evaluate(def, ans)
	if first != second {
		t.Fatalf("expected identical results, got %+v then %+v", first, second)
	}
}

func TestEvaluateTotalIndependentOfAnswers(t *testing.T) {
	def := readingDef(t)
	empty := Evaluate(def, Answers{})
	full := Evaluate(def, Answers{User: map[string]string{
		"r1_g0_q0": "Paris",
		"r1_g0_q1": "nonsense",
		"r2_q0":    "1",
		"r4_g0_q0": "2",
	}})

	if empty.Total != full.Total {
		t.Fatalf("total must not depend on answers: %d vs %d", empty.Total, full.Total)
	}
	if empty.Total != 6 {
		t.Fatalf("expected total=6 (2 choice + 3 reorder + 1 numeric), got %d", empty.Total)
	}
}

func TestEvaluateSubjectivePartsScoreNothing(t *testing.T) {
	writing := &model.ExamDefinition{
		PartType: model.PartWriting,
		Writing:  &model.WritingDefinition{Tasks: []model.WritingTask{{Prompt: "Describe your city."}}},
	}
	speaking := &model.ExamDefinition{
		PartType: model.PartSpeaking,
		Speaking: &model.SpeakingDefinition{Parts: []model.SpeakingPart{{Part: 1, Questions: []model.SpeakingQuestion{{Prompt: "Introduce yourself."}}}}},
	}

	for _, def := range []*model.ExamDefinition{writing, speaking} {
		got := Evaluate(def, Answers{User: map[string]string{"w1_g0_q0": "text"}})
		if got.Correct != 0 || got.Total != 0 {
			t.Fatalf("expected 0/0 for %s, got %d/%d", def.PartType, got.Correct, got.Total)
		}
	}
}

func TestFormatScore(t *testing.T) {
	if s := (Result{Correct: 3, Total: 7}).FormatScore(); s != "3/7" {
		t.Fatalf("expected 3/7, got %s", s)
	}
}
