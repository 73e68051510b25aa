package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseDefinitionRejectsBadContent(t *testing.T) {
	tests := []struct {
		name     string
		partType PartType
		raw      string
	}{
		{"unknown part type", PartType("math"), `{}`},
		{"empty content", PartReading, ``},
		{"not json", PartListening, `not-json`},
		{"reading without parts", PartReading, `{}`},
		{"writing without tasks", PartWriting, `{"tasks":[]}`},
		{"speaking part out of range", PartSpeaking, `{"parts":[{"part":5,"questions":[{"prompt":"x"}]}]}`},
		{"speaking part without questions", PartSpeaking, `{"parts":[{"part":1,"questions":[]}]}`},
		{"grammar vocab without groups", PartGrammarVocab, `{"groups":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition(tt.partType, json.RawMessage(tt.raw))
			if !errors.Is(err, ErrUnsupportedDefinition) {
				t.Fatalf("expected ErrUnsupportedDefinition, got %v", err)
			}
		})
	}
}

func TestParseDefinitionReading(t *testing.T) {
	raw := json.RawMessage(`{
		"part1": [{"passage": "p", "questions": [{"prompt": "q1", "correct_answer": "a"}]}],
		"part2": {"sentences": [{"key": 1, "text": "s1", "is_example": true}, {"key": 2, "text": "s2"}]}
	}`)
	def, err := ParseDefinition(PartReading, raw)
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}
	if def.Reading == nil {
		t.Fatal("reading variant not set")
	}
	if len(def.Reading.Part1) != 1 || def.Reading.Part2 == nil {
		t.Fatalf("unexpected shape: %+v", def.Reading)
	}
	if string(def.Raw) != string(raw) {
		t.Fatal("raw content not retained")
	}
}

func TestTotalSpeakingQuestions(t *testing.T) {
	raw := json.RawMessage(`{"parts": [
		{"part": 1, "questions": [{"prompt": "a"}, {"prompt": "b"}]},
		{"part": 4, "questions": [{"prompt": "c"}]}
	]}`)
	def, err := ParseDefinition(PartSpeaking, raw)
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}
	if got := def.TotalSpeakingQuestions(); got != 3 {
		t.Fatalf("TotalSpeakingQuestions = %d, want 3", got)
	}
}

func TestCandidateViewRedactsAnswers(t *testing.T) {
	raw := json.RawMessage(`{
		"part1": [{"audio_path": "a.mp3", "questions": [{"prompt": "q1", "options": ["x","y"], "correct_answer": "2"}]}],
		"part2": {"options": ["o1","o2"], "people": [{"label": "A", "option_indexes": [0,1]}]}
	}`)
	def, err := ParseDefinition(PartListening, raw)
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}

	view, err := def.CandidateView()
	if err != nil {
		t.Fatalf("CandidateView: %v", err)
	}
	s := string(view)
	if strings.Contains(s, "correct_answer") || strings.Contains(s, "option_indexes") {
		t.Fatalf("answer key leaked into candidate view: %s", s)
	}
	if !strings.Contains(s, `"prompt":"q1"`) || !strings.Contains(s, `"label":"A"`) {
		t.Fatalf("candidate view dropped question content: %s", s)
	}

	// the stored definition is untouched
	if def.Listening.Part1[0].Questions[0].CorrectAnswer != "2" {
		t.Fatal("redaction mutated the parsed definition")
	}
	if len(def.Listening.Part2.People[0].OptionIndexes) != 2 {
		t.Fatal("redaction mutated the matching part")
	}
}

func TestCandidateViewKeepsSentenceKeys(t *testing.T) {
	raw := json.RawMessage(`{"part2": {"sentences": [{"key": 1, "text": "s1", "is_example": true}, {"key": 3, "text": "s3"}, {"key": 2, "text": "s2"}]}}`)
	def, err := ParseDefinition(PartReading, raw)
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}
	view, err := def.CandidateView()
	if err != nil {
		t.Fatalf("CandidateView: %v", err)
	}
	if !strings.Contains(string(view), `"key":3`) {
		t.Fatalf("sentence keys must survive redaction: %s", view)
	}
}
