package model

import "testing"

func TestQuestionKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  QuestionKey
		want string
	}{
		{"reading part 1", QuestionKey{PartType: PartReading, Section: 1, Group: 0, Question: 3}, "r1_g0_q3"},
		{"reading reorder position", ReorderKey(2), "r2_q2"},
		{"reading part 4", QuestionKey{PartType: PartReading, Section: 4, Group: 1, Question: 0}, "r4_g1_q0"},
		{"listening part 3", QuestionKey{PartType: PartListening, Section: 3, Group: 2, Question: 1}, "l3_g2_q1"},
		{"writing task", QuestionKey{PartType: PartWriting, Section: 1, Group: 0, Question: 0}, "w1_g0_q0"},
		{"grammar vocab", QuestionKey{PartType: PartGrammarVocab, Group: 0, Question: 2}, "gv_g0_q2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseQuestionKeyRoundTrip(t *testing.T) {
	keys := []QuestionKey{
		{PartType: PartReading, Section: 1, Group: 0, Question: 3},
		{PartType: PartReading, Section: 3, Group: 1, Question: 2},
		ReorderKey(4),
		{PartType: PartListening, Section: 4, Group: 0, Question: 1},
		{PartType: PartGrammarVocab, Group: 1, Question: 5},
	}
	for _, want := range keys {
		got, err := ParseQuestionKey(want.PartType, want.String())
		if err != nil {
			t.Fatalf("ParseQuestionKey(%q): %v", want.String(), err)
		}
		if got != want {
			t.Fatalf("ParseQuestionKey(%q) = %+v, want %+v", want.String(), got, want)
		}
	}
}

func TestParseQuestionKeyRejectsMalformed(t *testing.T) {
	tests := []struct {
		partType PartType
		key      string
	}{
		{PartReading, "bogus"},
		{PartReading, "l1_g0_q0"},
		{PartGrammarVocab, "r1_g0_q0"},
		{PartListening, ""},
	}
	for _, tt := range tests {
		if _, err := ParseQuestionKey(tt.partType, tt.key); err == nil {
			t.Fatalf("ParseQuestionKey(%v, %q) accepted malformed key", tt.partType, tt.key)
		}
	}
}

func TestMatchKey(t *testing.T) {
	if got := MatchKey(0); got != "o0" {
		t.Fatalf("MatchKey(0) = %q", got)
	}
	if got := MatchKey(7); got != "o7" {
		t.Fatalf("MatchKey(7) = %q", got)
	}
}
