package model

import (
	"fmt"
	"strconv"
	"strings"
)

// QuestionKey locates a question inside one exam part: section is the part
// number within the exam part (reading part 1..4 and so on), group and question
// are 0-based indices in traversal order. The composite replaces the stringly
// typed keys of older clients while keeping their canonical string form on the
// wire.
type QuestionKey struct {
	PartType PartType `json:"partType"`
	Section  int      `json:"section"`
	Group    int      `json:"group"`
	Question int      `json:"question"`
}

func partPrefix(p PartType) string {
	switch p {
	case PartReading:
		return "r"
	case PartListening:
		return "l"
	case PartWriting:
		return "w"
	case PartSpeaking:
		return "s"
	case PartGrammarVocab:
		return "gv"
	}
	return "x"
}

// String renders the canonical wire form, e.g. "r1_g0_q3". The reading
// reordering section keys by position only ("r2_q1"), and grammar-vocab has no
// section component ("gv_g0_q2").
func (k QuestionKey) String() string {
	if k.PartType == PartGrammarVocab {
		return fmt.Sprintf("gv_g%d_q%d", k.Group, k.Question)
	}
	if k.PartType == PartReading && k.Section == 2 {
		return fmt.Sprintf("r2_q%d", k.Question)
	}
	return fmt.Sprintf("%s%d_g%d_q%d", partPrefix(k.PartType), k.Section, k.Group, k.Question)
}

// ParseQuestionKey resolves a canonical wire key back into its composite form.
func ParseQuestionKey(partType PartType, s string) (QuestionKey, error) {
	var group, question int

	if partType == PartGrammarVocab {
		if _, err := fmt.Sscanf(s, "gv_g%d_q%d", &group, &question); err != nil {
			return QuestionKey{}, fmt.Errorf("malformed answer key %q", s)
		}
		return QuestionKey{PartType: partType, Group: group, Question: question}, nil
	}

	prefix := partPrefix(partType)
	var section int
	if partType == PartReading {
		if _, err := fmt.Sscanf(s, "r2_q%d", &question); err == nil && !strings.Contains(s, "_g") {
			return ReorderKey(question), nil
		}
	}
	if _, err := fmt.Sscanf(s, prefix+"%d_g%d_q%d", &section, &group, &question); err != nil {
		return QuestionKey{}, fmt.Errorf("malformed answer key %q", s)
	}
	return QuestionKey{PartType: partType, Section: section, Group: group, Question: question}, nil
}

// ReorderKey addresses position pos of the reading reordering part.
func ReorderKey(pos int) QuestionKey {
	return QuestionKey{PartType: PartReading, Section: 2, Question: pos}
}

// MatchKey addresses one option of the listening matching part; its answers
// travel in a separate map (userPart2Answers) on the wire.
func MatchKey(optionIndex int) string {
	return "o" + strconv.Itoa(optionIndex)
}
