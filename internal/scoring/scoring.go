// Package scoring grades the objective exam part types from a raw answer
// snapshot. Evaluation is pure: no I/O, no clock, safe to call repeatedly both
// for live display and for read-only review after submission.
package scoring

import (
	"sort"
	"strconv"
	"strings"

	"lingua_exam_backend/internal/model"
)

// Answers is a point-in-time snapshot of the candidate's answer store. User is
// keyed by canonical question-key strings; Matching holds the listening
// person-matching picks keyed by match keys.
type Answers struct {
	User     map[string]string
	Matching map[string]string
}

type Result struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Evaluate grades every scorable question the definition contains. Correct and
// total are computed in a single traversal with identical exclusion rules, so
// the pair is internally consistent by construction. Writing and speaking have
// no objective questions and score 0/0.
func Evaluate(def *model.ExamDefinition, ans Answers) Result {
	var r Result
	if def == nil {
		return r
	}

	switch def.PartType {
	case model.PartReading:
		if def.Reading == nil {
			return r
		}
		scoreChoiceGroups(&r, ans, model.PartReading, 1, def.Reading.Part1)
		scoreReorder(&r, ans, def.Reading.Part2)
		scoreChoiceGroups(&r, ans, model.PartReading, 3, def.Reading.Part3)
		scoreChoiceGroups(&r, ans, model.PartReading, 4, def.Reading.Part4)
	case model.PartListening:
		if def.Listening == nil {
			return r
		}
		scoreChoiceGroups(&r, ans, model.PartListening, 1, def.Listening.Part1)
		scoreMatching(&r, ans, def.Listening.Part2)
		scoreChoiceGroups(&r, ans, model.PartListening, 3, def.Listening.Part3)
		scoreChoiceGroups(&r, ans, model.PartListening, 4, def.Listening.Part4)
	case model.PartGrammarVocab:
		if def.GrammarVocab == nil {
			return r
		}
		for g, group := range def.GrammarVocab.Groups {
			for q, question := range group.Questions {
				key := model.QuestionKey{PartType: model.PartGrammarVocab, Group: g, Question: q}
				r.Total++
				if answerMatches(ans.User[key.String()], question.CorrectAnswer) {
					r.Correct++
				}
			}
		}
	}

	return r
}

// answerMatches compares the stored answer with the correct-answer field:
// trimmed, case-insensitive. Index-based parts store 1-based indices on both
// sides, so the same string comparison covers them.
func answerMatches(given, correct string) bool {
	given = strings.TrimSpace(given)
	correct = strings.TrimSpace(correct)
	if given == "" || correct == "" {
		return false
	}
	return strings.EqualFold(given, correct)
}

func scoreChoiceGroups(r *Result, ans Answers, pt model.PartType, section int, groups []model.QuestionGroup) {
	for g, group := range groups {
		for q, question := range group.Questions {
			key := model.QuestionKey{PartType: pt, Section: section, Group: g, Question: q}
			r.Total++
			if answerMatches(ans.User[key.String()], question.CorrectAnswer) {
				r.Correct++
			}
		}
	}
}

// scoreReorder grades the free reordering part position by position. The
// canonical order is ascending by sentence key with the example excluded; the
// candidate's order defaults to the as-served order for unanswered positions.
// Each position earns credit independently.
func scoreReorder(r *Result, ans Answers, part *model.ReorderPart) {
	if part == nil {
		return
	}

	var served []int
	for _, s := range part.Sentences {
		if s.IsExample {
			continue
		}
		served = append(served, s.Key)
	}
	if len(served) == 0 {
		return
	}

	canonical := make([]int, len(served))
	copy(canonical, served)
	sort.Ints(canonical)

	for i := range served {
		key := model.ReorderKey(i)
		given := strings.TrimSpace(ans.User[key.String()])
		if given == "" {
			given = strconv.Itoa(served[i])
		}
		r.Total++
		if given == strconv.Itoa(canonical[i]) {
			r.Correct++
		}
	}
}

// scoreMatching grades the listening person-matching part. An option counts
// correct when the candidate's picked label is among the labels defined correct
// for it; options no person maps to are excluded from both counts.
func scoreMatching(r *Result, ans Answers, part *model.MatchingPart) {
	if part == nil {
		return
	}

	correctLabels := make(map[int][]string)
	for _, person := range part.People {
		for _, idx := range person.OptionIndexes {
			correctLabels[idx] = append(correctLabels[idx], person.Label)
		}
	}

	for i := range part.Options {
		labels := correctLabels[i]
		if len(labels) == 0 {
			continue
		}
		r.Total++
		given := strings.TrimSpace(ans.Matching[model.MatchKey(i)])
		for _, l := range labels {
			if strings.EqualFold(given, l) {
				r.Correct++
				break
			}
		}
	}
}

// FormatScore renders the "<correct>/<total>" score string carried on
// reading/listening submissions.
func (r Result) FormatScore() string {
	return strconv.Itoa(r.Correct) + "/" + strconv.Itoa(r.Total)
}
