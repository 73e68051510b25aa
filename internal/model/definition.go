package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type PartType string

const (
	PartReading      PartType = "reading"
	PartListening    PartType = "listening"
	PartWriting      PartType = "writing"
	PartSpeaking     PartType = "speaking"
	PartGrammarVocab PartType = "g_v"
)

var ErrUnsupportedDefinition = errors.New("exam definition missing or malformed for part type")

func (p PartType) Valid() bool {
	switch p {
	case PartReading, PartListening, PartWriting, PartSpeaking, PartGrammarVocab:
		return true
	}
	return false
}

// ChoiceQuestion is a single-choice question. CorrectAnswer is either the answer
// text (reading 1/3, grammar-vocab) or a 1-based option index rendered as a string
// (listening 1/3 and the grouped numeric parts), depending on which part the
// question belongs to.
type ChoiceQuestion struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

type QuestionGroup struct {
	Instruction string           `json:"instruction,omitempty"`
	Passage     string           `json:"passage,omitempty"`
	AudioPath   string           `json:"audio_path,omitempty"`
	Questions   []ChoiceQuestion `json:"questions"`
}

// Sentence belongs to the reading reordering part. Key gives the canonical
// position (ascending); the example sentence is shown first and never scored.
type Sentence struct {
	Key       int    `json:"key"`
	Text      string `json:"text"`
	IsExample bool   `json:"is_example,omitempty"`
}

type ReorderPart struct {
	Instruction string     `json:"instruction,omitempty"`
	Sentences   []Sentence `json:"sentences"`
}

// MatchPerson defines which options a person label (A-D) is a correct answer
// for, by 0-based option index.
type MatchPerson struct {
	Label         string `json:"label"`
	OptionIndexes []int  `json:"option_indexes,omitempty"`
}

type MatchingPart struct {
	AudioPath string        `json:"audio_path,omitempty"`
	Options   []string      `json:"options"`
	People    []MatchPerson `json:"people"`
}

type ReadingDefinition struct {
	Part1 []QuestionGroup `json:"part1"`
	Part2 *ReorderPart    `json:"part2"`
	Part3 []QuestionGroup `json:"part3"`
	Part4 []QuestionGroup `json:"part4"`
}

type ListeningDefinition struct {
	Part1 []QuestionGroup `json:"part1"`
	Part2 *MatchingPart   `json:"part2"`
	Part3 []QuestionGroup `json:"part3"`
	Part4 []QuestionGroup `json:"part4"`
}

type WritingTask struct {
	Prompt   string `json:"prompt"`
	MinWords int    `json:"min_words,omitempty"`
}

type WritingDefinition struct {
	Tasks []WritingTask `json:"tasks"`
}

type SpeakingQuestion struct {
	Prompt    string `json:"prompt"`
	AudioPath string `json:"audio_path,omitempty"`
}

type SpeakingPart struct {
	Part             int                `json:"part"` // 1..4
	InstructionAudio string             `json:"instruction_audio,omitempty"`
	Questions        []SpeakingQuestion `json:"questions"`
}

type SpeakingDefinition struct {
	Parts []SpeakingPart `json:"parts"`
}

type GrammarVocabDefinition struct {
	Groups []QuestionGroup `json:"groups"`
}

// ExamDefinition is the resolved, immutable snapshot of one exam part. Exactly
// one variant pointer is set, matching PartType; the raw JSON is retained so
// submissions can embed the exact content that was served.
type ExamDefinition struct {
	PartType     PartType
	Reading      *ReadingDefinition
	Listening    *ListeningDefinition
	Writing      *WritingDefinition
	Speaking     *SpeakingDefinition
	GrammarVocab *GrammarVocabDefinition

	Raw json.RawMessage
}

// ParseDefinition resolves the stored content JSON into the variant for the part
// type, once at load time. Individual part arrays may be absent (the matching
// part of a listening exam, say); shape problems inside a part surface when that
// part is scored or rendered, not as a parse failure. A definition with nothing
// usable at all is rejected.
func ParseDefinition(partType PartType, raw json.RawMessage) (*ExamDefinition, error) {
	if !partType.Valid() {
		return nil, fmt.Errorf("%w: unknown part type %q", ErrUnsupportedDefinition, partType)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrUnsupportedDefinition)
	}

	def := &ExamDefinition{PartType: partType, Raw: raw}

	switch partType {
	case PartReading:
		var d ReadingDefinition
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedDefinition, err)
		}
		if len(d.Part1) == 0 && d.Part2 == nil && len(d.Part3) == 0 && len(d.Part4) == 0 {
			return nil, fmt.Errorf("%w: reading definition has no parts", ErrUnsupportedDefinition)
		}
		def.Reading = &d
	case PartListening:
		var d ListeningDefinition
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedDefinition, err)
		}
		if len(d.Part1) == 0 && d.Part2 == nil && len(d.Part3) == 0 && len(d.Part4) == 0 {
			return nil, fmt.Errorf("%w: listening definition has no parts", ErrUnsupportedDefinition)
		}
		def.Listening = &d
	case PartWriting:
		var d WritingDefinition
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedDefinition, err)
		}
		if len(d.Tasks) == 0 {
			return nil, fmt.Errorf("%w: writing definition has no tasks", ErrUnsupportedDefinition)
		}
		def.Writing = &d
	case PartSpeaking:
		var d SpeakingDefinition
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedDefinition, err)
		}
		if len(d.Parts) == 0 {
			return nil, fmt.Errorf("%w: speaking definition has no parts", ErrUnsupportedDefinition)
		}
		for _, p := range d.Parts {
			if p.Part < 1 || p.Part > 4 {
				return nil, fmt.Errorf("%w: speaking part number %d out of range", ErrUnsupportedDefinition, p.Part)
			}
			if len(p.Questions) == 0 {
				return nil, fmt.Errorf("%w: speaking part %d has no questions", ErrUnsupportedDefinition, p.Part)
			}
		}
		def.Speaking = &d
	case PartGrammarVocab:
		var d GrammarVocabDefinition
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedDefinition, err)
		}
		if len(d.Groups) == 0 {
			return nil, fmt.Errorf("%w: grammar-vocab definition has no groups", ErrUnsupportedDefinition)
		}
		def.GrammarVocab = &d
	}

	return def, nil
}

// CandidateView renders the definition with answer keys redacted for delivery
// to a candidate: correct answers and matching indexes never leave the server.
// Reordering sentence keys stay, they are the identifiers answers are written
// in.
func (d *ExamDefinition) CandidateView() (json.RawMessage, error) {
	redactGroups := func(groups []QuestionGroup) []QuestionGroup {
		out := make([]QuestionGroup, len(groups))
		for i, g := range groups {
			qs := make([]ChoiceQuestion, len(g.Questions))
			for j, q := range g.Questions {
				q.CorrectAnswer = ""
				qs[j] = q
			}
			g.Questions = qs
			out[i] = g
		}
		return out
	}

	switch d.PartType {
	case PartReading:
		v := *d.Reading
		v.Part1 = redactGroups(v.Part1)
		v.Part3 = redactGroups(v.Part3)
		v.Part4 = redactGroups(v.Part4)
		return json.Marshal(v)
	case PartListening:
		v := *d.Listening
		v.Part1 = redactGroups(v.Part1)
		v.Part3 = redactGroups(v.Part3)
		v.Part4 = redactGroups(v.Part4)
		if v.Part2 != nil {
			p2 := *v.Part2
			people := make([]MatchPerson, len(p2.People))
			for i, person := range p2.People {
				person.OptionIndexes = nil
				people[i] = person
			}
			p2.People = people
			v.Part2 = &p2
		}
		return json.Marshal(v)
	case PartGrammarVocab:
		v := *d.GrammarVocab
		v.Groups = redactGroups(v.Groups)
		return json.Marshal(v)
	}
	// writing and speaking definitions carry no answer key
	return d.Raw, nil
}

// TotalSpeakingQuestions counts questions across all speaking parts in traversal
// order; it sizes the audio reference list so index alignment survives gaps.
func (d *ExamDefinition) TotalSpeakingQuestions() int {
	if d.Speaking == nil {
		return 0
	}
	n := 0
	for _, p := range d.Speaking.Parts {
		n += len(p.Questions)
	}
	return n
}
