package session

import (
	"time"

	"lingua_exam_backend/internal/model"
)

// CapturePhase names a state of the speaking capture machine.
type CapturePhase string

const (
	PhaseInstruction CapturePhase = "instruction"
	PhaseQuestion    CapturePhase = "question"
	PhaseThinking    CapturePhase = "thinking"
	PhaseRecording   CapturePhase = "recording"
	PhaseUpload      CapturePhase = "upload"
	PhaseCompleted   CapturePhase = "completed"
)

const (
	questionLeadIn   = 3 * time.Second
	thinkingDuration = 60 * time.Second

	// uploadGrace bounds how long the machine waits for the client to hand over
	// the captured audio before it records a gap and moves on.
	uploadGrace = 15 * time.Second
)

// recordingDuration is fixed by the exam format per part number.
func recordingDuration(part int) time.Duration {
	switch part {
	case 1:
		return 30 * time.Second
	case 4:
		return 120 * time.Second
	default:
		return 45 * time.Second
	}
}

// captureMachine sequences a candidate through the speaking parts:
// instruction -> question -> [thinking] -> recording -> upload -> advance.
// It is owned by a Session and mutated only under the session lock; emit pushes
// notices out without blocking.
//
// audioPaths is preallocated to the total question count and filled in
// traversal order; a failed upload leaves its slot empty so index alignment
// with the exam questions is preserved for graders.
type captureMachine struct {
	parts []model.SpeakingPart

	part     int // index into parts
	question int // index into parts[part].Questions
	base     int // traversal offset of the current part's first question

	phase            CapturePhase
	deadline         time.Time // zero when waiting on a client event
	awaitingPlayback bool

	audioPaths []string
	uploaded   int

	emit func(Notice)
}

func newCaptureMachine(def *model.ExamDefinition, emit func(Notice)) *captureMachine {
	return &captureMachine{
		parts:      def.Speaking.Parts,
		audioPaths: make([]string, def.TotalSpeakingQuestions()),
		emit:       emit,
	}
}

func (m *captureMachine) partNumber() int {
	return m.parts[m.part].Part
}

func (m *captureMachine) currentQuestion() model.SpeakingQuestion {
	return m.parts[m.part].Questions[m.question]
}

// traversalIndex is the current question's position across all parts.
func (m *captureMachine) traversalIndex() int {
	return m.base + m.question
}

func (m *captureMachine) notifyPhase(now time.Time) {
	var timeLeft int
	if !m.deadline.IsZero() {
		timeLeft = remainingSeconds(m.deadline, now)
	}
	m.emit(Notice{Type: NoticePhase, Data: map[string]interface{}{
		"part":     m.partNumber(),
		"question": m.question,
		"phase":    m.phase,
		"timeLeft": timeLeft,
	}})
}

// start enters the first part's instruction phase.
func (m *captureMachine) start(now time.Time) {
	m.enterPart(now)
}

func (m *captureMachine) enterPart(now time.Time) {
	m.phase = PhaseInstruction
	m.awaitingPlayback = true
	m.deadline = time.Time{}
	m.emit(Notice{Type: NoticePlay, Data: map[string]interface{}{
		"kind":      "instruction",
		"part":      m.partNumber(),
		"audioPath": m.parts[m.part].InstructionAudio,
	}})
	m.notifyPhase(now)
}

func (m *captureMachine) enterQuestion(now time.Time) {
	m.phase = PhaseQuestion
	m.awaitingPlayback = false
	m.deadline = now.Add(questionLeadIn)
	m.notifyPhase(now)
}

// onPlaybackDone handles both playback end and playback error; either way the
// machine moves on.
func (m *captureMachine) onPlaybackDone(now time.Time) {
	switch {
	case m.phase == PhaseInstruction:
		m.enterQuestion(now)
	case m.phase == PhaseQuestion && m.awaitingPlayback:
		m.afterQuestionAudio(now)
	}
}

func (m *captureMachine) afterQuestionAudio(now time.Time) {
	if m.partNumber() == 4 {
		m.phase = PhaseThinking
		m.awaitingPlayback = false
		m.deadline = now.Add(thinkingDuration)
		m.notifyPhase(now)
		return
	}
	m.startRecording(now)
}

func (m *captureMachine) startRecording(now time.Time) {
	d := recordingDuration(m.partNumber())
	m.phase = PhaseRecording
	m.awaitingPlayback = false
	m.deadline = now.Add(d)
	m.emit(Notice{Type: NoticeStartRecording, Data: map[string]interface{}{
		"part":     m.partNumber(),
		"question": m.question,
		"seconds":  int(d / time.Second),
	}})
	m.notifyPhase(now)
}

// onTick advances any deadline-driven phase. Deadlines are compared against
// now, so a burst of late ticks collapses into one transition.
func (m *captureMachine) onTick(now time.Time) {
	if m.deadline.IsZero() || now.Before(m.deadline) {
		if !m.deadline.IsZero() {
			m.notifyPhase(now)
		}
		return
	}

	switch m.phase {
	case PhaseQuestion:
		if m.awaitingPlayback {
			return
		}
		// lead-in elapsed: play the prompt if the question has one
		if q := m.currentQuestion(); q.AudioPath != "" {
			m.awaitingPlayback = true
			m.deadline = time.Time{}
			m.emit(Notice{Type: NoticePlay, Data: map[string]interface{}{
				"kind":      "question",
				"part":      m.partNumber(),
				"question":  m.question,
				"audioPath": q.AudioPath,
			}})
			return
		}
		m.afterQuestionAudio(now)
	case PhaseThinking:
		m.emit(Notice{Type: NoticeCue})
		m.startRecording(now)
	case PhaseRecording:
		m.emit(Notice{Type: NoticeStopRecording})
		m.enterUpload(now)
	case PhaseUpload:
		// client never delivered the blob; leave a gap and move on
		m.advance(now)
	}
}

// onRecordingStopped is the client-side stop racing the duration deadline;
// only the first trigger transitions.
func (m *captureMachine) onRecordingStopped(now time.Time) {
	if m.phase != PhaseRecording {
		return
	}
	m.enterUpload(now)
}

func (m *captureMachine) onDeviceFailed(now time.Time) {
	if m.phase != PhaseRecording && m.phase != PhaseUpload {
		return
	}
	m.advance(now)
}

func (m *captureMachine) enterUpload(now time.Time) {
	m.phase = PhaseUpload
	m.deadline = now.Add(uploadGrace)
	m.notifyPhase(now)
}

// beginUpload accepts the captured audio for the current question. It returns
// the traversal index the eventual storage path must land at, and advances the
// machine immediately: progression is gated on the upload being dispatched,
// never on it completing.
func (m *captureMachine) beginUpload(now time.Time) (int, bool) {
	if m.phase != PhaseRecording && m.phase != PhaseUpload {
		return 0, false
	}
	idx := m.traversalIndex()
	m.advance(now)
	return idx, true
}

// completeUpload lands an upload result at its traversal index. Failures leave
// the gap in place.
func (m *captureMachine) completeUpload(idx int, path string, err error) {
	if err != nil || path == "" {
		return
	}
	if idx < 0 || idx >= len(m.audioPaths) {
		return
	}
	if m.audioPaths[idx] == "" {
		m.audioPaths[idx] = path
		m.uploaded++
	}
}

func (m *captureMachine) advance(now time.Time) {
	if m.question+1 < len(m.parts[m.part].Questions) {
		m.question++
		m.enterQuestion(now)
		return
	}

	m.base += len(m.parts[m.part].Questions)
	if m.part+1 < len(m.parts) {
		m.part++
		m.question = 0
		m.enterPart(now)
		return
	}

	m.phase = PhaseCompleted
	m.deadline = time.Time{}
	m.emit(Notice{Type: NoticeCompleted, Data: map[string]interface{}{
		"uploaded": m.uploaded,
		"total":    len(m.audioPaths),
	}})
}

func (m *captureMachine) completed() bool {
	return m.phase == PhaseCompleted
}

// paths returns a copy of the audio reference list in traversal order,
// including gaps.
func (m *captureMachine) paths() []string {
	out := make([]string, len(m.audioPaths))
	copy(out, m.audioPaths)
	return out
}
