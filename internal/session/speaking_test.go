package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"lingua_exam_backend/internal/model"
)

func speakingContent(questionsPerPart int) string {
	parts := ""
	for p := 1; p <= 4; p++ {
		if p > 1 {
			parts += ","
		}
		qs := ""
		for q := 0; q < questionsPerPart; q++ {
			if q > 0 {
				qs += ","
			}
			qs += fmt.Sprintf(`{"prompt": "p%dq%d"}`, p, q)
		}
		parts += fmt.Sprintf(`{"part": %d, "instruction_audio": "audio/part%d.mp3", "questions": [%s]}`, p, p, qs)
	}
	return `{"parts": [` + parts + `]}`
}

func capturePhase(t *testing.T, s *Session) CapturePhase {
	t.Helper()
	st := s.State()
	if st.Capture == nil {
		t.Fatal("no capture state on speaking session")
	}
	return st.Capture.Phase
}

func TestSpeakingFullTraversal(t *testing.T) {
	s, clock, sub, not := newTestSession(t, model.PartSpeaking, speakingContent(2), 0)

	if got := capturePhase(t, s); got != PhaseInstruction {
		t.Fatalf("initial phase = %q, want instruction", got)
	}

	failAt := 4 // first question of part 3 loses its upload
	for i := 0; i < 8; i++ {
		part := i/2 + 1
		if i%2 == 0 {
			// part boundary: instruction audio finishes
			if got := capturePhase(t, s); got != PhaseInstruction {
				t.Fatalf("q%d: phase = %q, want instruction", i, got)
			}
			s.HandleEvent(PlaybackEndedEvent{})
		}
		if got := capturePhase(t, s); got != PhaseQuestion {
			t.Fatalf("q%d: phase = %q, want question", i, got)
		}

		s.HandleEvent(TickEvent{Now: clock.Advance(3 * time.Second)})
		if part == 4 {
			if got := capturePhase(t, s); got != PhaseThinking {
				t.Fatalf("q%d: phase = %q, want thinking", i, got)
			}
			s.HandleEvent(TickEvent{Now: clock.Advance(60 * time.Second)})
		}
		if got := capturePhase(t, s); got != PhaseRecording {
			t.Fatalf("q%d: phase = %q, want recording", i, got)
		}

		idx, err := s.BeginSpeakingUpload()
		if err != nil {
			t.Fatalf("q%d: BeginSpeakingUpload: %v", i, err)
		}
		if idx != i {
			t.Fatalf("q%d: upload index = %d", i, idx)
		}
		if i == failAt {
			s.CompleteSpeakingUpload(idx, "", errors.New("minio: connection reset"))
		} else {
			s.CompleteSpeakingUpload(idx, fmt.Sprintf("speaking/attempt-1/q%d.webm", i), nil)
		}
	}

	if got := capturePhase(t, s); got != PhaseCompleted {
		t.Fatalf("final phase = %q, want completed", got)
	}
	if len(not.byType(NoticeCompleted)) != 1 {
		t.Errorf("completed notices = %d, want 1", len(not.byType(NoticeCompleted)))
	}

	paths := s.AudioPaths()
	if len(paths) != 8 {
		t.Fatalf("audio paths = %d, want 8", len(paths))
	}
	for i, p := range paths {
		if i == failAt {
			if p != "" {
				t.Errorf("slot %d = %q, want gap", i, p)
			}
			continue
		}
		if p == "" {
			t.Errorf("slot %d empty", i)
		}
	}

	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.saved[0].Score != "" {
		t.Errorf("speaking score = %q, want empty", sub.saved[0].Score)
	}
}

func TestSpeakingSubmitRequiresCompletion(t *testing.T) {
	s, _, _, _ := newTestSession(t, model.PartSpeaking, speakingContent(1), 0)

	if err := s.Submit(); !errors.Is(err, ErrCaptureNotFinished) {
		t.Fatalf("Submit mid-capture = %v, want ErrCaptureNotFinished", err)
	}
}

func TestSpeakingThinkingLastsSixtySeconds(t *testing.T) {
	content := `{"parts": [{"part": 4, "questions": [{"prompt": "monologue"}]}]}`
	s, clock, _, not := newTestSession(t, model.PartSpeaking, content, 0)

	s.HandleEvent(PlaybackEndedEvent{})
	s.HandleEvent(TickEvent{Now: clock.Advance(3 * time.Second)})
	if got := capturePhase(t, s); got != PhaseThinking {
		t.Fatalf("phase = %q, want thinking", got)
	}

	s.HandleEvent(TickEvent{Now: clock.Advance(59 * time.Second)})
	if got := capturePhase(t, s); got != PhaseThinking {
		t.Fatalf("phase at 59s = %q, want thinking", got)
	}

	s.HandleEvent(TickEvent{Now: clock.Advance(time.Second)})
	if got := capturePhase(t, s); got != PhaseRecording {
		t.Fatalf("phase at 60s = %q, want recording", got)
	}
	if len(not.byType(NoticeCue)) != 1 {
		t.Errorf("cue notices = %d, want 1", len(not.byType(NoticeCue)))
	}

	starts := not.byType(NoticeStartRecording)
	if len(starts) != 1 {
		t.Fatalf("start_recording notices = %d, want 1", len(starts))
	}
	data := starts[0].Data.(map[string]interface{})
	if data["seconds"] != 120 {
		t.Errorf("part 4 recording window = %v, want 120", data["seconds"])
	}
}

func TestSpeakingRecordingStopRace(t *testing.T) {
	content := `{"parts": [{"part": 1, "questions": [{"prompt": "hello"}]}]}`
	s, clock, _, _ := newTestSession(t, model.PartSpeaking, content, 0)

	s.HandleEvent(PlaybackEndedEvent{})
	s.HandleEvent(TickEvent{Now: clock.Advance(3 * time.Second)})
	if got := capturePhase(t, s); got != PhaseRecording {
		t.Fatalf("phase = %q, want recording", got)
	}

	// client stop races the server deadline; first trigger wins, duplicates and
	// the late deadline are no-ops
	s.HandleEvent(RecordingStoppedEvent{})
	if got := capturePhase(t, s); got != PhaseUpload {
		t.Fatalf("phase = %q, want upload", got)
	}
	s.HandleEvent(RecordingStoppedEvent{})
	if got := capturePhase(t, s); got != PhaseUpload {
		t.Fatalf("phase after duplicate stop = %q, want upload", got)
	}

	// the blob never arrives: the grace window expires and a gap is recorded
	s.HandleEvent(TickEvent{Now: clock.Advance(15 * time.Second)})
	if got := capturePhase(t, s); got != PhaseCompleted {
		t.Fatalf("phase after upload grace = %q, want completed", got)
	}
	if paths := s.AudioPaths(); paths[0] != "" {
		t.Errorf("slot 0 = %q, want gap", paths[0])
	}
}

func TestSpeakingCloseDiscardsLateUpload(t *testing.T) {
	content := `{"parts": [{"part": 1, "questions": [{"prompt": "one"}, {"prompt": "two"}]}]}`
	s, clock, _, _ := newTestSession(t, model.PartSpeaking, content, 0)

	s.HandleEvent(PlaybackEndedEvent{})
	s.HandleEvent(TickEvent{Now: clock.Advance(3 * time.Second)})
	if got := capturePhase(t, s); got != PhaseRecording {
		t.Fatalf("phase = %q, want recording", got)
	}
	s.HandleEvent(RecordingStoppedEvent{})
	idx, err := s.BeginSpeakingUpload()
	if err != nil {
		t.Fatalf("BeginSpeakingUpload: %v", err)
	}

	s.Close()

	// the storage write resolves after teardown; nothing may land
	s.CompleteSpeakingUpload(idx, "speaking/attempt-1/q0.webm", nil)
	if paths := s.AudioPaths(); paths[idx] != "" {
		t.Errorf("slot %d = %q, want discarded", idx, paths[idx])
	}

	// late ticks are dropped with the session
	s.HandleEvent(TickEvent{Now: clock.Advance(time.Minute)})
	if got := s.State().Phase; got != model.AttemptAbandoned {
		t.Errorf("phase = %q, want abandoned", got)
	}
}

func TestSpeakingDeviceFailureSkipsQuestion(t *testing.T) {
	content := `{"parts": [{"part": 1, "questions": [{"prompt": "one"}, {"prompt": "two"}]}]}`
	s, clock, _, _ := newTestSession(t, model.PartSpeaking, content, 0)

	s.HandleEvent(PlaybackEndedEvent{})
	s.HandleEvent(TickEvent{Now: clock.Advance(3 * time.Second)})
	s.HandleEvent(DeviceFailedEvent{})

	st := s.State()
	if st.Capture.Question != 1 || st.Capture.Phase != PhaseQuestion {
		t.Fatalf("after device failure: question %d phase %q, want question 1 in lead-in",
			st.Capture.Question, st.Capture.Phase)
	}
	if paths := s.AudioPaths(); paths[0] != "" {
		t.Errorf("slot 0 = %q, want gap", paths[0])
	}
}

func TestSpeakingQuestionAudioPlayback(t *testing.T) {
	content := `{"parts": [{"part": 2, "questions": [{"prompt": "describe", "audio_path": "audio/q1.mp3"}]}]}`
	s, clock, _, not := newTestSession(t, model.PartSpeaking, content, 0)

	s.HandleEvent(PlaybackEndedEvent{})
	s.HandleEvent(TickEvent{Now: clock.Advance(3 * time.Second)})

	// lead-in elapsed: machine asks the client to play the prompt and waits
	if got := capturePhase(t, s); got != PhaseQuestion {
		t.Fatalf("phase = %q, want question", got)
	}
	plays := not.byType(NoticePlay)
	if len(plays) != 2 { // instruction + question prompt
		t.Fatalf("play notices = %d, want 2", len(plays))
	}

	// ticks while waiting on playback change nothing
	s.HandleEvent(TickEvent{Now: clock.Advance(10 * time.Second)})
	if got := capturePhase(t, s); got != PhaseQuestion {
		t.Fatalf("phase while awaiting playback = %q, want question", got)
	}

	s.HandleEvent(PlaybackEndedEvent{})
	if got := capturePhase(t, s); got != PhaseRecording {
		t.Fatalf("phase after prompt playback = %q, want recording", got)
	}

	starts := not.byType(NoticeStartRecording)
	if len(starts) != 1 {
		t.Fatalf("start_recording notices = %d, want 1", len(starts))
	}
	if data := starts[0].Data.(map[string]interface{}); data["seconds"] != 45 {
		t.Errorf("part 2 recording window = %v, want 45", data["seconds"])
	}
}

func TestSpeakingUploadOutsideRecordingRejected(t *testing.T) {
	s, _, _, _ := newTestSession(t, model.PartSpeaking, speakingContent(1), 0)

	if _, err := s.BeginSpeakingUpload(); !errors.Is(err, ErrAudioNotExpected) {
		t.Fatalf("BeginSpeakingUpload during instruction = %v, want ErrAudioNotExpected", err)
	}
}
