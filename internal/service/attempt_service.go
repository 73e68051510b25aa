package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"lingua_exam_backend/internal/config"
	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/repository"
	"lingua_exam_backend/internal/scoring"
	"lingua_exam_backend/internal/session"
	"lingua_exam_backend/internal/util"
	"lingua_exam_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptService owns the lifecycle of attempt sessions: start, live answer
// writes, client events from the WebSocket, speaking uploads, submission and
// teardown. One session per attempt, one in-flight attempt per user per exam.
type AttemptService struct {
	AttemptRepo    *repository.AttemptRepository
	SubmissionRepo *repository.SubmissionRepository
	ExamRepo       *repository.ExamRepository
	Sessions       *session.Manager
	Streams        *StreamHub
	Audio          *AudioService
	Redis          *redis.Client
	Cfg            *config.Config
	Logger         *zap.Logger
}

func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	submissionRepo *repository.SubmissionRepository,
	examRepo *repository.ExamRepository,
	sessions *session.Manager,
	streams *StreamHub,
	audio *AudioService,
	rdb *redis.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *AttemptService {
	return &AttemptService{
		AttemptRepo:    attemptRepo,
		SubmissionRepo: submissionRepo,
		ExamRepo:       examRepo,
		Sessions:       sessions,
		Streams:        streams,
		Audio:          audio,
		Redis:          rdb,
		Cfg:            cfg,
		Logger:         logger,
	}
}

func presenceKey(userID, examID uint) string {
	return fmt.Sprintf("attempt:inflight:%d:%d", userID, examID)
}

func (s *AttemptService) presenceTTL() time.Duration {
	return time.Duration(s.Cfg.Exam.AttemptPresenceTTLMinutes) * time.Minute
}

// Start creates an attempt row with a definition snapshot and spins up its
// session. The Redis presence key guards against a second start racing in from
// another replica; the in-process manager guards this one.
func (s *AttemptService) Start(ctx context.Context, userID, examID uint) (*model.ExamAttempt, session.State, error) {
	exam, err := s.ExamRepo.FindByID(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.State{}, util.ErrExamNotFound
		}
		return nil, session.State{}, err
	}
	if !exam.IsPublished {
		return nil, session.State{}, util.ErrExamNotPublished
	}

	def, err := model.ParseDefinition(exam.PartType, exam.Content)
	if err != nil {
		return nil, session.State{}, err
	}

	if s.Redis != nil {
		ok, err := s.Redis.SetNX(ctx, presenceKey(userID, examID), "1", s.presenceTTL()).Result()
		if err != nil {
			s.Logger.Warn("presence check unavailable, relying on local registry", zap.Error(err))
		} else if !ok {
			return nil, session.State{}, util.ErrAttemptInFlight
		}
	}
	releasePresence := func() {
		if s.Redis != nil {
			s.Redis.Del(context.Background(), presenceKey(userID, examID))
		}
	}

	attempt := &model.ExamAttempt{
		ExamID:          examID,
		UserID:          userID,
		PartType:        exam.PartType,
		Phase:           model.AttemptInProgress,
		ContentSnapshot: exam.Content,
		StartedAt:       time.Now(),
	}
	if err := s.AttemptRepo.Create(attempt); err != nil {
		releasePresence()
		return nil, session.State{}, err
	}

	stream := s.Streams.Open(attempt.ID)
	sess := session.New(session.Config{
		AttemptID: attempt.ID,
		ExamID:    examID,
		UserID:    userID,
		Def:       def,
		TimeLimit: time.Duration(exam.TimeLimit) * time.Minute,
		Submitter: &submissionWriter{repo: s.SubmissionRepo},
		Notifier:  stream,
		Logger:    s.Logger,
	})
	if err := s.Sessions.Register(sess); err != nil {
		s.Streams.Close(attempt.ID)
		releasePresence()
		_ = s.AttemptRepo.SetPhase(attempt.ID, model.AttemptAbandoned)
		return nil, session.State{}, util.ErrAttemptInFlight
	}
	sess.Start()
	monitoring.ActiveSessions.Inc()

	s.Logger.Info("attempt started",
		zap.String("attemptId", attempt.ID),
		zap.Uint("userId", userID),
		zap.Uint("examId", examID),
		zap.String("partType", string(exam.PartType)))

	return attempt, sess.State(), nil
}

// submissionWriter adapts the repository to the session's Submitter.
type submissionWriter struct {
	repo *repository.SubmissionRepository
}

func (w *submissionWriter) SaveSubmission(sub *model.ExamSubmission) error {
	return w.repo.Create(sub)
}

// resolve returns the live session, enforcing ownership.
func (s *AttemptService) resolve(attemptID string, userID uint) (*session.Session, error) {
	sess, ok := s.Sessions.Get(attemptID)
	if !ok {
		return nil, util.ErrSessionClosed
	}
	if sess.UserID() != userID {
		return nil, util.ErrPermissionDenied
	}
	return sess, nil
}

// AnswerUpdate is one PUT answers payload: canonical keys to values, plus the
// listening matching picks in their own map.
type AnswerUpdate struct {
	Answers      map[string]string `json:"answers"`
	Part2Answers map[string]string `json:"part2Answers"`
}

func (s *AttemptService) SetAnswers(ctx context.Context, attemptID string, userID uint, upd AnswerUpdate) error {
	sess, err := s.resolve(attemptID, userID)
	if err != nil {
		return err
	}

	for raw, value := range upd.Answers {
		key, err := model.ParseQuestionKey(sess.PartType(), raw)
		if err != nil {
			return fmt.Errorf("%w: %v", session.ErrInvalidAnswerKey, err)
		}
		if err := sess.SetAnswer(key, value); err != nil {
			return err
		}
	}
	for raw, label := range upd.Part2Answers {
		var idx int
		if _, err := fmt.Sscanf(raw, "o%d", &idx); err != nil {
			return fmt.Errorf("%w: malformed matching key %q", session.ErrInvalidAnswerKey, raw)
		}
		if err := sess.SetMatchAnswer(idx, label); err != nil {
			return err
		}
	}

	// a writing candidate keeps the presence fresh for as long as they type
	if s.Redis != nil {
		s.Redis.Expire(ctx, presenceKey(userID, sess.ExamID()), s.presenceTTL())
	}
	return nil
}

func (s *AttemptService) Score(attemptID string, userID uint) (scoring.Result, error) {
	sess, err := s.resolve(attemptID, userID)
	if err != nil {
		return scoring.Result{}, err
	}
	return sess.Score(), nil
}

func (s *AttemptService) State(attemptID string, userID uint) (session.State, error) {
	sess, err := s.resolve(attemptID, userID)
	if err != nil {
		return session.State{}, err
	}
	return sess.State(), nil
}

// HandleClientEvent maps a WebSocket message type onto a session event.
func (s *AttemptService) HandleClientEvent(attemptID string, userID uint, eventType string) error {
	sess, err := s.resolve(attemptID, userID)
	if err != nil {
		return err
	}

	var ev session.Event
	switch eventType {
	case "playback_ended":
		ev = session.PlaybackEndedEvent{}
	case "playback_error":
		ev = session.PlaybackErrorEvent{}
	case "recording_stopped":
		ev = session.RecordingStoppedEvent{}
	case "device_failed":
		ev = session.DeviceFailedEvent{}
	default:
		return fmt.Errorf("unknown client event %q", eventType)
	}
	sess.HandleEvent(ev)
	return nil
}

// UploadSpeaking accepts the current question's recording. The session advances
// as soon as the upload is dispatched; the storage write completes in the
// background and a failure leaves the slot empty.
func (s *AttemptService) UploadSpeaking(ctx context.Context, attemptID string, userID uint, header *multipart.FileHeader) (int, error) {
	sess, err := s.resolve(attemptID, userID)
	if err != nil {
		return 0, err
	}

	idx, err := sess.BeginSpeakingUpload()
	if err != nil {
		if errors.Is(err, session.ErrAudioNotExpected) {
			return 0, util.ErrAudioUploadRejected
		}
		return 0, err
	}

	go func() {
		path, err := s.Audio.SaveRecording(context.Background(), attemptID, idx, header)
		if err != nil {
			monitoring.SpeakingUploadFailures.Inc()
			s.Logger.Error("speaking upload failed",
				zap.String("attemptId", attemptID), zap.Int("question", idx), zap.Error(err))
		}
		sess.CompleteSpeakingUpload(idx, path, err)
	}()

	return idx, nil
}

// Submit is the manual submission entry, addressed by exam as the client does
// it. On success the session is torn down and the presence key released.
func (s *AttemptService) Submit(ctx context.Context, userID, examID uint) (*model.ExamSubmission, error) {
	sess, ok := s.Sessions.GetByUser(userID, examID)
	if !ok {
		return nil, util.ErrSessionClosed
	}

	if err := sess.Submit(); err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadySubmitted):
			return nil, util.ErrAlreadySubmitted
		case errors.Is(err, session.ErrCaptureNotFinished):
			return nil, err
		}
		// persistence failed; the session stays live so the candidate can retry
		return nil, err
	}

	sub := sess.Submission()
	s.finish(ctx, sess, sub.Reason)
	return sub, nil
}

// Abandon tears an attempt down without a submission, the navigation-away path.
func (s *AttemptService) Abandon(ctx context.Context, attemptID string, userID uint) error {
	sess, err := s.resolve(attemptID, userID)
	if err != nil {
		return err
	}

	if err := s.AttemptRepo.SetPhase(attemptID, model.AttemptAbandoned); err != nil {
		s.Logger.Error("abandon attempt", zap.String("attemptId", attemptID), zap.Error(err))
	}
	s.finish(ctx, sess, "")
	s.Logger.Info("attempt abandoned", zap.String("attemptId", attemptID), zap.Uint("userId", userID))
	return nil
}

func (s *AttemptService) finish(ctx context.Context, sess *session.Session, reason model.SubmitReason) {
	s.Sessions.Remove(sess.AttemptID())
	s.Streams.Close(sess.AttemptID())
	if s.Redis != nil {
		s.Redis.Del(ctx, presenceKey(sess.UserID(), sess.ExamID()))
	}
	monitoring.ActiveSessions.Dec()
	if reason != "" {
		monitoring.SubmissionCounter.WithLabelValues(string(sess.PartType()), string(reason)).Inc()
	}
}

// ReapSubmitted sweeps sessions that auto-submitted on timeout out of the
// registry. Runs on a background interval; the timeout path itself cannot
// remove the session, it fires inside the session lock.
func (s *AttemptService) ReapSubmitted(ctx context.Context) {
	for _, sess := range s.Sessions.Snapshot() {
		st := sess.State()
		if st.Phase != model.AttemptSubmitted {
			continue
		}
		if sub := sess.Submission(); sub != nil {
			s.finish(ctx, sess, sub.Reason)
			s.Logger.Info("timed-out attempt reaped",
				zap.String("attemptId", sess.AttemptID()),
				zap.String("reason", string(sub.Reason)))
		}
	}
}

func (s *AttemptService) ListByUser(userID uint, page, pageSize int) ([]model.ExamAttempt, int64, error) {
	return s.AttemptRepo.ListByUser(userID, page, pageSize)
}
