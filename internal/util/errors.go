package util

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailRegistered     = errors.New("email already registered")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotPublished    = errors.New("exam not published or not accessible")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptInFlight     = errors.New("an attempt for this exam is already in progress")
	ErrAlreadySubmitted    = errors.New("attempt already submitted")
	ErrSessionClosed       = errors.New("attempt session is no longer active")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrNotManuallyGraded   = errors.New("part type is not manually reviewed")
	ErrAudioUploadRejected = errors.New("audio upload rejected for current capture phase")
)
