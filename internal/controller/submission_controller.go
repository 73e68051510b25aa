package controller

import (
	"errors"

	"lingua_exam_backend/internal/service"
	"lingua_exam_backend/internal/session"
	"lingua_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	AttemptService    *service.AttemptService
	SubmissionService *service.SubmissionService
	AudioService      *service.AudioService
}

func NewSubmissionController(
	attemptService *service.AttemptService,
	submissionService *service.SubmissionService,
	audioService *service.AudioService,
) *SubmissionController {
	return &SubmissionController{
		AttemptService:    attemptService,
		SubmissionService: submissionService,
		AudioService:      audioService,
	}
}

// Submit godoc
// @Summary Submit the caller's live attempt for an exam
// @Description Exactly one submission per attempt; a racing timeout and manual
// @Description submit still persist a single row.
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param examId path int true "exam id"
// @Success 201 {object} util.Response{data=model.ExamSubmission}
// @Failure 409 {object} util.Response "already submitted / capture unfinished"
// @Failure 410 {object} util.Response "no live attempt"
// @Router /api/exam/{examId}/submission [post]
func (c *SubmissionController) Submit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	examID := util.MustParseUint(ctx.Param("examId"))

	sub, err := c.AttemptService.Submit(ctx.Request.Context(), claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionClosed):
			util.Error(ctx, 410, err.Error())
		case errors.Is(err, util.ErrAlreadySubmitted):
			util.Conflict(ctx, err.Error())
		case errors.Is(err, session.ErrCaptureNotFinished):
			util.Conflict(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, sub)
}

// Get godoc
// @Summary Fetch one submission
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "submission id"
// @Success 200 {object} util.Response{data=model.ExamSubmission}
// @Failure 404 {object} util.Response
// @Router /api/submissions/{id} [get]
func (c *SubmissionController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	sub, err := c.SubmissionService.Get(ctx.Param("id"), claims)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSubmissionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, sub)
}

// ListMine godoc
// @Summary The caller's submissions
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/submissions [get]
func (c *SubmissionController) ListMine(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := pageParams(ctx)

	subs, total, err := c.SubmissionService.ListMine(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: subs, Total: total, Page: page, Limit: limit})
}

// swagger:model AudioRequest
type AudioRequest struct {
	AudioPath string `json:"audio_path" binding:"required"`
}

// FetchAudio godoc
// @Summary Fetch an audio object as base64 for in-page playback
// @Tags submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body AudioRequest true "object path"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response
// @Router /api/exam-audio [post]
func (c *SubmissionController) FetchAudio(ctx *gin.Context) {
	var req AudioRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	data, err := c.AudioService.FetchBase64(ctx.Request.Context(), req.AudioPath)
	if err != nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, gin.H{"audio": data})
}
