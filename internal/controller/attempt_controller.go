package controller

import (
	"errors"

	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/service"
	"lingua_exam_backend/internal/session"
	"lingua_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
	Streams        *service.StreamHub
}

func NewAttemptController(attemptService *service.AttemptService, streams *service.StreamHub) *AttemptController {
	return &AttemptController{AttemptService: attemptService, Streams: streams}
}

// Start godoc
// @Summary Start an attempt for an exam
// @Description Creates the attempt, snapshots the definition and spins up the
// @Description server-side session. One in-flight attempt per user per exam.
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param id path int true "exam id"
// @Success 201 {object} util.Response{data=object}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "attempt already in flight"
// @Router /api/exams/{id}/attempts/start [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	examID := util.MustParseUint(ctx.Param("id"))

	attempt, state, err := c.AttemptService.Start(ctx.Request.Context(), claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound), errors.Is(err, util.ErrExamNotPublished):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrAttemptInFlight):
			util.Conflict(ctx, err.Error())
		case errors.Is(err, model.ErrUnsupportedDefinition):
			util.Error(ctx, 422, "exam content is unavailable")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, gin.H{"attempt": attempt, "state": state})
}

// SetAnswers godoc
// @Summary Upsert answers into the live attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "attempt id"
// @Param body body service.AnswerUpdate true "answers keyed by canonical question key"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 410 {object} util.Response "attempt no longer live"
// @Router /api/attempts/{id}/answers [put]
func (c *AttemptController) SetAnswers(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	var upd service.AnswerUpdate
	if err := ctx.ShouldBindJSON(&upd); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.AttemptService.SetAnswers(ctx.Request.Context(), attemptID, claims.UserID, upd); err != nil {
		c.attemptError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Score godoc
// @Summary Live score of the attempt's current answers
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param id path string true "attempt id"
// @Success 200 {object} util.Response{data=scoring.Result}
// @Router /api/attempts/{id}/score [get]
func (c *AttemptController) Score(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	result, err := c.AttemptService.Score(ctx.Param("id"), claims.UserID)
	if err != nil {
		c.attemptError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"correct": result.Correct,
		"total":   result.Total,
		"score":   result.FormatScore(),
	})
}

// State godoc
// @Summary Current session state of the attempt
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param id path string true "attempt id"
// @Success 200 {object} util.Response{data=session.State}
// @Router /api/attempts/{id}/state [get]
func (c *AttemptController) State(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	state, err := c.AttemptService.State(ctx.Param("id"), claims.UserID)
	if err != nil {
		c.attemptError(ctx, err)
		return
	}
	util.Success(ctx, state)
}

// Stream godoc
// @Summary WebSocket event stream for the attempt
// @Description Client sends playback_ended / playback_error / recording_stopped /
// @Description device_failed; server pushes phase and countdown notices.
// @Tags attempts
// @Security BearerAuth
// @Param id path string true "attempt id"
// @Success 101 {string} string "switching protocols"
// @Router /api/attempts/{id}/ws [get]
func (c *AttemptController) Stream(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	// ownership check before the upgrade
	if _, err := c.AttemptService.State(attemptID, claims.UserID); err != nil {
		c.attemptError(ctx, err)
		return
	}

	err := c.Streams.ServeWS(ctx.Writer, ctx.Request, attemptID, claims.UserID, func(eventType string) {
		_ = c.AttemptService.HandleClientEvent(attemptID, claims.UserID, eventType)
	})
	if err != nil {
		c.attemptError(ctx, err)
	}
}

// UploadSpeaking godoc
// @Summary Upload the current speaking question's recording
// @Tags attempts
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "attempt id"
// @Param audio formData file true "audio blob"
// @Success 200 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "no recording expected now"
// @Router /api/attempts/{id}/speaking/upload [post]
func (c *AttemptController) UploadSpeaking(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	header, err := ctx.FormFile("audio")
	if err != nil {
		util.BadRequest(ctx, "missing audio file")
		return
	}

	idx, err := c.AttemptService.UploadSpeaking(ctx.Request.Context(), attemptID, claims.UserID, header)
	if err != nil {
		if errors.Is(err, util.ErrAudioUploadRejected) {
			util.Conflict(ctx, err.Error())
			return
		}
		c.attemptError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"question": idx})
}

// Abandon godoc
// @Summary Tear the attempt down without submitting
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param id path string true "attempt id"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [delete]
func (c *AttemptController) Abandon(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	if err := c.AttemptService.Abandon(ctx.Request.Context(), ctx.Param("id"), claims.UserID); err != nil {
		c.attemptError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListMine godoc
// @Summary The caller's attempt history
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/attempts [get]
func (c *AttemptController) ListMine(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := pageParams(ctx)

	attempts, total, err := c.AttemptService.ListByUser(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: attempts, Total: total, Page: page, Limit: limit})
}

func (c *AttemptController) attemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSessionClosed):
		util.Error(ctx, 410, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrAlreadySubmitted), errors.Is(err, session.ErrAlreadySubmitted):
		util.Conflict(ctx, util.ErrAlreadySubmitted.Error())
	case errors.Is(err, session.ErrInvalidAnswerKey):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
