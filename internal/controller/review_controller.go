package controller

import (
	"errors"

	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/service"
	"lingua_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReviewController struct {
	SubmissionService *service.SubmissionService
}

func NewReviewController(submissionService *service.SubmissionService) *ReviewController {
	return &ReviewController{SubmissionService: submissionService}
}

// Queue godoc
// @Summary Writing/speaking submissions awaiting a review score
// @Tags review
// @Produce json
// @Security BearerAuth
// @Param part_type query string false "writing or speaking"
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/review/queue [get]
func (c *ReviewController) Queue(ctx *gin.Context) {
	page, limit := pageParams(ctx)
	partType := model.PartType(ctx.Query("part_type"))
	if partType != "" && partType != model.PartWriting && partType != model.PartSpeaking {
		util.BadRequest(ctx, "part type is not manually reviewed")
		return
	}

	subs, total, err := c.SubmissionService.ListForReview(partType, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: subs, Total: total, Page: page, Limit: limit})
}

// swagger:model ReviewRequest
type ReviewRequest struct {
	Score int    `json:"score" binding:"min=0,max=100"`
	Note  string `json:"note"`
}

// Review godoc
// @Summary Enter a review score for a writing or speaking submission
// @Tags review
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "submission id"
// @Param body body ReviewRequest true "score and note"
// @Success 200 {object} util.Response{data=model.ExamSubmission}
// @Failure 404 {object} util.Response
// @Failure 422 {object} util.Response "part is scored automatically"
// @Router /api/review/submissions/{id} [put]
func (c *ReviewController) Review(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.SubmissionService.SaveReview(ctx.Param("id"), claims.UserID, req.Score, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSubmissionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrNotManuallyGraded):
			util.Error(ctx, 422, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, sub)
}
