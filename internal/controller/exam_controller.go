package controller

import (
	"encoding/json"
	"errors"
	"strconv"

	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/internal/service"
	"lingua_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

func pageParams(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// Get godoc
// @Summary Fetch one published exam with its definition
// @Description Answer keys are stripped; scoring happens server-side.
// @Tags exams
// @Produce json
// @Security BearerAuth
// @Param id path int true "exam id"
// @Success 200 {object} util.Response{data=service.ExamView}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) Get(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	view, err := c.ExamService.GetForCandidate(id)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound), errors.Is(err, util.ErrExamNotPublished):
			util.NotFound(ctx)
		case errors.Is(err, model.ErrUnsupportedDefinition):
			util.Error(ctx, 422, "exam content is unavailable")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, view)
}

// List godoc
// @Summary List published exams
// @Tags exams
// @Produce json
// @Security BearerAuth
// @Param part_type query string false "filter by part type"
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exams [get]
func (c *ExamController) List(ctx *gin.Context) {
	page, limit := pageParams(ctx)
	partType := model.PartType(ctx.Query("part_type"))
	if partType != "" && !partType.Valid() {
		util.BadRequest(ctx, "unknown part type")
		return
	}

	exams, total, err := c.ExamService.ListPublished(partType, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// swagger:model ExamRequest
type ExamRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	PartType    model.PartType  `json:"partType" binding:"required"`
	TimeLimit   int             `json:"time_limit"`
	Content     json.RawMessage `json:"content" binding:"required"`
}

// Create godoc
// @Summary Create a draft exam
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ExamRequest true "exam payload"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Router /api/admin/exams [post]
func (c *ExamController) Create(ctx *gin.Context) {
	var req ExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if !req.PartType.Valid() {
		util.BadRequest(ctx, "unknown part type")
		return
	}

	claims := util.GetUserFromContext(ctx)
	exam := &model.Exam{
		Title:       req.Title,
		Description: req.Description,
		PartType:    req.PartType,
		TimeLimit:   req.TimeLimit,
		Content:     req.Content,
	}
	if err := c.ExamService.Create(exam, claims.UserID); err != nil {
		if errors.Is(err, model.ErrUnsupportedDefinition) {
			util.BadRequest(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, exam)
}

// Update godoc
// @Summary Update a draft or published exam
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "exam id"
// @Param body body ExamRequest true "fields to change"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id} [put]
func (c *ExamController) Update(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	var req ExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.Update(id, &model.Exam{
		Title:       req.Title,
		Description: req.Description,
		PartType:    req.PartType,
		TimeLimit:   req.TimeLimit,
		Content:     req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, model.ErrUnsupportedDefinition):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, exam)
}

// swagger:model PublishRequest
type PublishRequest struct {
	Published *bool `json:"published" binding:"required"`
}

// Publish godoc
// @Summary Publish or unpublish an exam
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "exam id"
// @Param body body PublishRequest true "publish flag"
// @Success 200 {object} util.Response{data=model.Exam}
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id}/publish [put]
func (c *ExamController) Publish(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))

	var req PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.SetPublished(id, *req.Published)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, model.ErrUnsupportedDefinition):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, exam)
}

// Delete godoc
// @Summary Delete an exam
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "exam id"
// @Success 200 {object} util.Response
// @Router /api/admin/exams/{id} [delete]
func (c *ExamController) Delete(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))
	if err := c.ExamService.Delete(id); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListAll godoc
// @Summary List all exams including drafts
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/admin/exams [get]
func (c *ExamController) ListAll(ctx *gin.Context) {
	page, limit := pageParams(ctx)
	exams, total, err := c.ExamService.ListAll(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}
