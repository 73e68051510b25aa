package app

import (
	"lingua_exam_backend/docs"
	"lingua_exam_backend/internal/config"
	"lingua_exam_backend/internal/middleware"
	"lingua_exam_backend/internal/model"
	"lingua_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/me", c.auth.Me)

		// exam delivery
		authGroup.GET("/exams", c.exam.List)
		authGroup.GET("/exams/:id", c.exam.Get)
		authGroup.POST("/exams/:id/attempts/start", c.attempt.Start)

		// live attempt runtime
		authGroup.GET("/attempts", c.attempt.ListMine)
		authGroup.PUT("/attempts/:id/answers", c.attempt.SetAnswers)
		authGroup.GET("/attempts/:id/score", c.attempt.Score)
		authGroup.GET("/attempts/:id/state", c.attempt.State)
		authGroup.GET("/attempts/:id/ws", c.attempt.Stream)
		authGroup.POST("/attempts/:id/speaking/upload", c.attempt.UploadSpeaking)
		authGroup.DELETE("/attempts/:id", c.attempt.Abandon)

		// submission
		authGroup.POST("/exam/:examId/submission", c.submission.Submit)
		authGroup.GET("/submissions", c.submission.ListMine)
		authGroup.GET("/submissions/:id", c.submission.Get)
		authGroup.POST("/exam-audio", c.submission.FetchAudio)

		// manual review
		review := authGroup.Group("/review")
		review.Use(middleware.RoleMiddleware(model.Reviewer))
		{
			review.GET("/queue", c.review.Queue)
			review.PUT("/submissions/:id", c.review.Review)
		}

		// exam administration
		admin := authGroup.Group("/admin")
		admin.Use(middleware.RoleMiddleware(model.Admin))
		{
			admin.GET("/exams", c.exam.ListAll)
			admin.POST("/exams", c.exam.Create)
			admin.PUT("/exams/:id", c.exam.Update)
			admin.PUT("/exams/:id/publish", c.exam.Publish)
			admin.DELETE("/exams/:id", c.exam.Delete)
		}
	}
}
