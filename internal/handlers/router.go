package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Tamabadger/anatoview-sub000/internal/config"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/Tamabadger/anatoview-sub000/internal/services"
	"github.com/Tamabadger/anatoview-sub000/internal/utils"
	"github.com/Tamabadger/anatoview-sub000/internal/validator"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	gradingHandler *GradingHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		gradingHandler: NewGradingHandler(serviceManager.Attempt(), serviceManager.GradeSync(), serviceManager.Export(), validator, logger),
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Lab-scoped attempt routes
		labs := v1.Group("/labs")
		{
			labs.GET("/:lab_id/attempt", hm.attemptHandler.GetOrCreateAttempt)
			labs.POST("/:lab_id/attempt/start", hm.attemptHandler.StartAttempt)
			labs.POST("/:lab_id/attempt/submit", hm.attemptHandler.SubmitAttempt)

			// Instructor surface
			labs.GET("/:lab_id/attempts", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor), hm.attemptHandler.ListLabAttempts)
			labs.POST("/:lab_id/grades/sync", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor), hm.gradingHandler.SyncLabGrades)
			labs.GET("/:lab_id/grades/export", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor), hm.gradingHandler.ExportLabGrades)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/responses", hm.attemptHandler.SaveResponses)
			attempts.PUT("/:id/grade", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor), hm.gradingHandler.OverrideGrade)
			attempts.POST("/:id/sync", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor), hm.gradingHandler.EnqueueGradeSync)
			attempts.GET("/:id/sync-log", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor), hm.gradingHandler.GetSyncLog)
		}

		// Grade passback routes
		grades := v1.Group("/grades")
		grades.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor))
		{
			grades.POST("/:attempt_id/sync", hm.gradingHandler.SyncGrade)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "anatoview-lab-service",
		})
	})
}
