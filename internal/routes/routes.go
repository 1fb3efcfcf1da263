package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medical-office-server/internal/config"
	"medical-office-server/internal/handlers"
	"medical-office-server/internal/middleware"
	"medical-office-server/internal/models"
	"medical-office-server/internal/ratelimit"
	"medical-office-server/internal/repository"
	"medical-office-server/internal/services"
	"medical-office-server/internal/utils"
)

// Limiters throttles the credential-bearing endpoints. A nil limiter disables
// throttling for that endpoint.
type Limiters struct {
	Login   ratelimit.Limiter
	Refresh ratelimit.Limiter
}

// SetupRoutes wires repositories, services and handlers and configures the
// application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, limiters Limiters, logger *zap.Logger) {
	clock := utils.SystemClock{}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)

	engine := services.NewRotationEngine(
		tokenRepo,
		clock,
		utils.RandomTokenGenerator{},
		services.NewZapRevocationRecorder(logger),
		cfg.RefreshTokenLifetime,
	)
	signer := utils.NewAccessTokenSigner(cfg.JWTSecret, cfg.AccessTokenTTL(), clock)
	sessions := services.NewSessionIssuer(userRepo, engine, signer)
	audit := services.NewRevocationAudit(tokenRepo, clock)
	appointments := services.NewAppointmentService(appointmentRepo, userRepo, clock)

	authHandler := handlers.NewAuthHandler(sessions, userRepo, cfg.IsProduction(), logger)
	userHandler := handlers.NewUserHandler(userRepo, audit, logger)
	appointmentHandler := handlers.NewAppointmentHandler(appointments, logger)

	loginGuard := throttle(limiters.Login, logger)
	refreshGuard := throttle(limiters.Refresh, logger)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", loginGuard, authHandler.Register)
			authRoutes.POST("/login", loginGuard, authHandler.Login)
			authRoutes.POST("/refresh-token", refreshGuard, authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/revoke", authHandler.Revoke)
			authRoutesPrivate.POST("/logout", authHandler.Revoke)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			// Accessible by all authenticated users for booking
			userRoutes.GET("/doctors", userHandler.GetDoctors)
			userRoutes.GET("/doctor-patients", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin), userHandler.GetDoctorPatients)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeleteUser)
				adminRoutes.GET("/:id/refresh-tokens", userHandler.GetRefreshTokens)
			}
		}

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointmentsForUser)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.PATCH("/:id", appointmentHandler.UpdateAppointment)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}

func throttle(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(limiter, logger)
}
