package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classtrack/internal/auth"
	"classtrack/internal/config"
	"classtrack/internal/directory"
	"classtrack/internal/httpapi"
	"classtrack/internal/httpmiddleware"
	"classtrack/internal/ledger"
	"classtrack/internal/leave"
	"classtrack/internal/notify"
	"classtrack/internal/queue"
	"classtrack/internal/roster"
	"classtrack/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:leave-decisions")
	}

	dir := directory.NewService(directory.NewRepository(db.Client), cfg.BCryptCost)
	ros := roster.NewService(roster.NewRepository(db.Client))
	led := ledger.NewService(ledger.NewRepository(db.Client), cfg.TermClassCount)
	lv := leave.NewService(leave.NewRepository(db.Client), q)
	notes := notify.New(notify.NewRepository(db.Client))

	h := httpapi.New(dir, ros, led, lv, notes, httpapi.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).PerIP())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil && db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Login gets its own, much tighter bucket.
	loginLimit := httpmiddleware.NewLimiter(cfg.LoginRatePerMin, cfg.LoginRatePerMin)
	r.POST("/v1/auth/login", loginLimit.PerIP(), h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)
	r.POST("/v1/auth/logout", h.Logout)

	authed := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))

	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.GET("/courses", h.TeacherCourses)
	teacher.GET("/courses/:id/students", h.CourseStudents)
	teacher.GET("/courses/:id/roll-call", h.RollCall)
	teacher.POST("/courses/:id/attendance", h.MarkAttendance)
	teacher.PUT("/courses/:id/attendance", h.AmendAttendance)
	teacher.GET("/courses/:id/attendance", h.CourseAttendance)
	teacher.POST("/students", h.CreateStudent)
	teacher.POST("/enrollments", h.Enroll)
	teacher.DELETE("/enrollments", h.Unenroll)
	teacher.DELETE("/students/:id", h.DeleteStudent)
	teacher.GET("/leave-requests", h.PendingLeaveRequests)
	teacher.POST("/leave-requests/:id/approve", h.ApproveLeave)
	teacher.POST("/leave-requests/:id/reject", h.RejectLeave)

	student := authed.Group("", auth.RequireRole(auth.RoleStudent))
	student.GET("/me/courses", h.MyCourses)
	student.GET("/me/attendance", h.MyAttendance)
	student.GET("/me/attendance/summary", h.MySummary)
	student.GET("/me/attendance/history", h.MyHistory)
	student.POST("/leave-requests", h.SubmitLeave)
	student.GET("/me/leave-requests", h.MyLeaveRequests)
	student.POST("/leave-requests/:id/dismiss", h.DismissLeave)
	student.GET("/me/notifications", h.MyNotifications)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
