package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pickupdesk/internal/audit"
	"pickupdesk/internal/auth"
	"pickupdesk/internal/cloudinary"
	"pickupdesk/internal/config"
	"pickupdesk/internal/httpmiddleware"
	"pickupdesk/internal/photo"
	"pickupdesk/internal/pickup"
	"pickupdesk/internal/queue"
	"pickupdesk/internal/session"
	"pickupdesk/internal/store"
	"pickupdesk/internal/upstream"
)

// hard cap on the multipart body we are willing to buffer; anything
// between MaxPhotoBytes and this goes through the shrinker.
const maxUploadRead = 10 << 20

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
		log.Printf("warning: audit db not reachable: %v", err)
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
		q = queue.NewRedisQueue(redisClient.Client, "pickupdesk:audit")
	}

	var sessions session.Store
	if cfg.SessionBackend == "memory" {
		sessions = session.NewMemory(cfg.SessionTTL)
	} else {
		sessions = session.NewRedis(redisClient.Client, cfg.SessionTTL)
	}

	backend := upstream.New(cfg.UpstreamURL, cfg.UpstreamTimeout)

	var uploader pickup.Uploader
	if cfg.CloudinaryCloudName != "" {
		if cfg.CloudinaryPreset != "" {
			uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryPreset, cfg.CloudinaryFolder)
		} else if cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
			uploader = cloudinary.NewSigned(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		}
	}
	if uploader == nil {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME with UPLOAD_PRESET or API key pair not set)")
	} else {
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	}

	shrinker := photo.NewShrinker()
	if cfg.MaxPhotoBytes > 0 {
		shrinker.MaxBytes = cfg.MaxPhotoBytes
	}

	svc := pickup.NewService(backend, uploader, shrinker)
	disp := pickup.NewDispatcher(backend)

	var auditRepo *audit.Repository
	if db != nil {
		auditRepo = audit.NewRepository(db.Client)
	}

	ctx := context.Background()
	publishAudit := func(action, regNo, actor string) {
		body, err := json.Marshal(audit.Event{Action: action, RegNo: regNo, Actor: actor, When: time.Now().UTC()})
		if err != nil {
			return
		}
		if err := q.Publish(ctx, queue.Message{Kind: "audit", Body: body}); err != nil {
			log.Printf("audit publish failed: %v", err)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Parent portal.

	r.POST("/v1/parent/login", func(c *gin.Context) {
		var req struct {
			RegNo string `json:"regNo" binding:"required"`
			Dob   string `json:"dob" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		student, err := svc.ParentLogin(c.Request.Context(), req.RegNo, req.Dob)
		if err != nil {
			var rej *pickup.RejectionError
			if errors.As(err, &rej) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid register number or date of birth"})
				return
			}
			writeErr(c, err)
			return
		}

		sid := uuid.NewString()
		if err := sessions.PutParent(c.Request.Context(), sid, session.Parent{RegNo: student.RegNo, Student: student}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
			return
		}

		token, exp, err := auth.Issue(sid, auth.RoleParent, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		// Derive the dashboard mode up front so the client lands on the
		// right view without a second round trip.
		stage, rec, serr := svc.Status(c.Request.Context(), student.RegNo)
		if serr != nil {
			log.Printf("status lookup after login failed: %v", serr)
			stage = pickup.StageFormInput
		}

		publishAudit(audit.ActionParentLogin, student.RegNo, "parent")

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": exp.Unix(),
			"student":    student,
			"stage":      stage,
			"pickup":     rec,
		})
	})

	parent := r.Group("/v1/parent", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleParent))

	requireParent := func(c *gin.Context) (session.Parent, bool) {
		p, ok, err := sessions.Parent(c.Request.Context(), auth.SessionID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
			return session.Parent{}, false
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, log in again"})
			return session.Parent{}, false
		}
		return p, true
	}

	parent.POST("/photo", func(c *gin.Context) {
		if _, ok := requireParent(c); !ok {
			return
		}
		if uploader == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadRead+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
		if len(data) > maxUploadRead {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return
		}

		url, err := svc.BindPhoto(c.Request.Context(), data, header.Filename)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	})

	parent.POST("/register", func(c *gin.Context) {
		p, ok := requireParent(c)
		if !ok {
			return
		}

		var req struct {
			PickupName  string `json:"pickupName"`
			Relation    string `json:"relation"`
			Phone       string `json:"phone"`
			PickupPhoto string `json:"pickupPhoto"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := svc.Register(c.Request.Context(), pickup.Registration{
			RegNo:       p.RegNo,
			StudentName: p.Student.Name,
			PickupName:  req.PickupName,
			Relation:    req.Relation,
			Phone:       req.Phone,
			PickupPhoto: req.PickupPhoto,
		})
		if err != nil {
			writeErr(c, err)
			return
		}

		publishAudit(audit.ActionRegister, p.RegNo, "parent")

		// The session is done once registration lands; the next visit
		// re-derives everything from the backend.
		if err := sessions.Clear(c.Request.Context(), auth.SessionID(c)); err != nil {
			log.Printf("session clear after registration failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{"pickup": rec, "stage": pickup.StageFor(&rec)})
	})

	parent.GET("/status", func(c *gin.Context) {
		p, ok := requireParent(c)
		if !ok {
			return
		}
		stage, rec, err := svc.Status(c.Request.Context(), p.RegNo)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stage": stage, "pickup": rec})
	})

	parent.POST("/logout", func(c *gin.Context) {
		if err := sessions.Clear(c.Request.Context(), auth.SessionID(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Staff portal.

	r.POST("/v1/staff/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		faculty, err := svc.StaffLogin(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			var rej *pickup.RejectionError
			if errors.As(err, &rej) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			writeErr(c, err)
			return
		}

		sid := uuid.NewString()
		if err := sessions.PutStaff(c.Request.Context(), sid, session.Staff{FacultyName: faculty, LoggedIn: true}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
			return
		}

		token, exp, err := auth.Issue(sid, auth.RoleStaff, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		publishAudit(audit.ActionStaffLogin, "", faculty)

		c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp.Unix(), "faculty": faculty})
	})

	staff := r.Group("/v1/staff", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStaff))

	requireStaff := func(c *gin.Context) (session.Staff, bool) {
		s, ok, err := sessions.Staff(c.Request.Context(), auth.SessionID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
			return session.Staff{}, false
		}
		if !ok || !s.LoggedIn {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, log in again"})
			return session.Staff{}, false
		}
		return s, true
	}

	staff.GET("/search", func(c *gin.Context) {
		if _, ok := requireStaff(c); !ok {
			return
		}

		query := c.Query("q")
		if c.Query("scan") == "true" {
			// Scanner-decoded input runs the same search path, once per
			// decode.
			results, ran, err := disp.HandleScan(c.Request.Context(), query)
			if err != nil {
				writeErr(c, err)
				return
			}
			if !ran {
				c.JSON(http.StatusAccepted, gin.H{"skipped": true})
				return
			}
			c.JSON(http.StatusOK, gin.H{"found": len(results) > 0, "results": results})
			return
		}

		results, err := disp.Search(c.Request.Context(), query)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"found": len(results) > 0, "results": results})
	})

	staff.POST("/approve", func(c *gin.Context) {
		st, ok := requireStaff(c)
		if !ok {
			return
		}
		var req struct {
			Query string `json:"query"`
			RegNo string `json:"regNo" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Query == "" {
			req.Query = req.RegNo
		}

		results, err := disp.Approve(c.Request.Context(), req.Query, req.RegNo, st.FacultyName)
		if err != nil {
			writeErr(c, err)
			return
		}

		publishAudit(audit.ActionApprove, req.RegNo, st.FacultyName)
		c.JSON(http.StatusOK, gin.H{"results": results})
	})

	staff.POST("/pick", func(c *gin.Context) {
		st, ok := requireStaff(c)
		if !ok {
			return
		}
		var req struct {
			Query string `json:"query"`
			RegNo string `json:"regNo" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Query == "" {
			req.Query = req.RegNo
		}

		results, err := disp.MarkPicked(c.Request.Context(), req.Query, req.RegNo)
		if err != nil {
			writeErr(c, err)
			return
		}

		publishAudit(audit.ActionMarkPicked, req.RegNo, st.FacultyName)
		c.JSON(http.StatusOK, gin.H{"results": results})
	})

	staff.GET("/unregistered", func(c *gin.Context) {
		if _, ok := requireStaff(c); !ok {
			return
		}
		students, err := backend.NotRegistered(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	staff.GET("/audit", func(c *gin.Context) {
		if _, ok := requireStaff(c); !ok {
			return
		}
		if auditRepo == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit db not available"})
			return
		}
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		events, err := auditRepo.ListEvents(c.Request.Context(), c.Query("regNo"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	staff.POST("/logout", func(c *gin.Context) {
		if err := sessions.Clear(c.Request.Context(), auth.SessionID(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

// writeErr maps domain errors onto HTTP statuses. Everything is
// recoverable at the client; nothing here kills the process.
func writeErr(c *gin.Context, err error) {
	var verr *pickup.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	}
	var rej *pickup.RejectionError
	if errors.As(err, &rej) {
		c.JSON(http.StatusConflict, gin.H{"error": rej.Error(), "status": rej.Status})
		return
	}
	switch {
	case errors.Is(err, photo.ErrDecode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, pickup.ErrUpload):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, pickup.ErrNetwork):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
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
