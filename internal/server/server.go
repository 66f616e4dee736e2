package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"liveAgent/internal/app"
	"liveAgent/internal/config"
	"liveAgent/internal/database"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

// Control - операции, которые сервер выставляет наружу. Реализуется app.App.
type Control interface {
	Accounts() []app.AccountView
	Account(id string) (app.AccountView, error)
	CreateAccount(ctx context.Context, name platform.Name, acc session.Account) (app.AccountView, error)
	RemoveAccount(ctx context.Context, id string) error
	Connect(ctx context.Context, id string, cfg session.ConnectConfig) (session.ConnectResult, error)
	Disconnect(id string) error
	StartTask(ctx context.Context, id string, d task.Descriptor) error
	StopTask(id string, typ task.Type) error
	UpdateTask(id string, typ task.Type, partial json.RawMessage) error
	Runs(ctx context.Context, id string, limit int) ([]database.TaskRun, error)
	Comments(id string, n int) []listener.LiveMessage
	SubscribeComments(id string, buffer int) (<-chan listener.LiveMessage, func())
}

type Server struct {
	cfg     config.App
	log     *zap.Logger
	ctl     Control
	metrics http.Handler
	engine  *gin.Engine
}

func New(cfg config.App, ctl Control, metrics http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		log:     log.Named("http"),
		ctl:     ctl,
		metrics: metrics,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	api.GET("/platforms", s.listPlatforms)

	accounts := api.Group("/accounts")
	{
		accounts.GET("", s.listAccounts)
		accounts.POST("", s.createAccount)
		accounts.GET("/:id", s.getAccount)
		accounts.DELETE("/:id", s.deleteAccount)
		accounts.POST("/:id/connect", s.connect)
		accounts.POST("/:id/disconnect", s.disconnect)
		accounts.POST("/:id/tasks", s.startTask)
		accounts.PATCH("/:id/tasks/:type", s.updateTask)
		accounts.DELETE("/:id/tasks/:type", s.stopTask)
		accounts.GET("/:id/runs", s.listRuns)
		accounts.GET("/:id/comments", s.listComments)
		accounts.GET("/:id/comments/ws", s.streamComments)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			s.log.Warn("HTTP", append(fields, zap.String("error", c.Errors.String()))...)
			return
		}
		s.log.Debug("HTTP", fields...)
	}
}

// Run слушает HTTP_HOST:HTTP_PORT до отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Сервер запущен", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("остановка сервера: %w", err)
		}
		<-errCh
		s.log.Info("Сервер остановлен")
		return nil
	}
}

// statusFromError переводит ошибки домена в HTTP-статусы.
func statusFromError(err error) int {
	var perr *platform.Error
	switch {
	case errors.Is(err, session.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTaskRunning),
		errors.Is(err, session.ErrConnected),
		errors.Is(err, session.ErrNoBrowser):
		return http.StatusConflict
	case errors.Is(err, task.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.As(err, &perr):
		if perr.Kind == platform.KindCapabilityMissing {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var perr *platform.Error
	if errors.As(err, &perr) {
		body["kind"] = perr.Kind.String()
	}
	c.JSON(statusFromError(err), body)
}
