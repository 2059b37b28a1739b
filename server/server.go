package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/internal/types"
	"github.com/xhad/ragcore/pkg/answer"
	"github.com/xhad/ragcore/pkg/stream"
)

type Indexer interface {
	IndexDocument(ctx context.Context, documentID, orgID string, data []byte) (*models.IndexingStatus, error)
	GetIndexingStatus(ctx context.Context, documentID, orgID string) (*models.IndexingStatus, error)
	BatchIndexDocuments(ctx context.Context, documentIDs []string, orgID string) ([]models.IndexingStatus, error)
}

// Searcher runs hybrid search and reports the page window it applies.
type Searcher interface {
	types.Searcher
	Window(limit, offset int) (int, int)
}

type Answerer interface {
	Generate(ctx context.Context, req answer.Request) (*models.ChatResponse, error)
	Stream(ctx context.Context, req answer.Request) <-chan stream.Event
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Indexer  Indexer
	Searcher Searcher
	Answerer Answerer
	Checks   map[string]Pinger
}

// Server exposes indexing, search and chat over HTTP and WebSocket.
type Server struct {
	deps     Deps
	log      logrus.FieldLogger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

func New(deps Deps, log logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:   deps,
		log:    log,
		router: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1", identity())
	{
		v1.POST("/indexing/batch", s.handleBatchIndex)
		v1.POST("/indexing/:documentId", s.handleIndex)
		v1.GET("/indexing/:documentId/status", s.handleStatus)

		v1.GET("/search", s.handleSearch)
		v1.POST("/search", s.handleSearch)

		v1.POST("/chat", s.handleChat)
		v1.POST("/chat/stream", s.handleChatStream)
	}

	s.router.GET("/ws", identity(), s.handleWebSocket)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}
