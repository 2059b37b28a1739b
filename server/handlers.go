package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/answer"
	"github.com/xhad/ragcore/pkg/stream"
)

const maxUploadSize = 50 << 20

type queryPayload struct {
	Query  string `json:"query" form:"q"`
	Limit  int    `json:"limit" form:"limit"`
	Offset int    `json:"offset" form:"offset"`

	// ?query= is accepted as a long form of ?q=
	QueryParam string `json:"-" form:"query"`
}

type searchResponse struct {
	Results []models.SearchResult `json:"results"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Checks))
	code := http.StatusOK
	for name, p := range s.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	status := "ok"
	if code != http.StatusOK {
		status = "degraded"
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

// handleIndex accepts the document binary either as a multipart "file"
// field or as the raw request body.
func (s *Server) handleIndex(c *gin.Context) {
	documentID := c.Param("documentId")
	org := c.GetString(ctxOrgID)

	data, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := s.deps.Indexer.IndexDocument(c.Request.Context(), documentID, org, data)
	if err != nil {
		body := gin.H{"error": err.Error()}
		if status != nil {
			body["status"] = status
		}
		c.JSON(statusFor(err), body)
		return
	}

	c.JSON(http.StatusOK, status)
}

func readUpload(c *gin.Context) ([]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return io.ReadAll(io.LimitReader(c.Request.Body, maxUploadSize))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadSize))
}

func (s *Server) handleBatchIndex(c *gin.Context) {
	var payload struct {
		DocumentIDs []string `json:"document_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	results, err := s.deps.Indexer.BatchIndexDocuments(c.Request.Context(), payload.DocumentIDs, c.GetString(ctxOrgID))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.deps.Indexer.GetIndexingStatus(c.Request.Context(), c.Param("documentId"), c.GetString(ctxOrgID))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "indexing status not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSearch(c *gin.Context) {
	var payload queryPayload
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&payload)
		if payload.Query == "" {
			payload.Query = payload.QueryParam
		}
	} else {
		err = c.ShouldBindJSON(&payload)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	results, total, err := s.deps.Searcher.Search(c.Request.Context(), models.SearchQuery{
		Text:           payload.Query,
		OrganizationID: c.GetString(ctxOrgID),
		Limit:          payload.Limit,
		Offset:         payload.Offset,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	limit, offset := s.deps.Searcher.Window(payload.Limit, payload.Offset)
	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, searchResponse{
		Results: results,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) chatRequest(c *gin.Context) (answer.Request, bool) {
	var payload queryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return answer.Request{}, false
	}
	return answer.Request{
		Query:          payload.Query,
		UserID:         c.GetString(ctxUserID),
		OrganizationID: c.GetString(ctxOrgID),
	}, true
}

func (s *Server) handleChat(c *gin.Context) {
	req, ok := s.chatRequest(c)
	if !ok {
		return
	}

	resp, err := s.deps.Answerer.Generate(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleChatStream writes the answer as data frames and ends with [DONE],
// or with an error frame when generation fails.
func (s *Server) handleChatStream(c *gin.Context) {
	req, ok := s.chatRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	log := s.log.WithField("organization_id", req.OrganizationID)

	events := s.deps.Answerer.Stream(ctx, req)
	for ev := range events {
		if ctx.Err() != nil {
			continue
		}
		if err := stream.WriteFrame(c.Writer, ev); err != nil {
			log.WithError(err).Debug("stream consumer went away")
			cancel()
			continue
		}
		c.Writer.Flush()
	}
}
