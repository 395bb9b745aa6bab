// Package server exposes a dedup.Coordinator over HTTP for non-Go
// callers.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/onceguard/internal/audit"
	"github.com/loykin/onceguard/internal/auth"
	"github.com/loykin/onceguard/internal/dedup"
	"github.com/loykin/onceguard/internal/metrics"
)

// Router provides embeddable HTTP handlers for a single
// dedup.Coordinator[dedup.StringKey], the id/processorId shape every
// wire caller (JSON body, query string, TOML processor_id) actually
// deals in.
//
// Endpoints:
//
//	POST {basePath}/try-start  body {"id": "..."}
//	POST {basePath}/complete   body {"id": "..."}
//	GET  {basePath}/status     query id=...
type Router struct {
	coord     *dedup.Coordinator[dedup.StringKey]
	processor string
	sink      audit.Sink
	auth      *auth.Service
	basePath  string
}

// New constructs a Router. sink and authSvc may be nil.
func New(coord *dedup.Coordinator[dedup.StringKey], processorID, basePath string, sink audit.Sink, authSvc *auth.Service) *Router {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Router{
		coord:     coord,
		processor: processorID,
		sink:      sink,
		auth:      authSvc,
		basePath:  sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(auth.GinAuth(r.auth))
	group.POST("/try-start", r.handleTryStart)
	group.POST("/complete", r.handleComplete)
	group.GET("/status", r.handleStatus)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, coord *dedup.Coordinator[dedup.StringKey], processorID string, sink audit.Sink, authSvc *auth.Service) *http.Server {
	r := New(coord, processorID, basePath, sink, authSvc)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type idRequest struct {
	ID string `json:"id"`
}

type tryStartResp struct {
	Sample string `json:"sample"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Status string `json:"status"`
}

// writeCoordinatorError maps a non-poll-timeout error out of the
// coordinator to a status code: a corrupt stored record is the
// caller's data, not the caller's request, so it is 422; anything else
// reaching here is treated as a store transport failure and answered
// with 502, since the store is this API's only upstream dependency.
func (r *Router) writeCoordinatorError(c *gin.Context, err error) {
	if errors.Is(err, dedup.ErrCorruptRecord) {
		writeJSON(c, http.StatusUnprocessableEntity, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
}

func (r *Router) handleTryStart(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(req.ID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id"})
		return
	}

	start := time.Now()
	sample, reclaimed, err := r.coord.TryStart(c.Request.Context(), dedup.StringKey(req.ID))
	waited := time.Since(start)

	if err != nil {
		if errors.Is(err, dedup.ErrPollTimeout) {
			metrics.IncPollExhaustion(r.processor)
			_ = r.sink.Send(c.Request.Context(), audit.Event{
				Outcome:     audit.OutcomePollTimeout,
				ID:          req.ID,
				ProcessorID: r.processor,
				OccurredAt:  time.Now().UTC(),
				PollWait:    waited,
			})
			c.Header("Retry-After", "1")
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		r.writeCoordinatorError(c, err)
		return
	}

	metrics.ObservePollWait(r.processor, waited.Seconds())
	outcome := audit.OutcomeClaimed
	switch {
	case sample == dedup.Seen:
		metrics.IncSeen(r.processor)
		outcome = audit.OutcomeSeen
	case reclaimed:
		metrics.IncReclaim(r.processor)
		outcome = audit.OutcomeReclaimed
	default:
		metrics.IncClaim(r.processor)
	}
	_ = r.sink.Send(c.Request.Context(), audit.Event{
		Outcome:     outcome,
		ID:          req.ID,
		ProcessorID: r.processor,
		OccurredAt:  time.Now().UTC(),
		PollWait:    waited,
	})

	writeJSON(c, http.StatusOK, tryStartResp{Sample: sample.String()})
}

func (r *Router) handleComplete(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(req.ID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id"})
		return
	}

	if err := r.coord.Complete(c.Request.Context(), dedup.StringKey(req.ID)); err != nil {
		r.writeCoordinatorError(c, err)
		return
	}
	metrics.IncCompletion(r.processor)
	_ = r.sink.Send(c.Request.Context(), audit.Event{
		Outcome:     audit.OutcomeCompleted,
		ID:          req.ID,
		ProcessorID: r.processor,
		OccurredAt:  time.Now().UTC(),
	})
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	id := c.Query("id")
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "id query param required"})
		return
	}
	st, err := r.coord.Status(c.Request.Context(), dedup.StringKey(id))
	if err != nil {
		r.writeCoordinatorError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, statusResp{Status: st.String()})
}
