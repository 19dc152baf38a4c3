// Package handler wires the HTTP surface: session lifecycle, answer and
// marker mutations, violation intake and the question bug-report
// passthrough.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/neetly/session-backend/internal/auth"
	"github.com/neetly/session-backend/internal/config"
	"github.com/neetly/session-backend/internal/middleware"
	"github.com/neetly/session-backend/internal/model"
	"github.com/neetly/session-backend/internal/response"
	"github.com/neetly/session-backend/internal/session"
	"github.com/neetly/session-backend/internal/upstream"
	"github.com/neetly/session-backend/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const reportReasonsTTL = time.Hour

// SessionHandler handles the session REST endpoints.
type SessionHandler struct {
	manager  *session.Manager
	tokens   *auth.Service
	upstream *upstream.Client
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(manager *session.Manager, tokens *auth.Service, up *upstream.Client, rdb *redis.Client, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		manager:  manager,
		tokens:   tokens,
		upstream: up,
		rdb:      rdb,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// Create godoc
// POST /api/v1/sessions
// Starts a new attempt: loads questions, mints a session token and returns
// the full question sequence alongside the lockdown rule set.
func (h *SessionHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info := model.TestInfo{
		TestID:      req.TestID,
		UserID:      req.UserID,
		TestName:    req.TestName,
		TimeMinutes: req.TestTime,
		Live:        req.IsLive,
	}

	ctrl, err := h.manager.Create(c.Request.Context(), info)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMissingIdentifiers):
			response.Fail(c, http.StatusBadRequest, response.ErrMissingIdentifiers)
		case errors.Is(err, upstream.ErrLoad):
			response.Fail(c, http.StatusBadGateway, response.ErrLoadFailed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	token, err := h.tokens.IssueSessionToken(c.Request.Context(), ctrl.ID(), req.UserID, req.TestID)
	if err != nil {
		h.manager.Teardown(ctrl.ID())
		h.log.Error().Err(err).Msg("Token issuance failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":   token,
		"session": ctrl.View(true),
	})
}

// Get godoc
// GET /api/v1/sessions/:id
// Returns the current session state. ?questions=1 re-sends the full
// question sequence for clients rebuilding local state.
func (h *SessionHandler) Get(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	withQuestions := c.Query("questions") == "1"
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.View(withQuestions)})
}

// GoTo godoc
// POST /api/v1/sessions/:id/goto
func (h *SessionHandler) GoTo(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.GotoRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl.GoTo(*req.Index)
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.View(false)})
}

// Next godoc
// POST /api/v1/sessions/:id/next
func (h *SessionHandler) Next(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	ctrl.Next()
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.View(false)})
}

// Previous godoc
// POST /api/v1/sessions/:id/previous
func (h *SessionHandler) Previous(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	ctrl.Previous()
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.View(false)})
}

// Answer godoc
// POST /api/v1/sessions/:id/answer
func (h *SessionHandler) Answer(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.SelectAnswer(req.QuestionID, model.OptionKey(req.Option)); err != nil {
		h.failMutation(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.View(false)})
}

// Flag godoc
// POST /api/v1/sessions/:id/flag
func (h *SessionHandler) Flag(c *gin.Context) {
	h.toggle(c, func(ctrl *session.Controller, qid string) (bool, error) {
		return ctrl.ToggleFlag(qid)
	})
}

// Bookmark godoc
// POST /api/v1/sessions/:id/bookmark
func (h *SessionHandler) Bookmark(c *gin.Context) {
	h.toggle(c, func(ctrl *session.Controller, qid string) (bool, error) {
		return ctrl.ToggleBookmark(qid)
	})
}

func (h *SessionHandler) toggle(c *gin.Context, fn func(*session.Controller, string) (bool, error)) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.QuestionRef
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	on, err := fn(ctrl, req.QuestionID)
	if err != nil {
		h.failMutation(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"active":  on,
		"session": ctrl.View(false),
	})
}

// Violation godoc
// POST /api/v1/sessions/:id/violation
// REST fallback for clients without a WebSocket stream.
func (h *SessionHandler) Violation(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.ViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	recorded := ctrl.Guard().Report(c.Request.Context(), session.ViolationKind(req.Kind), req.Detail)
	response.Success(c, http.StatusOK, gin.H{"recorded": recorded})
}

// Submit godoc
// POST /api/v1/sessions/:id/submit
// Finalizes the attempt and posts it upstream. On upstream failure the
// session stays retryable and the client gets a 502.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	result, err := ctrl.Submit(c.Request.Context(), session.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSubmitInFlight):
			response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
		case errors.Is(err, session.ErrCompleted):
			response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
		case errors.Is(err, session.ErrNoQuestions):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Delete godoc
// DELETE /api/v1/sessions/:id
// Tears the session down. Clients call it when leaving the results step.
func (h *SessionHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if claims := middleware.GetClaims(c); claims != nil {
		if err := h.tokens.ClearActiveSession(c.Request.Context(), claims.UserID); err != nil {
			h.log.Warn().Err(err).Msg("Active-session cleanup failed")
		}
	}

	h.manager.Teardown(id)
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ReportReasons godoc
// GET /api/v1/sessions/:id/report-reasons
// Returns the bug-report reason master list, cached for an hour.
func (h *SessionHandler) ReportReasons(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	key := config.CacheKey.ReportReasonsKey()
	if cached, err := h.rdb.Get(c.Request.Context(), key).Result(); err == nil && cached != "" {
		var reasons []model.ReportReason
		if json.Unmarshal([]byte(cached), &reasons) == nil {
			response.Success(c, http.StatusOK, gin.H{"reasons": reasons})
			return
		}
	}

	reasons, err := h.upstream.FetchReportReasons(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamUnavailable)
		return
	}

	if payload, err := json.Marshal(reasons); err == nil {
		h.cacheSet(key, payload)
	}

	response.Success(c, http.StatusOK, gin.H{"reasons": reasons})
}

// Report godoc
// POST /api/v1/sessions/:id/report
// Forwards a question bug report upstream.
func (h *SessionHandler) Report(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.ReportRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info := ctrl.Info()
	err := h.upstream.SubmitQuestionReport(c.Request.Context(), upstream.QuestionReport{
		UserID:     info.UserID,
		UserName:   req.UserName,
		UserMobile: req.UserMobile,
		TestID:     info.TestID,
		QuestionID: req.QuestionID,
		ReasonID:   req.ReasonID,
		Reason:     req.Reason,
		BookTitle:  req.BookTitle,
		AuthorName: req.AuthorName,
		Publisher:  req.Publisher,
		PubYear:    req.PubYear,
		EditionNo:  req.EditionNo,
		PageNo:     req.PageNo,
	})
	if err != nil {
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamUnavailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reported": true})
}

// resolve parses :id and fetches the session, writing the error response
// itself when either step fails.
func (h *SessionHandler) resolve(c *gin.Context) (*session.Controller, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.manager.Get(id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) failMutation(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, session.ErrInvalidOption):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidOption)
	case errors.Is(err, session.ErrSubmitInFlight):
		response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
	case errors.Is(err, session.ErrCompleted):
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func (h *SessionHandler) cacheSet(key string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.rdb.Set(ctx, key, payload, reportReasonsTTL).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Reason cache write failed")
	}
}
