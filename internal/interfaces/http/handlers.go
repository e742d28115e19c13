package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/refund-approval/internal/application/workflow"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/external/lark"
)

const (
	maxCallbackBody   = 1 << 20
	defaultExportDays = 30
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps          Deps
	actionTimeout time.Duration
	logger        Logger
	inflight      inflight
	now           func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, actionTimeout time.Duration, logger Logger) *Handlers {
	return &Handlers{
		deps:          deps,
		actionTimeout: actionTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// SubmissionResponse is returned for an accepted refund request
type SubmissionResponse struct {
	MessageRef  string `json:"message_ref"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// IdentityLookupRequest is the body of POST /api/v1/identities/lookup
type IdentityLookupRequest struct {
	Emails []string `json:"emails" binding:"required,min=1,max=200,dive,email"`
}

// Wait blocks until background card actions finish or ctx expires
func (h *Handlers) Wait(ctx context.Context) error {
	return h.inflight.Wait(ctx)
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy, components := true, map[string]string(nil)
	if h.deps.Health != nil {
		healthy, components = h.deps.Health()
	}

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  h.now().UTC().Format(time.RFC3339),
		Components: components,
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{Success: healthy, Data: resp})
}

// SubmitRequest handles POST /api/v1/refund-requests
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var req entity.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.deps.Workflow.Submit(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Refund request failed", "order_number", req.OrderNumber, "error", err)
		h.writeError(c, err)
		return
	}

	resp := SubmissionResponse{
		MessageRef:  result.MessageRef,
		OrderNumber: result.OrderNumber,
		Status:      "started",
		Reason:      result.Reason,
	}
	if result.Correction {
		resp.Status = "needs_correction"
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: resp})
}

// CardAction handles POST /lark/card-action. Actions are acknowledged at once
// and processed in the background; failures reach the operator as notices.
func (h *Handlers) CardAction(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "failed to read body"})
		return
	}

	if !h.deps.Cards.VerifySignature(
		c.GetHeader(lark.HeaderTimestamp),
		c.GetHeader(lark.HeaderNonce),
		c.GetHeader(lark.HeaderSignature),
		body,
	) {
		c.JSON(http.StatusUnauthorized, Response{Error: "invalid signature"})
		return
	}

	cb, err := h.deps.Cards.Parse(body)
	if err != nil {
		if errors.Is(err, lark.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, Response{Error: "invalid token"})
			return
		}
		h.logger.Error("Invalid card callback", "error", err)
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if cb.Challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": cb.Challenge})
		return
	}
	if cb.Action == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	in := workflow.Interaction{
		Trigger: cb.Action.Trigger,
		Payload: cb.Action.Payload,
		Inputs:  cb.Action.Inputs,
	}
	h.inflight.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.actionTimeout)
		defer cancel()

		outcome, err := h.deps.Workflow.HandleAction(ctx, in)
		if err != nil {
			h.logger.Error("Card action failed",
				"message_ref", in.Trigger.MessageRef,
				"user_id", in.Trigger.UserID,
				"error", err)
			return
		}
		h.logger.Info("Card action handled",
			"message_ref", in.Trigger.MessageRef,
			"user_id", in.Trigger.UserID,
			"action", outcome.Action,
			"status", outcome.Status)
	})

	c.JSON(http.StatusOK, gin.H{})
}

// LookupIdentities handles POST /api/v1/identities/lookup
func (h *Handlers) LookupIdentities(c *gin.Context) {
	var req IdentityLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body: " + err.Error()})
		return
	}

	found, err := h.deps.Identities.LookupMany(c.Request.Context(), req.Emails)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var missing []string
	for _, email := range req.Emails {
		if _, ok := found[normalizeEmail(email)]; !ok {
			missing = append(missing, email)
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"identities": found,
		"missing":    missing,
	}})
}

// ListJournal handles GET /api/v1/journal?order_number=&limit=
func (h *Handlers) ListJournal(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, Response{Error: "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.deps.Journal.List(c.Request.Context(), c.Query("order_number"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*entity.JournalEntry{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ExportJournal handles GET /api/v1/journal/export?from=YYYY-MM-DD&to=YYYY-MM-DD.
// The range is inclusive of both days and defaults to the last 30 days.
func (h *Handlers) ExportJournal(c *gin.Context) {
	today := h.now().UTC().Truncate(24 * time.Hour)
	from, to := today.AddDate(0, 0, -defaultExportDays), today

	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.DateOnly, raw); err != nil {
			c.JSON(http.StatusBadRequest, Response{Error: "invalid from date"})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.DateOnly, raw); err != nil {
			c.JSON(http.StatusBadRequest, Response{Error: "invalid to date"})
			return
		}
	}
	end := to.AddDate(0, 0, 1)

	entries, err := h.deps.Journal.Between(c.Request.Context(), from, end)
	if err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("refund-journal_%s_%s.xlsx", from.Format(time.DateOnly), to.Format(time.DateOnly))
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)

	if err := h.deps.Exporter.Write(c.Writer, entries); err != nil {
		h.logger.Error("Journal export failed", "error", err)
		_ = c.Error(err)
	}
}

// writeError maps the error taxonomy to a status code
func (h *Handlers) writeError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, entity.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, entity.ErrDuplicateSubmission):
		status, msg = http.StatusConflict, "duplicate submission"
	case errors.Is(err, entity.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, entity.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, entity.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, "upstream service unavailable, retry later"
	}
	c.JSON(status, Response{Error: msg})
}
