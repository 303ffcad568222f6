package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
	"github.com/kculturecat/stylist-api/internal/infra/payments/polar"
	apperrors "github.com/kculturecat/stylist-api/pkg/errors"
)

// CheckoutGateway is the slice of the payments client the transport needs.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, embedOrigin string) (polar.CheckoutSession, error)
	Status(ctx context.Context, checkoutID string) (string, error)
}

// ReportMailer delivers the finished analysis to the customer.
type ReportMailer interface {
	SendReport(ctx context.Context, to string, analysis stylist.Analysis) error
}

// Handler wires the HTTP transport to the stylist pipeline.
type Handler struct {
	svc      stylist.Service
	checkout CheckoutGateway
	mailer   ReportMailer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHandler constructs the root HTTP handler. timeout bounds one full
// pipeline run end to end.
func NewHandler(svc stylist.Service, checkout CheckoutGateway, mailer ReportMailer, timeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		checkout: checkout,
		mailer:   mailer,
		timeout:  timeout,
		logger:   logger.With("component", "http.handler"),
	}
}

// Analyze runs the paid analysis pipeline. The response body always states
// whether a refund happened so the client can render refund messaging.
func (h *Handler) Analyze(c *gin.Context) {
	var req stylist.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	analysis, err := h.svc.Analyze(ctx, req)
	if err != nil {
		h.renderAnalyzeError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

func (h *Handler) renderAnalyzeError(c *gin.Context, err error) {
	var pipeErr *stylist.PipelineError
	if errors.As(err, &pipeErr) {
		status := http.StatusInternalServerError
		if pipeErr.ServiceUnavailable {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("analysis pipeline failed",
			"status", status, "refunded", pipeErr.Refunded, "refund_failed", pipeErr.RefundFailed, "error", pipeErr.Cause)
		c.JSON(status, gin.H{
			"error":              pipeErr.Error(),
			"refunded":           pipeErr.Refunded,
			"refundFailed":       pipeErr.RefundFailed,
			"serviceUnavailable": pipeErr.ServiceUnavailable,
		})
		return
	}

	status := http.StatusInternalServerError
	switch apperrors.Code(err) {
	case stylist.CodeInvalidInput:
		status = http.StatusBadRequest
	case stylist.CodeCheckoutConsumed:
		status = http.StatusConflict
	case stylist.CodePaymentUnverified:
		status = http.StatusBadGateway
	case stylist.CodePaymentIncomplete:
		status = http.StatusPaymentRequired
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("analysis rejected", "status", status, "error", err)
	} else {
		h.logger.Warn("analysis rejected", "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CreateCheckout opens a new checkout session for the frontend.
func (h *Handler) CreateCheckout(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if origin == "" {
		origin = "https://" + c.Request.Host
	}

	session, err := h.checkout.CreateCheckout(c.Request.Context(), origin)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadGateway, "checkout_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, session)
}

// CheckoutStatus reports the raw session status for frontend polling.
func (h *Handler) CheckoutStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "missing id", nil))
		return
	}

	status, err := h.checkout.Status(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadGateway, "checkout_lookup_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type emailReportRequest struct {
	Email  string           `json:"email"`
	Result stylist.Analysis `json:"result"`
}

// EmailReport sends the finished analysis to the customer's inbox.
func (h *Handler) EmailReport(c *gin.Context) {
	var req emailReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "missing email", nil))
		return
	}

	if err := h.mailer.SendReport(c.Request.Context(), req.Email, req.Result); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadGateway, "email_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
