package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
	"github.com/kculturecat/stylist-api/internal/infra/config"
	"github.com/kculturecat/stylist-api/internal/infra/payments/polar"
	apperrors "github.com/kculturecat/stylist-api/pkg/errors"
)

type stubService struct {
	analysis stylist.Analysis
	err      error
	lastReq  stylist.Request
}

func (s *stubService) Analyze(ctx context.Context, req stylist.Request) (stylist.Analysis, error) {
	s.lastReq = req
	if s.err != nil {
		return stylist.Analysis{}, s.err
	}
	return s.analysis, nil
}

type stubGateway struct {
	session    polar.CheckoutSession
	status     string
	err        error
	lastOrigin string
	lastID     string
}

func (s *stubGateway) CreateCheckout(ctx context.Context, embedOrigin string) (polar.CheckoutSession, error) {
	s.lastOrigin = embedOrigin
	if s.err != nil {
		return polar.CheckoutSession{}, s.err
	}
	return s.session, nil
}

func (s *stubGateway) Status(ctx context.Context, checkoutID string) (string, error) {
	s.lastID = checkoutID
	if s.err != nil {
		return "", s.err
	}
	return s.status, nil
}

type stubMailer struct {
	err    error
	lastTo string
}

func (s *stubMailer) SendReport(ctx context.Context, to string, analysis stylist.Analysis) error {
	s.lastTo = to
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:   ":0",
			RateLimit: config.RateLimitConfig{Enabled: false},
		},
	}
}

func newTestRouter(svc stylist.Service, gateway CheckoutGateway, mailer ReportMailer) http.Handler {
	handler := NewHandler(svc, gateway, mailer, 5*time.Second, testLogger())
	return NewRouter(testConfig(), handler, testLogger()).Handler
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validAnalyzeBody() string {
	return `{"photo":"cGhvdG8=","photoMimeType":"image/jpeg","height":175,"weight":68,"gender":"female","country":"South Korea","bodyType":"slim","checkoutId":"chk_1"}`
}

func TestAnalyzeRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubGateway{}, &stubMailer{})

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"height":"tall"`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"invalid request body"}`, w.Body.String())
}

func TestAnalyzeMapsErrorCodesToStatuses(t *testing.T) {
	cases := []struct {
		code   string
		status int
	}{
		{stylist.CodeInvalidInput, http.StatusBadRequest},
		{stylist.CodeCheckoutConsumed, http.StatusConflict},
		{stylist.CodePaymentUnverified, http.StatusBadGateway},
		{stylist.CodePaymentIncomplete, http.StatusPaymentRequired},
		{stylist.CodeUpstream, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &stubService{err: apperrors.Wrap(tc.code, "rejected: "+tc.code, nil)}
			router := newTestRouter(svc, &stubGateway{}, &stubMailer{})

			w := doJSON(t, router, http.MethodPost, "/analyze", validAnalyzeBody())
			require.Equal(t, tc.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, "rejected: "+tc.code, body["error"])
		})
	}
}

func TestAnalyzePipelineFailureReportsRefundState(t *testing.T) {
	svc := &stubService{err: &stylist.PipelineError{
		Cause:    apperrors.Wrap(stylist.CodeUpstream, "image edit failed", nil),
		Refunded: true,
	}}
	router := newTestRouter(svc, &stubGateway{}, &stubMailer{})

	w := doJSON(t, router, http.MethodPost, "/analyze", validAnalyzeBody())
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{
		"error": "image edit failed",
		"refunded": true,
		"refundFailed": false,
		"serviceUnavailable": false
	}`, w.Body.String())
}

func TestAnalyzeQuotaExhaustionIsServiceUnavailable(t *testing.T) {
	svc := &stubService{err: &stylist.PipelineError{
		Cause:              apperrors.Wrap(stylist.CodeQuotaExhausted, "chat completion failed: status=429", nil),
		Refunded:           true,
		ServiceUnavailable: true,
	}}
	router := newTestRouter(svc, &stubGateway{}, &stubMailer{})

	w := doJSON(t, router, http.MethodPost, "/analyze", validAnalyzeBody())
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["serviceUnavailable"])
	require.Equal(t, true, body["refunded"])
}

func TestAnalyzeSuccessReturnsAnalysis(t *testing.T) {
	svc := &stubService{analysis: stylist.Analysis{
		CustomerEmail: "jamie@example.com",
		Location:      stylist.Location{Country: "South Korea", Climate: "humid continental"},
		Report: stylist.ReportPayload{
			Casual: &stylist.Outfit{Title: "Weekend Linen", Description: "linen shirt"},
		},
		Images: stylist.ImageSet{
			Casual: &stylist.GeneratedImage{MimeType: "image/png", Data: "casual-b64"},
		},
	}}
	router := newTestRouter(svc, &stubGateway{}, &stubMailer{})

	w := doJSON(t, router, http.MethodPost, "/analyze", validAnalyzeBody())
	require.Equal(t, http.StatusOK, w.Code)

	var analysis stylist.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	require.Equal(t, "jamie@example.com", analysis.CustomerEmail)
	require.Equal(t, "humid continental", analysis.Location.Climate)
	require.NotNil(t, analysis.Images.Casual)
	require.Equal(t, "casual-b64", analysis.Images.Casual.Data)
	require.Nil(t, analysis.Hairstyle)

	require.Equal(t, "chk_1", svc.lastReq.CheckoutID)
}

func TestCreateCheckoutUsesOriginHeader(t *testing.T) {
	gateway := &stubGateway{session: polar.CheckoutSession{ID: "chk_new", URL: "https://polar.sh/checkout/chk_new"}}
	router := newTestRouter(&stubService{}, gateway, &stubMailer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkouts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://app.example.com", gateway.lastOrigin)
	require.JSONEq(t, `{"checkoutId":"chk_new","url":"https://polar.sh/checkout/chk_new"}`, w.Body.String())
}

func TestCreateCheckoutFailureIsBadGateway(t *testing.T) {
	gateway := &stubGateway{err: apperrors.Wrap(stylist.CodeUpstream, "checkout creation rejected", nil)}
	router := newTestRouter(&stubService{}, gateway, &stubMailer{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkouts", "")
	require.Equal(t, http.StatusBadGateway, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "checkout_failed", body.Error.Code)
}

func TestCheckoutStatus(t *testing.T) {
	gateway := &stubGateway{status: "open"}
	router := newTestRouter(&stubService{}, gateway, &stubMailer{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/checkouts/chk_1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "chk_1", gateway.lastID)
	require.JSONEq(t, `{"status":"open"}`, w.Body.String())
}

func TestEmailReportRequiresEmail(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubGateway{}, &stubMailer{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/reports/email", `{"email":"  ","result":{}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body.Error.Code)
}

func TestEmailReportSendsToRequestedAddress(t *testing.T) {
	mailer := &stubMailer{}
	router := newTestRouter(&stubService{}, &stubGateway{}, mailer)

	w := doJSON(t, router, http.MethodPost, "/api/v1/reports/email", `{"email":"jamie@example.com","result":{"location":{"country":"South Korea","climate":""}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "jamie@example.com", mailer.lastTo)
	require.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	handler := NewHandler(&stubService{}, &stubGateway{status: "open"}, &stubMailer{}, time.Second, testLogger())
	router := NewRouter(cfg, handler, testLogger()).Handler

	first := doJSON(t, router, http.MethodGet, "/api/v1/checkouts/chk_1/status", "")
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, router, http.MethodGet, "/api/v1/checkouts/chk_1/status", "")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}
