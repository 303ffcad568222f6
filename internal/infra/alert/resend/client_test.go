package resend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:         "resend-key",
		BaseURL:        baseURL,
		From:           "AI Stylist <alerts@example.com>",
		OperatorEmails: []string{"ops@example.com"},
		Now:            func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	}, testLogger())
}

func decodeEmail(t *testing.T, r *http.Request) emailPayload {
	t.Helper()
	var payload emailPayload
	require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	return payload
}

func TestNotifyQuotaExhausted(t *testing.T) {
	var got emailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emails", r.URL.Path)
		require.Equal(t, "Bearer resend-key", r.Header.Get("Authorization"))
		got = decodeEmail(t, r)
	}))
	defer srv.Close()

	newTestClient(srv.URL).NotifyQuotaExhausted(context.Background(), "status=429 insufficient_quota")

	require.Equal(t, []string{"ops@example.com"}, got.To)
	require.Equal(t, "[URGENT] AI Stylist - OpenAI API Credit Exhausted", got.Subject)
	require.Contains(t, got.HTML, "insufficient_quota")
	require.Contains(t, got.HTML, "2026-08-28T12:00:00Z")
}

func TestNotifyRefundFailure(t *testing.T) {
	var got emailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeEmail(t, r)
	}))
	defer srv.Close()

	newTestClient(srv.URL).NotifyRefundFailure(context.Background(), "ord_9", "image edit failed: status=500")

	require.Equal(t, "[URGENT] Refund Failed - Manual Action Required", got.Subject)
	require.Contains(t, got.HTML, "ord_9")
	require.Contains(t, got.HTML, "image edit failed: status=500")
}

func TestNotifySwallowsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// Must not panic or surface the failure in any way.
	newTestClient(srv.URL).NotifyQuotaExhausted(context.Background(), "detail")
	newTestClient(srv.URL).NotifyRefundFailure(context.Background(), "ord_9", "cause")
}

func TestSendReportAttachesGeneratedImages(t *testing.T) {
	var got emailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeEmail(t, r)
	}))
	defer srv.Close()

	analysis := stylist.Analysis{
		Location: stylist.Location{Country: "South Korea", Climate: "humid continental"},
		Report: stylist.ReportPayload{
			CommonTips: []string{"keep it simple"},
			Casual:     &stylist.Outfit{Title: "Weekend Linen", Description: "linen shirt", Tip: "roll the sleeves"},
			Rainy:      &stylist.Outfit{Title: "City Drizzle", Description: "trench coat"},
		},
		Images: stylist.ImageSet{
			Casual: &stylist.GeneratedImage{MimeType: "image/png", Data: "casual-b64"},
			Rainy:  &stylist.GeneratedImage{MimeType: "image/png", Data: "rainy-b64"},
		},
		Hairstyle: &stylist.GeneratedImage{MimeType: "image/png", Data: "hair-b64"},
	}

	err := newTestClient(srv.URL).SendReport(context.Background(), "jamie@example.com", analysis)
	require.NoError(t, err)

	require.Equal(t, []string{"jamie@example.com"}, got.To)
	require.Equal(t, "Your AI Style Analysis Report", got.Subject)
	require.Len(t, got.Attachments, 3)
	require.Equal(t, "casual-b64", got.Attachments[0].Content)
	require.Equal(t, "casual-outfit.png", got.Attachments[0].Filename)
	require.Equal(t, "hairstyle-grid.png", got.Attachments[2].Filename)
	require.Contains(t, got.HTML, "South Korea")
	require.Contains(t, got.HTML, "Weekend Linen")
	require.Contains(t, got.HTML, `cid:rainy-outfit`)
}

func TestSendReportSkipsMissingArtifacts(t *testing.T) {
	var got emailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeEmail(t, r)
	}))
	defer srv.Close()

	analysis := stylist.Analysis{
		Report: stylist.ReportPayload{Casual: &stylist.Outfit{Title: "t", Description: "d"}},
	}
	err := newTestClient(srv.URL).SendReport(context.Background(), "jamie@example.com", analysis)
	require.NoError(t, err)
	require.Empty(t, got.Attachments)
}

func TestSendReportSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendReport(context.Background(), "jamie@example.com", stylist.Analysis{})
	require.Error(t, err)
}
