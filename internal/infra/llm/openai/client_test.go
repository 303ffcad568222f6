package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
	"github.com/kculturecat/stylist-api/internal/infra/httpretry"
	apperrors "github.com/kculturecat/stylist-api/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	caller := httpretry.New(http.DefaultClient, 0, testLogger())
	client, err := NewClient(Config{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		TextModel:     "gpt-4.1-mini",
		ImageModel:    "gpt-image-1",
		Temperature:   0.7,
		TextAttempts:  3,
		ImageAttempts: 2,
	}, caller, testLogger())
	require.NoError(t, err)
	return client
}

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	caller := httpretry.New(http.DefaultClient, 0, testLogger())
	_, err := NewClient(Config{APIKey: "  "}, caller, testLogger())
	require.Error(t, err)
}

func TestGenerateReportExtractsEmbeddedJSON(t *testing.T) {
	reportJSON := `{
		"climate": "humid subtropical",
		"bodyAnalysis": {"summary": "balanced proportions", "skinTone": "warm undertones", "silhouette": "straight cuts", "avoid": "oversized layers"},
		"commonTips": ["prefer breathable fabrics", "stick to two colors"],
		"casual": {"title": "Weekend Linen", "description": "linen shirt with tapered chinos", "tip": "roll the sleeves"},
		"rainy": {"title": "City Drizzle", "description": "water-resistant trench over dark denim", "tip": "ankle boots keep hems dry"}
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4.1-mini", req.Model)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)

		_, _ = w.Write(chatReply(t, "Here is your style report:\n```json\n"+reportJSON+"\n```\nEnjoy!"))
	}))
	defer srv.Close()

	report, err := newTestClient(t, srv.URL).GenerateReport(context.Background(), "analyze me")
	require.NoError(t, err)
	require.Equal(t, "humid subtropical", report.Climate)
	require.NotNil(t, report.BodyAnalysis)
	require.Equal(t, "balanced proportions", report.BodyAnalysis.Summary)
	require.Equal(t, []string{"prefer breathable fabrics", "stick to two colors"}, report.CommonTips)
	require.NotNil(t, report.Casual)
	require.Equal(t, "Weekend Linen", report.Casual.Title)
	require.NotNil(t, report.Rainy)
	require.Equal(t, "ankle boots keep hems dry", report.Rainy.Tip)
}

func TestGenerateReportClassifiesQuotaExhaustion(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GenerateReport(context.Background(), "analyze me")
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, stylist.CodeQuotaExhausted))
	// Full retry budget is spent before the failure is classified.
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerateReportNonRetryableFailureIsUpstream(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GenerateReport(context.Background(), "analyze me")
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, stylist.CodeUpstream))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateReportRejectsReplyWithoutJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply(t, "Sorry, I cannot help with that."))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GenerateReport(context.Background(), "analyze me")
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, stylist.CodeParse))
}

func TestGenerateReportRejectsReportWithoutOutfits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply(t, `{"climate": "temperate", "commonTips": ["layers"]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GenerateReport(context.Background(), "analyze me")
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, stylist.CodeParse))
}

func TestGenerateImageSendsMultipartForm(t *testing.T) {
	photo := base64.StdEncoding.EncodeToString([]byte("fake-photo-bytes"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/edits", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(4<<20))

		require.Equal(t, "gpt-image-1", r.FormValue("model"))
		require.Equal(t, "a casual outfit", r.FormValue("prompt"))
		require.Equal(t, "1", r.FormValue("n"))
		require.Equal(t, "1024x1536", r.FormValue("size"))
		require.Equal(t, "medium", r.FormValue("quality"))

		files := r.MultipartForm.File["image[]"]
		require.Len(t, files, 1)
		require.Equal(t, "photo.png", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		defer f.Close()
		raw, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, "fake-photo-bytes", string(raw))

		_, _ = w.Write([]byte(`{"data":[{"b64_json":"Z2VuZXJhdGVk"}]}`))
	}))
	defer srv.Close()

	img, err := newTestClient(t, srv.URL).GenerateImage(context.Background(), stylist.ImagePrompt{
		Prompt:   "a casual outfit",
		Photo:    photo,
		MimeType: "image/png",
		Size:     "1024x1536",
	})
	require.NoError(t, err)
	require.NotNil(t, img)
	require.Equal(t, "image/png", img.MimeType)
	require.Equal(t, "Z2VuZXJhdGVk", img.Data)
}

func TestGenerateImageEmptyDataIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	photo := base64.StdEncoding.EncodeToString([]byte("x"))
	img, err := newTestClient(t, srv.URL).GenerateImage(context.Background(), stylist.ImagePrompt{
		Prompt: "p", Photo: photo, MimeType: "image/jpeg", Size: "1024x1024",
	})
	require.NoError(t, err)
	require.Nil(t, img)
}

func TestGenerateImageQuotaExhaustion(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	photo := base64.StdEncoding.EncodeToString([]byte("x"))
	_, err := newTestClient(t, srv.URL).GenerateImage(context.Background(), stylist.ImagePrompt{
		Prompt: "p", Photo: photo, MimeType: "image/jpeg", Size: "1024x1024",
	})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, stylist.CodeQuotaExhausted))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateImageRejectsInvalidBase64(t *testing.T) {
	_, err := newTestClient(t, "http://unused.invalid").GenerateImage(context.Background(), stylist.ImagePrompt{
		Prompt: "p", Photo: "not base64!!!", MimeType: "image/jpeg", Size: "1024x1024",
	})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, stylist.CodeInvalidInput))
}

func TestFirstJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "sure: {\"a\":1} done", `{"a":1}`, true},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"brace inside string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"hi\" {now}"}`, `{"a":"say \"hi\" {now}"}`, true},
		{"no object", "nothing here", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := firstJSONObject(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}
