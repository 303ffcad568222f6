package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
	"github.com/kculturecat/stylist-api/internal/infra/httpretry"
	apperrors "github.com/kculturecat/stylist-api/pkg/errors"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Message mirrors the OpenAI chat message structure.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the payload sent to the chat completions API.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
}

// ChatCompletionResponse captures the non-streaming response shape.
type ChatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type imageEditResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Config carries the provider settings for both call types.
type Config struct {
	APIKey        string
	BaseURL       string
	TextModel     string
	ImageModel    string
	Temperature   float32
	TextAttempts  int
	ImageAttempts int
}

// Client performs HTTP requests against the OpenAI API. It implements both
// stylist.TextGenerator and stylist.ImageGenerator.
type Client struct {
	cfg    Config
	caller *httpretry.Caller
	logger *slog.Logger
}

// NewClient constructs an OpenAI client.
func NewClient(cfg Config, caller *httpretry.Caller, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key cannot be empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		caller: caller,
		logger: logger.With("component", "llm.openai"),
	}, nil
}

// NewHTTPClient builds the underlying transport shared by both call types.
func NewHTTPClient() *http.Client {
	// No per-call deadline here: the pipeline timeout bounds the request and
	// the retry schedule bounds each attempt loop.
	return &http.Client{Timeout: 5 * time.Minute}
}

// GenerateReport runs one chat completion and extracts the style report
// embedded in the free-text reply.
func (c *Client) GenerateReport(ctx context.Context, prompt string) (stylist.StyleReport, error) {
	payload, err := json.Marshal(ChatCompletionRequest{
		Model:       c.cfg.TextModel,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return stylist.StyleReport{}, fmt.Errorf("encode chat completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return stylist.StyleReport{}, fmt.Errorf("build chat completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.caller.Do(req, httpretry.Transient, c.cfg.TextAttempts)
	if err != nil {
		return stylist.StyleReport{}, apperrors.Wrap(stylist.CodeUpstream, "chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return stylist.StyleReport{}, c.classifyFailure("chat completion", resp)
	}

	var out ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return stylist.StyleReport{}, apperrors.Wrap(stylist.CodeParse, "decode chat completion response", err)
	}
	if len(out.Choices) == 0 {
		return stylist.StyleReport{}, apperrors.Wrap(stylist.CodeParse, "chat completion returned no choices", nil)
	}

	report, err := extractReport(out.Choices[0].Message.Content)
	if err != nil {
		return stylist.StyleReport{}, err
	}
	return report, nil
}

// GenerateImage runs one image edit. A 2xx response without an image payload
// yields (nil, nil): a missing artifact degrades, it does not fail.
func (c *Client) GenerateImage(ctx context.Context, prompt stylist.ImagePrompt) (*stylist.GeneratedImage, error) {
	photo, err := base64.StdEncoding.DecodeString(prompt.Photo)
	if err != nil {
		return nil, apperrors.Wrap(stylist.CodeInvalidInput, "photo is not valid base64", err)
	}

	body, contentType, err := buildImageEditForm(c.cfg.ImageModel, prompt, photo)
	if err != nil {
		return nil, fmt.Errorf("build image edit form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/edits", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build image edit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.caller.Do(req, httpretry.Transient, c.cfg.ImageAttempts)
	if err != nil {
		return nil, apperrors.Wrap(stylist.CodeUpstream, "image edit request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.classifyFailure("image edit", resp)
	}

	var out imageEditResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Wrap(stylist.CodeParse, "decode image edit response", err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, nil
	}
	return &stylist.GeneratedImage{MimeType: "image/png", Data: out.Data[0].B64JSON}, nil
}

// classifyFailure maps an exhausted-retry failure to the pipeline's closed
// error set. 402/429 surviving the retry budget means the account is out of
// credit, not momentarily rate limited.
func (c *Client) classifyFailure(call string, resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	detail := fmt.Sprintf("%s failed: status=%d body=%s", call, resp.StatusCode, string(payload))
	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Error("provider quota exhausted", "call", call, "status", resp.StatusCode)
		return apperrors.Wrap(stylist.CodeQuotaExhausted, detail, nil)
	}
	return apperrors.Wrap(stylist.CodeUpstream, detail, nil)
}

func buildImageEditForm(model string, prompt stylist.ImagePrompt, photo []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("model", model); err != nil {
		return nil, "", err
	}
	ext := "jpg"
	if strings.Contains(prompt.MimeType, "png") {
		ext = "png"
	}
	part, err := form.CreateFormFile("image[]", "photo."+ext)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(photo); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("prompt", prompt.Prompt); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("n", "1"); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("size", prompt.Size); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("quality", "medium"); err != nil {
		return nil, "", err
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}

// extractReport finds the first balanced-brace JSON object in the model's
// reply, deserializes it, and validates the minimum usable shape.
func extractReport(content string) (stylist.StyleReport, error) {
	raw, ok := firstJSONObject(content)
	if !ok {
		return stylist.StyleReport{}, apperrors.Wrap(stylist.CodeParse, "no JSON object found in model response", nil)
	}

	var report stylist.StyleReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return stylist.StyleReport{}, apperrors.Wrap(stylist.CodeParse, "model response JSON malformed", err)
	}
	if outfitEmpty(report.Casual) && outfitEmpty(report.Rainy) {
		return stylist.StyleReport{}, apperrors.Wrap(stylist.CodeParse, "model response missing outfit recommendations", nil)
	}
	return report, nil
}

func outfitEmpty(outfit *stylist.Outfit) bool {
	return outfit == nil || strings.TrimSpace(outfit.Description) == ""
}

// firstJSONObject scans for the first balanced top-level brace pair,
// skipping braces inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
