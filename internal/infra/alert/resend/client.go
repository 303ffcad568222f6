// Package resend dispatches operator alerts and customer report emails
// through the Resend API. Alerting is best effort: a failure here must never
// become a secondary point of request failure.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kculturecat/stylist-api/internal/domain/stylist"
)

const defaultBaseURL = "https://api.resend.com"

// Config carries the Resend account settings.
type Config struct {
	APIKey         string
	BaseURL        string
	From           string
	OperatorEmails []string
	Now            func() time.Time
}

// Client implements stylist.Notifier and sends the customer report email.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds the Resend client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With("component", "alert.resend"),
	}
}

type emailPayload struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Content   string `json:"content"`
	Filename  string `json:"filename"`
	ContentID string `json:"content_id"`
}

// NotifyQuotaExhausted pages the operator for a manual billing top-up.
func (c *Client) NotifyQuotaExhausted(ctx context.Context, detail string) {
	html := fmt.Sprintf(`<h2>OpenAI API Credit Alert</h2>
<p><strong>Time:</strong> %s</p>
<p><strong>Error:</strong> %s</p>
<p>The AI Stylist service has been automatically paused. Please recharge the OpenAI API credits immediately.</p>
<p><a href="https://platform.openai.com/settings/organization/billing">Go to OpenAI Billing</a></p>`,
		c.cfg.Now().UTC().Format(time.RFC3339), detail)

	c.sendBestEffort(ctx, emailPayload{
		From:    c.cfg.From,
		To:      c.cfg.OperatorEmails,
		Subject: "[URGENT] AI Stylist - OpenAI API Credit Exhausted",
		HTML:    html,
	})
}

// NotifyRefundFailure pages the operator to execute the refund manually.
func (c *Client) NotifyRefundFailure(ctx context.Context, orderID, cause string) {
	html := fmt.Sprintf(`<h2>Refund Failed Alert</h2>
<p><strong>Time:</strong> %s</p>
<p><strong>Order ID:</strong> %s</p>
<p><strong>Original Error:</strong> %s</p>
<p>The automatic refund failed. Please process this refund manually in the Polar dashboard.</p>`,
		c.cfg.Now().UTC().Format(time.RFC3339), orderID, cause)

	c.sendBestEffort(ctx, emailPayload{
		From:    c.cfg.From,
		To:      c.cfg.OperatorEmails,
		Subject: "[URGENT] Refund Failed - Manual Action Required",
		HTML:    html,
	})
}

// SendReport delivers the analysis to the customer with the generated
// artifacts attached inline.
func (c *Client) SendReport(ctx context.Context, to string, analysis stylist.Analysis) error {
	payload := emailPayload{
		From:    c.cfg.From,
		To:      []string{to},
		Subject: "Your AI Style Analysis Report",
		HTML:    renderReportHTML(analysis),
	}
	if img := analysis.Images.Casual; img != nil {
		payload.Attachments = append(payload.Attachments, attachment{Content: img.Data, Filename: "casual-outfit.png", ContentID: "casual-outfit"})
	}
	if img := analysis.Images.Rainy; img != nil {
		payload.Attachments = append(payload.Attachments, attachment{Content: img.Data, Filename: "rainy-outfit.png", ContentID: "rainy-outfit"})
	}
	if img := analysis.Hairstyle; img != nil {
		payload.Attachments = append(payload.Attachments, attachment{Content: img.Data, Filename: "hairstyle-grid.png", ContentID: "hairstyle-grid"})
	}
	return c.send(ctx, payload)
}

func (c *Client) sendBestEffort(ctx context.Context, payload emailPayload) {
	if err := c.send(ctx, payload); err != nil {
		c.logger.Error("operator alert delivery failed", "subject", payload.Subject, "error", err)
	}
}

func (c *Client) send(ctx context.Context, payload emailPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("email rejected: status=%d body=%s", resp.StatusCode, string(detail))
	}
	return nil
}

func renderReportHTML(analysis stylist.Analysis) string {
	var b strings.Builder
	b.WriteString("<h1>Your AI Style Analysis</h1>")
	if analysis.Location.Country != "" {
		fmt.Fprintf(&b, "<p><strong>%s</strong>", analysis.Location.Country)
		if analysis.Location.Climate != "" {
			fmt.Fprintf(&b, " &mdash; %s", analysis.Location.Climate)
		}
		b.WriteString("</p>")
	}
	if ba := analysis.Report.BodyAnalysis; ba != nil {
		b.WriteString("<h2>Your Style Profile</h2>")
		fmt.Fprintf(&b, "<p><strong>Body Proportions:</strong> %s</p>", ba.Summary)
		fmt.Fprintf(&b, "<p><strong>Color Palette:</strong> %s</p>", ba.SkinTone)
		fmt.Fprintf(&b, "<p><strong>Ideal Silhouette:</strong> %s</p>", ba.Silhouette)
		fmt.Fprintf(&b, "<p><strong>What to Avoid:</strong> %s</p>", ba.Avoid)
	}
	if len(analysis.Report.CommonTips) > 0 {
		b.WriteString("<h2>General Styling Guide</h2><ol>")
		for _, tip := range analysis.Report.CommonTips {
			fmt.Fprintf(&b, "<li>%s</li>", tip)
		}
		b.WriteString("</ol>")
	}
	writeOutfit := func(label, cid string, outfit *stylist.Outfit, img *stylist.GeneratedImage) {
		if outfit == nil {
			return
		}
		fmt.Fprintf(&b, "<h2>%s</h2>", label)
		if img != nil {
			fmt.Fprintf(&b, `<img src="cid:%s" alt="%s" style="width:100%%;max-width:500px;" />`, cid, label)
		}
		fmt.Fprintf(&b, "<h3>%s</h3><p>%s</p>", outfit.Title, outfit.Description)
		if outfit.Tip != "" {
			fmt.Fprintf(&b, "<p><strong>Tip:</strong> %s</p>", outfit.Tip)
		}
	}
	writeOutfit("Casual", "casual-outfit", analysis.Report.Casual, analysis.Images.Casual)
	writeOutfit("Rainy Day", "rainy-outfit", analysis.Report.Rainy, analysis.Images.Rainy)
	if analysis.Hairstyle != nil {
		b.WriteString(`<h2>Trending Korean Hairstyles</h2><img src="cid:hairstyle-grid" alt="Hairstyle grid" style="width:100%;max-width:500px;" />`)
	}
	return b.String()
}
