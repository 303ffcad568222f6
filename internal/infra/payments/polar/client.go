// Package polar talks to the Polar checkout API: session creation, payment
// verification, and the compensating refund.
package polar

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
	apperrors "github.com/kculturecat/stylist-api/pkg/errors"
)

const defaultBaseURL = "https://api.polar.sh/v1"

// Config carries the Polar account settings.
type Config struct {
	AccessToken      string
	BaseURL          string
	ProductID        string
	TerminalStatuses []string
	RefundReason     string
}

// CheckoutSession is the subset of a created session the frontend needs.
type CheckoutSession struct {
	ID  string `json:"checkoutId"`
	URL string `json:"url"`
}

// Client implements stylist.PaymentVerifier and stylist.Refunder.
type Client struct {
	cfg        Config
	terminal   map[string]struct{}
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds the Polar API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	terminal := make(map[string]struct{}, len(cfg.TerminalStatuses))
	for _, status := range cfg.TerminalStatuses {
		terminal[strings.ToLower(strings.TrimSpace(status))] = struct{}{}
	}

	return &Client{
		cfg:      cfg,
		terminal: terminal,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With("component", "payments.polar"),
	}
}

type checkoutWire struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	OrderID       string `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	URL           string `json:"url"`
}

// Verify confirms the checkout reached a terminal paid status and extracts
// the order id required for compensation plus the optional payer contact.
func (c *Client) Verify(ctx context.Context, checkoutID string) (stylist.VerifiedPayment, error) {
	var wire checkoutWire
	if err := c.getCheckout(ctx, checkoutID, &wire); err != nil {
		return stylist.VerifiedPayment{}, apperrors.Wrap(stylist.CodePaymentUnverified, "checkout verification failed", err)
	}

	if _, ok := c.terminal[strings.ToLower(wire.Status)]; !ok {
		return stylist.VerifiedPayment{}, apperrors.Wrap(stylist.CodePaymentIncomplete,
			fmt.Sprintf("payment not completed (status: %s)", wire.Status), nil)
	}

	return stylist.VerifiedPayment{
		OrderID:       wire.OrderID,
		CustomerEmail: wire.CustomerEmail,
	}, nil
}

// Status returns the raw checkout status for frontend polling.
func (c *Client) Status(ctx context.Context, checkoutID string) (string, error) {
	var wire checkoutWire
	if err := c.getCheckout(ctx, checkoutID, &wire); err != nil {
		return "", apperrors.Wrap(stylist.CodePaymentUnverified, "checkout lookup failed", err)
	}
	return wire.Status, nil
}

// Refund issues the compensating refund for a captured order. It never
// returns an error: the caller decides what a false means, and a failing
// compensator must not mask the failure that triggered it.
func (c *Client) Refund(ctx context.Context, orderID string) bool {
	payload, err := json.Marshal(map[string]string{
		"order_id": orderID,
		"reason":   c.cfg.RefundReason,
	})
	if err != nil {
		c.logger.Error("refund payload encode failed", "order_id", orderID, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/refunds", bytes.NewReader(payload))
	if err != nil {
		c.logger.Error("refund request build failed", "order_id", orderID, "error", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("refund request failed", "order_id", orderID, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.logger.Error("refund rejected", "order_id", orderID, "status", resp.StatusCode, "body", string(body))
		return false
	}
	return true
}

// CreateCheckout opens a new checkout session for the configured product.
func (c *Client) CreateCheckout(ctx context.Context, embedOrigin string) (CheckoutSession, error) {
	payload, err := json.Marshal(map[string]string{
		"product_id":   c.cfg.ProductID,
		"embed_origin": embedOrigin,
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("encode checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkouts/", bytes.NewReader(payload))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CheckoutSession{}, apperrors.Wrap(stylist.CodeUpstream, "checkout creation failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return CheckoutSession{}, apperrors.Wrap(stylist.CodeUpstream,
			fmt.Sprintf("checkout creation rejected: status=%d body=%s", resp.StatusCode, string(body)), nil)
	}

	var wire checkoutWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout response: %w", err)
	}
	return CheckoutSession{ID: wire.ID, URL: wire.URL}, nil
}

func (c *Client) getCheckout(ctx context.Context, checkoutID string, out *checkoutWire) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/checkouts/"+checkoutID, nil)
	if err != nil {
		return fmt.Errorf("build checkout lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checkout lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("checkout lookup error: status=%d body=%s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode checkout: %w", err)
	}
	return nil
}
