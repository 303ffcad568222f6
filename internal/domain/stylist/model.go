package stylist

import (
	"context"
	"time"
)

// Error codes shared by the pipeline and its infrastructure adapters. The
// orchestrator branches on these instead of inspecting upstream payloads.
const (
	CodeInvalidInput      = "invalid_input"
	CodeCheckoutConsumed  = "checkout_consumed"
	CodePaymentUnverified = "payment_unverified"
	CodePaymentIncomplete = "payment_incomplete"
	CodeUpstream          = "upstream_error"
	CodeQuotaExhausted    = "quota_exhausted"
	CodeParse             = "parse_error"
)

// Request is the payload accepted by the analyze endpoint. Photo is base64
// encoded; CheckoutID references an already-created Polar checkout session.
type Request struct {
	Photo         string  `json:"photo"`
	PhotoMimeType string  `json:"photoMimeType"`
	Height        float64 `json:"height"`
	Weight        float64 `json:"weight"`
	Gender        string  `json:"gender"`
	Country       string  `json:"country"`
	BodyType      string  `json:"bodyType"`
	CheckoutID    string  `json:"checkoutId"`
}

// VerifiedPayment is created only after the checkout reached a terminal paid
// status. A non-empty OrderID is the sole trigger for refund compensation.
type VerifiedPayment struct {
	OrderID       string
	CustomerEmail string
}

// StyleReport is the structured document extracted from the text model's
// free-text response. Never mutated after creation.
type StyleReport struct {
	Climate      string        `json:"climate"`
	BodyAnalysis *BodyAnalysis `json:"bodyAnalysis,omitempty"`
	CommonTips   []string      `json:"commonTips,omitempty"`
	Casual       *Outfit       `json:"casual,omitempty"`
	Rainy        *Outfit       `json:"rainy,omitempty"`
}

// BodyAnalysis holds the optional per-person styling sub-analysis.
type BodyAnalysis struct {
	Summary    string `json:"summary"`
	SkinTone   string `json:"skinTone"`
	Silhouette string `json:"silhouette"`
	Avoid      string `json:"avoid"`
}

// Outfit describes one recommended outfit variant.
type Outfit struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tip         string `json:"tip"`
}

// GeneratedImage is one visual artifact. A nil *GeneratedImage is a valid
// terminal state: the image step degraded, the analysis still succeeds.
type GeneratedImage struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Location pairs the requested country with the inferred climate.
type Location struct {
	Country string `json:"country"`
	Climate string `json:"climate"`
}

// ReportPayload is the report section of a successful analysis.
type ReportPayload struct {
	BodyAnalysis *BodyAnalysis `json:"bodyAnalysis"`
	CommonTips   []string      `json:"commonTips"`
	Casual       *Outfit       `json:"casual"`
	Rainy        *Outfit       `json:"rainy"`
}

// ImageSet groups the outfit artifacts keyed the way the frontend reads them.
type ImageSet struct {
	Casual *GeneratedImage `json:"casual"`
	Rainy  *GeneratedImage `json:"rainy"`
}

// Analysis is the success payload of one pipeline run.
type Analysis struct {
	CustomerEmail string          `json:"customerEmail,omitempty"`
	Location      Location        `json:"location"`
	Report        ReportPayload   `json:"report"`
	Images        ImageSet        `json:"images"`
	Hairstyle     *GeneratedImage `json:"hairstyle"`
}

// PipelineError is the failure outcome of a run after payment questions have
// been settled. The flags drive the HTTP body so the client can render
// refund messaging without a second round trip.
type PipelineError struct {
	Cause              error
	Refunded           bool
	RefundFailed       bool
	ServiceUnavailable bool
}

func (e *PipelineError) Error() string {
	return e.Cause.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ImagePrompt is one image-edit invocation against the provider.
type ImagePrompt struct {
	Prompt   string
	Photo    string
	MimeType string
	Size     string
}

// JournalEntry records the outcome of one paid analysis for reconciliation.
type JournalEntry struct {
	ID           string
	CheckoutID   string
	OrderID      string
	Status       string
	Detail       string
	Refunded     bool
	RefundFailed bool
	CreatedAt    time.Time
}

// Journal statuses.
const (
	JournalSucceeded = "succeeded"
	JournalFailed    = "failed"
)

// PaymentVerifier confirms a checkout session reached a paid state.
type PaymentVerifier interface {
	Verify(ctx context.Context, checkoutID string) (VerifiedPayment, error)
}

// Refunder issues the compensating refund. It never returns an error: a
// failed refund must not mask the failure that triggered it.
type Refunder interface {
	Refund(ctx context.Context, orderID string) bool
}

// TextGenerator produces the style report from a prompt.
type TextGenerator interface {
	GenerateReport(ctx context.Context, prompt string) (StyleReport, error)
}

// ImageGenerator produces one visual artifact, or nil when the provider
// returned no payload.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImagePrompt) (*GeneratedImage, error)
}

// Notifier pages the operator out of band. Best effort: implementations log
// and swallow their own failures.
type Notifier interface {
	NotifyQuotaExhausted(ctx context.Context, detail string)
	NotifyRefundFailure(ctx context.Context, orderID, cause string)
}

// CheckoutGuard makes a checkout id consumable exactly once per process
// fleet. Consume reports false when the id was already spent.
type CheckoutGuard interface {
	Consume(ctx context.Context, checkoutID string) (bool, error)
	Release(ctx context.Context, checkoutID string) error
}

// Journal persists analysis outcomes so refunds can be reconciled manually.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// ImageArchive keeps a copy of generated artifacts in object storage.
type ImageArchive interface {
	Store(ctx context.Context, key string, data []byte, mimeType string) error
}
