package stylist

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/kculturecat/stylist-api/pkg/errors"
	"github.com/kculturecat/stylist-api/pkg/metrics"
)

// Service runs the paid analysis pipeline.
type Service interface {
	Analyze(ctx context.Context, req Request) (Analysis, error)
}

// Config controls pipeline behavior not owned by an adapter.
type Config struct {
	OutfitImageSize    string
	HairstyleImageSize string
}

type service struct {
	cfg      Config
	verifier PaymentVerifier
	refunder Refunder
	text     TextGenerator
	images   ImageGenerator
	notifier Notifier
	guard    CheckoutGuard
	journal  Journal
	archive  ImageArchive
	counter  *metrics.TokenCounter
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires up the stylist pipeline.
func NewService(cfg Config, verifier PaymentVerifier, refunder Refunder, text TextGenerator, images ImageGenerator, notifier Notifier, guard CheckoutGuard, journal Journal, archive ImageArchive, counter *metrics.TokenCounter, logger *slog.Logger) Service {
	return &service{
		cfg:      cfg,
		verifier: verifier,
		refunder: refunder,
		text:     text,
		images:   images,
		notifier: notifier,
		guard:    guard,
		journal:  journal,
		archive:  archive,
		counter:  counter,
		logger:   logger.With("component", "stylist.service"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Analyze drives the saga: verify payment, generate the report, fan out the
// three image generations, assemble. Every failure after payment capture
// funnels through compensate.
func (s *service) Analyze(ctx context.Context, req Request) (Analysis, error) {
	if err := req.validate(); err != nil {
		return Analysis{}, err
	}

	analysisID := s.newID()
	log := s.logger.With("analysis_id", analysisID, "checkout_id", req.CheckoutID)

	fresh, err := s.guard.Consume(ctx, req.CheckoutID)
	if err != nil {
		// The guard is a replay convenience, not the payment gate. Fail open.
		log.Warn("checkout guard unavailable", "error", err)
	} else if !fresh {
		return Analysis{}, apperrors.Wrap(CodeCheckoutConsumed, "checkout already used", nil)
	}

	payment, err := s.verifier.Verify(ctx, req.CheckoutID)
	if err != nil {
		// No paid work has happened yet, so no compensation. Release the id
		// so the customer can retry once the payment completes.
		if gerr := s.guard.Release(context.WithoutCancel(ctx), req.CheckoutID); gerr != nil {
			log.Warn("checkout guard release failed", "error", gerr)
		}
		return Analysis{}, err
	}
	log = log.With("order_id", payment.OrderID)
	log.Info("payment verified")

	prompt := buildTextPrompt(req, s.now())
	if tokens := s.counter.Count(prompt); tokens > 0 {
		usage := metrics.TokenUsage{PromptTokens: tokens, TotalTokens: tokens}
		log.Debug("text prompt built", "prompt_tokens", usage.PromptTokens)
	}

	report, err := s.text.GenerateReport(ctx, prompt)
	if err != nil {
		return Analysis{}, s.compensate(ctx, log, analysisID, req.CheckoutID, payment.OrderID, err)
	}
	log.Info("style report generated")

	images, err := s.generateImages(ctx, req, report)
	if err != nil {
		return Analysis{}, s.compensate(ctx, log, analysisID, req.CheckoutID, payment.OrderID, err)
	}

	analysis := Analysis{
		CustomerEmail: payment.CustomerEmail,
		Location:      Location{Country: req.Country, Climate: report.Climate},
		Report: ReportPayload{
			BodyAnalysis: report.BodyAnalysis,
			CommonTips:   report.CommonTips,
			Casual:       report.Casual,
			Rainy:        report.Rainy,
		},
		Images:    ImageSet{Casual: images[0], Rainy: images[1]},
		Hairstyle: images[2],
	}

	s.archiveImages(ctx, log, payment.OrderID, analysis)
	s.record(ctx, log, JournalEntry{
		ID:         analysisID,
		CheckoutID: req.CheckoutID,
		OrderID:    payment.OrderID,
		Status:     JournalSucceeded,
		CreatedAt:  s.now(),
	})

	log.Info("analysis completed")
	return analysis, nil
}

// generateImages runs the three artifact generations concurrently and joins
// once all have finished. PolicyLetBranchesFinish: a failed branch does not
// cancel its siblings; the refund already covers billed-but-undelivered
// work, so the group deliberately shares no cancelable context.
func (s *service) generateImages(ctx context.Context, req Request, report StyleReport) ([3]*GeneratedImage, error) {
	prompts := [3]ImagePrompt{
		{
			Prompt:   buildOutfitPrompt(req.Gender, req.BodyType, outfitDescription(report.Casual)),
			Photo:    req.Photo,
			MimeType: req.PhotoMimeType,
			Size:     s.cfg.OutfitImageSize,
		},
		{
			Prompt:   buildOutfitPrompt(req.Gender, req.BodyType, outfitDescription(report.Rainy)),
			Photo:    req.Photo,
			MimeType: req.PhotoMimeType,
			Size:     s.cfg.OutfitImageSize,
		},
		{
			Prompt:   buildHairstylePrompt(req.Gender),
			Photo:    req.Photo,
			MimeType: req.PhotoMimeType,
			Size:     s.cfg.HairstyleImageSize,
		},
	}

	var (
		results [3]*GeneratedImage
		errs    [3]error
		g       errgroup.Group
	)
	for i := range prompts {
		i := i
		g.Go(func() error {
			results[i], errs[i] = s.images.GenerateImage(ctx, prompts[i])
			return nil
		})
	}
	_ = g.Wait()

	return results, pickBranchError(errs[:])
}

// pickBranchError chooses the error the pipeline reports. Quota failures
// outrank branch order so the operator always gets paged.
func pickBranchError(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if apperrors.IsCode(err, CodeQuotaExhausted) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// compensate refunds the captured order and pages the operator where human
// intervention is needed. The incoming context may already be expired, so
// compensation runs detached from its cancellation.
func (s *service) compensate(ctx context.Context, log *slog.Logger, analysisID, checkoutID, orderID string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	refunded := s.refunder.Refund(ctx, orderID)
	if refunded {
		log.Info("order refunded", "cause", cause.Error())
	} else {
		log.Error("refund failed, paging operator", "cause", cause.Error())
		s.notifier.NotifyRefundFailure(ctx, orderID, cause.Error())
	}

	quota := apperrors.IsCode(cause, CodeQuotaExhausted)
	if quota {
		s.notifier.NotifyQuotaExhausted(ctx, cause.Error())
	}

	s.record(ctx, log, JournalEntry{
		ID:           analysisID,
		CheckoutID:   checkoutID,
		OrderID:      orderID,
		Status:       JournalFailed,
		Detail:       cause.Error(),
		Refunded:     refunded,
		RefundFailed: !refunded,
		CreatedAt:    s.now(),
	})

	return &PipelineError{
		Cause:              cause,
		Refunded:           refunded,
		RefundFailed:       !refunded,
		ServiceUnavailable: quota,
	}
}

func (s *service) record(ctx context.Context, log *slog.Logger, entry JournalEntry) {
	if err := s.journal.Record(ctx, entry); err != nil {
		log.Warn("journal write failed", "error", err)
	}
}

func (s *service) archiveImages(ctx context.Context, log *slog.Logger, orderID string, analysis Analysis) {
	artifacts := map[string]*GeneratedImage{
		"casual":    analysis.Images.Casual,
		"rainy":     analysis.Images.Rainy,
		"hairstyle": analysis.Hairstyle,
	}
	for name, img := range artifacts {
		if img == nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			log.Warn("archive skip, image not decodable", "artifact", name, "error", err)
			continue
		}
		key := "orders/" + orderID + "/" + name + ".png"
		if err := s.archive.Store(ctx, key, data, img.MimeType); err != nil {
			log.Warn("archive write failed", "artifact", name, "error", err)
		}
	}
}

func outfitDescription(outfit *Outfit) string {
	if outfit == nil {
		return ""
	}
	return outfit.Description
}

func (r Request) validate() error {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(r.Photo) == "" {
		missing = append(missing, "photo")
	}
	if r.Height <= 0 {
		missing = append(missing, "height")
	}
	if r.Weight <= 0 {
		missing = append(missing, "weight")
	}
	if strings.TrimSpace(r.Gender) == "" {
		missing = append(missing, "gender")
	}
	if strings.TrimSpace(r.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return apperrors.Wrap(CodeInvalidInput, "missing required fields: "+strings.Join(missing, ", "), nil)
	}
	if strings.TrimSpace(r.CheckoutID) == "" {
		return apperrors.Wrap(CodeInvalidInput, "missing checkout ID", nil)
	}
	return nil
}
