// Package generation orchestrates a single image-generation request: reserve
// a credit, call the provider with bounded retry, extract the artifact from a
// response of unknown shape, and commit or refund the reservation.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/glamlab/stylist-gateway/internal/apperr"
	"github.com/glamlab/stylist-gateway/internal/history"
	"github.com/glamlab/stylist-gateway/internal/initdata"
	"github.com/glamlab/stylist-gateway/internal/ledger"
	"github.com/glamlab/stylist-gateway/internal/logging"
	"github.com/glamlab/stylist-gateway/internal/metrics"
	"github.com/glamlab/stylist-gateway/internal/provider"
)

// Config tunes the orchestrator.
type Config struct {
	// MaxAttempts bounds provider calls per request, first attempt included.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt; it doubles on
	// each subsequent attempt.
	InitialBackoff time.Duration
	// AttemptTimeout is the deadline attached to each provider attempt.
	AttemptTimeout time.Duration
	// ChargeOnEcho keeps the debit when the provider returns the input image
	// unchanged. Off by default: no value was delivered.
	ChargeOnEcho bool
}

// Service coordinates the ledger, the history store and the provider.
type Service struct {
	ledger    ledger.Ledger
	history   history.Store
	generator provider.ImageGenerator
	metrics   *metrics.Metrics
	logger    *logging.Logger
	cfg       Config
}

// New creates the orchestrator. Metrics may be nil.
func New(l ledger.Ledger, h history.Store, g provider.ImageGenerator, m *metrics.Metrics, logger *logging.Logger, cfg Config) *Service {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		ledger:    l,
		history:   h,
		generator: g,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// Request is one generation attempt for an authenticated or guest identity.
type Request struct {
	Identity     *initdata.Identity
	Primary      provider.Image
	Reference    *provider.Image
	Instructions string
}

// Result is a successful generation.
type Result struct {
	Artifact Artifact
	Balance  int
	// Echo marks that the provider returned the input unchanged and the
	// credit was refunded.
	Echo bool
}

// Generate runs the request through the full state machine. Every path that
// debits a credit ends in exactly one of commit or refund, including client
// disconnects while the provider call is outstanding.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	log := s.logger.WithContext(ctx)

	balance, err := s.ledger.TryDebit(ctx, req.Identity.Key, 1)
	if err != nil {
		s.recordOutcome("out_of_credit")
		if s.metrics != nil {
			s.metrics.RecordDenied()
		}
		log.Info("generation rejected: out of credit")
		return nil, err
	}

	// The reservation is resolved on the detached context so a client
	// disconnect cannot leave a debited-but-unresolved credit behind.
	resolveCtx := context.WithoutCancel(ctx)
	committed := false
	defer func() {
		if committed {
			return
		}
		if _, rerr := s.ledger.Refund(resolveCtx, req.Identity.Key, 1); rerr != nil {
			log.WithError(rerr).Error("credit refund failed")
			return
		}
		if s.metrics != nil {
			s.metrics.RecordRefund()
		}
	}()

	prompt := composePrompt(req.Instructions, req.Reference != nil)
	images := []provider.Image{req.Primary}
	if req.Reference != nil {
		images = append(images, *req.Reference)
	}

	body, err := s.callProvider(ctx, provider.Request{Prompt: prompt, Images: images})
	if err != nil {
		s.recordOutcome("provider_unavailable")
		log.WithError(err).Warn("provider call failed after retries")
		return nil, apperr.ProviderUnavailable(err)
	}

	if reason, rejected := policyRejection(body); rejected {
		s.recordOutcome("rejected_by_policy")
		log.WithFields(map[string]interface{}{"reason": reason}).Info("generation rejected by policy")
		return nil, apperr.RejectedByPolicy(reason)
	}

	artifact, strategy := extractArtifact(body)
	if artifact == nil {
		s.recordOutcome("extraction_failed")
		log.Warn("no artifact in provider response")
		return nil, apperr.ExtractionFailed(summarize(body))
	}

	if bytes.Equal(artifact.Data, req.Primary.Data) && !s.cfg.ChargeOnEcho {
		// Provider echoed the input. The deferred refund resolves the
		// reservation; the artifact is still returned so the client can see
		// what happened, but it does not enter the history.
		s.recordOutcome("echo")
		log.Info("provider echoed input image, credit refunded")
		return &Result{Artifact: *artifact, Balance: balance + 1, Echo: true}, nil
	}

	committed = true
	if s.metrics != nil {
		s.metrics.RecordDebit()
	}

	entry := history.Entry{
		Artifact:  artifact.Data,
		MimeType:  artifact.MimeType,
		Prompt:    req.Instructions,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.history.Append(resolveCtx, req.Identity.Key, entry); err != nil {
		// The debit stands; losing a history entry is not worth failing the
		// generation the user already paid for.
		log.WithError(err).Error("history append failed")
	}

	s.recordOutcome("success")
	log.WithFields(map[string]interface{}{"strategy": strategy}).Info("generation succeeded")
	return &Result{Artifact: *artifact, Balance: balance}, nil
}

// callProvider invokes the generator with exponential backoff on transient
// failures. Permanent provider errors and policy-level outcomes are never
// retried; retrying an ambiguous response would only burn quota.
func (s *Service) callProvider(ctx context.Context, preq provider.Request) (json.RawMessage, error) {
	operation := func() (json.RawMessage, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		defer cancel()

		body, err := s.generator.Generate(attemptCtx, preq)
		if err != nil {
			if errors.Is(err, provider.ErrUnavailable) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return body, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second

	return backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxAttempts-1)), ctx))
}

func (s *Service) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordGeneration(outcome)
	}
}

// summarize trims a response body for error details without dumping megabytes
// of JSON at the client.
func summarize(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}
