package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
	"github.com/arqon/siteapi/internal/infrastructure/ratelimit"
	"github.com/arqon/siteapi/internal/ports"
)

// EmailLimiter throttles submissions per sender address
type EmailLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimitError is returned when the sender address is over its budget
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many submissions, retry after %d seconds", e.RetryAfter)
}

// TransportError wraps mail delivery failures. The wrapped error is for
// logs only and must not reach the client.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "mail transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ContactService delivers contact form submissions
type ContactService struct {
	notifier ports.Notifier
	limiter  EmailLimiter
	logger   *logger.Logger

	mu       sync.Mutex
	verified bool
}

// NewContactService creates a new contact service
func NewContactService(notifier ports.Notifier, limiter EmailLimiter, logger *logger.Logger) *ContactService {
	return &ContactService{
		notifier: notifier,
		limiter:  limiter,
		logger:   logger,
	}
}

// Submit verifies the transport on first use, applies the per-address limit,
// sends the notification and then a best-effort confirmation.
func (s *ContactService) Submit(ctx context.Context, sub entities.ContactSubmission) (*ports.ContactResult, error) {
	if err := s.ensureVerified(ctx); err != nil {
		return nil, err
	}

	key := strings.ToLower(sub.Email)
	decision, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Warnw("Email rate limiter unavailable, allowing submission", "error", err)
	} else if !decision.Allowed {
		s.logger.LogSecurityEvent("email_rate_limited", sub.IP, map[string]interface{}{
			"email":       key,
			"retry_after": decision.RetryAfterSeconds(),
		})
		return nil, &RateLimitError{RetryAfter: decision.RetryAfterSeconds()}
	}

	// Delivery continues when the client goes away mid-request.
	sendCtx := context.WithoutCancel(ctx)

	messageID, err := s.notifier.Notify(sendCtx, sub)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	s.logger.Infow("Contact notification sent", "message_id", messageID, "ip", sub.IP)

	if err := s.notifier.Confirm(sendCtx, sub); err != nil {
		s.logger.Warnw("Confirmation email failed", "error", err, "message_id", messageID)
	}

	return &ports.ContactResult{MessageID: messageID}, nil
}

// Health verifies the mail transport without sending anything
func (s *ContactService) Health(ctx context.Context) error {
	if err := s.notifier.Verify(ctx); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (s *ContactService) ensureVerified(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verified {
		return nil
	}
	if err := s.notifier.Verify(ctx); err != nil {
		return &TransportError{Err: err}
	}
	s.verified = true
	return nil
}
