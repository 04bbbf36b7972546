package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/infrastructure/resilience"
)

// transientPublishErrors clear once the client reconnects; anything else
// fails the same way on every attempt.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrReconnectBufExceeded,
}

var rejectedPublishErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case isAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, rejectedPublishErrors):
		// the payload is at fault, not the server
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishFailure maps a failed upload announcement onto a domain error kind.
// Temporary failures leave the record pending for the sweep to re-send.
func publishFailure(storageKey string, err error) error {
	op := "publish cv uploaded"
	detail := fmt.Errorf("storage_key=%s: %w", storageKey, err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case resilience.IsCircuitOpen(err), isAny(err, transientPublishErrors):
		return domain.WrapError(domain.ErrTemporary, op, detail)
	case isAny(err, rejectedPublishErrors):
		return domain.WrapError(domain.ErrInvalidInput, op, detail)
	default:
		return domain.WrapError(domain.ErrUpstream, op, detail)
	}
}
