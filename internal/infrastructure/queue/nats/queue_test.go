package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

func TestUploadEventRoundTrip(t *testing.T) {
	raw, err := encodeUploadEvent("  cvs/u1/1-cv.pdf ")
	if err != nil {
		t.Fatalf("encodeUploadEvent() error = %v", err)
	}
	key, err := decodeUploadEvent(raw)
	if err != nil {
		t.Fatalf("decodeUploadEvent() error = %v", err)
	}
	if key != "cvs/u1/1-cv.pdf" {
		t.Fatalf("key = %q", key)
	}
}

func TestDecodeUploadEventAcceptsBareKey(t *testing.T) {
	key, err := decodeUploadEvent([]byte("cvs/u1/1-cv.pdf\n"))
	if err != nil || key != "cvs/u1/1-cv.pdf" {
		t.Fatalf("decodeUploadEvent() = %q, %v", key, err)
	}
}

func TestDecodeUploadEventRejectsMissingKey(t *testing.T) {
	for _, payload := range []string{"", "   ", `{"s3_key":""}`, `{"s3_key":`} {
		if _, err := decodeUploadEvent([]byte(payload)); err == nil {
			t.Fatalf("expected error for payload %q", payload)
		}
	}
}

func TestEncodeUploadEventRequiresKey(t *testing.T) {
	if _, err := encodeUploadEvent(" "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPublishFailureKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{name: "no servers", err: nats.ErrNoServers, kind: domain.ErrTemporary},
		{name: "reconnecting", err: fmt.Errorf("flush: %w", nats.ErrConnectionReconnecting), kind: domain.ErrTemporary},
		{name: "breaker open", err: gobreaker.ErrOpenState, kind: domain.ErrTemporary},
		{name: "payload too large", err: nats.ErrMaxPayload, kind: domain.ErrInvalidInput},
		{name: "unknown", err: errors.New("permissions violation"), kind: domain.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := publishFailure("cvs/u1/1-cv.pdf", tc.err)
			if !domain.IsKind(err, tc.kind) || !errors.Is(err, tc.err) {
				t.Fatalf("publishFailure(%v) = %v, want kind %v", tc.err, err, tc.kind)
			}
		})
	}
	if err := publishFailure("k", context.Canceled); domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled publish must stay a context error: %v", err)
	}
}

func TestClassifyPublishErrorRetriesOnlyConnectionLoss(t *testing.T) {
	if class := classifyPublishError(nats.ErrDisconnected); !class.Retryable || !class.RecordFailure {
		t.Fatalf("disconnect must be retried and counted: %+v", class)
	}
	if class := classifyPublishError(nats.ErrBadSubject); class.Retryable || class.RecordFailure {
		t.Fatalf("bad subject must neither retry nor trip the breaker: %+v", class)
	}
	if class := classifyPublishError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("canceled context must be neither retryable nor a failure: %+v", class)
	}
}
