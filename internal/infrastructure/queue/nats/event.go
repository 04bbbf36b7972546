package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

// uploadEvent is the wire form of a "cv uploaded" notification. A bare
// storage key payload is accepted as well.
type uploadEvent struct {
	StorageKey  string    `json:"s3_key"`
	PublishedAt time.Time `json:"published_at"`
}

func encodeUploadEvent(storageKey string) ([]byte, error) {
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode upload event", errors.New("storage key is required"))
	}
	raw, err := json.Marshal(uploadEvent{StorageKey: storageKey, PublishedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal upload event: %w", err)
	}
	return raw, nil
}

func decodeUploadEvent(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", errors.New("empty upload event")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	var evt uploadEvent
	if err := json.Unmarshal([]byte(trimmed), &evt); err != nil {
		return "", fmt.Errorf("decode upload event: %w", err)
	}
	key := strings.TrimSpace(evt.StorageKey)
	if key == "" {
		return "", errors.New("upload event without storage key")
	}
	return key, nil
}
