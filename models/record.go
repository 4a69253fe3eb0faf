package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRecord is returned when a stored record cannot be turned into a Clip
var ErrMalformedRecord = errors.New("malformed clip record")

// Record is the persisted shape of a clip. Kind and Origin are free-form strings at the
// storage layer; ToClip validates and normalizes them on read.
type Record struct {
	ID        string `json:"id" bson:"-" dynamodbav:"id"`
	Kind      string `json:"kind" bson:"kind" dynamodbav:"kind"`
	Content   string `json:"content" bson:"content" dynamodbav:"content"`
	ImageRef  string `json:"imageRef" bson:"imageRef" dynamodbav:"imageRef"`
	CreatedAt int64  `json:"createdAt" bson:"createdAt" dynamodbav:"createdAt"`
	ExpiresAt int64  `json:"expiresAt" bson:"expiresAt" dynamodbav:"expiresAt"`
	Origin    string `json:"origin" bson:"origin" dynamodbav:"origin"`
}

// ToRecord converts a clip to its persisted shape
func ToRecord(c Clip) Record {
	return Record{
		ID:        c.ID,
		Kind:      string(c.Kind()),
		Content:   c.Text(),
		ImageRef:  c.ImageRef(),
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
		Origin:    string(c.Origin),
	}
}

// ToClip validates a record read from the store and converts it to a Clip
func (r Record) ToClip() (Clip, error) {
	if r.ID == "" {
		return Clip{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if r.ExpiresAt <= 0 {
		return Clip{}, fmt.Errorf("%w: %s has no expiry", ErrMalformedRecord, r.ID)
	}

	var payload Payload
	switch Kind(strings.ToLower(strings.TrimSpace(r.Kind))) {
	case KindText:
		if r.Content == "" {
			return Clip{}, fmt.Errorf("%w: %s is text without content", ErrMalformedRecord, r.ID)
		}
		payload = TextPayload{Content: r.Content}
	case KindImage:
		if r.ImageRef == "" {
			return Clip{}, fmt.Errorf("%w: %s is image without reference", ErrMalformedRecord, r.ID)
		}
		payload = ImagePayload{URL: r.ImageRef}
	default:
		return Clip{}, fmt.Errorf("%w: %s has unknown kind %q", ErrMalformedRecord, r.ID, r.Kind)
	}

	return Clip{
		ID:        r.ID,
		Payload:   payload,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Origin:    NormalizeOrigin(r.Origin),
	}, nil
}

// NormalizeOrigin maps a free-form device label onto a known Origin
func NormalizeOrigin(s string) Origin {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "android":
		return OriginAndroid
	case "web":
		return OriginWeb
	case "agent":
		return OriginAgent
	default:
		return OriginUnknown
	}
}
