package models

import (
	"time"
)

// TTL is the fixed lifetime of every clip. It is never recomputed after creation.
const TTL = time.Hour

// TTLMillis is TTL expressed in epoch milliseconds, the unit stored on the wire.
const TTLMillis = int64(TTL / time.Millisecond)

// Kind discriminates how a clip payload is interpreted
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Origin labels the device class that produced a clip. It has no behavioral effect.
type Origin string

const (
	OriginAndroid Origin = "Android"
	OriginWeb     Origin = "Web"
	OriginAgent   Origin = "Agent"
	OriginUnknown Origin = "Unknown"
)

// Payload is the tagged content of a clip. Only TextPayload and ImagePayload implement it,
// so a clip can never carry both text and an image reference.
type Payload interface {
	Kind() Kind
	isPayload()
}

// TextPayload carries plain text content
type TextPayload struct {
	Content string
}

// Kind implements Payload
func (TextPayload) Kind() Kind { return KindText }
func (TextPayload) isPayload() {}

// ImagePayload carries a stable URL returned by the blob-upload collaborator
type ImagePayload struct {
	URL string
}

// Kind implements Payload
func (ImagePayload) Kind() Kind { return KindImage }
func (ImagePayload) isPayload() {}

// Clip represents one synchronized clipboard item
type Clip struct {
	ID        string
	Payload   Payload
	CreatedAt int64 // epoch millis, client-observed
	ExpiresAt int64 // CreatedAt + TTLMillis
	Origin    Origin
}

// NewClip builds a clip without an id, stamped at now. The store assigns the id on write.
func NewClip(payload Payload, now time.Time, origin Origin) Clip {
	created := now.UnixMilli()
	return Clip{
		Payload:   payload,
		CreatedAt: created,
		ExpiresAt: created + TTLMillis,
		Origin:    origin,
	}
}

// Kind returns the payload kind
func (c Clip) Kind() Kind {
	if c.Payload == nil {
		return ""
	}
	return c.Payload.Kind()
}

// Text returns the text content, or "" for image clips
func (c Clip) Text() string {
	if p, ok := c.Payload.(TextPayload); ok {
		return p.Content
	}
	return ""
}

// ImageRef returns the image URL, or "" for text clips
func (c Clip) ImageRef() string {
	if p, ok := c.Payload.(ImagePayload); ok {
		return p.URL
	}
	return ""
}

// IsLive reports whether the clip has not yet expired at the observation instant.
// Liveness is derived from time and can flip to false without any write.
func (c Clip) IsLive(now time.Time) bool {
	return c.ExpiresAt > now.UnixMilli()
}

// FilterLive returns the live clips of list, preserving order. The input is not modified.
func FilterLive(list []Clip, now time.Time) []Clip {
	live := make([]Clip, 0, len(list))
	for _, c := range list {
		if c.IsLive(now) {
			live = append(live, c)
		}
	}
	return live
}
