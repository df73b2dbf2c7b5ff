package cache

import (
	"encoding/json"
	"time"
)

// Entry is the envelope every backend stores. Expiry is decided from
// CreatedAt and TTLSeconds by the reader, so a backend that keeps an entry
// slightly longer than its TTL never serves it stale.
type Entry struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
	TTLSeconds int             `json:"ttl_seconds"`
	Tags       []string        `json:"tags,omitempty"`
}

func (e *Entry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL())
}

// Readable reports whether now < CreatedAt + TTL. At exactly the expiry
// instant the entry is already unreadable.
func (e *Entry) Readable(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Value = append(json.RawMessage(nil), e.Value...)
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}
