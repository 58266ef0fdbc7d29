// Package timeline reconciles live and historical Matrix message events into
// per-room, deduplicated, chronologically grouped timelines.
package timeline

import (
	"strings"
	"time"
)

// MalformedPlaceholder is rendered in place of a missing message body.
const MalformedPlaceholder = "<ERROR: NO MESSAGE BODY>"

type ContentKind int

const (
	// ContentMalformed is the zero value: an event without a usable body.
	ContentMalformed ContentKind = iota
	ContentText
)

// Content is decided once at ingest time.
type Content struct {
	Kind ContentKind
	Text string
}

func TextContent(body string) Content {
	if strings.TrimSpace(body) == "" {
		return MalformedContent()
	}
	return Content{Kind: ContentText, Text: body}
}

func MalformedContent() Content {
	return Content{Kind: ContentMalformed}
}

func (c Content) Malformed() bool { return c.Kind == ContentMalformed }

// Display returns the body text, or the placeholder for malformed content.
func (c Content) Display() string {
	if c.Kind == ContentMalformed {
		return MalformedPlaceholder
	}
	return c.Text
}

// Event is one chat message. Events are immutable once ingested.
type Event struct {
	ID        string
	RoomID    string
	Sender    string
	Timestamp time.Time
	Content   Content

	seq int64
}

// Seq is the insertion sequence assigned by the store. Zero until ingested.
func (e Event) Seq() int64 { return e.seq }

// Before reports whether e sorts before other by (timestamp, sequence).
func (e Event) Before(other Event) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.seq < other.seq
}

// FromMillis converts a server timestamp in epoch milliseconds.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
