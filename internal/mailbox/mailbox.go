// Package mailbox defines the mail store contract and its Gmail and
// IMAP implementations. Messages cross the boundary as RawMessage
// values: an identifier, the raw header pairs, and a tree of MIME
// parts with base64url-encoded content, matching the Gmail wire shape.
package mailbox

import "context"

// Header is one raw message header pair. Values may contain RFC 2047
// encoded words; decoding is the normalizer's job.
type Header struct {
	Name  string
	Value string
}

// Part is one node of a message payload tree. Data holds the part
// content base64url-encoded, and is empty for container parts.
type Part struct {
	MimeType string
	Data     string
	Parts    []*Part
}

// RawMessage is the transport-level representation of one message.
type RawMessage struct {
	ID      string
	Headers []Header
	Payload *Part
}

// Summary identifies one message in an unread listing.
type Summary struct {
	ID string
}

// Metadata is the label/header subset used for status checks.
type Metadata struct {
	Labels  []string
	Headers []Header
}

// Store is the mail store collaborator. Implementations are stateless
// between runs; deduplication belongs to the orchestrator's processed
// set alone.
type Store interface {
	// ListUnread returns summaries of up to max unread messages
	// matching the query.
	ListUnread(ctx context.Context, query string, max int64) ([]Summary, error)

	// GetMessage fetches the full message for the given id.
	GetMessage(ctx context.Context, id string) (*RawMessage, error)

	// MarkRead marks the message as read and removes it from the
	// inbox where the backend supports that.
	MarkRead(ctx context.Context, id string) error

	// GetMetadata fetches the label and header subset for the id.
	GetMetadata(ctx context.Context, id string) (*Metadata, error)
}
