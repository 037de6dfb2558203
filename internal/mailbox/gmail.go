package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailUser is the special user id for the authenticated account.
const gmailUser = "me"

// GmailStore implements Store on the Gmail API.
type GmailStore struct {
	svc    *gmail.Service
	logger *slog.Logger
}

// NewGmailStore builds a Gmail-backed store from an authenticated
// HTTP client.
func NewGmailStore(ctx context.Context, client *http.Client, logger *slog.Logger) (*GmailStore, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailStore{svc: svc, logger: logger}, nil
}

// ListUnread lists up to max message ids matching the query.
func (s *GmailStore) ListUnread(ctx context.Context, query string, max int64) ([]Summary, error) {
	resp, err := s.svc.Users.Messages.List(gmailUser).
		Q(query).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing unread messages: %w", err)
	}

	summaries := make([]Summary, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		summaries = append(summaries, Summary{ID: m.Id})
	}
	s.logger.Debug("listed unread messages", "count", len(summaries), "query", query)
	return summaries, nil
}

// GetMessage fetches the full message and converts the payload tree.
func (s *GmailStore) GetMessage(ctx context.Context, id string) (*RawMessage, error) {
	msg, err := s.svc.Users.Messages.Get(gmailUser, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", shortID(id), err)
	}

	raw := &RawMessage{ID: msg.Id}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			raw.Headers = append(raw.Headers, Header{Name: h.Name, Value: h.Value})
		}
		raw.Payload = convertPart(msg.Payload)
	}
	return raw, nil
}

// MarkRead removes the UNREAD and INBOX labels, archiving the
// message, then verifies the result via a metadata fetch. The
// verification is advisory; its failure does not fail the mark.
func (s *GmailStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.svc.Users.Messages.Modify(gmailUser, id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD", "INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("marking message %s as read: %w", shortID(id), err)
	}

	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		s.logger.Debug("mark-read verification skipped", "id", shortID(id), "error", err)
		return nil
	}
	for _, label := range meta.Labels {
		if label == "UNREAD" {
			s.logger.Warn("message still carries UNREAD after modify", "id", shortID(id))
			return nil
		}
	}
	s.logger.Debug("verified message marked read", "id", shortID(id))
	return nil
}

// GetMetadata fetches the label set and basic headers for a message.
func (s *GmailStore) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	msg, err := s.svc.Users.Messages.Get(gmailUser, id).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", shortID(id), err)
	}

	meta := &Metadata{Labels: msg.LabelIds}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			meta.Headers = append(meta.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	return meta, nil
}

// convertPart maps a gmail payload node onto the transport Part tree.
func convertPart(p *gmail.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := &Part{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}

// shortID truncates a message id for log output.
func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}
