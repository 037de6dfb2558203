package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// archiveFolders are tried in order when archiving a consumed message.
var archiveFolders = []string{"Archive", "[Gmail]/All Mail", "Archives", "INBOX.Archive"}

// IMAPStore implements Store over IMAP. Every operation dials a fresh
// session; the store keeps no connection state between calls.
type IMAPStore struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	logger   *slog.Logger
}

// NewIMAPStore creates an IMAP-backed mail store.
func NewIMAPStore(host, port, username, password string, useTLS bool, logger *slog.Logger) *IMAPStore {
	return &IMAPStore{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      useTLS,
		logger:   logger,
	}
}

// connect dials the server, authenticates, and selects INBOX.
func (s *IMAPStore) connect(_ context.Context) (*imapclient.Client, error) {
	addr := s.host + ":" + s.port

	var client *imapclient.Client
	var err error
	if s.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("IMAP authentication failed for %s: %w", s.username, err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	return client, nil
}

// ListUnread searches INBOX for unseen messages and returns the most
// recent max of them. The query string is a Gmail-ism and is ignored
// here; unseen state is the filter.
func (s *IMAPStore) ListUnread(ctx context.Context, query string, max int64) ([]Summary, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if max > 0 && int64(len(uids)) > max {
		uids = uids[int64(len(uids))-max:]
	}

	summaries := make([]Summary, 0, len(uids))
	for _, uid := range uids {
		summaries = append(summaries, Summary{ID: strconv.FormatUint(uint64(uid), 10)})
	}
	s.logger.Debug("listed unseen messages", "count", len(summaries))
	return summaries, nil
}

// GetMessage fetches the raw RFC 822 message for the UID and converts
// it into the transport RawMessage shape.
func (s *IMAPStore) GetMessage(ctx context.Context, id string) (*RawMessage, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch: %w", err)
	}

	return rawMessageFromRFC822(id, raw)
}

// MarkRead adds \Seen and then tries to archive the message. Archive
// failures are tolerated; the seen flag is the contract.
func (s *IMAPStore) MarkRead(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uidSet := imap.UIDSetNum(imap.UID(uid))
	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("setting \\Seen on UID %d: %w", uid, err)
	}

	for _, folder := range archiveFolders {
		if _, err := client.Move(uidSet, folder).Wait(); err == nil {
			s.logger.Debug("archived message", "uid", uid, "folder", folder)
			return nil
		}
	}
	s.logger.Debug("no archive mailbox accepted the message; left in INBOX", "uid", uid)
	return nil
}

// GetMetadata reports the message flags, mapping an absent \Seen to
// the UNREAD label for parity with the Gmail backend.
func (s *IMAPStore) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:   true,
		Flags: true,
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting flags for UID %d: %w", uid, err)
	}

	meta := &Metadata{}
	seen := false
	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			seen = true
		}
		meta.Labels = append(meta.Labels, string(flag))
	}
	if !seen {
		meta.Labels = append(meta.Labels, "UNREAD")
	}
	return meta, nil
}

// rawMessageFromRFC822 parses raw message bytes into the header and
// base64url part tree shape shared with the Gmail backend. Header
// values stay in their encoded wire form.
func rawMessageFromRFC822(id string, raw []byte) (*RawMessage, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message %s: %w", id, err)
	}

	out := &RawMessage{ID: id}
	fields := ent.Header.Fields()
	for fields.Next() {
		out.Headers = append(out.Headers, Header{Name: fields.Key(), Value: fields.Value()})
	}

	out.Payload = partFromEntity(ent)
	return out, nil
}

// partFromEntity converts one MIME entity (and its children) into the
// transport Part tree.
func partFromEntity(ent *message.Entity) *Part {
	mimeType, _, err := ent.Header.ContentType()
	if err != nil {
		mimeType = "text/plain"
	}
	part := &Part{MimeType: mimeType}

	if mr := ent.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			part.Parts = append(part.Parts, partFromEntity(child))
		}
		return part
	}

	body, err := io.ReadAll(ent.Body)
	if err == nil && len(body) > 0 {
		part.Data = base64.URLEncoding.EncodeToString(body)
	}
	return part
}

// parseUID converts a string message id to an IMAP UID.
func parseUID(id string) (uint32, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message UID %q: %w", id, err)
	}
	return uint32(uid), nil
}
