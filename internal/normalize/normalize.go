// Package normalize turns raw mail-store messages into canonical
// records and projects them into tabular rows. It owns every
// extraction rule: sender address parsing, encoded-word subject
// decoding, date normalization, body selection across MIME parts,
// HTML stripping, and signature removal.
package normalize

import (
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"

	"github.com/avelis/mailsheets/internal/mailbox"
)

// maxBodyLen caps the cleaned body in characters; longer bodies are
// truncated with a trailing ellipsis.
const maxBodyLen = 2000

// maxRawDateLen caps the fallback, in characters, when no date layout
// parses.
const maxRawDateLen = 50

// timestampLayout is the normalized output format.
const timestampLayout = "2006-01-02 15:04:05"

// Record is the canonical representation of one message. It is not
// mutated after creation except to attach MatchedKeywords.
type Record struct {
	MessageID       string
	Sender          string
	Subject         string
	Timestamp       string
	Body            string
	MatchedKeywords []string
}

var addrPattern = regexp.MustCompile(`<([^>]+)>`)

// dateLayouts are tried in order against the first 25 characters of
// the Date header: RFC 2822 with and without weekday, then ISO-like.
var dateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04:05",
	"02 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"2006-01-02 15:04:05",
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	brPattern     = regexp.MustCompile(`(?i)<br\s*/?>`)
	pPattern      = regexp.MustCompile(`(?i)<p[^>]*>`)
	divPattern    = regexp.MustCompile(`(?i)<div[^>]*>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// signaturePatterns strip trailing signature blocks from the match
// point to the end of the text.
var signaturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)--\s*\n(?s:.*)$`),
	regexp.MustCompile(`(?is)Sent from my.*$`),
	regexp.MustCompile(`(?is)________________________________.*$`),
	regexp.MustCompile(`(?is)Best regards,.*$`),
}

// wordDecoder decodes RFC 2047 encoded words, resolving charsets via
// go-message and passing unknown charsets through as-is so a decode
// failure degrades instead of erroring.
var wordDecoder = mime.WordDecoder{
	CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
		r, err := charset.Reader(cs, input)
		if err != nil {
			return input, nil
		}
		return r, nil
	},
}

// Normalize converts a raw message into a canonical record. It fails
// only on structurally malformed input (no payload at all); callers
// skip such items and continue the batch. All content-level decode
// problems degrade to fallback values instead of failing.
func Normalize(msg *mailbox.RawMessage) (*Record, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	if msg.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", msg.ID)
	}

	id := msg.ID
	if id == "" {
		// Last-resort fallback; an empty id is a caller error.
		id = "unknown"
	}

	return &Record{
		MessageID: id,
		Sender:    extractSender(msg.Headers),
		Subject:   extractSubject(msg.Headers),
		Timestamp: extractTimestamp(msg.Headers),
		Body:      cleanBody(extractBody(msg.Payload)),
	}, nil
}

// ToRow projects a record into the fixed 4-cell tabular row
// [sender, subject, timestamp, body]. A nil record yields nil.
func ToRow(r *Record) []string {
	if r == nil {
		return nil
	}
	return []string{r.Sender, r.Subject, r.Timestamp, r.Body}
}

// extractSender returns the angle-bracketed address from the From
// header when present, otherwise the raw value.
func extractSender(headers []mailbox.Header) string {
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "From") {
			continue
		}
		if m := addrPattern.FindStringSubmatch(h.Value); m != nil {
			return m[1]
		}
		return h.Value
	}
	return "Unknown Sender"
}

// extractSubject decodes encoded-word sequences in the Subject
// header, falling back to the raw value when decoding fails.
func extractSubject(headers []mailbox.Header) string {
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "Subject") {
			continue
		}
		decoded, err := wordDecoder.DecodeHeader(h.Value)
		if err != nil {
			return strings.TrimSpace(h.Value)
		}
		return strings.TrimSpace(decoded)
	}
	return "No Subject"
}

// extractTimestamp parses the Date header against the layout ladder
// and reformats the first match. When nothing parses, the raw value
// truncated to 50 characters stands in.
func extractTimestamp(headers []mailbox.Header) string {
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "Date") {
			continue
		}
		value := h.Value
		runes := []rune(value)
		head := runes
		if len(head) > 25 {
			head = head[:25]
		}
		trimmed := strings.TrimSpace(string(head))

		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.Format(timestampLayout)
			}
		}

		if len(runes) > maxRawDateLen {
			return string(runes[:maxRawDateLen])
		}
		return value
	}
	return "Unknown Date"
}

// extractBody selects the message body: the first decodable
// text/plain part wins; failing that, the first text/html part is
// decoded and stripped to text; single-part payloads decode directly.
// Decode failures yield an empty body, never an error.
func extractBody(payload *mailbox.Part) string {
	if len(payload.Parts) > 0 {
		for _, part := range payload.Parts {
			if part.MimeType != "text/plain" || part.Data == "" {
				continue
			}
			if text, ok := decodeBase64(part.Data); ok {
				return text
			}
		}
		for _, part := range payload.Parts {
			if part.MimeType != "text/html" || part.Data == "" {
				continue
			}
			if content, ok := decodeBase64(part.Data); ok {
				return htmlToText(content)
			}
		}
		return ""
	}

	if payload.Data == "" {
		return ""
	}
	text, _ := decodeBase64(payload.Data)
	return text
}

// decodeBase64 decodes base64url content, tolerating both padded and
// unpadded forms.
func decodeBase64(data string) (string, bool) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// htmlToText strips markup to a plain-text approximation: script and
// style blocks removed wholesale, block-level openings become
// newlines, remaining tags become spaces, entities are decoded.
func htmlToText(content string) string {
	content = scriptPattern.ReplaceAllString(content, "")
	content = stylePattern.ReplaceAllString(content, "")
	content = brPattern.ReplaceAllString(content, "\n")
	content = pPattern.ReplaceAllString(content, "\n")
	content = divPattern.ReplaceAllString(content, "\n")
	content = tagPattern.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	return strings.Join(strings.Fields(content), " ")
}

// cleanBody collapses whitespace, decodes entities, strips trailing
// signature blocks, and caps the result at 2000 characters. An empty
// result becomes the literal "No body content".
func cleanBody(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	body = html.UnescapeString(body)

	for _, pattern := range signaturePatterns {
		body = pattern.ReplaceAllString(body, "")
	}

	if runes := []rune(body); len(runes) > maxBodyLen {
		body = string(runes[:maxBodyLen-3]) + "..."
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return "No body content"
	}
	return body
}
