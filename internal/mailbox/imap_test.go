package mailbox

import (
	"encoding/base64"
	"strings"
	"testing"
)

const multipartFixture = "From: \"Jane Doe\" <jane@example.com>\r\n" +
	"Subject: Quarterly invoice\r\n" +
	"Date: Mon, 02 Jun 2025 10:30:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Please find the invoice attached.\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>Please find the invoice attached.</p>\r\n" +
	"--frontier--\r\n"

func TestRawMessageFromRFC822BuildsPartTree(t *testing.T) {
	raw, err := rawMessageFromRFC822("42", []byte(multipartFixture))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}

	if raw.ID != "42" {
		t.Fatalf("expected id 42, got %q", raw.ID)
	}

	headers := map[string]string{}
	for _, h := range raw.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	if got := headers["from"]; !strings.Contains(got, "<jane@example.com>") {
		t.Fatalf("expected raw From header preserved, got %q", got)
	}
	if got := headers["subject"]; got != "Quarterly invoice" {
		t.Fatalf("expected subject header, got %q", got)
	}

	if raw.Payload == nil || !strings.HasPrefix(raw.Payload.MimeType, "multipart/") {
		t.Fatalf("expected multipart payload, got %+v", raw.Payload)
	}
	if len(raw.Payload.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(raw.Payload.Parts))
	}

	plain := raw.Payload.Parts[0]
	if plain.MimeType != "text/plain" {
		t.Fatalf("expected first part text/plain, got %q", plain.MimeType)
	}
	decoded, err := base64.URLEncoding.DecodeString(plain.Data)
	if err != nil {
		t.Fatalf("decoding part data: %v", err)
	}
	if !strings.Contains(string(decoded), "invoice attached") {
		t.Fatalf("unexpected plain body: %q", decoded)
	}
}

func TestRawMessageFromRFC822SinglePart(t *testing.T) {
	fixture := "From: ops@example.com\r\n" +
		"Subject: ping\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"pong\r\n"

	raw, err := rawMessageFromRFC822("7", []byte(fixture))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	if raw.Payload == nil || raw.Payload.MimeType != "text/plain" {
		t.Fatalf("expected single text/plain payload, got %+v", raw.Payload)
	}
	if len(raw.Payload.Parts) != 0 {
		t.Fatalf("expected no child parts, got %d", len(raw.Payload.Parts))
	}
	if raw.Payload.Data == "" {
		t.Fatalf("expected body data to be encoded")
	}
}

func TestParseUIDRejectsNonNumericIDs(t *testing.T) {
	if _, err := parseUID("gmail-style-id"); err == nil {
		t.Fatalf("expected an error for a non-numeric id")
	}
}
