// Package ingest turns inbound email into ticket drafts.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

// AttachmentMeta describes a file found in an email. The content itself is
// handed to blob storage by the relay, not stored here.
type AttachmentMeta struct {
	FileName  string
	MimeType  string
	SizeBytes int64
}

// Email is the useful part of a parsed message.
type Email struct {
	Subject     string
	FromName    string
	FromAddress string
	Body        string
	Attachments []AttachmentMeta
}

// Parser reads RFC 5322 messages.
type Parser struct {
	maxBody int64
	strip   *bluemonday.Policy
}

// NewParser builds a parser that truncates bodies at maxBody bytes.
func NewParser(maxBody int) *Parser {
	if maxBody <= 0 {
		maxBody = 256 * 1024
	}
	return &Parser{maxBody: int64(maxBody), strip: bluemonday.StrictPolicy()}
}

// Parse extracts subject, sender, body and attachment metadata. A text/plain
// part wins over text/html; html is reduced to text.
func (p *Parser) Parse(raw []byte) (*Email, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	out := &Email{}
	if subject, err := reader.Header.Subject(); err == nil {
		out.Subject = strings.TrimSpace(subject)
	}
	if list, err := reader.Header.AddressList("From"); err == nil && len(list) > 0 {
		out.FromName = strings.TrimSpace(list[0].Name)
		out.FromAddress = strings.ToLower(strings.TrimSpace(list[0].Address))
	}

	var plain, htmlBody string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}
		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mimeType, _, _ := header.ContentType()
			data, err := io.ReadAll(io.LimitReader(part.Body, p.maxBody))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			switch {
			case strings.HasPrefix(mimeType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(data)
				}
			case mimeType == "" || strings.HasPrefix(mimeType, "text/"):
				if plain == "" {
					plain = string(data)
				}
			}
		case *mail.AttachmentHeader:
			name, _ := header.Filename()
			mimeType, _, _ := header.ContentType()
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			size, _ := io.Copy(io.Discard, part.Body)
			out.Attachments = append(out.Attachments, AttachmentMeta{FileName: name, MimeType: mimeType, SizeBytes: size})
		}
	}

	if strings.TrimSpace(plain) != "" {
		out.Body = p.Clean(plain)
	} else {
		out.Body = p.Clean(htmlBody)
	}
	return out, nil
}

// Clean strips markup from text that came from outside the school network.
func (p *Parser) Clean(text string) string {
	stripped := html.UnescapeString(p.strip.Sanitize(text))
	return strings.TrimSpace(strings.ReplaceAll(stripped, "\r\n", "\n"))
}
