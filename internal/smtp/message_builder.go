package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxLineLen  = 998
	foldLineLen = 76
)

var (
	errHeaderInjection = errors.New("header value contains a line break")
	errHeaderTooLong   = fmt.Errorf("header line exceeds %d characters", maxLineLen)
)

// Envelope is one message addressed to exactly one recipient.
type Envelope struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

// Message is a rendered envelope. From and To are bare addresses for MAIL and RCPT.
type Message struct {
	From string
	To   string
	Data []byte
}

type MessageBuilder struct {
	now func() time.Time
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{now: time.Now}
}

func (b *MessageBuilder) Build(env Envelope) (Message, error) {
	from, err := mail.ParseAddress(env.From)
	if err != nil {
		return Message{}, fmt.Errorf("invalid sender address: %w", err)
	}

	to, err := mail.ParseAddress(env.To)
	if err != nil {
		return Message{}, fmt.Errorf("invalid recipient address: %w", err)
	}

	if strings.ContainsAny(env.Subject, "\r\n") {
		return Message{}, fmt.Errorf("subject: %w", errHeaderInjection)
	}

	headers := []struct{ key, value string }{
		{"From", from.String()},
		{"To", to.String()},
		{"Date", b.now().Format(time.RFC1123Z)},
		{"Subject", mime.QEncoding.Encode("utf-8", env.Subject)},
		{"Message-Id", b.messageId(from.Address)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=utf-8"},
		{"Content-Transfer-Encoding", "quoted-printable"},
	}

	var buf bytes.Buffer
	for _, h := range headers {
		if err := b.writeFoldedHeader(&buf, h.key, h.value); err != nil {
			return Message{}, fmt.Errorf("failed to write header %s: %w", h.key, err)
		}
	}

	if _, err := buf.Write([]byte("\r\n")); err != nil {
		return Message{}, fmt.Errorf("failed to write newline after headers: %w", err)
	}

	writer := quotedprintable.NewWriter(&buf)
	if _, err := writer.Write([]byte(env.HTMLBody)); err != nil {
		return Message{}, fmt.Errorf("failed to write body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return Message{}, fmt.Errorf("failed to close quoted-printable writer: %w", err)
	}

	if _, err := buf.Write([]byte("\r\n")); err != nil {
		return Message{}, fmt.Errorf("failed to write blank line after body: %w", err)
	}

	return Message{From: from.Address, To: to.Address, Data: buf.Bytes()}, nil
}

func (b *MessageBuilder) messageId(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func (b *MessageBuilder) canFoldHeader(key string) bool {
	unfoldable := []string{
		"From", "To", "Message-Id",
		"Content-Type", "Content-Transfer-Encoding",
	}

	for _, header := range unfoldable {
		if strings.EqualFold(key, header) {
			return false
		}
	}

	return true
}

// writeFoldedHeader folds before whitespace so that unfolding restores value exactly.
// A line that still exceeds maxLineLen is an error, never truncated.
func (b *MessageBuilder) writeFoldedHeader(target io.Writer, key, value string) error {
	line := key + ": " + value

	var lines []string
	minCut := len(key) + 1
	for b.canFoldHeader(key) && len(line) > foldLineLen {
		cut := strings.LastIndexByte(line[:foldLineLen+1], ' ')
		if cut <= minCut {
			next := strings.IndexByte(line[minCut+1:], ' ')
			if next < 0 {
				break
			}
			cut = minCut + 1 + next
		}

		lines = append(lines, line[:cut])
		line = line[cut:]
		minCut = 1
	}
	lines = append(lines, line)

	for _, l := range lines {
		if len(l) > maxLineLen {
			return errHeaderTooLong
		}
	}

	_, err := io.WriteString(target, strings.Join(lines, "\r\n")+"\r\n")
	return err
}
