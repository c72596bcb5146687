//go:build unit

package smtp

import (
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixedBuilder() *MessageBuilder {
	return &MessageBuilder{now: func() time.Time {
		return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	}}
}

func TestBuild_Headers(t *testing.T) {
	built, err := newFixedBuilder().Build(Envelope{
		From:     "sender@example.com",
		To:       "a@x.com",
		Subject:  "Monthly report",
		HTMLBody: "<h1>Report</h1>",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(built.Data)))
	require.NoError(t, err)

	assert.Equal(t, "<sender@example.com>", msg.Header.Get("From"))
	assert.Equal(t, "<a@x.com>", msg.Header.Get("To"))
	assert.Equal(t, "Monthly report", msg.Header.Get("Subject"))
	assert.Equal(t, "Fri, 01 Mar 2024 10:30:00 +0000", msg.Header.Get("Date"))
	assert.Equal(t, "1.0", msg.Header.Get("MIME-Version"))
	assert.Equal(t, "text/html; charset=utf-8", msg.Header.Get("Content-Type"))
	assert.Equal(t, "quoted-printable", msg.Header.Get("Content-Transfer-Encoding"))
	assert.Regexp(t, `^<[0-9a-f-]{36}@example\.com>$`, msg.Header.Get("Message-Id"))
	assert.Equal(t, "sender@example.com", built.From)
	assert.Equal(t, "a@x.com", built.To)

	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	assert.Equal(t, "<h1>Report</h1>\r\n", string(body))
}

func TestBuild_NonAsciiSubjectIsEncoded(t *testing.T) {
	built, err := newFixedBuilder().Build(Envelope{
		From:    "sender@example.com",
		To:      "a@x.com",
		Subject: "Offerta speciale è qui",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(built.Data)))
	require.NoError(t, err)

	encoded := msg.Header.Get("Subject")
	assert.True(t, strings.HasPrefix(encoded, "=?utf-8?q?"))

	decoded, err := new(mime.WordDecoder).DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, "Offerta speciale è qui", decoded)
}

func TestBuild_LongHtmlLinesAreWrapped(t *testing.T) {
	html := "<p>" + strings.Repeat("lorem ipsum ", 40) + "</p>"

	built, err := newFixedBuilder().Build(Envelope{From: "sender@example.com", To: "a@x.com", HTMLBody: html})
	require.NoError(t, err)

	for _, line := range strings.Split(string(built.Data), "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}

	msg, err := mail.ReadMessage(strings.NewReader(string(built.Data)))
	require.NoError(t, err)
	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	assert.Equal(t, html+"\r\n", string(body))
}

func TestBuild_DisplayNamesAreStrippedFromEnvelopeAddresses(t *testing.T) {
	built, err := newFixedBuilder().Build(Envelope{From: "Sales <sender@example.com>", To: "Bob <b@x.com>"})
	require.NoError(t, err)

	assert.Equal(t, "sender@example.com", built.From)
	assert.Equal(t, "b@x.com", built.To)

	msg, err := mail.ReadMessage(strings.NewReader(string(built.Data)))
	require.NoError(t, err)
	assert.Equal(t, `"Bob" <b@x.com>`, msg.Header.Get("To"))
}

func TestBuild_LongSubjectIsFoldedWithoutLoss(t *testing.T) {
	subject := strings.Repeat("word ", 300) + "END"

	built, err := newFixedBuilder().Build(Envelope{From: "sender@example.com", To: "a@x.com", Subject: subject})
	require.NoError(t, err)

	head, _, _ := strings.Cut(string(built.Data), "\r\n\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}

	msg, err := mail.ReadMessage(strings.NewReader(string(built.Data)))
	require.NoError(t, err)
	assert.Equal(t, subject, msg.Header.Get("Subject"))
}

func TestBuild_LongNonAsciiSubjectRoundTrips(t *testing.T) {
	subject := strings.Repeat("perché ", 60) + "FINE"

	built, err := newFixedBuilder().Build(Envelope{From: "sender@example.com", To: "a@x.com", Subject: subject})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(built.Data)))
	require.NoError(t, err)
	decoded, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, subject, decoded)
}

func TestBuild_UnbreakableSubjectOverLineLimitFails(t *testing.T) {
	_, err := newFixedBuilder().Build(Envelope{
		From:    "sender@example.com",
		To:      "a@x.com",
		Subject: strings.Repeat("x", 1200),
	})

	require.ErrorIs(t, err, errHeaderTooLong)
	assert.Contains(t, err.Error(), "failed to write header Subject")
}

func TestBuild_RejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		envelope Envelope
		expected string
	}{
		{"bad recipient", Envelope{From: "sender@example.com", To: "nobody"}, "invalid recipient address"},
		{"bad sender", Envelope{From: "", To: "a@x.com"}, "invalid sender address"},
		{"subject injection", Envelope{From: "sender@example.com", To: "a@x.com", Subject: "hi\r\nBcc: victim@x.com"}, "subject: header value contains a line break"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := newFixedBuilder().Build(c.envelope)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expected)
		})
	}
}
