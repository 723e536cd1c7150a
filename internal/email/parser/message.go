package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/DusanKasan/parsemail"
	"github.com/jhillyerd/enmime"
)

// Message is a fully parsed message with its attachment contents.
type Message struct {
	MessageID   string
	Sender      string
	Subject     string
	Date        time.Time
	Attachments []Part
}

// Part is one attachment of a parsed message.
type Part struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ParseMessage parses a raw RFC 5322 message with enmime, falling back to
// parsemail for messages enmime rejects.
func ParseMessage(raw []byte, logger *slog.Logger) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err == nil {
		return fromEnvelope(raw, env), nil
	}

	logger.Debug("enmime failed, trying parsemail", "error", err)
	email, fallbackErr := parsemail.Parse(bytes.NewReader(raw))
	if fallbackErr != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return fromParsemail(raw, email)
}

func fromEnvelope(raw []byte, env *enmime.Envelope) *Message {
	msg := &Message{
		MessageID: strings.Trim(env.GetHeader("Message-ID"), "<> "),
		Subject:   strings.TrimSpace(env.GetHeader("Subject")),
		Date:      ParseDate(env.GetHeader("Date")),
	}
	if msg.MessageID == "" {
		msg.MessageID = GenerateUniqueMessageID(raw)
	}
	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = FormatAddress(from[0].Name, from[0].Address)
	} else {
		name, addr := ParseEmailAddress(env.GetHeader("From"))
		msg.Sender = FormatAddress(name, addr)
	}

	for _, p := range env.Attachments {
		msg.Attachments = append(msg.Attachments, Part{
			Filename:    p.FileName,
			ContentType: strings.ToLower(p.ContentType),
			Content:     p.Content,
		})
	}
	// Inline parts only count when they are named files.
	for _, p := range env.Inlines {
		if p.FileName == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, Part{
			Filename:    p.FileName,
			ContentType: strings.ToLower(p.ContentType),
			Content:     p.Content,
		})
	}
	return msg
}

func fromParsemail(raw []byte, email parsemail.Email) (*Message, error) {
	msg := &Message{
		MessageID: strings.Trim(email.MessageID, "<> "),
		Subject:   DecodeHeader(email.Subject),
		Date:      email.Date,
	}
	if msg.MessageID == "" {
		msg.MessageID = GenerateUniqueMessageID(raw)
	}
	if len(email.From) > 0 {
		msg.Sender = formatMailAddress(email.From[0])
	}

	for _, a := range email.Attachments {
		content, err := io.ReadAll(a.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", a.Filename, err)
		}
		msg.Attachments = append(msg.Attachments, Part{
			Filename:    DecodeHeader(a.Filename),
			ContentType: strings.ToLower(a.ContentType),
			Content:     content,
		})
	}
	return msg, nil
}

func formatMailAddress(a *mail.Address) string {
	if a == nil {
		return ""
	}
	return FormatAddress(a.Name, a.Address)
}
