package parser

import (
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
)

var wordDecoder = mime.WordDecoder{}

// DecodeHeader decodes RFC 2047 encoded words, returning the input when
// decoding fails.
func DecodeHeader(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(decoded)
}

// ParseEmailAddress parses an email address string into name and address components
func ParseEmailAddress(emailStr string) (name, address string) {
	if emailStr == "" {
		return "", ""
	}

	addr, err := mail.ParseAddress(emailStr)
	if err != nil {
		if start := strings.Index(emailStr, "<"); start != -1 {
			if end := strings.Index(emailStr[start:], ">"); end != -1 {
				address = emailStr[start+1 : start+end]
				name = DecodeHeader(strings.Trim(strings.TrimSpace(emailStr[:start]), `"`))
				return
			}
		}
		return "", strings.TrimSpace(emailStr)
	}

	return addr.Name, addr.Address
}

// FormatAddress formats name and address into a standard email address string
func FormatAddress(name, address string) string {
	if name == "" {
		return address
	}
	if address == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// fallbackDateFormats covers Date headers net/mail rejects.
var fallbackDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006 15:04:05 -0700",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"2006-01-02",
}

// ParseDate parses a Date header. It returns the zero time when nothing
// matches, so date filters fail closed.
func ParseDate(dateStr string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(dateStr); err == nil {
		return t
	}

	// Trailing comments such as "(UTC)" or "(Pacific Standard Time)".
	if idx := strings.Index(dateStr, "("); idx != -1 {
		dateStr = strings.TrimSpace(dateStr[:idx])
		if t, err := mail.ParseDate(dateStr); err == nil {
			return t
		}
	}

	for _, format := range fallbackDateFormats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t
		}
	}
	return time.Time{}
}
