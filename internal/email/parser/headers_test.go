package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc5322", "Tue, 05 Mar 2024 10:30:00 +0000", want},
		{"single digit day", "Tue, 5 Mar 2024 10:30:00 +0000", want},
		{"trailing comment", "Tue, 5 Mar 2024 10:30:00 +0000 (UTC)", want},
		{"iso", "2024-03-05T10:30:00Z", want},
		{"garbage", "not a date", time.Time{}},
		{"empty", "", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.input)
			if tt.want.IsZero() {
				assert.True(t, got.IsZero())
				return
			}
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseEmailAddress(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantAddr string
	}{
		{"Alice <alice@example.com>", "Alice", "alice@example.com"},
		{"bob@example.com", "", "bob@example.com"},
		{"\"Broken, Name\" <b@x.org", "", "\"Broken, Name\" <b@x.org"},
		{"=?UTF-8?Q?J=C3=BCrgen?= <j@example.de>", "Jürgen", "j@example.de"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, addr := ParseEmailAddress(tt.input)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "Alice <a@x.org>", FormatAddress("Alice", "a@x.org"))
	assert.Equal(t, "a@x.org", FormatAddress("", "a@x.org"))
	assert.Equal(t, "Alice", FormatAddress("Alice", ""))
}

func TestDecodeHeader(t *testing.T) {
	assert.Equal(t, "Rechnung März.pdf", DecodeHeader("=?UTF-8?B?UmVjaG51bmcgTcOkcnoucGRm?="))
	assert.Equal(t, "plain.txt", DecodeHeader("plain.txt"))
}
