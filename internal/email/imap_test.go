package email

import (
	"context"
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentsFromStructure(t *testing.T) {
	root := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			{MIMEType: "text", MIMESubType: "plain", Size: 120},
			{
				MIMEType:    "multipart",
				MIMESubType: "related",
				Parts: []*imap.BodyStructure{
					{MIMEType: "text", MIMESubType: "html", Size: 300},
					{
						MIMEType:    "image",
						MIMESubType: "png",
						Params:      map[string]string{"name": "logo.png"},
						Disposition: "inline",
						Encoding:    "base64",
						Size:        400,
					},
				},
			},
			{
				MIMEType:          "application",
				MIMESubType:       "pdf",
				Disposition:       "attachment",
				DispositionParams: map[string]string{"filename": "=?UTF-8?Q?Rechnung_M=C3=A4rz.pdf?="},
				Encoding:          "BASE64",
				Size:              4000,
			},
			{
				MIMEType:    "application",
				MIMESubType: "octet-stream",
				Disposition: "attachment",
				Encoding:    "7bit",
				Size:        10,
			},
		},
	}

	got := attachmentsFromStructure(5, 42, root)
	require.Len(t, got, 3)

	assert.Equal(t, "logo.png", got[0].Filename)
	assert.Equal(t, "image/png", got[0].MimeType)
	assert.Equal(t, "5-42:2.2:base64", got[0].Handle)
	assert.Equal(t, int64(300), got[0].Size)

	assert.Equal(t, "Rechnung März.pdf", got[1].Filename)
	assert.Equal(t, "5-42:3:base64", got[1].Handle)
	assert.Equal(t, int64(3000), got[1].Size)

	assert.Equal(t, "", got[2].Filename, "unnamed attachment parts are kept for the fallback name")
	assert.Equal(t, "5-42:4:7bit", got[2].Handle)
}

func TestAttachmentsFromStructure_SinglePart(t *testing.T) {
	root := &imap.BodyStructure{
		MIMEType:          "application",
		MIMESubType:       "pdf",
		Disposition:       "attachment",
		DispositionParams: map[string]string{"filename": "scan.pdf"},
		Encoding:          "base64",
		Size:              8,
	}
	got := attachmentsFromStructure(5, 7, root)
	require.Len(t, got, 1)
	assert.Equal(t, "5-7:1:base64", got[0].Handle)
}

func TestIMAPHandleRoundTrip(t *testing.T) {
	handle := formatIMAPHandle(1700000000, 99, []int{2, 1, 3}, "Quoted-Printable")
	assert.Equal(t, "1700000000-99:2.1.3:quoted-printable", handle)

	uidValidity, uid, path, encoding, err := parseIMAPHandle(handle)
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), uidValidity)
	assert.Equal(t, uint32(99), uid)
	assert.Equal(t, []int{2, 1, 3}, path)
	assert.Equal(t, "quoted-printable", encoding)

	for _, bad := range []string{
		"", "99", "99:1", "99:1:base64", "1-0:1:base64", "1-x:1:base64",
		"x-5:1:base64", "1-5:1.x:base64", "1-5::base64",
	} {
		_, _, _, _, err := parseIMAPHandle(bad)
		assert.Error(t, err, bad)
	}
}

func TestSearchCriteria(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	c := searchCriteria(models.Query{Since: since, Before: before, From: "alice", Subject: "invoice"})
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), c.Since)
	assert.Equal(t, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), c.Before)
	assert.Equal(t, "alice", c.Header.Get("From"))
	assert.Equal(t, "invoice", c.Header.Get("Subject"))

	empty := searchCriteria(models.Query{})
	assert.True(t, empty.Since.IsZero())
	assert.True(t, empty.Before.IsZero())
	assert.Empty(t, empty.Header)
}

// A message written late on the last day can carry an internal date of the
// following day; the widened search must still cover both dates.
func TestSearchCriteria_CoversDayBoundaries(t *testing.T) {
	until := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	since := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	c := searchCriteria(models.Query{Since: since, Before: until})

	tests := []struct {
		name     string
		internal time.Time
	}{
		{"received after midnight past until", time.Date(2024, 1, 16, 0, 5, 0, 0, time.UTC)},
		{"received late in a western timezone", time.Date(2024, 1, 9, 20, 0, 0, 0, time.FixedZone("EST", -5*3600))},
		{"inside the range", time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := time.Date(tt.internal.Year(), tt.internal.Month(), tt.internal.Day(), 0, 0, 0, 0, time.UTC)
			assert.False(t, day.Before(c.Since), "SINCE excludes %s", day)
			assert.True(t, day.Before(c.Before), "BEFORE excludes %s", day)
		})
	}
}

func TestMessageFromIMAP(t *testing.T) {
	internal := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	sent := time.Date(2024, 4, 30, 22, 0, 0, 0, time.UTC)

	msg := &imap.Message{
		Uid:          17,
		InternalDate: internal,
		Envelope: &imap.Envelope{
			Date:    sent,
			Subject: "=?UTF-8?Q?Bericht?=",
			From:    []*imap.Address{{PersonalName: "Bob", MailboxName: "bob", HostName: "example.com"}},
		},
		BodyStructure: &imap.BodyStructure{
			MIMEType:          "application",
			MIMESubType:       "zip",
			Disposition:       "attachment",
			DispositionParams: map[string]string{"filename": "data.zip"},
			Size:              1,
		},
	}

	m := messageFromIMAP("Archive", 3, msg)
	assert.Equal(t, "3-17", m.ID)
	assert.Equal(t, "Archive", m.Folder)
	assert.Equal(t, "Bericht", m.Subject)
	assert.Equal(t, "Bob <bob@example.com>", m.Sender)
	assert.Equal(t, sent, m.Date)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "data.zip", m.Attachments[0].Filename)
	assert.Equal(t, "3-17:1:", m.Attachments[0].Handle)

	reset := messageFromIMAP("Archive", 4, msg)
	assert.NotEqual(t, m.ID, reset.ID, "a new uidvalidity must yield a new message ID")

	msg.Envelope.Date = time.Time{}
	assert.Equal(t, internal, messageFromIMAP("Archive", 3, msg).Date)
}

func TestIMAPClient_AcquireHonorsContext(t *testing.T) {
	c := NewIMAPClient(IMAPOptions{Provider: ProviderIMAP, Server: "127.0.0.1", Port: 1, PoolSize: 1}, testLogger())
	// Occupy the only slot so acquire has to wait.
	c.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
