package filter

import (
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAttachment() models.Attachment {
	return models.Attachment{
		MessageID: "1",
		Filename:  "Invoice-2024.PDF",
		MimeType:  "application/pdf",
		Size:      2048,
		Sender:    "Billing <billing@acme.com>",
		Subject:   "Your March invoice",
		Date:      time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestMatches(t *testing.T) {
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		criteria Criteria
		modify   func(*models.Attachment)
		want     string
	}{
		{name: "empty criteria match everything", criteria: Criteria{}},
		{name: "extension case-insensitive", criteria: Criteria{Extensions: []string{".pdf"}}},
		{name: "extension without dot", criteria: Criteria{Extensions: []string{"pdf"}}},
		{name: "extension rejected", criteria: Criteria{Extensions: []string{".docx"}}, want: PredicateExtension},
		{
			name:     "missing extension fails closed",
			criteria: Criteria{Extensions: []string{".pdf"}},
			modify:   func(a *models.Attachment) { a.Filename = "README" },
			want:     PredicateExtension,
		},
		{name: "size within bounds", criteria: Criteria{MinSize: 1024, MaxSize: 4096}},
		{name: "too small", criteria: Criteria{MinSize: 4096}, want: PredicateSize},
		{name: "too large", criteria: Criteria{MaxSize: 1024}, want: PredicateSize},
		{
			name:     "unknown size fails closed",
			criteria: Criteria{MaxSize: 1 << 20},
			modify:   func(a *models.Attachment) { a.Size = -1 },
			want:     PredicateSize,
		},
		{name: "in date range", criteria: Criteria{Since: march, Until: april}},
		{name: "since is inclusive", criteria: Criteria{Since: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}},
		{name: "until is exclusive", criteria: Criteria{Until: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}, want: PredicateDate},
		{name: "before range", criteria: Criteria{Since: april}, want: PredicateDate},
		{
			name:     "missing date fails closed",
			criteria: Criteria{Since: march},
			modify:   func(a *models.Attachment) { a.Date = time.Time{} },
			want:     PredicateDate,
		},
		{name: "sender substring", criteria: Criteria{Sender: "ACME.com"}},
		{name: "sender mismatch", criteria: Criteria{Sender: "globex"}, want: PredicateSender},
		{
			name:     "missing sender fails closed",
			criteria: Criteria{Sender: "acme"},
			modify:   func(a *models.Attachment) { a.Sender = "" },
			want:     PredicateSender,
		},
		{name: "subject substring", criteria: Criteria{Subject: "march"}},
		{name: "subject mismatch", criteria: Criteria{Subject: "receipt"}, want: PredicateSubject},
		{name: "keyword in filename", criteria: Criteria{Keywords: []string{"invoice"}}},
		{name: "keyword in subject", criteria: Criteria{Keywords: []string{"nope", "MARCH"}}},
		{name: "no keyword", criteria: Criteria{Keywords: []string{"contract"}}, want: PredicateKeywords},
		{
			name:     "first failing predicate is reported",
			criteria: Criteria{Extensions: []string{".zip"}, Sender: "globex", Keywords: []string{"contract"}},
			want:     PredicateExtension,
		},
		{
			name:     "conjunction of passing predicates",
			criteria: Criteria{Extensions: []string{".pdf"}, MinSize: 1, Since: march, Until: april, Sender: "billing", Subject: "invoice", Keywords: []string{"2024"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleAttachment()
			if tt.modify != nil {
				tt.modify(&a)
			}
			assert.Equal(t, tt.want, Explain(a, tt.criteria))
			assert.Equal(t, tt.want == "", Matches(a, tt.criteria))
		})
	}
}

func TestMatches_DeterministicAndPure(t *testing.T) {
	a := sampleAttachment()
	c := Criteria{Extensions: []string{"PDF", ".zip"}, Keywords: []string{"invoice"}, Sender: "acme", MinSize: 10}

	snapshotA := a
	snapshotExts := append([]string(nil), c.Extensions...)
	snapshotKeywords := append([]string(nil), c.Keywords...)

	first := Matches(a, c)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Matches(a, c))
	}
	assert.Equal(t, snapshotA, a)
	assert.Equal(t, snapshotExts, c.Extensions)
	assert.Equal(t, snapshotKeywords, c.Keywords)
}

func TestFromConfig(t *testing.T) {
	c, err := FromConfig(types.FilterConfig{
		FileTypes:  []string{"pdf", "Spreadsheets"},
		Extensions: []string{"XML", ".pdf"},
		Keywords:   []string{" invoice ", ""},
		Sender:     " acme ",
		Since:      "2024-03-01",
		Until:      "2024-03-31",
		MinSize:    1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{".pdf", ".xls", ".xlsx", ".csv", ".ods", ".xml"}, c.Extensions)
	assert.Equal(t, []string{"invoice"}, c.Keywords)
	assert.Equal(t, "acme", c.Sender)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), c.Since)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), c.Until, "until covers the whole day")

	lastDay := sampleAttachment()
	lastDay.Date = time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)
	assert.True(t, Matches(lastDay, Criteria{Since: c.Since, Until: c.Until}))
}

func TestFromConfig_AllGroupLiftsRestriction(t *testing.T) {
	c, err := FromConfig(types.FilterConfig{FileTypes: []string{"images", "all"}})
	require.NoError(t, err)
	assert.Empty(t, c.Extensions)
	assert.True(t, Matches(models.Attachment{Filename: "x.bin"}, c))
}

func TestFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.FilterConfig
	}{
		{"unknown group", types.FilterConfig{FileTypes: []string{"videos"}}},
		{"bad since", types.FilterConfig{Since: "03/01/2024"}},
		{"bad until", types.FilterConfig{Until: "yesterday"}},
		{"inverted range", types.FilterConfig{Since: "2024-05-01", Until: "2024-04-01"}},
		{"inverted size", types.FilterConfig{MinSize: 10, MaxSize: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestQuery(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	q := Criteria{Since: since, Until: until, Sender: "acme", Subject: "invoice", Keywords: []string{"x"}}.Query()

	assert.Equal(t, models.Query{Since: since, Before: until, From: "acme", Subject: "invoice"}, q)
	assert.True(t, Criteria{Extensions: []string{".pdf"}}.Query().IsZero())
}

func TestNormalizeExtension(t *testing.T) {
	assert.Equal(t, ".pdf", NormalizeExtension("PDF"))
	assert.Equal(t, ".pdf", NormalizeExtension("..pdf"))
	assert.Equal(t, ".tar", NormalizeExtension(" .TAR "))
	assert.Equal(t, "", NormalizeExtension("."))
}
