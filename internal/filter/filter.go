// Package filter decides which attachments are downloaded. Criteria compile
// into an ordered list of named predicates that are evaluated conjunctively.
// A predicate whose input is unknown evaluates false.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
)

const dateLayout = "2006-01-02"

// Predicate names, in evaluation order.
const (
	PredicateExtension = "extension"
	PredicateSize      = "size"
	PredicateDate      = "date"
	PredicateSender    = "sender"
	PredicateSubject   = "subject"
	PredicateKeywords  = "keywords"
)

// Criteria is the set of conditions an attachment must satisfy. The zero
// value matches everything.
type Criteria struct {
	// Extensions is the allow-list, normalized to ".ext". Empty allows all.
	Extensions []string
	// Keywords match case-insensitively against the filename or the subject.
	Keywords []string
	// Sender and Subject are case-insensitive substrings.
	Sender  string
	Subject string
	// Since is inclusive, Until exclusive.
	Since time.Time
	Until time.Time
	// Size bounds in bytes, 0 disables.
	MinSize int64
	MaxSize int64
}

type predicate struct {
	name  string
	match func(models.Attachment) bool
}

// FromConfig builds criteria from a profile's filter section. Until is an
// inclusive day in the config and becomes the exclusive start of the next day.
func FromConfig(cfg types.FilterConfig) (Criteria, error) {
	exts, err := ExtensionsForTypes(cfg.FileTypes, cfg.Extensions)
	if err != nil {
		return Criteria{}, err
	}

	c := Criteria{
		Extensions: exts,
		Sender:     strings.TrimSpace(cfg.Sender),
		Subject:    strings.TrimSpace(cfg.Subject),
		MinSize:    cfg.MinSize,
		MaxSize:    cfg.MaxSize,
	}
	for _, k := range cfg.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			c.Keywords = append(c.Keywords, k)
		}
	}

	if cfg.Since != "" {
		c.Since, err = time.Parse(dateLayout, cfg.Since)
		if err != nil {
			return Criteria{}, fmt.Errorf("invalid filter.since %q: %w", cfg.Since, err)
		}
	}
	if cfg.Until != "" {
		until, err := time.Parse(dateLayout, cfg.Until)
		if err != nil {
			return Criteria{}, fmt.Errorf("invalid filter.until %q: %w", cfg.Until, err)
		}
		c.Until = until.AddDate(0, 0, 1)
	}
	if !c.Since.IsZero() && !c.Until.IsZero() && !c.Since.Before(c.Until) {
		return Criteria{}, fmt.Errorf("filter.since %s is after filter.until %s", cfg.Since, cfg.Until)
	}
	if c.MaxSize > 0 && c.MinSize > c.MaxSize {
		return Criteria{}, fmt.Errorf("filter.min_size %d exceeds filter.max_size %d", c.MinSize, c.MaxSize)
	}
	return c, nil
}

// predicates returns the active predicates in evaluation order.
func (c Criteria) predicates() []predicate {
	var ps []predicate

	if len(c.Extensions) > 0 {
		ps = append(ps, predicate{PredicateExtension, func(a models.Attachment) bool {
			ext := strings.ToLower(filepath.Ext(a.Filename))
			if ext == "" || ext == "." {
				return false
			}
			for _, allowed := range c.Extensions {
				if ext == NormalizeExtension(allowed) {
					return true
				}
			}
			return false
		}})
	}

	if c.MinSize > 0 || c.MaxSize > 0 {
		ps = append(ps, predicate{PredicateSize, func(a models.Attachment) bool {
			if a.Size < 0 {
				return false
			}
			if c.MinSize > 0 && a.Size < c.MinSize {
				return false
			}
			if c.MaxSize > 0 && a.Size > c.MaxSize {
				return false
			}
			return true
		}})
	}

	if !c.Since.IsZero() || !c.Until.IsZero() {
		ps = append(ps, predicate{PredicateDate, func(a models.Attachment) bool {
			if a.Date.IsZero() {
				return false
			}
			if !c.Since.IsZero() && a.Date.Before(c.Since) {
				return false
			}
			if !c.Until.IsZero() && !a.Date.Before(c.Until) {
				return false
			}
			return true
		}})
	}

	if c.Sender != "" {
		ps = append(ps, predicate{PredicateSender, func(a models.Attachment) bool {
			return containsFold(a.Sender, c.Sender)
		}})
	}

	if c.Subject != "" {
		ps = append(ps, predicate{PredicateSubject, func(a models.Attachment) bool {
			return containsFold(a.Subject, c.Subject)
		}})
	}

	if len(c.Keywords) > 0 {
		ps = append(ps, predicate{PredicateKeywords, func(a models.Attachment) bool {
			for _, k := range c.Keywords {
				if containsFold(a.Filename, k) || containsFold(a.Subject, k) {
					return true
				}
			}
			return false
		}})
	}

	return ps
}

// Matches reports whether a satisfies every predicate of c.
func Matches(a models.Attachment, c Criteria) bool {
	return Explain(a, c) == ""
}

// Explain returns the name of the first predicate a fails, or "" when it
// matches.
func Explain(a models.Attachment, c Criteria) string {
	for _, p := range c.predicates() {
		if !p.match(a) {
			return p.name
		}
	}
	return ""
}

// Query derives the server-side narrowing hint. It never narrows more than
// Matches does.
func (c Criteria) Query() models.Query {
	return models.Query{
		Since:   c.Since,
		Before:  c.Until,
		From:    c.Sender,
		Subject: c.Subject,
	}
}

func containsFold(s, substr string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
