// Package rename turns attachment metadata into collision-free destination
// paths.
package rename

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/altafino/attachment-fetcher/internal/types"
)

const defaultTemplate = "{filename}"

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

var knownPlaceholders = map[string]bool{
	"filename":   true,
	"ext":        true,
	"date":       true,
	"time":       true,
	"datetime":   true,
	"year":       true,
	"month":      true,
	"day":        true,
	"sender":     true,
	"subject":    true,
	"counter":    true,
	"message_id": true,
	"folder":     true,
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Rule describes how a destination path is built.
type Rule struct {
	// Template renders the filename. Without {ext} the original extension
	// is appended.
	Template string
	// Directory renders a slash separated sub directory, may be empty.
	Directory        string
	ReplaceSpaces    bool
	SpaceReplacement string
	Lowercase        bool
}

// RuleFromConfig resolves a preset and explicit template into a Rule. An
// explicit template wins over the preset.
func RuleFromConfig(cfg types.RenameConfig) (Rule, error) {
	r := Rule{
		Template:         cfg.Template,
		Directory:        cfg.Directory,
		ReplaceSpaces:    cfg.ReplaceSpaces,
		SpaceReplacement: cfg.SpaceReplacement,
		Lowercase:        cfg.Lowercase,
	}
	if r.Template == "" && cfg.Preset != "" {
		p, ok := LookupPreset(cfg.Preset)
		if !ok {
			return Rule{}, fmt.Errorf("unknown rename preset %q", cfg.Preset)
		}
		r.Template = p.Template
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate rejects unknown placeholders and separators in the filename
// template.
func (r Rule) Validate() error {
	if strings.ContainsAny(r.Template, `/\`) {
		return fmt.Errorf("rename template %q must not contain path separators, use the directory template", r.Template)
	}
	for _, tmpl := range []string{r.Template, r.Directory} {
		for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
			if !knownPlaceholders[m[1]] {
				return fmt.Errorf("unknown placeholder {%s} in %q", m[1], tmpl)
			}
		}
	}
	if strings.ContainsAny(r.SpaceReplacement, `/\`) {
		return fmt.Errorf("space replacement %q must not contain path separators", r.SpaceReplacement)
	}
	return nil
}

func (r Rule) template() string {
	if r.Template == "" {
		return defaultTemplate
	}
	return r.Template
}

func (r Rule) spaceReplacement() string {
	if r.SpaceReplacement == "" {
		return "_"
	}
	return r.SpaceReplacement
}

// ResolveName returns the slash separated destination of a relative to the
// download root and reserves it in existing. The result is deterministic
// for identical inputs and never collides with a name already in existing:
// collisions get "_1", "_2", ... appended to the base name.
func ResolveName(a models.Attachment, r Rule, existing *NameSet) string {
	counter := existing.Len() + 1
	name := r.renderName(a, counter)
	dir := r.renderDirectory(a, counter)

	join := func(n string) string {
		if dir == "" {
			return n
		}
		return dir + "/" + n
	}

	candidate := join(name)
	if existing.Reserve(candidate) {
		return candidate
	}
	for i := 1; ; i++ {
		candidate = join(withSuffix(name, i))
		if existing.Reserve(candidate) {
			return candidate
		}
	}
}

func withSuffix(name string, n int) string {
	base, ext := splitExt(name)
	suffix := "_" + strconv.Itoa(n)
	limit := maxNameBytes - len(ext) - len(suffix)
	if len(ext) > 16 || limit <= 0 {
		// an overlong extension is cut like the rest of the name
		base, ext = name, ""
		limit = maxNameBytes - len(suffix)
	}
	limit = max(limit, 0)
	if len(base) > limit {
		for limit > 0 && !utf8.RuneStart(base[limit]) {
			limit--
		}
		base = base[:limit]
	}
	return base + suffix + ext
}

func (r Rule) renderName(a models.Attachment, counter int) string {
	safe := Sanitize(a.Filename, a.MimeType)
	base, ext := splitExt(safe)

	tmpl := r.template()
	values := r.values(a, base, ext, counter)
	rendered := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})

	if r.ReplaceSpaces {
		rendered = whitespaceRe.ReplaceAllString(rendered, r.spaceReplacement())
	}
	if !strings.Contains(tmpl, "{ext}") {
		rendered += ext
	}
	if r.Lowercase {
		rendered = strings.ToLower(rendered)
	}

	name := cleanElement(rendered)
	if name == "" || HasTraversal(name) {
		name = FallbackName(a.MimeType)
	}
	return capLength(name)
}

func (r Rule) renderDirectory(a models.Attachment, counter int) string {
	if strings.TrimSpace(r.Directory) == "" {
		return ""
	}
	safe := Sanitize(a.Filename, a.MimeType)
	base, ext := splitExt(safe)
	values := r.values(a, base, ext, counter)

	var segments []string
	for _, seg := range strings.FieldsFunc(r.Directory, func(c rune) bool { return c == '/' || c == '\\' }) {
		seg = placeholderRe.ReplaceAllStringFunc(seg, func(m string) string {
			if v, ok := values[m[1:len(m)-1]]; ok {
				return v
			}
			return m
		})
		if r.ReplaceSpaces {
			seg = whitespaceRe.ReplaceAllString(seg, r.spaceReplacement())
		}
		if r.Lowercase {
			seg = strings.ToLower(seg)
		}
		seg = cleanElement(seg)
		if seg == "" || seg == ".." {
			continue
		}
		segments = append(segments, capLength(seg))
	}
	return strings.Join(segments, "/")
}

// values computes placeholder substitutions. Free-text components are
// cleaned and truncated; missing ones get a placeholder word.
func (r Rule) values(a models.Attachment, base, ext string, counter int) map[string]string {
	v := map[string]string{
		"filename":   base,
		"ext":        strings.TrimPrefix(ext, "."),
		"sender":     r.component(senderName(a.Sender), 20, "unknown"),
		"subject":    r.component(a.Subject, 30, "nosubject"),
		"counter":    strconv.Itoa(counter),
		"message_id": r.component(a.MessageID, 40, "noid"),
		"folder":     r.component(a.Folder, 30, "nofolder"),
		"date":       "nodate",
		"time":       "notime",
		"datetime":   "nodate",
		"year":       "nodate",
		"month":      "nodate",
		"day":        "nodate",
	}
	if !a.Date.IsZero() {
		d := a.Date.UTC()
		v["date"] = d.Format("2006-01-02")
		v["time"] = d.Format("150405")
		v["datetime"] = d.Format("20060102_150405")
		v["year"] = d.Format("2006")
		v["month"] = d.Format("01")
		v["day"] = d.Format("02")
	}
	return v
}

// component cleans free text for use inside a filename.
func (r Rule) component(text string, maxRunes int, fallback string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.Map(func(c rune) rune {
		switch c {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		if c < 0x20 || c == 0x7f {
			return -1
		}
		return c
	}, text)
	text = strings.TrimSpace(text)
	if r.ReplaceSpaces {
		text = whitespaceRe.ReplaceAllString(text, r.spaceReplacement())
	} else {
		text = whitespaceRe.ReplaceAllString(text, " ")
	}
	if runes := []rune(text); len(runes) > maxRunes {
		text = string(runes[:maxRunes])
	}
	text = strings.Trim(text, "_.- ")
	if text == "" {
		return fallback
	}
	return text
}

// senderName extracts the display name, or the mailbox local part.
func senderName(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	if i := strings.Index(sender, "<"); i > 0 {
		if name := strings.Trim(strings.TrimSpace(sender[:i]), `"'`); name != "" {
			return name
		}
	}
	addr := strings.Trim(sender, "<> ")
	if i := strings.Index(addr, "<"); i >= 0 {
		addr = strings.Trim(addr[i:], "<> ")
	}
	if at := strings.Index(addr, "@"); at > 0 {
		return addr[:at]
	}
	return addr
}
