package rename

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/altafino/attachment-fetcher/internal/email/parser"
)

const (
	maxNameBytes = 255
	fallbackBase = "attachment"
	fallbackExt  = ".bin"
)

var reservedChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// FallbackName is the name used when an attachment has no usable filename.
func FallbackName(mimeType string) string {
	ext := parser.GetExtensionFromContentType(mimeType)
	if ext == "" {
		ext = fallbackExt
	}
	return fallbackBase + ext
}

// HasTraversal reports whether any path element of name, split on either
// separator, is "..".
func HasTraversal(name string) bool {
	for _, elem := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if strings.TrimSpace(elem) == ".." {
			return true
		}
	}
	return false
}

// Sanitize turns an attachment filename into a single safe path element.
// Names containing a ".." element are discarded for FallbackName.
func Sanitize(filename, mimeType string) string {
	if HasTraversal(filename) {
		return FallbackName(mimeType)
	}
	name := cleanElement(filename)
	if name == "" {
		return FallbackName(mimeType)
	}
	return capLength(name)
}

// cleanElement replaces separators, reserved and control characters, trims
// leading and trailing dots and spaces and guards Windows device names.
func cleanElement(s string) string {
	s = strings.ToValidUTF8(s, "_")
	s = reservedChars.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ". ")
	if s == "" {
		return ""
	}

	base := s
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if windowsReserved[strings.ToLower(strings.TrimSpace(base))] {
		s = "_" + s
	}
	return s
}

// capLength truncates name to maxNameBytes, keeping the extension and
// cutting on a rune boundary.
func capLength(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	limit := maxNameBytes - len(ext)
	for limit > 0 && !utf8.RuneStart(base[limit]) {
		limit--
	}
	return base[:limit] + ext
}

// splitExt splits name into base and extension. A leading dot does not
// start an extension.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == name || ext == "." {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
