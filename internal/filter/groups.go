package filter

import (
	"fmt"
	"sort"
	"strings"
)

// FileTypeGroups maps a file type name to its extensions. "all" lifts the
// extension restriction.
var FileTypeGroups = map[string][]string{
	"pdf":           {".pdf"},
	"images":        {".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tiff"},
	"documents":     {".doc", ".docx", ".odt", ".rtf", ".txt"},
	"spreadsheets":  {".xls", ".xlsx", ".csv", ".ods"},
	"presentations": {".ppt", ".pptx", ".odp"},
	"archives":      {".zip", ".rar", ".7z", ".tar", ".gz"},
	"all":           nil,
}

// GroupNames returns the known group names in stable order.
func GroupNames() []string {
	names := make([]string, 0, len(FileTypeGroups))
	for name := range FileTypeGroups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtensionsForTypes expands group names and explicit extensions into a
// normalized, de-duplicated allow-list. A nil result means every type is
// allowed.
func ExtensionsForTypes(groups, extensions []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(ext string) {
		ext = NormalizeExtension(ext)
		if ext == "" || seen[ext] {
			return
		}
		seen[ext] = true
		out = append(out, ext)
	}

	for _, g := range groups {
		name := strings.ToLower(strings.TrimSpace(g))
		exts, ok := FileTypeGroups[name]
		if !ok {
			return nil, fmt.Errorf("unknown file type %q (known: %s)", g, strings.Join(GroupNames(), ", "))
		}
		if name == "all" {
			return nil, nil
		}
		for _, ext := range exts {
			add(ext)
		}
	}
	for _, ext := range extensions {
		add(ext)
	}
	return out, nil
}

// NormalizeExtension lower-cases ext and ensures a single leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimLeft(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + ext
}
