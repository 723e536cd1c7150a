package parser

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/jhillyerd/enmime/mediatype"
)

// DecodeContent decodes a body part according to its transfer encoding.
func DecodeContent(content []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "base64":
		// Servers fold base64 bodies; the decoder does not skip whitespace.
		cleaned := bytes.Map(func(r rune) rune {
			switch r {
			case '\r', '\n', ' ', '\t':
				return -1
			}
			return r
		}, content)
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(cleaned)))
		n, err := base64.StdEncoding.Decode(decoded, cleaned)
		if err != nil {
			return nil, err
		}
		return decoded[:n], nil

	case "quoted-printable":
		reader := quotedprintable.NewReader(bytes.NewReader(content))
		return io.ReadAll(reader)

	default:
		return content, nil
	}
}

// MimeToExt maps MIME types to file extensions
var MimeToExt = map[string]string{
	"application/pdf":          ".pdf",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.oasis.opendocument.text":                                   ".odt",
	"application/vnd.oasis.opendocument.spreadsheet":                            ".ods",
	"application/rtf":              ".rtf",
	"image/jpeg":                   ".jpg",
	"image/png":                    ".png",
	"image/gif":                    ".gif",
	"image/bmp":                    ".bmp",
	"image/tiff":                   ".tiff",
	"image/webp":                   ".webp",
	"image/svg+xml":                ".svg",
	"text/plain":                   ".txt",
	"text/html":                    ".html",
	"text/csv":                     ".csv",
	"text/xml":                     ".xml",
	"audio/mpeg":                   ".mp3",
	"audio/wav":                    ".wav",
	"video/mp4":                    ".mp4",
	"video/mpeg":                   ".mpeg",
	"video/quicktime":              ".mov",
	"application/zip":              ".zip",
	"application/x-tar":            ".tar",
	"application/gzip":             ".gz",
	"application/x-gzip":           ".gz",
	"application/x-bzip2":          ".bz2",
	"application/x-7z-compressed":  ".7z",
	"application/x-rar-compressed": ".rar",
	"message/rfc822":               ".eml",
}

// GetExtensionFromContentType returns a file extension for a content type,
// or "" when the type is unknown.
func GetExtensionFromContentType(contentType string) string {
	mainType, _, _, err := mediatype.Parse(contentType)
	if err != nil || mainType == "" {
		mainType = contentType
		if idx := strings.Index(contentType, ";"); idx != -1 {
			mainType = contentType[:idx]
		}
	}
	mainType = strings.TrimSpace(strings.ToLower(mainType))

	if ext, ok := MimeToExt[mainType]; ok {
		return ext
	}
	return ""
}
