package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateUniqueMessageID returns the Message-ID header of a raw message,
// or a content hash when the header is missing.
func GenerateUniqueMessageID(msgContent []byte) string {
	if id := ExtractMessageIDHeader(msgContent); id != "" {
		return id
	}
	hash := sha256.Sum256(msgContent)
	return hex.EncodeToString(hash[:16])
}

// ExtractMessageIDHeader extracts the Message-ID header from raw content.
func ExtractMessageIDHeader(content []byte) string {
	for _, line := range bytes.Split(content, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			// end of the header block
			return ""
		}
		if bytes.HasPrefix(bytes.ToLower(line), []byte("message-id:")) {
			id := string(bytes.TrimSpace(line[len("message-id:"):]))
			return strings.Trim(id, "<>")
		}
	}
	return ""
}
