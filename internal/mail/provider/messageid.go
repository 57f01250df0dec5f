package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// messageIDValue derives a stable Message-ID (without angle brackets) from a
// dedupe key, so a retried send carries the same id and receiving servers
// can discard duplicates.
func messageIDValue(dedupeKey, fromEmail string) string {
	sum := sha256.Sum256([]byte(dedupeKey))
	host := "localhost"
	if at := strings.LastIndex(fromEmail, "@"); at >= 0 && at < len(fromEmail)-1 {
		host = fromEmail[at+1:]
	}
	return hex.EncodeToString(sum[:16]) + "@" + host
}

func messageID(dedupeKey, fromEmail string) string {
	return "<" + messageIDValue(dedupeKey, fromEmail) + ">"
}
