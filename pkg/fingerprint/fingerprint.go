// Package fingerprint computes content-addressed task identifiers.
//
// A task id is the lowercase hex MD5 of the document, prefixed with "0x"
// (34 characters total). Identical documents therefore map to the same id,
// which makes enqueueing idempotent and results cacheable. Documents that
// already look like an id are passed through verbatim, so callers can
// address a known task by submitting its id in place of the document.
//
// Format:
//
//	0x<32 lowercase hex digits>
//
// The format is shared with every other client of the task store; changing
// the hash or the encoding would orphan existing results.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // MD5 is the id format shared with existing stores, not used for security
	"encoding/hex"
)

// Size is the length of a task id in characters: "0x" plus 32 hex digits.
const Size = 34

// prefix marks a string as a task id.
const prefix = "0x"

// Fingerprint returns the task id for the given document.
//
// A document that is exactly 34 bytes long and starts with "0x" is taken to
// be an id already and is returned unchanged. The check is deliberately just
// length plus prefix: it has to agree with what every existing client does,
// or the same document would map to different ids on different clients.
func Fingerprint(doc []byte) string {
	if len(doc) == Size && string(doc[:2]) == prefix {
		return string(doc)
	}
	sum := md5.Sum(doc) //nolint:gosec
	return prefix + hex.EncodeToString(sum[:])
}

// IsID reports whether s is a well-formed task id
// (exactly 34 characters: "0x" followed by 32 lowercase hex digits).
func IsID(s string) bool {
	if len(s) != Size || s[0] != '0' || s[1] != 'x' {
		return false
	}
	for i := 2; i < Size; i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
