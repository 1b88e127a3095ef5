package blob

import (
	"bytes"
	"regexp"
	"unicode/utf8"
)

// leading slash, backslash, or a "." or ".." path segment
var regexForbiddenPatterns = regexp.MustCompile(`^/|\\|(^|/)\.{1,2}(/|$)`)

// ValidateKey checks that a source path can be used verbatim as an S3 key.
func ValidateKey(key string) bool {
	// S3 keys must be between 1 and 1024 bytes long
	if len(key) == 0 || len(key) > 1024 {
		return false
	}

	if regexForbiddenPatterns.MatchString(key) {
		return false
	}

	return utf8.ValidString(key)
}

func newBytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
