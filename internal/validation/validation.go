// Package validation checks user-supplied documents and names before they
// reach the scanner or the citation index.
package validation

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/versecite/core/errors"
)

// Limits on accepted input.
const (
	// MaxDocumentSize is the largest text accepted for scanning (64 MB).
	MaxDocumentSize = 64 << 20
	// MaxNameLength is the longest document name accepted.
	MaxNameLength = 4096
	// sniffLen is how much of a document DetectKind looks at.
	sniffLen = 512
)

// Kind is the detected kind of an input document.
type Kind string

const (
	KindText   Kind = "text"
	KindXML    Kind = "xml"
	KindBinary Kind = "binary"
)

// binaryMagic lists signatures of formats that are never scanned as text.
var binaryMagic = []struct {
	name   string
	magic  []byte
	offset int
}{
	{"tar", []byte("ustar"), 257},
	{"gzip", []byte{0x1f, 0x8b}, 0},
	{"xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{"zip", []byte{0x50, 0x4b, 0x03, 0x04}, 0},
	{"sqlite", []byte("SQLite format 3"), 0},
	{"pdf", []byte("%PDF-"), 0},
}

var xmlExtensions = map[string]bool{
	".xml":   true,
	".osis":  true,
	".usx":   true,
	".tei":   true,
	".xhtml": true,
}

// DetectKind classifies a document from its first bytes and its name. XML is
// recognised by extension or by a leading "<?xml" prologue.
func DetectKind(data []byte, name string) Kind {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if binaryFormat(head) != "" || !isLikelyText(head) {
		return KindBinary
	}
	if xmlExtensions[strings.ToLower(filepath.Ext(name))] {
		return KindXML
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return KindXML
	}
	return KindText
}

// CheckDocument rejects documents that cannot be scanned: binary content
// and anything over MaxDocumentSize. Empty text is accepted.
func CheckDocument(data []byte, name string) (Kind, error) {
	if len(data) > MaxDocumentSize {
		return "", &errors.ValidationError{
			Field:   "text",
			Value:   name,
			Message: "document exceeds maximum size",
			Err:     errors.ErrInvalidInput,
		}
	}
	if len(data) == 0 {
		return KindText, nil
	}
	kind := DetectKind(data, name)
	if kind == KindBinary {
		msg := "binary content cannot be scanned"
		if format := binaryFormat(data); format != "" {
			msg = format + " " + msg
		}
		return kind, &errors.ValidationError{
			Field:   "text",
			Value:   name,
			Message: msg,
			Err:     errors.ErrInvalidInput,
		}
	}
	return kind, nil
}

// ValidateName checks a document name. Names may be paths, so separators
// are allowed; control characters are not.
func ValidateName(name string) error {
	invalid := func(msg string) error {
		return &errors.ValidationError{Field: "name", Value: name, Message: msg, Err: errors.ErrInvalidInput}
	}
	if strings.TrimSpace(name) == "" {
		return invalid("must not be empty")
	}
	if len(name) > MaxNameLength {
		return invalid("too long")
	}
	if !utf8.ValidString(name) {
		return invalid("must be valid UTF-8")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return invalid("control character not allowed")
		}
	}
	return nil
}

func binaryFormat(buf []byte) string {
	for _, sig := range binaryMagic {
		if sig.offset+len(sig.magic) <= len(buf) &&
			bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return sig.name
		}
	}
	return ""
}

// isLikelyText reports whether buf looks like UTF-8 text. A NUL byte is
// binary; otherwise at most 5% of the runes may be invalid or control
// characters other than whitespace. A rune cut off at the end of buf is
// not counted.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	total, bad := 0, 0
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(buf) {
				break
			}
			bad++
		} else if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' && r != '\f' {
			bad++
		}
		total++
		buf = buf[size:]
	}
	return total == 0 || bad*20 <= total
}
