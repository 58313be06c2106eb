package validation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/FocuswithJustin/versecite/core/errors"
)

func TestDetectKind(t *testing.T) {
	tarHeader := make([]byte, 512)
	copy(tarHeader, "readme.txt")
	copy(tarHeader[257:], "ustar")

	tests := []struct {
		name     string
		data     []byte
		filename string
		want     Kind
	}{
		{"plain text", []byte("Read Gen 1:1 today"), "notes.txt", KindText},
		{"cyrillic text", []byte("Читайте Быт 1; Исх 2"), "plan", KindText},
		{"xml by extension", []byte("<osis><p>Gen 1</p></osis>"), "plan.osis", KindXML},
		{"xml extension case", []byte("<usx/>"), "JOHN.USX", KindXML},
		{"xml prologue", []byte("\n  <?xml version=\"1.0\"?><root/>"), "-", KindXML},
		{"xml prologue after BOM", []byte("\xef\xbb\xbf<?xml version=\"1.0\"?><root/>"), "-", KindXML},
		{"html without prologue", []byte("<p>Gen 1</p>"), "-", KindText},
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00}, "plan.txt", KindBinary},
		{"xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00}, "plan.xml", KindBinary},
		{"zip", []byte{0x50, 0x4b, 0x03, 0x04, 0x14}, "plan.txt", KindBinary},
		{"sqlite", []byte("SQLite format 3\x00\x10\x00"), "cites.db", KindBinary},
		{"pdf", []byte("%PDF-1.7\n"), "plan.pdf", KindBinary},
		{"tar", tarHeader, "plan.tar", KindBinary},
		{"nul byte", []byte("Gen 1\x00:1"), "plan.txt", KindBinary},
		{"control characters", bytes.Repeat([]byte{0x01, 0x02, 'a'}, 20), "plan.txt", KindBinary},
		{"latin-1 bytes", bytes.Repeat([]byte{0xe9, 0xe8, 0xea}, 20), "plan.txt", KindBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKind(tt.data, tt.filename); got != tt.want {
				t.Errorf("DetectKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectKindTruncatedRune(t *testing.T) {
	// The sniffed prefix ends in the middle of a two-byte rune.
	data := []byte(strings.Repeat("a", sniffLen-1) + "Б")
	if got := DetectKind(data, "plan.txt"); got != KindText {
		t.Errorf("DetectKind() = %q, want text", got)
	}
}

func TestCheckDocument(t *testing.T) {
	kind, err := CheckDocument([]byte("See Gen 1:1"), "plan.txt")
	if err != nil || kind != KindText {
		t.Errorf("CheckDocument(text) = %q, %v", kind, err)
	}

	kind, err = CheckDocument(nil, "empty.txt")
	if err != nil || kind != KindText {
		t.Errorf("CheckDocument(empty) = %q, %v", kind, err)
	}

	_, err = CheckDocument([]byte{0x1f, 0x8b, 0x08, 0x00}, "plan.txt.gz")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("CheckDocument(gzip) error = %v, want ErrInvalidInput", err)
	}
	var verr *errors.ValidationError
	if !errors.As(err, &verr) || verr.Value != "plan.txt.gz" || !strings.HasPrefix(verr.Message, "gzip ") {
		t.Errorf("validation error = %+v", verr)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "plan.txt", false},
		{"path", "/home/reader/plans/2024.txt", false},
		{"unicode", "Чтения на неделю", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"newline", "plan\n.txt", true},
		{"nul", "plan\x00.txt", true},
		{"invalid utf8", "plan\xff", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("error %v does not wrap ErrInvalidInput", err)
			}
		})
	}
}
