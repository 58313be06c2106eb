package refscan

import (
	"strconv"
	"strings"
)

// VerseLocation is one location group in expanded form.
type VerseLocation struct {
	// Chapters lists the chapters in expansion order. Never empty.
	Chapters []int `json:"chapters"`

	// Verses lists the verses when the group had a chapter:verse colon.
	// It is nil for chapter-only citations and never empty otherwise.
	Verses []int `json:"verses,omitempty"`
}

// HasVerses reports whether the location names verses.
func (l VerseLocation) HasVerses() bool {
	return l.Verses != nil
}

// String formats the location back into citation form, e.g. "1:1-3,7".
func (l VerseLocation) String() string {
	var sb strings.Builder
	writeList(&sb, l.Chapters)
	if l.Verses != nil {
		sb.WriteByte(':')
		writeList(&sb, l.Verses)
	}
	return sb.String()
}

// BibleReference is one book mention together with every location attributed
// to it before the next book mention.
type BibleReference struct {
	// Book is the text that named the book, exactly as written.
	Book string `json:"book"`

	// Locations holds the location groups in the order they appear.
	Locations []VerseLocation `json:"locations"`
}

// String formats the reference as "Book loc loc ...". Parsing the result
// yields an equal reference.
func (r BibleReference) String() string {
	var sb strings.Builder
	sb.WriteString(r.Book)
	for _, loc := range r.Locations {
		sb.WriteByte(' ')
		sb.WriteString(loc.String())
	}
	return sb.String()
}

// writeList writes values as a comma list, folding ascending consecutive runs
// of two or more values into a-b ranges.
func writeList(sb *strings.Builder, values []int) {
	for i := 0; i < len(values); {
		j := i
		for j+1 < len(values) && values[j+1] == values[j]+1 {
			j++
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(values[i]))
		if j > i {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(values[j]))
		}
		i = j + 1
	}
}
