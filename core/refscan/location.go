package refscan

import (
	"strings"

	"github.com/FocuswithJustin/versecite/core/errors"
)

// ParseLocation parses one location group such as "3:12-14, 25" or "5-8, 10".
//
// Text before the first colon becomes the chapter list and text after it the
// verse list. Without a colon the whole group is the chapter list and Verses
// is nil. Cross-chapter spans like "1:1-2:5" are outside the grammar and
// fail as malformed.
func ParseLocation(text string) (VerseLocation, error) {
	return parseLocationMax(text, DefaultMaxValue)
}

func parseLocationMax(text string, maxValue int) (VerseLocation, error) {
	if strings.TrimSpace(text) == "" {
		return VerseLocation{}, &errors.ParseError{
			Format:  "location group",
			Message: "empty location",
			Err:     errors.ErrMalformedLocation,
		}
	}

	expr, err := locationParser.ParseString("", text)
	if err != nil {
		return VerseLocation{}, syntaxError("location group", text, err)
	}

	chapters, err := expand(expr.Chapters, maxValue)
	if err != nil {
		return VerseLocation{}, errors.Wrapf(err, "chapters of %q", text)
	}
	loc := VerseLocation{Chapters: chapters}

	if expr.Verses != nil {
		verses, err := expand(expr.Verses, maxValue)
		if err != nil {
			return VerseLocation{}, errors.Wrapf(err, "verses of %q", text)
		}
		loc.Verses = verses
	}
	return loc, nil
}
