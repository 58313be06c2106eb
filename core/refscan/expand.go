package refscan

import (
	"strings"

	"github.com/FocuswithJustin/versecite/core/errors"
)

// DefaultMaxValue is the largest chapter or verse number accepted by default.
// It bounds how much a single range can expand.
const DefaultMaxValue = 999

// ExpandList expands a list expression such as "1-3, 7" into the integers it
// names, in written order. Ranges expand ascending and inclusive in place;
// later items are never re-sorted against earlier ones, so "5,3" stays [5 3].
//
// A descending range ("5-3") is rejected with an error wrapping
// errors.ErrDegenerateRange. Zero, values above DefaultMaxValue, empty items
// and non-numeric text are rejected with errors wrapping
// errors.ErrMalformedLocation.
func ExpandList(expr string) ([]int, error) {
	return expandListMax(expr, DefaultMaxValue)
}

func expandListMax(expr string, maxValue int) ([]int, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &errors.ParseError{
			Format:  "list",
			Message: "empty expression",
			Err:     errors.ErrMalformedLocation,
		}
	}
	list, err := listParser.ParseString("", expr)
	if err != nil {
		return nil, syntaxError("list", expr, err)
	}
	return expand(list, maxValue)
}

func expand(list *listExpr, maxValue int) ([]int, error) {
	var out []int
	for _, item := range list.Items {
		start, end := item.Start, item.Start
		if item.End != nil {
			end = *item.End
		}
		if start < 1 || start > maxValue || end < 1 || end > maxValue {
			return nil, errors.NewRange(start, end, errors.ErrValueOutOfRange)
		}
		if start > end {
			return nil, errors.NewRange(start, end, errors.ErrDegenerateRange)
		}
		for v := start; v <= end; v++ {
			out = append(out, v)
		}
	}
	return out, nil
}
