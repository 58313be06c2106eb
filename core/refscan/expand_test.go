package refscan

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/FocuswithJustin/versecite/core/errors"
)

func TestExpandList(t *testing.T) {
	tests := []struct {
		input    string
		expected []int
	}{
		{"1", []int{1}},
		{"2,4", []int{2, 4}},
		{"5,3", []int{5, 3}},
		{"1-3", []int{1, 2, 3}},
		{"1-2,4", []int{1, 2, 4}},
		{"5-8, 10", []int{5, 6, 7, 8, 10}},
		{"10, 1-2", []int{10, 1, 2}},
		{" 7 ", []int{7}},
		{"3-3", []int{3}},
		{"2,2", []int{2, 2}},
		{"1 - 3", []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpandList(tt.input)
			if err != nil {
				t.Fatalf("ExpandList(%q) error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExpandList(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExpandListRangeLength(t *testing.T) {
	for a := 1; a <= 20; a++ {
		for b := a; b <= 25; b++ {
			expr := strconv.Itoa(a) + "-" + strconv.Itoa(b)
			got, err := ExpandList(expr)
			if err != nil {
				t.Fatalf("ExpandList(%q) error: %v", expr, err)
			}
			if len(got) != b-a+1 {
				t.Fatalf("ExpandList(%q) has %d values, want %d", expr, len(got), b-a+1)
			}
			for i, v := range got {
				if v != a+i {
					t.Fatalf("ExpandList(%q)[%d] = %d, want %d", expr, i, v, a+i)
				}
			}
		}
	}
}

func TestExpandListErrors(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"", errors.ErrMalformedLocation},
		{"   ", errors.ErrMalformedLocation},
		{"a", errors.ErrMalformedLocation},
		{"1,", errors.ErrMalformedLocation},
		{",1", errors.ErrMalformedLocation},
		{"1-", errors.ErrMalformedLocation},
		{"-3", errors.ErrMalformedLocation},
		{"1-2-3", errors.ErrMalformedLocation},
		{"1:2", errors.ErrMalformedLocation},
		{"0", errors.ErrValueOutOfRange},
		{"1-1000", errors.ErrValueOutOfRange},
		{"5-3", errors.ErrDegenerateRange},
		{"1,9-2", errors.ErrDegenerateRange},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpandList(tt.input)
			if err == nil {
				t.Fatalf("ExpandList(%q) = %v, want error", tt.input, got)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ExpandList(%q) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}

func TestExpandListDegenerateRangeError(t *testing.T) {
	_, err := ExpandList("9-2")
	var rangeErr *errors.RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected *RangeError, got %T", err)
	}
	if rangeErr.Start != 9 || rangeErr.End != 2 {
		t.Errorf("RangeError = %+v, want 9-2", rangeErr)
	}
	if errors.Is(err, errors.ErrMalformedLocation) {
		t.Error("degenerate range should not report as malformed")
	}
}

func TestExpandListMax(t *testing.T) {
	got, err := expandListMax("150", 150)
	if err != nil || !reflect.DeepEqual(got, []int{150}) {
		t.Errorf("expandListMax(150, 150) = %v, %v", got, err)
	}
	if _, err := expandListMax("151", 150); !errors.Is(err, errors.ErrValueOutOfRange) {
		t.Errorf("expandListMax(151, 150) error = %v, want ErrValueOutOfRange", err)
	}
}
