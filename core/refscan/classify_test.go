package refscan

import (
	"reflect"
	"testing"
)

func collectRuns(text string) []Run {
	var runs []Run
	for run := range Classify(text) {
		runs = append(runs, run)
	}
	return runs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Run
	}{
		{
			name:  "book and location",
			input: "Gen 1:1",
			expected: []Run{
				{BookWord, "Gen", 0},
				{LocationGroup, "1:1", 4},
			},
		},
		{
			name:  "numbered prefix with space",
			input: "1 Пет 1-4, 5",
			expected: []Run{
				{BookWord, "1 Пет", 0},
				{LocationGroup, "1-4, 5", 9},
			},
		},
		{
			name:  "numbered prefix glued",
			input: "1Cor 1:1",
			expected: []Run{
				{BookWord, "1Cor", 0},
				{LocationGroup, "1:1", 5},
			},
		},
		{
			name:  "roman prefix and abbreviation dot",
			input: "II Ki. 3:12-14, 25",
			expected: []Run{
				{BookWord, "II Ki.", 0},
				{LocationGroup, "3:12-14, 25", 7},
			},
		},
		{
			name:  "separators",
			input: "Быт 1;Исх 2",
			expected: []Run{
				{BookWord, "Быт", 0},
				{LocationGroup, "1", 7},
				{Separator, ";", 8},
				{BookWord, "Исх", 9},
				{LocationGroup, "2", 16},
			},
		},
		{
			name:  "trailing comma stays a separator",
			input: "Gen 1, Exo 2",
			expected: []Run{
				{BookWord, "Gen", 0},
				{LocationGroup, "1", 4},
				{Separator, ",", 5},
				{BookWord, "Exo", 7},
				{LocationGroup, "2", 11},
			},
		},
		{
			name:  "digit glued to next book",
			input: "4,7Gen 1",
			expected: []Run{
				{LocationGroup, "4,7", 0},
				{BookWord, "Gen", 3},
				{LocationGroup, "1", 7},
			},
		},
		{
			name:  "sentence dot after location",
			input: "Rev 2. Also",
			expected: []Run{
				{BookWord, "Rev", 0},
				{LocationGroup, "2", 4},
				{Separator, ".", 5},
				{BookWord, "Also", 7},
			},
		},
		{
			name:  "number before prose is not a prefix",
			input: "Psalm 23 and pray",
			expected: []Run{
				{BookWord, "Psalm", 0},
				{LocationGroup, "23", 6},
				{BookWord, "and", 9},
				{BookWord, "pray", 13},
			},
		},
		{
			name:  "prefix does not cross a line break",
			input: "Gen 5\nJohn 3",
			expected: []Run{
				{BookWord, "Gen", 0},
				{LocationGroup, "5", 4},
				{BookWord, "John", 6},
				{LocationGroup, "3", 11},
			},
		},
		{
			name:  "number after a book word is a location",
			input: "Gen 1 Пет 5",
			expected: []Run{
				{BookWord, "Gen", 0},
				{LocationGroup, "1", 4},
				{BookWord, "Пет", 6},
				{LocationGroup, "5", 13},
			},
		},
		{
			name:  "only 1 to 4 prefix a book",
			input: "5 Пет 2",
			expected: []Run{
				{LocationGroup, "5", 0},
				{BookWord, "Пет", 2},
				{LocationGroup, "2", 9},
			},
		},
		{
			name:  "roman prefix after a book word",
			input: "see II Ki. 3",
			expected: []Run{
				{BookWord, "see", 0},
				{BookWord, "II Ki.", 4},
				{LocationGroup, "3", 11},
			},
		},
		{
			name:  "bare numbers",
			input: "1 234 3:4",
			expected: []Run{
				{LocationGroup, "1", 0},
				{LocationGroup, "234", 2},
				{LocationGroup, "3:4", 6},
			},
		},
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
		{
			name:     "whitespace only",
			input:    " \t\n ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectRuns(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Classify(%q) =\n  %+v\nwant\n  %+v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClassifyRunTextIsVerbatim(t *testing.T) {
	input := "See 1 Пет 5-8, 10 and II Ki. 3:12"
	for run := range Classify(input) {
		if got := input[run.Offset:run.End()]; got != run.Text {
			t.Errorf("run %+v does not match input slice %q", run, got)
		}
	}
}

func TestClassifyStopsEarly(t *testing.T) {
	count := 0
	for range Classify("Gen 1 Exo 2 Lev 3") {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("expected iteration to stop after 2 runs, got %d", count)
	}
}

func TestRunKindString(t *testing.T) {
	tests := map[RunKind]string{
		BookWord:      "book",
		LocationGroup: "location",
		Separator:     "separator",
		RunKind(42):   "unknown",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("RunKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
