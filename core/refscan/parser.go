package refscan

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/FocuswithJustin/versecite/core/errors"
)

// DiagnosticKind classifies a run the scanner skipped.
type DiagnosticKind int

const (
	// MalformedLocationGroup is a numeric run that does not fit the location
	// grammar, or holds a value outside 1..MaxValue.
	MalformedLocationGroup DiagnosticKind = iota + 1
	// DegenerateRange is a location group with a descending range ("5-3").
	DegenerateRange
	// OrphanLocation is a location group seen before any book name.
	OrphanLocation
)

func (k DiagnosticKind) String() string {
	switch k {
	case MalformedLocationGroup:
		return "malformed_location_group"
	case DegenerateRange:
		return "degenerate_range"
	case OrphanLocation:
		return "orphan_location"
	default:
		return "unknown"
	}
}

// Diagnostic describes a skipped run.
type Diagnostic struct {
	Kind   DiagnosticKind
	Text   string
	Offset int
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %d: %q: %v", d.Kind, d.Offset, d.Text, d.Err)
}

// MarshalJSON renders the diagnostic with its error as a message string.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	msg := ""
	if d.Err != nil {
		msg = d.Err.Error()
	}
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Text    string `json:"text"`
		Offset  int    `json:"offset"`
		Message string `json:"message,omitempty"`
	}{d.Kind.String(), d.Text, d.Offset, msg})
}

// UnmarshalJSON restores a diagnostic produced by MarshalJSON. Err keeps the
// message text and unwraps to the sentinel matching Kind.
func (d *Diagnostic) UnmarshalJSON(data []byte) error {
	var v struct {
		Kind    string `json:"kind"`
		Text    string `json:"text"`
		Offset  int    `json:"offset"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	kind, base := ParseDiagnosticKind(v.Kind)
	*d = Diagnostic{Kind: kind, Text: v.Text, Offset: v.Offset}
	if v.Message != "" {
		d.Err = &decodedError{msg: v.Message, base: base}
	}
	return nil
}

// ParseDiagnosticKind maps the String form of a kind back to the kind and
// the sentinel error it is reported with. Unknown names yield 0 and
// errors.ErrInvalidInput.
func ParseDiagnosticKind(s string) (DiagnosticKind, error) {
	switch s {
	case "malformed_location_group":
		return MalformedLocationGroup, errors.ErrMalformedLocation
	case "degenerate_range":
		return DegenerateRange, errors.ErrDegenerateRange
	case "orphan_location":
		return OrphanLocation, errors.ErrOrphanLocation
	default:
		return 0, errors.ErrInvalidInput
	}
}

type decodedError struct {
	msg  string
	base error
}

func (e *decodedError) Error() string { return e.msg }
func (e *decodedError) Unwrap() error { return e.base }

// Result is the outcome of ParseDetailed.
type Result struct {
	References  []BibleReference `json:"references"`
	Diagnostics []Diagnostic     `json:"diagnostics"`
}

// Parser scans text for citations. It is immutable after NewParser and safe
// for concurrent use.
type Parser struct {
	maxBookWords int
	maxValue     int
	onDiagnostic func(Diagnostic)
	logger       *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxBookWords sets how many consecutive words may form a book name.
// The default of 1 keeps prose in front of a citation out of the name; a
// merged numbered prefix ("1 Пет") counts as one word. Values below 1 are
// ignored.
func WithMaxBookWords(n int) Option {
	return func(p *Parser) {
		if n >= 1 {
			p.maxBookWords = n
		}
	}
}

// WithMaxValue sets the largest accepted chapter or verse number. Values
// below 1 are ignored.
func WithMaxValue(n int) Option {
	return func(p *Parser) {
		if n >= 1 {
			p.maxValue = n
		}
	}
}

// WithDiagnostics registers a callback for skipped runs. It is called
// synchronously from the scanning goroutine.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(p *Parser) {
		p.onDiagnostic = fn
	}
}

// WithLogger sets the logger diagnostics are written to at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxBookWords: 1,
		maxValue:     DefaultMaxValue,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// MaxBookWords returns the configured book-name word limit.
func (p *Parser) MaxBookWords() int {
	return p.maxBookWords
}

// MaxValue returns the largest accepted chapter or verse number.
func (p *Parser) MaxValue() int {
	return p.maxValue
}

// ExpandList is ExpandList bounded by the parser's MaxValue.
func (p *Parser) ExpandList(expr string) ([]int, error) {
	return expandListMax(expr, p.maxValue)
}

// ParseLocation is ParseLocation bounded by the parser's MaxValue.
func (p *Parser) ParseLocation(text string) (VerseLocation, error) {
	return parseLocationMax(text, p.maxValue)
}

// Parse extracts references from text with default settings. It never fails;
// text without citations yields an empty slice.
func Parse(text string) []BibleReference {
	return defaultParser.Parse(text)
}

// Parse extracts references from text in citation order.
func (p *Parser) Parse(text string) []BibleReference {
	refs := make([]BibleReference, 0)
	for ref := range p.scan(text, nil) {
		refs = append(refs, ref)
	}
	return refs
}

// ParseDetailed extracts references and also returns every diagnostic raised
// during the scan.
func (p *Parser) ParseDetailed(text string) Result {
	res := Result{
		References:  make([]BibleReference, 0),
		Diagnostics: make([]Diagnostic, 0),
	}
	collect := func(d Diagnostic) {
		res.Diagnostics = append(res.Diagnostics, d)
	}
	for ref := range p.scan(text, collect) {
		res.References = append(res.References, ref)
	}
	return res
}

// Scan lazily yields references. A reference is yielded once the scan has
// passed its last location group, i.e. at the next book word or at the end
// of the text.
func (p *Parser) Scan(text string) iter.Seq[BibleReference] {
	return p.scan(text, nil)
}

func (p *Parser) scan(text string, collect func(Diagnostic)) iter.Seq[BibleReference] {
	return func(yield func(BibleReference) bool) {
		a := &assembler{parser: p, text: text, collect: collect}
		for run := range Classify(text) {
			if ref, ok := a.feed(run); ok && !yield(ref) {
				return
			}
		}
		if ref, ok := a.close(); ok {
			yield(ref)
		}
	}
}

// assembler groups location runs under the book phrase that precedes them.
//
// phrase holds the pending book words not yet bound to a reference; current
// is the open reference, if any. A book word always closes current, so at
// most one of the two is non-empty.
type assembler struct {
	parser   *Parser
	text     string
	collect  func(Diagnostic)
	phrase   []Run
	lastBook bool
	current  *BibleReference
}

func (a *assembler) feed(run Run) (BibleReference, bool) {
	switch run.Kind {
	case BookWord:
		closed, ok := a.close()
		if a.lastBook {
			a.phrase = append(a.phrase, run)
			if extra := len(a.phrase) - a.parser.maxBookWords; extra > 0 {
				a.phrase = a.phrase[extra:]
			}
		} else {
			a.phrase = append(a.phrase[:0], run)
		}
		a.lastBook = true
		return closed, ok

	case LocationGroup:
		a.lastBook = false
		loc, err := parseLocationMax(run.Text, a.parser.maxValue)
		if err != nil {
			kind := MalformedLocationGroup
			if errors.Is(err, errors.ErrDegenerateRange) {
				kind = DegenerateRange
			}
			a.report(kind, run, err)
			return BibleReference{}, false
		}
		switch {
		case len(a.phrase) > 0:
			a.current = &BibleReference{
				Book:      a.book(),
				Locations: []VerseLocation{loc},
			}
			a.phrase = a.phrase[:0]
		case a.current != nil:
			a.current.Locations = append(a.current.Locations, loc)
		default:
			a.report(OrphanLocation, run, errors.ErrOrphanLocation)
		}

	case Separator:
		a.lastBook = false
	}
	return BibleReference{}, false
}

// close hands back the open reference, if any.
func (a *assembler) close() (BibleReference, bool) {
	if a.current == nil {
		return BibleReference{}, false
	}
	ref := *a.current
	a.current = nil
	return ref, true
}

// book returns the verbatim span covered by the pending phrase.
func (a *assembler) book() string {
	first, last := a.phrase[0], a.phrase[len(a.phrase)-1]
	return a.text[first.Offset:last.End()]
}

func (a *assembler) report(kind DiagnosticKind, run Run, err error) {
	d := Diagnostic{Kind: kind, Text: run.Text, Offset: run.Offset, Err: err}
	a.parser.logger.Debug("citation run skipped",
		"kind", kind.String(),
		"text", run.Text,
		"offset", run.Offset,
		"error", err)
	if a.collect != nil {
		a.collect(d)
	}
	if a.parser.onDiagnostic != nil {
		a.parser.onDiagnostic(d)
	}
}
