package refscan

import (
	"iter"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// RunKind tags a run of text produced by Classify.
type RunKind int

const (
	// BookWord is a word that is part of a book name, including any merged
	// numbered prefix ("1 Пет", "1Cor", "II Ki.").
	BookWord RunKind = iota
	// LocationGroup is a numeric run such as "3:12-14, 25".
	LocationGroup
	// Separator is punctuation that ends the preceding run.
	Separator
)

func (k RunKind) String() string {
	switch k {
	case BookWord:
		return "book"
	case LocationGroup:
		return "location"
	case Separator:
		return "separator"
	default:
		return "unknown"
	}
}

// Run is one classified span of the input.
type Run struct {
	Kind RunKind
	// Text is the verbatim slice of the input.
	Text string
	// Offset is the byte offset of Text in the input.
	Offset int
}

// End returns the byte offset just past the run.
func (r Run) End() int {
	return r.Offset + len(r.Text)
}

// textLexer splits free text into numeric runs, words, whitespace and single
// punctuation characters. A ',' or '-' only joins a numeric run when a digit
// follows it; otherwise it lexes as punctuation.
var textLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Location", Pattern: `[0-9]+(?:(?:-|,[\s\p{Zs}]*|:[\s\p{Zs}]*)[0-9]+)*`},
	{Name: "Word", Pattern: `[\pL\pM]+`},
	{Name: "Space", Pattern: `[\s\p{Zs}]+`},
	{Name: "Punct", Pattern: `[^\s\p{Zs}\pL\pM0-9]`},
})

var (
	locationToken = textLexer.Symbols()["Location"]
	wordToken     = textLexer.Symbols()["Word"]
	spaceToken    = textLexer.Symbols()["Space"]
	punctToken    = textLexer.Symbols()["Punct"]
)

// romanPrefix matches the Roman ordinals used in numbered book names.
var romanPrefix = regexp.MustCompile(`^I{1,4}$`)

// Classify lazily splits text into runs.
//
// A number 1-4 or a Roman ordinal I-IIII followed on the same line by a word
// is folded into that word when the word is itself followed by a location:
// "1 Пет 5-8" yields the book run "1 Пет", while in "Psalm 23 and pray" the
// 23 stays a location. A number directly after a book word is always that
// book's location, so "Gen 1 Пет 5" is Gen 1 followed by Пет 5. A '.'
// directly after a word is kept as part of it ("Ki."). Whitespace produces
// no runs.
func Classify(text string) iter.Seq[Run] {
	return func(yield func(Run) bool) {
		ts, err := newTokenStream(text)
		if err != nil {
			return
		}
		for {
			tok, ok := ts.next()
			if !ok {
				return
			}
			run, ok := ts.classify(tok)
			if !ok {
				continue
			}
			ts.lastBook = run.Kind == BookWord
			if !yield(run) {
				return
			}
		}
	}
}

// tokenStream wraps the lexer with a small lookahead buffer. lastBook
// records whether the last run emitted was a book word.
type tokenStream struct {
	text     string
	lex      lexer.Lexer
	buf      []lexer.Token
	done     bool
	lastBook bool
}

func newTokenStream(text string) (*tokenStream, error) {
	lex, err := textLexer.LexString("", text)
	if err != nil {
		return nil, err
	}
	return &tokenStream{text: text, lex: lex}, nil
}

// fill buffers tokens until index n is available or input ends. Lexing errors
// end the stream; the catch-all Punct rule makes them unreachable for valid
// UTF-8.
func (ts *tokenStream) fill(n int) bool {
	for len(ts.buf) <= n && !ts.done {
		tok, err := ts.lex.Next()
		if err != nil || tok.EOF() {
			ts.done = true
			break
		}
		ts.buf = append(ts.buf, tok)
	}
	return n < len(ts.buf)
}

// peek returns the n-th buffered token without consuming it.
func (ts *tokenStream) peek(n int) (lexer.Token, bool) {
	if !ts.fill(n) {
		return lexer.Token{Type: lexer.EOF}, false
	}
	return ts.buf[n], true
}

func (ts *tokenStream) next() (lexer.Token, bool) {
	if !ts.fill(0) {
		return lexer.Token{}, false
	}
	tok := ts.buf[0]
	ts.buf = ts.buf[1:]
	return tok, true
}

// skip drops n buffered tokens.
func (ts *tokenStream) skip(n int) {
	ts.buf = ts.buf[n:]
}

func (ts *tokenStream) is(n int, typ lexer.TokenType) bool {
	tok, ok := ts.peek(n)
	return ok && tok.Type == typ
}

func (ts *tokenStream) isDot(n int) bool {
	tok, ok := ts.peek(n)
	return ok && tok.Type == punctToken && tok.Value == "."
}

func (ts *tokenStream) classify(tok lexer.Token) (Run, bool) {
	switch tok.Type {
	case spaceToken:
		return Run{}, false

	case locationToken:
		if !ts.lastBook && isNumberPrefix(tok.Value) {
			if end, n, ok := ts.prefixedWord(); ok {
				ts.skip(n)
				return ts.span(BookWord, tok.Pos.Offset, end), true
			}
		}
		return Run{Kind: LocationGroup, Text: tok.Value, Offset: tok.Pos.Offset}, true

	case wordToken:
		if romanPrefix.MatchString(tok.Value) && ts.is(0, spaceToken) {
			if end, n, ok := ts.prefixedWord(); ok {
				ts.skip(n)
				return ts.span(BookWord, tok.Pos.Offset, end), true
			}
		}
		end := tok.Pos.Offset + len(tok.Value)
		if ts.isDot(0) {
			ts.skip(1)
			end++
		}
		return ts.span(BookWord, tok.Pos.Offset, end), true

	default:
		return Run{Kind: Separator, Text: tok.Value, Offset: tok.Pos.Offset}, true
	}
}

// prefixedWord looks past a numbered prefix for "[space] Word [.] [space]
// Location". It reports the end offset of the word (dot included) and the
// number of buffered tokens the merged run covers. The space between prefix
// and word must not contain a line break.
func (ts *tokenStream) prefixedWord() (end, n int, ok bool) {
	i := 0
	if sp, ok := ts.peek(i); ok && sp.Type == spaceToken {
		if strings.ContainsAny(sp.Value, "\r\n") {
			return 0, 0, false
		}
		i++
	}
	word, ok := ts.peek(i)
	if !ok || word.Type != wordToken {
		return 0, 0, false
	}
	end = word.Pos.Offset + len(word.Value)
	i++
	n = i
	if ts.isDot(i) {
		end++
		i++
		n = i
	}
	if ts.is(i, spaceToken) {
		i++
	}
	if !ts.is(i, locationToken) {
		return 0, 0, false
	}
	return end, n, true
}

func (ts *tokenStream) span(kind RunKind, start, end int) Run {
	return Run{Kind: kind, Text: ts.text[start:end], Offset: start}
}

// isNumberPrefix reports whether s is a book number, 1 to 4.
func isNumberPrefix(s string) bool {
	return len(s) == 1 && s[0] >= '1' && s[0] <= '4'
}
