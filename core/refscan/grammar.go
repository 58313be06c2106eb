package refscan

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/versecite/core/errors"
)

// listExpr is a comma list of numbers and ranges: "1-3, 7".
//
//nolint:govet // participle grammar tags are not standard struct tags
type listExpr struct {
	Items []*itemExpr `@@ ( "," @@ )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type itemExpr struct {
	Start int  `@Int`
	End   *int `( "-" @Int )?`
}

// locationExpr is a chapter list optionally followed by ":" and a verse list.
//
//nolint:govet // participle grammar tags are not standard struct tags
type locationExpr struct {
	Chapters *listExpr `@@`
	Verses   *listExpr `( ":" @@ )?`
}

// numberLexer tokenizes location groups. Anything other than digits, the
// three separators and whitespace is a lexing error.
var numberLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[-,:]`},
	{Name: "Whitespace", Pattern: `[\s\p{Zs}]+`},
})

var (
	listParser = participle.MustBuild[listExpr](
		participle.Lexer(numberLexer),
		participle.Elide("Whitespace"),
	)
	locationParser = participle.MustBuild[locationExpr](
		participle.Lexer(numberLexer),
		participle.Elide("Whitespace"),
	)
)

// syntaxError converts a participle failure into a ParseError that unwraps
// to ErrMalformedLocation.
func syntaxError(format, input string, err error) error {
	msg := err.Error()
	var perr participle.Error
	if errors.As(err, &perr) {
		msg = perr.Message()
	}
	return &errors.ParseError{
		Format:  format,
		Input:   input,
		Message: msg,
		Err:     errors.ErrMalformedLocation,
	}
}
