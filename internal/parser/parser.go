package parser

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"

	"sable/internal/ir"
)

var irParser = participle.MustBuild[File](
	participle.Lexer(irLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)

// ParseSource parses textual IR and lowers it into a Unit built against
// ctx.
func ParseSource(path, source string, ctx *ir.Context) (*ir.Unit, error) {
	file, err := irParser.ParseString(path, source)
	if err != nil {
		return nil, err
	}
	return build(file, ctx)
}

// ParseFile reads and parses one .sbl file.
func ParseFile(path string, ctx *ir.Context) (*ir.Unit, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseSource(path, string(source), ctx)
}

// Position extracts line/column from a participle error, when present.
func Position(err error) (line, column int, message string, ok bool) {
	pe, isParticiple := err.(participle.Error)
	if !isParticiple {
		return 0, 0, "", false
	}
	pos := pe.Position()
	return pos.Line, pos.Column, pe.Message(), true
}
