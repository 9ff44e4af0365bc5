package asm

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var asmLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `;[^\n]*`, nil},
		{"Label", `[a-zA-Z_][a-zA-Z0-9_]*:`, nil},
		{"Ref", `@[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Integer", `0x[0-9a-fA-F]*|[0-9]+`, nil},
		{"Ident", `[a-zA-Z][a-zA-Z0-9]*`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

// source is a whole assembly listing.
type source struct {
	Pos   lexer.Position
	Items []*item `@@*`
}

type item struct {
	Pos   lexer.Position
	Label *string      `  @Label`
	Instr *instruction `| @@`
}

type instruction struct {
	Pos      lexer.Position
	Mnemonic string  `@Ident`
	Value    *string `( @Integer`
	Ref      *string `| @Ref )?`
}

var parser = participle.MustBuild[source](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)
