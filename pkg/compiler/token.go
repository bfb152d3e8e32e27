package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / struct name
	INT_LIT    // integer literal, decimal or hex
	DOUBLE_LIT // floating-point literal
	CHAR_LIT   // character literal 'c'
	STRING_LIT // string literal "..."

	// Keywords
	INT    // "int"
	DOUBLE // "double"
	CHAR   // "char"
	VOID   // "void"
	STRUCT // "struct"
	IF     // "if"
	ELSE   // "else"
	WHILE  // "while"
	RETURN // "return"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT       // .
	SEMICOLON // ;
	COMMA     // ,

	// Operators  (order matters: ASSIGN before EQUALS)
	PLUS        // +
	MINUS       // -
	STAR        // *
	SLASH       // /
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !
	ASSIGN      // =
	EQUALS      // ==
	NOT_EQ      // !=
	LESS        // <
	LESS_EQ     // <=
	GREATER     // >
	GREATER_EQ  // >=
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:         "EOF",
	IDENTIFIER:  "IDENTIFIER",
	INT_LIT:     "INT_LIT",
	DOUBLE_LIT:  "DOUBLE_LIT",
	CHAR_LIT:    "CHAR_LIT",
	STRING_LIT:  "STRING_LIT",
	INT:         "INT",
	DOUBLE:      "DOUBLE",
	CHAR:        "CHAR",
	VOID:        "VOID",
	STRUCT:      "STRUCT",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	RETURN:      "RETURN",
	LBRACE:      "LBRACE",
	RBRACE:      "RBRACE",
	LPAREN:      "LPAREN",
	RPAREN:      "RPAREN",
	LBRACKET:    "LBRACKET",
	RBRACKET:    "RBRACKET",
	DOT:         "DOT",
	SEMICOLON:   "SEMICOLON",
	COMMA:       "COMMA",
	PLUS:        "PLUS",
	MINUS:       "MINUS",
	STAR:        "STAR",
	SLASH:       "SLASH",
	AND_LOGICAL: "AND_LOGICAL",
	OR_LOGICAL:  "OR_LOGICAL",
	NOT:         "NOT",
	ASSIGN:      "ASSIGN",
	EQUALS:      "EQUALS",
	NOT_EQ:      "NOT_EQ",
	LESS:        "LESS",
	LESS_EQ:     "LESS_EQ",
	GREATER:     "GREATER",
	GREATER_EQ:  "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer. At most one payload
// field is meaningful: I for INT_LIT and CHAR_LIT, D for DOUBLE_LIT, Lexeme
// for IDENTIFIER (matched text) and STRING_LIT (decoded value).
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int // 1-based source line
	I      int64
	D      float64
}

func (t Token) String() string {
	switch t.Type {
	case INT_LIT, CHAR_LIT:
		return fmt.Sprintf("%-10s %-14d  line %d", t.Type, t.I, t.Line)
	case DOUBLE_LIT:
		return fmt.Sprintf("%-10s %-14g  line %d", t.Type, t.D, t.Line)
	default:
		return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
	}
}
