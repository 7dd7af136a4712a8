// Package filter implements the boolean filter-expression language used by
// FIND/FIND_PAGE (spec.md §4.7): a small expression grammar over field
// comparisons joined by and/or/not, evaluated against a single entity's
// field values via a caller-supplied lookup function.
package filter

import "strings"

// TokenType identifies the kind of lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenInt
	TokenFloat
	TokenBool
	TokenNull

	TokenEQ
	TokenNEQ
	TokenGT
	TokenLT
	TokenGTE
	TokenLTE

	TokenLParen
	TokenRParen
	TokenComma

	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenLike
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenInt:
		return "integer"
	case TokenFloat:
		return "float"
	case TokenBool:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenEQ:
		return "="
	case TokenNEQ:
		return "!="
	case TokenGT:
		return ">"
	case TokenLT:
		return "<"
	case TokenGTE:
		return ">="
	case TokenLTE:
		return "<="
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenComma:
		return ","
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenNot:
		return "not"
	case TokenIn:
		return "in"
	case TokenLike:
		return "like"
	default:
		return "unknown"
	}
}

// Token is a single lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	Line    int
	Col     int
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"in":    TokenIn,
	"like":  TokenLike,
	"true":  TokenBool,
	"false": TokenBool,
	"null":  TokenNull,
}

// LookupKeyword returns the keyword token type for an identifier, or
// TokenIdent if it is not a keyword. Lookup is case-insensitive.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TokenIdent
}
