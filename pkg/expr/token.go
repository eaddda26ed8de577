// Package expr implements the OData expression language front end: the
// lexer, the precedence-climbing parser that turns $filter, $orderby,
// $compute, $apply and $search text into QueryToken trees, and the
// argument-list parsing shared with the path parsers.
package expr

import "github.com/lemonberrylabs/odata-uri-parser/pkg/literal"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Literals
	TokenNull           TokenType = iota // null
	TokenBoolean                         // true, false
	TokenInt32                           // 12
	TokenInt64                           // 12L, or an integer too large for Int32
	TokenSingle                          // 1.5f
	TokenDouble                          // 1.5d, 1e3, INF, NaN
	TokenDecimal                         // 1.5, 1.5M
	TokenString                          // 'text'
	TokenGuid                            // 01234567-89ab-cdef-0123-456789abcdef
	TokenBinary                          // binary'AQ==', X'01'
	TokenDate                            // 2020-01-02
	TokenDateTimeOffset                  // 2020-01-02T03:04:05Z
	TokenTimeOfDay                       // 03:04:05
	TokenDuration                        // duration'P1D'
	TokenGeography                       // geography'Point(1 2)'
	TokenGeometry                        // geometry'Point(1 2)'
	TokenQuotedLiteral                   // Namespace.Type'text', e.g. enum members
	TokenBracketed                       // JSON array or object: [1,2], {"a":1}

	// Identifiers
	TokenIdent          // Name, $it, $count
	TokenParameterAlias // @p

	// Punctuation
	TokenDot       // .
	TokenComma     // ,
	TokenLParen    // (
	TokenRParen    // )
	TokenSlash     // /
	TokenColon     // :
	TokenEqual     // =
	TokenStar      // *
	TokenMinus     // -
	TokenSemicolon // ; (only in semicolon-delimited mode)

	// Special
	TokenEOF // end of text
)

var tokenNames = map[TokenType]string{
	TokenNull:           "NULL",
	TokenBoolean:        "BOOLEAN",
	TokenInt32:          "INT32",
	TokenInt64:          "INT64",
	TokenSingle:         "SINGLE",
	TokenDouble:         "DOUBLE",
	TokenDecimal:        "DECIMAL",
	TokenString:         "STRING",
	TokenGuid:           "GUID",
	TokenBinary:         "BINARY",
	TokenDate:           "DATE",
	TokenDateTimeOffset: "DATETIMEOFFSET",
	TokenTimeOfDay:      "TIMEOFDAY",
	TokenDuration:       "DURATION",
	TokenGeography:      "GEOGRAPHY",
	TokenGeometry:       "GEOMETRY",
	TokenQuotedLiteral:  "QUOTED_LITERAL",
	TokenBracketed:      "BRACKETED",
	TokenIdent:          "IDENT",
	TokenParameterAlias: "PARAMETER_ALIAS",
	TokenDot:            "'.'",
	TokenComma:          "','",
	TokenLParen:         "'('",
	TokenRParen:         "')'",
	TokenSlash:          "'/'",
	TokenColon:          "':'",
	TokenEqual:          "'='",
	TokenStar:           "'*'",
	TokenMinus:          "'-'",
	TokenSemicolon:      "';'",
	TokenEOF:            "EOF",
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsLiteral reports whether t is one of the literal kinds.
func (t TokenType) IsLiteral() bool {
	return t <= TokenBracketed
}

// IsNumeric reports whether t is a numeric literal kind.
func (t TokenType) IsNumeric() bool {
	switch t {
	case TokenInt32, TokenInt64, TokenSingle, TokenDouble, TokenDecimal:
		return true
	}
	return false
}

// Token represents a single lexical token.
type Token struct {
	Type  TokenType
	Text  string        // source text of the token
	Value literal.Value // parsed value for literal tokens other than TokenBracketed
	Pos   int           // byte offset in the source
}

// Is reports whether the token is the identifier word.
func (t Token) Is(word string, caseInsensitive bool) bool {
	if t.Type != TokenIdent {
		return false
	}
	if caseInsensitive {
		return equalFold(t.Text, word)
	}
	return t.Text == word
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		x, y := a[i], b[i]
		if 'A' <= x && x <= 'Z' {
			x += 'a' - 'A'
		}
		if 'A' <= y && y <= 'Z' {
			y += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}

// literalTokenType maps a parsed literal value to its token type.
func literalTokenType(v literal.Value) TokenType {
	switch v.Type() {
	case literal.TypeNull:
		return TokenNull
	case literal.TypeBoolean:
		return TokenBoolean
	case literal.TypeInt32, literal.TypeByte, literal.TypeSByte, literal.TypeInt16:
		return TokenInt32
	case literal.TypeInt64:
		return TokenInt64
	case literal.TypeSingle:
		return TokenSingle
	case literal.TypeDouble:
		return TokenDouble
	case literal.TypeDecimal:
		return TokenDecimal
	case literal.TypeString:
		return TokenString
	case literal.TypeGuid:
		return TokenGuid
	case literal.TypeBinary:
		return TokenBinary
	case literal.TypeDate:
		return TokenDate
	case literal.TypeDateTimeOffset:
		return TokenDateTimeOffset
	case literal.TypeTimeOfDay:
		return TokenTimeOfDay
	case literal.TypeDuration:
		return TokenDuration
	case literal.TypeGeography:
		return TokenGeography
	case literal.TypeGeometry:
		return TokenGeometry
	default:
		return TokenQuotedLiteral
	}
}
