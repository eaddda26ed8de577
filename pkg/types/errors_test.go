package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ParseError
		want string
	}{
		{
			name: "syntax error with position",
			err:  NewSyntaxError("expected ')'", 4, "(1 eq 2"),
			want: "SyntaxError at position 4 in '(1 eq 2': expected ')'",
		},
		{
			name: "binding error with path",
			err: NewBindingError("no property 'Foo'").WithPath(&PathContext{
				Parsed: []string{"People", "1"}, Segment: "Foo", Remaining: []string{"Bar"},
			}),
			want: "BindingError: no property 'Foo' (segment 'Foo' after 'People/1')",
		},
		{
			name: "recursion limit",
			err:  NewRecursionError(10),
			want: "RecursionLimitExceeded: recursion depth limit exceeded (max 10)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestSentinelsAndStatus(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewBindingError("after leaf").WithCause(ErrLeafSegment).WithNotFound())

	assert.True(t, errors.Is(err, ErrLeafSegment))
	assert.False(t, errors.Is(err, ErrCountOnRoot))
	assert.True(t, IsKind(err, KindBinding))
	assert.Equal(t, CodeNotFound, StatusOf(err))

	assert.True(t, errors.Is(NewPathTooLongError(3), ErrLimitExceeded))
	assert.True(t, IsKind(NewSegmentCountError(3), KindSegmentCount))
	assert.Equal(t, CodeBadRequest, StatusOf(NewSyntaxError("x", 0, "")))
	assert.Equal(t, 500, StatusOf(errors.New("boom")))
	assert.False(t, IsKind(errors.New("boom"), KindSyntax))
}
