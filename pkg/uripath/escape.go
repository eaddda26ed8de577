package uripath

import (
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// escape handles "Segment:/any/text:" syntax. The part before the colon is
// bound normally, then raw segments are captured up to one ending in ':' and
// passed as the string argument of an escape function bound to the result.
// A capture ending in "::" starts another escape function on the result.
//
// When no escape function applies, every segment bound here is discarded,
// the queue is rewound and ok is false.
func (st *state) escape(raw string) (ok bool, err error) {
	savedPos, savedLen := st.pos, len(st.segments)
	rollback := func() (bool, error) {
		st.pos = savedPos
		st.segments = st.segments[:savedLen]
		st.p.logger.Debug("escape function rollback", "segment", raw)
		return false, nil
	}

	head := strings.TrimSuffix(raw, ":")
	if err := st.bind(head); err != nil {
		if isLimitError(err) {
			return false, err
		}
		return rollback()
	}

	for {
		if st.last().IsLeaf() {
			return rollback()
		}
		arg, chained, captured := st.capture()
		if !captured {
			return rollback()
		}
		more := chained || st.pos < len(st.raw)
		op, found, err := st.findEscapeFunction(more)
		if err != nil {
			return false, err
		}
		if !found {
			return rollback()
		}
		param := op.NonBindingParameters()[0]
		value := &expr.LiteralToken{Value: literal.NewString(arg), Text: literal.Quote(arg)}
		st.push(st.operationSegment(KindOperation, op.FullName(), op,
			[]*expr.FunctionParameterToken{{Name: param.Name, Value: value}}, st.entitySetPath(op)))
		if !chained {
			return true, nil
		}
	}
}

// capture consumes raw segments up to and including the terminator.
func (st *state) capture() (arg string, chained, ok bool) {
	var parts []string
	for st.pos < len(st.raw) {
		s := st.raw[st.pos]
		st.pos++
		if strings.HasSuffix(s, "::") {
			parts = append(parts, strings.TrimSuffix(s, "::"))
			chained = true
			break
		}
		if strings.HasSuffix(s, ":") {
			parts = append(parts, strings.TrimSuffix(s, ":"))
			break
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "", false, false
	}
	return strings.Join(parts, "/"), chained, true
}

// findEscapeFunction looks for a function annotated as a URL escape function
// bound to the current segment, taking one string parameter. A composable
// function is required when more segments follow; otherwise a non-composable
// one is preferred.
func (st *state) findEscapeFunction(composable bool) (*edm.Operation, bool, error) {
	prev := st.last()
	m := st.p.resolver.Model()
	if m == nil || prev.Structured() == nil {
		return nil, false, nil
	}
	var withComposable, withoutComposable []*edm.Operation
	for _, op := range m.Operations {
		if !op.IsBound || op.IsAction || !op.URLEscape {
			continue
		}
		params := op.NonBindingParameters()
		if len(params) != 1 {
			continue
		}
		if k, ok := params[0].Type.Primitive(); !ok || k != edm.String {
			continue
		}
		if !edm.BindingAccepts(op.BindingParameter().Type, prev.TypeRef()) {
			continue
		}
		if op.Composable {
			withComposable = append(withComposable, op)
		} else {
			withoutComposable = append(withoutComposable, op)
		}
	}

	candidates := withComposable
	if !composable && len(withoutComposable) > 0 {
		candidates = withoutComposable
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	op, err := mostSpecific("escape function", candidates)
	if err != nil {
		return nil, false, err
	}
	return op, true, nil
}

func isLimitError(err error) bool {
	return types.IsKind(err, types.KindRecursionLimit) ||
		types.IsKind(err, types.KindPathTooLong) ||
		types.IsKind(err, types.KindSegmentCount)
}
