package uripath

import (
	"fmt"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// resolveOverload picks the operation named name that matches the supplied
// parameters. Actions and functions may not share a name. Among the
// functions whose parameters accept the supplied names, the most derived
// binding type wins; candidates with equally derived bindings are separated
// by preferring the one whose parameters are exactly the supplied names.
func resolveOverload(name string, ops []*edm.Operation, params []*expr.FunctionParameterToken, caseInsensitive bool) (*edm.Operation, error) {
	var actions, functions []*edm.Operation
	for _, op := range ops {
		if op.IsAction {
			actions = append(actions, op)
		} else {
			functions = append(functions, op)
		}
	}
	if len(actions) > 0 && len(functions) > 0 {
		return nil, types.NewBindingError(fmt.Sprintf("'%s' names both actions and functions", name)).
			WithCause(types.ErrActionFunctionMix)
	}
	if len(actions) > 0 {
		if len(params) > 0 {
			return nil, types.NewBindingError(fmt.Sprintf("action '%s' cannot take parameters in the path", name)).
				WithCause(types.ErrNoOverload)
		}
		return mostSpecific(name, actions)
	}

	given := make([]string, 0, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, types.NewBindingError(fmt.Sprintf("parameters of function '%s' must be named", name)).
				WithCause(types.ErrNoOverload)
		}
		given = append(given, p.Name)
	}
	var candidates []*edm.Operation
	exact := make(map[*edm.Operation]bool)
	for _, op := range functions {
		switch matchParameters(op, given, caseInsensitive) {
		case matchExact:
			exact[op] = true
			candidates = append(candidates, op)
		case matchPartial:
			candidates = append(candidates, op)
		}
	}
	if len(candidates) == 0 {
		return nil, types.NewBindingError(fmt.Sprintf("no overload of '%s' accepts parameters (%s)", name, strings.Join(given, ","))).
			WithCause(types.ErrNoOverload)
	}

	best := undominated(candidates)
	if len(best) == 1 {
		return best[0], nil
	}
	var covering []*edm.Operation
	for _, op := range best {
		if exact[op] {
			covering = append(covering, op)
		}
	}
	if len(covering) == 1 {
		return covering[0], nil
	}
	return nil, ambiguous(name, len(best))
}

type paramMatch int

const (
	matchNone paramMatch = iota
	matchPartial
	matchExact
)

// matchParameters checks that every given name is a parameter of op and that
// no required parameter is missing.
func matchParameters(op *edm.Operation, given []string, caseInsensitive bool) paramMatch {
	declared := op.NonBindingParameters()
	for _, name := range given {
		if op.FindParameter(name, caseInsensitive) == nil {
			return matchNone
		}
	}
	for _, p := range declared {
		if p.Optional {
			continue
		}
		found := false
		for _, name := range given {
			if name == p.Name || (caseInsensitive && strings.EqualFold(name, p.Name)) {
				found = true
				break
			}
		}
		if !found {
			return matchNone
		}
	}
	if len(given) == len(declared) {
		return matchExact
	}
	return matchPartial
}

// mostSpecific returns the candidate whose binding type derives from the
// binding types of all the others. Candidates bound to unrelated or equal
// types are ambiguous.
func mostSpecific(name string, ops []*edm.Operation) (*edm.Operation, error) {
	best := undominated(ops)
	if len(best) != 1 {
		return nil, ambiguous(name, len(best))
	}
	return best[0], nil
}

// undominated drops every candidate whose binding type is a strict base of
// another candidate's binding type.
func undominated(ops []*edm.Operation) []*edm.Operation {
	if len(ops) < 2 {
		return ops
	}
	var best []*edm.Operation
	for _, op := range ops {
		dominated := false
		for _, other := range ops {
			if other != op && derivesStrictly(bindingType(other), bindingType(op)) {
				dominated = true
				break
			}
		}
		if !dominated {
			best = append(best, op)
		}
	}
	return best
}

func ambiguous(name string, n int) error {
	return types.NewBindingError(fmt.Sprintf("%d overloads of '%s' match equally well", n, name)).
		WithCause(types.ErrAmbiguousOverload)
}

func bindingType(op *edm.Operation) *edm.StructuredType {
	if bp := op.BindingParameter(); bp != nil {
		return bp.Type.Structured()
	}
	return nil
}

func derivesStrictly(derived, base *edm.StructuredType) bool {
	return derived != nil && base != nil && derived != base && derived.IsOrDerivesFrom(base)
}
