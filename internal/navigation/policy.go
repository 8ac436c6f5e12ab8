package navigation

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/bhandras/shellkit/internal/router"
)

// BasePredicate reports whether next renders the same root component as
// prev.
type BasePredicate func(prev, next router.Location) bool

// Policy classifies transitions. A transition is same-base when every
// predicate agrees.
type Policy struct {
	Predicates []BasePredicate
}

// DefaultPolicy compares first path segments.
func DefaultPolicy() Policy {
	return Policy{Predicates: []BasePredicate{SameFirstSegment}}
}

// SameBase applies the policy. An empty policy behaves like DefaultPolicy.
func (p Policy) SameBase(prev, next router.Location) bool {
	if len(p.Predicates) == 0 {
		return SameFirstSegment(prev, next)
	}
	for _, pred := range p.Predicates {
		if !pred(prev, next) {
			return false
		}
	}
	return true
}

// SameFirstSegment compares the first path segment of both locations.
func SameFirstSegment(prev, next router.Location) bool {
	return prev.FirstSegment() == next.FirstSegment()
}

// ExprPredicate compiles src into a predicate. The expression sees prev and
// next, each with pathname, search, hash and base, and must yield a bool:
//
//	next.base != "products" || next.search != ""
//
// An evaluation error counts as a different base.
func ExprPredicate(src string) (BasePredicate, error) {
	if src == "" {
		return nil, fmt.Errorf("navigation: empty base predicate")
	}
	program, err := exprlang.Compile(src,
		exprlang.Env(exprEnv(router.Location{}, router.Location{})),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("navigation: compile %q: %w", src, err)
	}
	return func(prev, next router.Location) bool {
		return evalBool(program, src, prev, next)
	}, nil
}

func evalBool(program *exprvm.Program, src string, prev, next router.Location) bool {
	out, err := exprlang.Run(program, exprEnv(prev, next))
	if err != nil {
		log.Warnf("base predicate %q: %v", src, err)
		return false
	}
	same, _ := out.(bool)
	return same
}

func exprEnv(prev, next router.Location) map[string]any {
	return map[string]any{
		"prev": locationEnv(prev),
		"next": locationEnv(next),
	}
}

func locationEnv(l router.Location) map[string]any {
	return map[string]any{
		"pathname": l.Pathname,
		"search":   l.Search,
		"hash":     l.Hash,
		"base":     l.FirstSegment(),
	}
}

// PolicyFromExprs builds a policy of SameFirstSegment followed by one
// ExprPredicate per source.
func PolicyFromExprs(srcs ...string) (Policy, error) {
	p := DefaultPolicy()
	for _, src := range srcs {
		pred, err := ExprPredicate(src)
		if err != nil {
			return Policy{}, err
		}
		p.Predicates = append(p.Predicates, pred)
	}
	return p, nil
}
