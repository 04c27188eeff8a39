// Package privacy provides sets of types and helpers for writing privacy
// rules on models, and deal with their evaluation before a request is
// compiled into a query graph.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/filter"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("qengine/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("qengine/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("qengine/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// IsDenied reports if err is a deny decision.
func IsDenied(err error) bool { return errors.Is(err, Deny) }

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context evaluation function.
// The provided function receives the context and should return Allow, Deny, Skip, or nil.
// Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule decides whether a read operation is allowed and may
	// narrow it.
	QueryRule interface {
		EvalQuery(context.Context, *document.Operation) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a write operation is allowed and may
	// narrow it.
	MutationRule interface {
		EvalMutation(context.Context, *document.Operation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, *document.Operation) error

// EvalMutation returns f(ctx, op).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, op *document.Operation) error {
	return f(ctx, op)
}

// QueryRuleFunc type is an adapter which allows the use of ordinary
// functions as query rules.
type QueryRuleFunc func(context.Context, *document.Operation) error

// EvalQuery returns f(ctx, op).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, op *document.Operation) error {
	return f(ctx, op)
}

// OnAction evaluates the given rule only on the given write actions.
func OnAction(rule MutationRule, actions ...document.Action) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, op *document.Operation) error {
		if slices.Contains(actions, op.Action) {
			return rule.EvalMutation(ctx, op)
		}
		return Skip
	})
}

// DenyActionRule returns a rule denying the given write actions.
func DenyActionRule(actions ...document.Action) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, op *document.Operation) error {
		return Denyf("qengine/privacy: action %s is not allowed on %s", op.Action, op.Model)
	})
	return OnAction(rule, actions...)
}

// AllowActionRule returns a rule allowing the given write actions.
func AllowActionRule(actions ...document.Action) MutationRule {
	rule := MutationRuleFunc(func(context.Context, *document.Operation) error {
		return Allow
	})
	return OnAction(rule, actions...)
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, op *document.Operation) error {
	return p.Query.EvalQuery(ctx, op)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, op *document.Operation) error {
	return p.Mutation.EvalMutation(ctx, op)
}

// Policies combines multiple policies into a single policy.
type Policies []Policy

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, op *document.Operation) error {
	return policies.eval(ctx, func(policy Policy) error {
		return policy.EvalQuery(ctx, op)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, op *document.Operation) error {
	return policies.eval(ctx, func(policy Policy) error {
		return policy.EvalMutation(ctx, op)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates an operation against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, op *document.Operation) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, op); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates an operation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, op *document.Operation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, op); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// ModelPolicies binds policies to model names. Raw operations are
// evaluated against the policies of the empty model name.
type ModelPolicies map[string]Policies

// Eval evaluates the policies of the operation model. Read actions run the
// query policies and write actions the mutation policies. Rules may narrow
// op; the caller passes a copy when the original must be kept.
func (mp ModelPolicies) Eval(ctx context.Context, op *document.Operation) error {
	policies := mp[op.Model]
	if op.Action.IsWrite() {
		return policies.EvalMutation(ctx, op)
	}
	return policies.EvalQuery(ctx, op)
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *document.Operation) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *document.Operation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *document.Operation) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ *document.Operation) error {
	return c.eval(ctx)
}

// Filter narrows the records an operation applies to.
type Filter interface {
	// Where adds a where map that every matching record must satisfy.
	Where(where map[string]any)
}

// filterable are the actions taking a where argument that is not bound to
// a unique criteria.
var filterable = []document.Action{
	document.FindFirst, document.FindFirstOrThrow, document.FindMany,
	document.Aggregate, document.UpdateMany, document.UpdateManyAndReturn, document.DeleteMany,
}

// Filterable reports if the operation supports filtering rules.
func Filterable(op *document.Operation) bool {
	return slices.Contains(filterable, op.Action)
}

// FilterFunc is an adapter that allows using ordinary functions as
// query/mutation rules that narrow the operation.
//
// Example usage:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.Where(map[string]any{"tenantId": privacy.ViewerFromContext(ctx).GetTenantID()})
//	    return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f with a filter of op if the action supports filtering.
func (f FilterFunc) EvalQuery(ctx context.Context, op *document.Operation) error {
	if !Filterable(op) {
		return Denyf("qengine/privacy: action %s does not support filtering", op.Action)
	}
	return f(ctx, operationFilter{op})
}

// EvalMutation calls f with a filter of op if the action supports filtering.
func (f FilterFunc) EvalMutation(ctx context.Context, op *document.Operation) error {
	return f.EvalQuery(ctx, op)
}

type operationFilter struct {
	op *document.Operation
}

// Where replaces the argument map of the operation, leaving the original
// map untouched.
func (f operationFilter) Where(where map[string]any) {
	args := maps.Clone(f.op.Arguments)
	if args == nil {
		args = make(map[string]any, 1)
	}
	if cur, ok := args[document.ArgWhere].(map[string]any); ok && len(cur) > 0 {
		where = map[string]any{filter.AndKey: []any{cur, where}}
	}
	args[document.ArgWhere] = where
	f.op.Arguments = args
}

var _ QueryMutationRule = FilterFunc(nil)
