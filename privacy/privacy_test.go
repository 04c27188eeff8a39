package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/privacy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(action document.Action, args map[string]any) *document.Operation {
	return &document.Operation{Action: action, Model: "Post", Arguments: args}
}

// TestDecisionErrors tests the decision error types and formatting.
func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name      string
		decision  error
		wantAllow bool
		wantDeny  bool
		wantSkip  bool
	}{
		{name: "allow_decision", decision: privacy.Allow, wantAllow: true},
		{name: "deny_decision", decision: privacy.Deny, wantDeny: true},
		{name: "skip_decision", decision: privacy.Skip, wantSkip: true},
		{name: "allowf_formatted", decision: privacy.Allowf("user %s allowed", "admin"), wantAllow: true},
		{name: "denyf_formatted", decision: privacy.Denyf("user %s denied", "guest"), wantDeny: true},
		{name: "skipf_formatted", decision: privacy.Skipf("rule %d skipped", 1), wantSkip: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAllow, errors.Is(tt.decision, privacy.Allow))
			assert.Equal(t, tt.wantDeny, privacy.IsDenied(tt.decision))
			assert.Equal(t, tt.wantSkip, errors.Is(tt.decision, privacy.Skip))
		})
	}
}

// TestAlwaysRules tests AlwaysAllowRule and AlwaysDenyRule.
func TestAlwaysRules(t *testing.T) {
	ctx := context.Background()
	read, write := op(document.FindMany, nil), op(document.CreateOne, nil)

	t.Run("AlwaysAllowRule", func(t *testing.T) {
		rule := privacy.AlwaysAllowRule()
		assert.ErrorIs(t, rule.EvalQuery(ctx, read), privacy.Allow)
		assert.ErrorIs(t, rule.EvalMutation(ctx, write), privacy.Allow)
	})

	t.Run("AlwaysDenyRule", func(t *testing.T) {
		rule := privacy.AlwaysDenyRule()
		assert.ErrorIs(t, rule.EvalQuery(ctx, read), privacy.Deny)
		assert.ErrorIs(t, rule.EvalMutation(ctx, write), privacy.Deny)
	})
}

// TestOnAction tests action-specific mutation rules.
func TestOnAction(t *testing.T) {
	tests := []struct {
		name       string
		actions    []document.Action
		action     document.Action
		decision   error
		wantResult error
	}{
		{
			name:       "matching_create",
			actions:    []document.Action{document.CreateOne, document.CreateMany},
			action:     document.CreateMany,
			decision:   privacy.Deny,
			wantResult: privacy.Deny,
		},
		{
			name:       "non_matching_skips",
			actions:    []document.Action{document.CreateOne},
			action:     document.UpdateOne,
			decision:   privacy.Deny,
			wantResult: privacy.Skip,
		},
		{
			name:       "matching_delete",
			actions:    []document.Action{document.DeleteOne},
			action:     document.DeleteOne,
			decision:   privacy.Allow,
			wantResult: privacy.Allow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := privacy.MutationRuleFunc(func(context.Context, *document.Operation) error {
				return tt.decision
			})
			err := privacy.OnAction(base, tt.actions...).EvalMutation(context.Background(), op(tt.action, nil))
			assert.ErrorIs(t, err, tt.wantResult)
		})
	}

	t.Run("deny_action_rule", func(t *testing.T) {
		rule := privacy.DenyActionRule(document.DeleteMany)
		err := rule.EvalMutation(context.Background(), op(document.DeleteMany, nil))
		assert.ErrorIs(t, err, privacy.Deny)
		assert.Contains(t, err.Error(), "deleteMany")
		assert.ErrorIs(t, rule.EvalMutation(context.Background(), op(document.DeleteOne, nil)), privacy.Skip)
	})

	t.Run("allow_action_rule", func(t *testing.T) {
		rule := privacy.AllowActionRule(document.CreateOne)
		assert.ErrorIs(t, rule.EvalMutation(context.Background(), op(document.CreateOne, nil)), privacy.Allow)
	})
}

// TestDecisionContext tests context-based decision passing.
func TestDecisionContext(t *testing.T) {
	tests := []struct {
		name         string
		decision     error
		expectStored bool
		expectValue  error
	}{
		{name: "deny_stored_in_context", decision: privacy.Deny, expectStored: true, expectValue: privacy.Deny},
		{name: "allow_stored_returns_nil", decision: privacy.Allow, expectStored: true},
		{name: "skip_not_stored", decision: privacy.Skip},
		{name: "nil_not_stored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := privacy.DecisionContext(context.Background(), tt.decision)
			decision, ok := privacy.DecisionFromContext(ctx)
			assert.Equal(t, tt.expectStored, ok)
			if tt.expectValue == nil {
				assert.NoError(t, decision)
			} else {
				assert.ErrorIs(t, decision, tt.expectValue)
			}
		})
	}
}

// TestQueryPolicy tests query policy evaluation.
func TestQueryPolicy(t *testing.T) {
	rule := func(err error) privacy.QueryRule {
		return privacy.QueryRuleFunc(func(context.Context, *document.Operation) error { return err })
	}
	never := privacy.QueryRuleFunc(func(context.Context, *document.Operation) error {
		panic("should not be called")
	})
	tests := []struct {
		name       string
		policy     privacy.QueryPolicy
		wantResult error
	}{
		{name: "empty_policy_allows"},
		{name: "first_allow_stops", policy: privacy.QueryPolicy{rule(privacy.Allow), never}, wantResult: privacy.Allow},
		{name: "first_deny_stops", policy: privacy.QueryPolicy{rule(privacy.Deny), never}, wantResult: privacy.Deny},
		{name: "skip_continues_to_next", policy: privacy.QueryPolicy{rule(privacy.Skip), rule(privacy.Allow)}, wantResult: privacy.Allow},
		{name: "nil_continues_to_next", policy: privacy.QueryPolicy{rule(nil), rule(privacy.Deny)}, wantResult: privacy.Deny},
		{name: "all_skip_allows", policy: privacy.QueryPolicy{rule(privacy.Skip), rule(privacy.Skip)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.EvalQuery(context.Background(), op(document.FindMany, nil))
			if tt.wantResult == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantResult)
		})
	}
}

// TestModelPolicies tests the dispatch of operations to the policies of
// their model.
func TestModelPolicies(t *testing.T) {
	policies := privacy.ModelPolicies{
		"Post": {
			{
				Query:    privacy.QueryPolicy{privacy.AlwaysAllowRule()},
				Mutation: privacy.MutationPolicy{privacy.DenyIfNoViewer(), privacy.HasRole("admin"), privacy.AlwaysDenyRule()},
			},
		},
		"": {{Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()}}},
	}
	ctx := context.Background()
	admin := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "1", Roles: []string{"admin"}})
	guest := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "2"})

	t.Run("reads_use_query_policy", func(t *testing.T) {
		assert.NoError(t, policies.Eval(ctx, op(document.FindMany, nil)))
	})
	t.Run("writes_use_mutation_policy", func(t *testing.T) {
		assert.ErrorIs(t, policies.Eval(ctx, op(document.CreateOne, nil)), privacy.Deny)
		assert.NoError(t, policies.Eval(admin, op(document.CreateOne, nil)))
		assert.ErrorIs(t, policies.Eval(guest, op(document.UpdateOne, nil)), privacy.Deny)
	})
	t.Run("unknown_model_allows", func(t *testing.T) {
		assert.NoError(t, policies.Eval(ctx, &document.Operation{Action: document.DeleteMany, Model: "Tag"}))
	})
	t.Run("raw_operations", func(t *testing.T) {
		assert.ErrorIs(t, policies.Eval(admin, &document.Operation{Action: document.ExecuteRaw}), privacy.Deny)
		assert.NoError(t, policies.Eval(ctx, &document.Operation{Action: document.QueryRaw}))
	})
	t.Run("context_decision_wins", func(t *testing.T) {
		ctx := privacy.DecisionContext(ctx, privacy.Allow)
		assert.NoError(t, policies.Eval(ctx, op(document.CreateOne, nil)))
	})
}

// TestFilterFunc tests rules narrowing the where argument.
func TestFilterFunc(t *testing.T) {
	rule := privacy.FilterFunc(func(_ context.Context, f privacy.Filter) error {
		f.Where(map[string]any{"published": true})
		return privacy.Skip
	})

	t.Run("empty_where", func(t *testing.T) {
		o := op(document.FindMany, nil)
		require.ErrorIs(t, rule.EvalQuery(context.Background(), o), privacy.Skip)
		assert.Equal(t, map[string]any{"where": map[string]any{"published": true}}, o.Arguments)
	})

	t.Run("existing_where_is_kept", func(t *testing.T) {
		where := map[string]any{"title": "go"}
		args := map[string]any{"where": where, "take": 1}
		o := op(document.UpdateMany, args)
		require.ErrorIs(t, rule.EvalMutation(context.Background(), o), privacy.Skip)
		assert.Equal(t, map[string]any{
			"AND": []any{where, map[string]any{"published": true}},
		}, o.Arguments["where"])
		assert.Equal(t, 1, o.Arguments["take"])
		assert.Equal(t, where, args["where"], "original arguments are not mutated")
	})

	t.Run("unique_actions_are_denied", func(t *testing.T) {
		err := rule.EvalQuery(context.Background(), op(document.FindUnique, nil))
		assert.ErrorIs(t, err, privacy.Deny)
	})
}
