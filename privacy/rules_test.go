package privacy_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/privacy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewerCtx(id, tenant string, roles ...string) context.Context {
	return privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: id, Roles: roles, TenantID: tenant})
}

func TestViewerContext(t *testing.T) {
	assert.Nil(t, privacy.ViewerFromContext(context.Background()))
	v := privacy.ViewerFromContext(viewerCtx("1", "acme", "admin"))
	require.NotNil(t, v)
	assert.Equal(t, "1", v.GetID())
	assert.Equal(t, "acme", v.GetTenantID())
	assert.Equal(t, []string{"admin"}, v.GetRoles())
}

func TestRoleRules(t *testing.T) {
	read := op(document.FindMany, nil)
	tests := []struct {
		name string
		rule privacy.QueryMutationRule
		ctx  context.Context
		want error
	}{
		{name: "deny_if_no_viewer", rule: privacy.DenyIfNoViewer(), ctx: context.Background(), want: privacy.Deny},
		{name: "viewer_present_skips", rule: privacy.DenyIfNoViewer(), ctx: viewerCtx("1", ""), want: privacy.Skip},
		{name: "has_role", rule: privacy.HasRole("admin"), ctx: viewerCtx("1", "", "admin"), want: privacy.Allow},
		{name: "missing_role_skips", rule: privacy.HasRole("admin"), ctx: viewerCtx("1", "", "user"), want: privacy.Skip},
		{name: "no_viewer_skips", rule: privacy.HasRole("admin"), ctx: context.Background(), want: privacy.Skip},
		{name: "has_any_role", rule: privacy.HasAnyRole("admin", "moderator"), ctx: viewerCtx("1", "", "moderator"), want: privacy.Allow},
		{name: "has_none_of_roles", rule: privacy.HasAnyRole("admin", "moderator"), ctx: viewerCtx("1", "", "user"), want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.rule.EvalQuery(tt.ctx, read), tt.want)
			assert.ErrorIs(t, tt.rule.EvalMutation(tt.ctx, read), tt.want)
		})
	}
}

func TestIsOwner(t *testing.T) {
	rule := privacy.IsOwner("authorId")
	tests := []struct {
		name string
		ctx  context.Context
		op   *document.Operation
		want error
	}{
		{
			name: "string_id",
			ctx:  viewerCtx("7", ""),
			op:   op(document.CreateOne, map[string]any{"data": map[string]any{"authorId": "7"}}),
			want: privacy.Allow,
		},
		{
			name: "json_number_id",
			ctx:  viewerCtx("7", ""),
			op:   op(document.UpdateOne, map[string]any{"data": map[string]any{"authorId": json.Number("7")}}),
			want: privacy.Allow,
		},
		{
			name: "upsert_create_argument",
			ctx:  viewerCtx("7", ""),
			op:   op(document.UpsertOne, map[string]any{"create": map[string]any{"authorId": int64(7)}}),
			want: privacy.Allow,
		},
		{
			name: "other_owner_skips",
			ctx:  viewerCtx("7", ""),
			op:   op(document.CreateOne, map[string]any{"data": map[string]any{"authorId": 8}}),
			want: privacy.Skip,
		},
		{
			name: "field_not_written_skips",
			ctx:  viewerCtx("7", ""),
			op:   op(document.CreateOne, map[string]any{"data": map[string]any{"title": "go"}}),
			want: privacy.Skip,
		},
		{
			name: "no_viewer_skips",
			ctx:  context.Background(),
			op:   op(document.CreateOne, map[string]any{"data": map[string]any{"authorId": "7"}}),
			want: privacy.Skip,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, rule.EvalMutation(tt.ctx, tt.op), tt.want)
		})
	}
}

func TestTenantRules(t *testing.T) {
	create := func(tenant string) *document.Operation {
		return op(document.CreateOne, map[string]any{"data": map[string]any{"tenantId": tenant}})
	}

	t.Run("tenant_rule", func(t *testing.T) {
		rule := privacy.TenantRule("tenantId")
		assert.ErrorIs(t, rule.EvalMutation(viewerCtx("1", "acme"), create("acme")), privacy.Allow)
		assert.ErrorIs(t, rule.EvalMutation(viewerCtx("1", "acme"), create("other")), privacy.Deny)
		assert.ErrorIs(t, rule.EvalMutation(viewerCtx("1", ""), create("acme")), privacy.Skip)
	})

	t.Run("tenant_query_rule", func(t *testing.T) {
		rule := privacy.TenantQueryRule()
		read := op(document.FindMany, nil)
		assert.ErrorIs(t, rule.EvalQuery(context.Background(), read), privacy.Deny)
		assert.ErrorIs(t, rule.EvalQuery(viewerCtx("1", ""), read), privacy.Deny)
		assert.ErrorIs(t, rule.EvalQuery(viewerCtx("1", "acme"), read), privacy.Skip)
	})

	t.Run("tenant_filter_rule", func(t *testing.T) {
		rule := privacy.TenantFilterRule("tenantId")
		read := op(document.FindMany, map[string]any{"where": map[string]any{"title": "go"}})
		require.ErrorIs(t, rule.EvalQuery(viewerCtx("1", "acme"), read), privacy.Skip)
		assert.Equal(t, map[string]any{
			"AND": []any{map[string]any{"title": "go"}, map[string]any{"tenantId": "acme"}},
		}, read.Arguments["where"])

		unique := op(document.FindUnique, map[string]any{"where": map[string]any{"id": 1}})
		require.ErrorIs(t, rule.EvalQuery(viewerCtx("1", "acme"), unique), privacy.Skip)
		assert.Equal(t, map[string]any{"id": 1}, unique.Arguments["where"])

		assert.ErrorIs(t, rule.EvalMutation(context.Background(), op(document.DeleteMany, nil)), privacy.Deny)
	})

	t.Run("owner_query_rule", func(t *testing.T) {
		rule := privacy.OwnerQueryRule()
		assert.ErrorIs(t, rule.EvalQuery(context.Background(), op(document.FindMany, nil)), privacy.Deny)
		assert.ErrorIs(t, rule.EvalQuery(viewerCtx("1", ""), op(document.FindMany, nil)), privacy.Skip)
	})
}
