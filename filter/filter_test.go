package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/filter"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"
)

func userModel(t *testing.T) *schema.Model {
	t.Helper()
	c := schema.New(schema.ForeignKeys)
	c.MustAddModel(&schema.Model{
		Name: "User",
		Fields: []*schema.Field{
			{Name: "id", Type: field.TypeInt},
			{Name: "email", Type: field.TypeString, Unique: true},
			{Name: "first", Type: field.TypeString},
			{Name: "last", Type: field.TypeString},
			{Name: "age", Type: field.TypeInt, Optional: true},
		},
		PrimaryKey: []string{"id"},
		Uniques:    [][]string{{"first", "last"}},
	})
	c.MustAddModel(&schema.Model{
		Name:       "Post",
		Fields:     []*schema.Field{{Name: "id", Type: field.TypeInt}, {Name: "authorId", Type: field.TypeInt}},
		PrimaryKey: []string{"id"},
	})
	c.MustAddRelation(schema.RelationSpec{
		Kind: schema.OneToMany,
		A:    schema.End{Model: "User", Field: "posts", List: true},
		B:    schema.End{Model: "Post", Field: "author", Fields: []string{"authorId"}, References: []string{"id"}},
	})
	m, _ := c.Model("User")
	return m
}

func TestExtract(t *testing.T) {
	t.Parallel()
	m := userModel(t)
	tests := []struct {
		name  string
		where map[string]any
		want  string
	}{
		{"Empty", nil, "TRUE"},
		{"Shorthand", map[string]any{"id": 1}, "id = int64:1"},
		{"Null", map[string]any{"age": nil}, "age IS NULL"},
		{"NotNull", map[string]any{"age": map[string]any{"not": nil}}, "age IS NOT NULL"},
		{"SortedKeys", map[string]any{"last": "b", "first": "a"}, "(first = string:a AND last = string:b)"},
		{"Operators", map[string]any{"age": map[string]any{"lt": 65, "gte": "18"}}, "(age >= int64:18 AND age < int64:65)"},
		{"In", map[string]any{"id": map[string]any{"in": []any{1, 2.0}}}, "id IN [int64:1, int64:2]"},
		{"StartsWith", map[string]any{"email": map[string]any{"startsWith": "a"}}, "email STARTS WITH string:a"},
		{"Or", map[string]any{"OR": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}}, "(id = int64:1 OR id = int64:2)"},
		{"Not", map[string]any{"NOT": map[string]any{"id": 1}}, "NOT (id = int64:1)"},
		{"Compound", map[string]any{"first_last": map[string]any{"first": "a", "last": "b"}}, "(first = string:a AND last = string:b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := filter.Extract(m, tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.String())
		})
	}
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()
	m := userModel(t)
	tests := []struct {
		name  string
		where map[string]any
	}{
		{"UnknownField", map[string]any{"nope": 1}},
		{"UnknownOperator", map[string]any{"id": map[string]any{"like": 1}}},
		{"InvalidValue", map[string]any{"id": "abc"}},
		{"InNotList", map[string]any{"id": map[string]any{"in": 1}}},
		{"RelationFilter", map[string]any{"posts": map[string]any{}}},
		{"OrNotObject", map[string]any{"OR": []any{1}}},
		{"CompoundMissing", map[string]any{"first_last": map[string]any{"first": "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := filter.Extract(m, tt.where)
			require.Error(t, err)
			var be *qengine.BuilderError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, qengine.InputError, be.Kind)
		})
	}
}

func TestExtractUnique(t *testing.T) {
	t.Parallel()
	m := userModel(t)

	t.Run("PrimaryKey", func(t *testing.T) {
		sel, ok := filter.UniqueSelection(m, map[string]any{"id": 7, "age": 3})
		require.True(t, ok)
		assert.Equal(t, []string{"id"}, sel.Fields().Names())
		assert.Equal(t, []any{int64(7)}, sel.Values())
	})

	t.Run("UniqueField", func(t *testing.T) {
		sel, ok := filter.UniqueSelection(m, map[string]any{"email": map[string]any{"equals": "a@b.c"}})
		require.True(t, ok)
		assert.Equal(t, []string{"email"}, sel.Fields().Names())
	})

	t.Run("Compound", func(t *testing.T) {
		sel, ok := filter.UniqueSelection(m, map[string]any{"first_last": map[string]any{"first": "a", "last": "b"}})
		require.True(t, ok)
		assert.Equal(t, []any{"a", "b"}, sel.Values())
	})

	t.Run("NotUnique", func(t *testing.T) {
		_, err := filter.ExtractUnique(m, map[string]any{"age": 3})
		require.Error(t, err)
		assert.True(t, qengine.IsBuilderError(err))
		_, err = filter.ExtractUnique(m, map[string]any{"id": map[string]any{"gt": 3}})
		require.Error(t, err)
	})

	t.Run("Filter", func(t *testing.T) {
		f, err := filter.ExtractUnique(m, map[string]any{"id": 7})
		require.NoError(t, err)
		assert.Equal(t, query.Filter(query.Eq(query.PrimaryIdentifier(m)[0], int64(7))), f)
	})
}
