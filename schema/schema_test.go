package schema_test

import (
	"strings"
	"testing"

	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userPost(t *testing.T) *schema.Catalog {
	t.Helper()
	c := schema.New(schema.ForeignKeys)
	c.MustAddModel(&schema.Model{
		Name: "User",
		Fields: []*schema.Field{
			{Name: "id", Type: field.TypeInt, Default: schema.Autoincrement()},
			{Name: "email", Type: field.TypeString, Unique: true},
		},
		PrimaryKey: []string{"id"},
	})
	c.MustAddModel(&schema.Model{
		Name: "BlogPost",
		Fields: []*schema.Field{
			{Name: "id", Type: field.TypeInt},
			{Name: "authorId", Type: field.TypeInt, Column: "author_id"},
		},
		PrimaryKey: []string{"id"},
	})
	return c
}

// TestAddModel tests model registration and validation.
func TestAddModel(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := userPost(t)
		post, ok := c.Model("BlogPost")
		require.True(t, ok)
		assert.Equal(t, "blog_posts", post.Table)
		authorID, ok := post.Field("authorId")
		require.True(t, ok)
		assert.Equal(t, "author_id", authorID.DBName())
		assert.Equal(t, post, authorID.Model())
		assert.Equal(t, "BlogPost.authorId", authorID.String())
		assert.Len(t, c.Models(), 2)
	})

	tests := []struct {
		name    string
		model   *schema.Model
		wantErr string
	}{
		{name: "missing_name", model: &schema.Model{}, wantErr: "name is required"},
		{name: "duplicate_model", model: &schema.Model{Name: "User"}, wantErr: "duplicate model"},
		{
			name:    "no_primary_key",
			model:   &schema.Model{Name: "Tag", Fields: []*schema.Field{{Name: "id", Type: field.TypeInt}}},
			wantErr: "no primary key",
		},
		{
			name:    "invalid_type",
			model:   &schema.Model{Name: "Tag", Fields: []*schema.Field{{Name: "id"}}, PrimaryKey: []string{"id"}},
			wantErr: "invalid type",
		},
		{
			name: "unknown_unique_field",
			model: &schema.Model{
				Name:       "Tag",
				Fields:     []*schema.Field{{Name: "id", Type: field.TypeInt}},
				PrimaryKey: []string{"id"},
				Uniques:    [][]string{{"id", "name"}},
			},
			wantErr: "unique field Tag.name not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := userPost(t).AddModel(tt.model)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestAddRelation tests relation wiring and referential action defaults.
func TestAddRelation(t *testing.T) {
	t.Run("one_to_many", func(t *testing.T) {
		c := userPost(t)
		r, err := c.AddRelation(schema.RelationSpec{
			Kind: schema.OneToMany,
			A:    schema.End{Model: "User", Field: "posts", List: true},
			B:    schema.End{Model: "BlogPost", Field: "author", Fields: []string{"authorId"}, References: []string{"id"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "UserToBlogPost", r.Name)
		assert.Equal(t, schema.Restrict, r.OnDelete)
		assert.Equal(t, schema.Cascade, r.OnUpdate)

		user, _ := c.Model("User")
		posts, ok := user.RelationField("posts")
		require.True(t, ok)
		author := posts.Opposite()
		assert.True(t, author.IsInlined())
		assert.True(t, author.IsRequired())
		assert.False(t, posts.IsRequired())
		assert.Equal(t, r.B, r.InlinedField())
		assert.Equal(t, []string{"id"}, names(posts.LinkingFields()))
		assert.Equal(t, []string{"authorId"}, names(author.LinkingFields()))
		assert.Equal(t, "User.posts", posts.String())
	})

	t.Run("many_to_many", func(t *testing.T) {
		c := userPost(t)
		r, err := c.AddRelation(schema.RelationSpec{
			Name: "Likes",
			Kind: schema.ManyToMany,
			A:    schema.End{Model: "User", Field: "liked", List: true},
			B:    schema.End{Model: "BlogPost", Field: "likedBy", List: true},
		})
		require.NoError(t, err)
		assert.Equal(t, "_Likes", r.Table)
		assert.Equal(t, "A", r.A.JoinColumn())
		assert.Equal(t, "B", r.B.JoinColumn())
		assert.Nil(t, r.InlinedField())
		assert.Equal(t, []string{"id"}, names(r.B.LinkingFields()))
	})

	tests := []struct {
		name    string
		spec    schema.RelationSpec
		wantErr string
	}{
		{
			name: "one_to_many_without_list",
			spec: schema.RelationSpec{
				Kind: schema.OneToMany,
				A:    schema.End{Model: "User", Field: "post"},
				B:    schema.End{Model: "BlogPost", Field: "author", Fields: []string{"authorId"}, References: []string{"id"}},
			},
			wantErr: "exactly one list side",
		},
		{
			name: "unknown_reference",
			spec: schema.RelationSpec{
				Kind: schema.OneToMany,
				A:    schema.End{Model: "User", Field: "posts", List: true},
				B:    schema.End{Model: "BlogPost", Field: "author", Fields: []string{"authorId"}, References: []string{"uid"}},
			},
			wantErr: "referenced field User.uid not found",
		},
		{
			name: "collides_with_scalar",
			spec: schema.RelationSpec{
				Kind: schema.ManyToMany,
				A:    schema.End{Model: "User", Field: "email", List: true},
				B:    schema.End{Model: "BlogPost", Field: "likedBy", List: true},
			},
			wantErr: "collides with a scalar field",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := userPost(t).AddRelation(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestLoad tests reading a catalog from its YAML definition.
func TestLoad(t *testing.T) {
	c, err := schema.Load(strings.NewReader(`
mode: emulated
models:
  - name: User
    primaryKey: [id]
    fields:
      - {name: id, type: int, default: autoincrement}
      - {name: role, type: string, default: {value: member}}
      - {name: createdAt, type: time, default: now}
  - name: Post
    table: articles
    primaryKey: [id]
    fields:
      - {name: id, type: uuid, default: uuid}
      - {name: authorId, type: int, optional: true}
relations:
  - kind: oneToMany
    a: {model: User, field: posts, list: true}
    b: {model: Post, field: author, fields: [authorId], references: [id]}
    onDelete: cascade
`))
	require.NoError(t, err)
	assert.True(t, c.Mode.IsEmulated())

	user, ok := c.Model("User")
	require.True(t, ok)
	id, _ := user.Field("id")
	assert.True(t, id.IsAutoincrement())
	role, _ := user.Field("role")
	require.NotNil(t, role.Default)
	assert.Equal(t, schema.DefaultValue, role.Default.Kind)
	assert.Equal(t, "member", role.Default.Value)
	createdAt, _ := user.Field("createdAt")
	assert.Equal(t, field.TypeTime, createdAt.Type)
	assert.Equal(t, schema.DefaultNow, createdAt.Default.Kind)

	post, ok := c.Model("Post")
	require.True(t, ok)
	assert.Equal(t, "articles", post.Table)
	require.Len(t, c.Relations(), 1)
	assert.Equal(t, schema.Cascade, c.Relations()[0].OnDelete)

	t.Run("errors", func(t *testing.T) {
		for _, def := range []string{
			"mode: native",
			"models: [{name: User, primaryKey: [id], fields: [{name: id, type: integer}]}]",
			"models: [{name: User, primaryKey: [id], fields: [{name: id, type: int, default: random}]}]",
			"models: [{name: User, primaryKey: [id], extra: true}]",
			"relations: [{kind: many}]",
		} {
			_, err := schema.Load(strings.NewReader(def))
			assert.Error(t, err, def)
		}
	})
}

func TestParseRelationMode(t *testing.T) {
	for s, want := range map[string]schema.RelationMode{
		"":            schema.ForeignKeys,
		"foreignKeys": schema.ForeignKeys,
		"emulated":    schema.Emulated,
	} {
		got, err := schema.ParseRelationMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, want.String(), got.String())
	}
	_, err := schema.ParseRelationMode("native")
	assert.Error(t, err)
}

func names(fields []*schema.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
