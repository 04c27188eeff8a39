package request_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/qengine/builder"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/connector/connectortest"
	"github.com/syssam/qengine/connector/sqlconnector"
	"github.com/syssam/qengine/dialect"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/privacy"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/request"
	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"
)

func catalog(t *testing.T) *schema.Catalog {
	t.Helper()
	c := schema.New(schema.ForeignKeys)
	c.MustAddModel(&schema.Model{
		Name: "User",
		Fields: []*schema.Field{
			{Name: "id", Type: field.TypeInt, Default: schema.Autoincrement()},
			{Name: "name", Type: field.TypeString},
			{Name: "email", Type: field.TypeString, Unique: true},
		},
		PrimaryKey: []string{"id"},
	})
	c.MustAddModel(&schema.Model{
		Name: "Post",
		Fields: []*schema.Field{
			{Name: "id", Type: field.TypeInt, Default: schema.Autoincrement()},
			{Name: "title", Type: field.TypeString},
			{Name: "authorId", Type: field.TypeInt, Optional: true},
		},
		PrimaryKey: []string{"id"},
	})
	c.MustAddRelation(schema.RelationSpec{
		Kind: schema.OneToMany,
		A:    schema.End{Model: "User", Field: "posts", List: true},
		B:    schema.End{Model: "Post", Field: "author", Fields: []string{"authorId"}, References: []string{"id"}},
	})
	return c
}

func sqliteHandler(t *testing.T, opts ...request.Option) *request.Handler {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "request.db") + "?_pragma=foreign_keys(1)"
	conn, err := sqlconnector.Open(dialect.SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, email TEXT NOT NULL UNIQUE)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, authorId INTEGER REFERENCES users(id) ON DELETE SET NULL)`,
	} {
		_, err := conn.ExecuteRaw(context.Background(), stmt, nil)
		require.NoError(t, err)
	}
	s := builder.NewQuerySchema(catalog(t), conn.Capabilities())
	return request.NewHandler(conn, s, opts...)
}

func fakeHandler(t *testing.T, fake *connectortest.Fake, opts ...request.Option) *request.Handler {
	t.Helper()
	fake.Caps = connector.NewCapabilities(connector.InsertReturning, connector.UpdateReturning, connector.CreateMany)
	return request.NewHandler(fake, builder.NewQuerySchema(catalog(t), fake.Caps), opts...)
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func createUser(name, email string, posts ...string) *document.Operation {
	data := map[string]any{"name": name, "email": email}
	if len(posts) > 0 {
		create := make([]any, len(posts))
		for i, p := range posts {
			create[i] = map[string]any{"title": p}
		}
		data["posts"] = map[string]any{"create": create}
	}
	return &document.Operation{
		Action:    document.CreateOne,
		Model:     "User",
		Arguments: map[string]any{"data": data},
		Selection: []document.Field{
			{Name: "id"},
			{Name: "name"},
			{Name: "posts", Selection: []document.Field{{Name: "title"}}},
		},
	}
}

func TestHandleOperation(t *testing.T) {
	t.Parallel()
	h := sqliteHandler(t)
	ctx := context.Background()

	t.Run("NestedCreate", func(t *testing.T) {
		resp := h.HandleOperation(ctx, createUser("a8m", "a8m@x.io", "hello"))
		require.NoError(t, resp.Err())
		assert.JSONEq(t, `{"data":{"createOneUser":{"id":1,"name":"a8m","posts":[{"title":"hello"}]}}}`, toJSON(t, resp))
	})

	t.Run("NestedRead", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{
			Action: document.FindMany,
			Model:  "Post",
			Selection: []document.Field{
				{Name: "title"},
				{Name: "author", Selection: []document.Field{{Name: "name"}}},
			},
		})
		require.NoError(t, resp.Err())
		assert.JSONEq(t, `{"data":{"findManyPost":[{"title":"hello","author":{"name":"a8m"}}]}}`, toJSON(t, resp))
	})

	t.Run("FindUniqueNull", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{
			Action:    document.FindUnique,
			Model:     "User",
			Arguments: map[string]any{"where": map[string]any{"id": 42}},
		})
		require.NoError(t, resp.Err())
		assert.JSONEq(t, `{"data":{"findUniqueUser":null}}`, toJSON(t, resp))
	})

	t.Run("RecordNotFound", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{
			Action:    document.FindUniqueOrThrow,
			Model:     "User",
			Arguments: map[string]any{"where": map[string]any{"id": 42}},
		})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, request.KindRecordNotFound, resp.Errors[0].Kind)
		assert.Nil(t, resp.Data)
	})

	t.Run("UniqueConstraint", func(t *testing.T) {
		resp := h.HandleOperation(ctx, createUser("dup", "a8m@x.io"))
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, request.KindUniqueConstraint, resp.Errors[0].Kind)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{Action: document.FindMany, Model: "Comment"})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, request.KindInvalidInput, resp.Errors[0].Kind)
	})

	t.Run("Aggregate", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{
			Action: document.Aggregate,
			Model:  "User",
			Selection: []document.Field{
				{Name: "_count", Selection: []document.Field{{Name: "_all"}}},
			},
		})
		require.NoError(t, resp.Err())
		assert.JSONEq(t, `{"data":{"aggregateUser":{"_count":{"_all":1}}}}`, toJSON(t, resp))
	})

	t.Run("UpdateManyAndReturn", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{
			Action: document.UpdateManyAndReturn,
			Model:  "Post",
			Arguments: map[string]any{
				"where": map[string]any{"title": "hello"},
				"data":  map[string]any{"title": "bye"},
				"limit": 1,
			},
			Selection: []document.Field{{Name: "title"}},
		})
		require.NoError(t, resp.Err())
		assert.JSONEq(t, `{"data":{"updateManyAndReturnPost":[{"title":"bye"}]}}`, toJSON(t, resp))
	})

	t.Run("DeleteMany", func(t *testing.T) {
		resp := h.HandleOperation(ctx, &document.Operation{Action: document.DeleteMany, Model: "Post"})
		require.NoError(t, resp.Err())
		assert.JSONEq(t, `{"data":{"deleteManyPost":{"count":1}}}`, toJSON(t, resp))
	})
}

func TestHandleOperationPanics(t *testing.T) {
	t.Parallel()
	fake := &connectortest.Fake{
		GetManyRecordsFunc: func(context.Context, *schema.Model, query.QueryArguments, query.FieldSelection) (*query.ManyRecords, error) {
			panic("boom")
		},
	}
	h := fakeHandler(t, fake)
	resp := h.HandleOperation(context.Background(), &document.Operation{Action: document.FindMany, Model: "User"})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, request.KindInternal, resp.Errors[0].Kind)
	assert.Contains(t, resp.Errors[0].Message, "boom")
}

func TestHandleOperationRollback(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("boom")
	fake := &connectortest.Fake{
		CreateRecordFunc: func(_ context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
			if m.Name == "Post" {
				return nil, errBoom
			}
			return &query.SingleRecord{Fields: sel, Values: []any{int64(1)}}, nil
		},
	}
	h := fakeHandler(t, fake)
	resp := h.HandleOperation(context.Background(), createUser("a8m", "a8m@x.io", "hello"))
	require.Len(t, resp.Errors, 1)
	assert.ErrorIs(t, resp.Err(), errBoom)
	assert.Equal(t, request.KindUnknown, resp.Errors[0].Kind)
	calls := fake.Calls()
	assert.Equal(t, "Begin", calls[0])
	assert.Contains(t, calls, "Rollback")
	assert.NotContains(t, calls, "Commit")
}

func TestHandleBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Independent", func(t *testing.T) {
		h := sqliteHandler(t, request.WithConcurrency(2))
		resp := h.HandleBatch(ctx, []document.Operation{
			*createUser("a8m", "a8m@x.io"),
			{Action: document.FindMany, Model: "Comment"},
		}, false)
		require.Len(t, resp.Batch, 2)
		require.NoError(t, resp.Batch[0].Err())
		assert.Equal(t, request.KindInvalidInput, resp.Batch[1].Errors[0].Kind)
	})

	t.Run("TransactionalCommits", func(t *testing.T) {
		h := sqliteHandler(t)
		resp := h.HandleBatch(ctx, []document.Operation{
			*createUser("a8m", "a8m@x.io"),
			*createUser("nati", "nati@x.io", "hello"),
		}, true)
		require.Empty(t, resp.Errors)
		assert.JSONEq(t, `{"batchResult":[
			{"data":{"createOneUser":{"id":1,"name":"a8m","posts":[]}}},
			{"data":{"createOneUser":{"id":2,"name":"nati","posts":[{"title":"hello"}]}}}
		]}`, toJSON(t, resp))
	})

	t.Run("TransactionalRollsBack", func(t *testing.T) {
		h := sqliteHandler(t)
		resp := h.HandleBatch(ctx, []document.Operation{
			*createUser("a8m", "a8m@x.io"),
			*createUser("dup", "a8m@x.io"),
		}, true)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, request.KindUniqueConstraint, resp.Errors[0].Kind)
		assert.Contains(t, resp.Errors[0].Message, "batch operation 1")
		assert.Empty(t, resp.Batch)

		count := h.HandleOperation(ctx, &document.Operation{
			Action:    document.Aggregate,
			Model:     "User",
			Selection: []document.Field{{Name: "_count", Selection: []document.Field{{Name: "_all"}}}},
		})
		require.NoError(t, count.Err())
		assert.JSONEq(t, `{"data":{"aggregateUser":{"_count":{"_all":0}}}}`, toJSON(t, count))
	})
}

func TestPolicies(t *testing.T) {
	t.Parallel()
	var where query.Filter
	fake := &connectortest.Fake{
		GetManyRecordsFunc: func(_ context.Context, _ *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, error) {
			where = args.Filter
			return &query.ManyRecords{Fields: sel}, nil
		},
	}
	h := fakeHandler(t, fake, request.WithPolicies(privacy.ModelPolicies{
		"User": {{
			Query: privacy.QueryPolicy{
				privacy.FilterFunc(func(_ context.Context, f privacy.Filter) error {
					f.Where(map[string]any{"name": "a8m"})
					return privacy.Skip
				}),
			},
			Mutation: privacy.MutationPolicy{privacy.DenyIfNoViewer()},
		}},
	}))
	ctx := context.Background()

	t.Run("Denied", func(t *testing.T) {
		resp := h.HandleOperation(ctx, createUser("a8m", "a8m@x.io"))
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, request.KindAccessDenied, resp.Errors[0].Kind)
		assert.Empty(t, fake.Calls())
	})

	t.Run("Filtered", func(t *testing.T) {
		op := &document.Operation{Action: document.FindMany, Model: "User"}
		resp := h.HandleOperation(ctx, op)
		require.NoError(t, resp.Err())
		require.NotNil(t, where)
		assert.Contains(t, where.String(), "a8m")
		assert.Nil(t, op.Arguments, "operation is not mutated")
	})
}

func TestServeHTTP(t *testing.T) {
	t.Parallel()
	h := sqliteHandler(t)

	t.Run("Operation", func(t *testing.T) {
		body := `{"action":"createOne","modelName":"User","arguments":{"data":{"name":"a8m","email":"a8m@x.io"}},"selection":[{"name":"id"},{"name":"email"}]}`
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"data":{"createOneUser":{"id":1,"email":"a8m@x.io"}}}`, rec.Body.String())
	})

	t.Run("Batch", func(t *testing.T) {
		body := `{"batch":[{"action":"findMany","modelName":"User","selection":[{"name":"name"}]},{"action":"aggregate","modelName":"User","selection":[{"name":"_max","selection":[{"name":"id"}]}]}]}`
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"batchResult":[
			{"data":{"findManyUser":[{"name":"a8m"}]}},
			{"data":{"aggregateUser":{"_max":{"id":1}}}}
		]}`, rec.Body.String())
	})

	t.Run("BadRequest", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"dropTable"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"kind":"InvalidInput"`)
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
