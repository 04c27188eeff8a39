package document_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/qengine/document"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("Single", func(t *testing.T) {
		req, err := document.Decode(strings.NewReader(`{
			"action": "updateOne",
			"modelName": "User",
			"arguments": {"where": {"id": 1}, "data": {"name": "x"}},
			"selection": [{"name": "id"}, {"name": "posts", "selection": [{"name": "title"}]}]
		}`))
		require.NoError(t, err)
		assert.Empty(t, req.Batch)
		assert.Equal(t, document.UpdateOne, req.Action)
		assert.True(t, req.Action.IsWrite())
		where, err := req.Map(document.ArgWhere)
		require.NoError(t, err)
		assert.Equal(t, json.Number("1"), where["id"])
		assert.True(t, document.HasNested(req.Selection))
	})

	t.Run("UpdateManyAndReturn", func(t *testing.T) {
		req, err := document.Decode(strings.NewReader(`{
			"action": "updateManyAndReturn",
			"modelName": "Post",
			"arguments": {"data": {"title": "x"}, "limit": 10}
		}`))
		require.NoError(t, err)
		assert.Equal(t, document.UpdateManyAndReturn, req.Action)
		assert.True(t, req.Action.IsWrite())
		limit, ok := req.Arg(document.ArgLimit)
		require.True(t, ok)
		assert.Equal(t, json.Number("10"), limit)
	})

	t.Run("Batch", func(t *testing.T) {
		req, err := document.Decode(strings.NewReader(`{
			"transaction": true,
			"batch": [
				{"action": "findMany", "modelName": "User"},
				{"action": "executeRaw", "arguments": {"query": "DELETE FROM users"}}
			]
		}`))
		require.NoError(t, err)
		assert.True(t, req.Transactional)
		require.Len(t, req.Batch, 2)
		assert.False(t, req.Batch[0].Action.IsWrite())
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := document.Decode(strings.NewReader(`{"action": "explode", "modelName": "User"}`))
		require.Error(t, err)
		_, err = document.Decode(strings.NewReader(`{"action": "findMany"}`))
		require.Error(t, err)
		_, err = document.Decode(strings.NewReader(`{"batch": [{"action": "findMany"}]}`))
		require.Error(t, err)
		_, err = document.Decode(strings.NewReader(`{`))
		require.Error(t, err)
	})
}

func TestMapArg(t *testing.T) {
	t.Parallel()
	args := map[string]any{"where": map[string]any{"id": 1}, "data": 3}
	m, err := document.MapArg(args, "where")
	require.NoError(t, err)
	assert.Equal(t, 1, m["id"])
	m, err = document.MapArg(args, "missing")
	require.NoError(t, err)
	assert.Nil(t, m)
	_, err = document.MapArg(args, "data")
	require.Error(t, err)
}
