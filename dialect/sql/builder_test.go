package sql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/qengine/dialect"
	"github.com/syssam/qengine/dialect/sql"
)

func TestBuilder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		input     sql.Querier
		wantQuery string
		wantArgs  []any
	}{
		{
			name: "SelectPostgres",
			input: sql.Dialect(dialect.Postgres).
				Select("id", "name").
				From(sql.Table("users")).
				Where(sql.And(sql.EQ("age", 30), sql.Or(sql.IsNull("name"), sql.Contains("name", "a_b")))).
				OrderBy("id", sql.OrderDesc).
				Limit(10).
				Offset(5),
			wantQuery: `SELECT "id", "name" FROM "users" WHERE ("age" = $1 AND ("name" IS NULL OR "name" LIKE $2 ESCAPE '\')) ORDER BY "id" DESC LIMIT $3 OFFSET $4`,
			wantArgs:  []any{30, `%a\_b%`, 10, 5},
		},
		{
			name: "SelectMySQL",
			input: sql.Dialect(dialect.MySQL).
				Select("id").
				From(sql.Table("users")).
				Where(sql.HasSuffix("email", "@x.io")).
				OrderBy("id", sql.OrderAsc),
			wantQuery: "SELECT `id` FROM `users` WHERE `email` LIKE ? ORDER BY `id`",
			wantArgs:  []any{"%@x.io"},
		},
		{
			name: "SelectJoin",
			input: sql.Dialect(dialect.SQLite).
				Select("t.id", "j.A").
				From(sql.Table("tags").As("t")).
				Join(sql.Table("_PostToTag").As("j"), "j.B", "t.id").
				Where(sql.In("j.A", 1, 2)),
			wantQuery: `SELECT "t"."id", "j"."A" FROM "tags" AS "t" JOIN "_PostToTag" AS "j" ON "j"."B" = "t"."id" WHERE "j"."A" IN (?, ?)`,
			wantArgs:  []any{1, 2},
		},
		{
			name:      "SelectOffsetOnly",
			input:     sql.Dialect(dialect.SQLite).Select().From(sql.Table("users")).Offset(3),
			wantQuery: `SELECT * FROM "users" LIMIT -1 OFFSET ?`,
			wantArgs:  []any{3},
		},
		{
			name: "SelectSubquery",
			input: sql.Dialect(dialect.Postgres).
				Select().
				AppendSelectExpr(sql.As(sql.Count("*"), "_count")).
				From(sql.Select("id").From(sql.Table("users")).Where(sql.GT("age", 1)).Limit(2).As("sub")),
			wantQuery: `SELECT COUNT(*) AS "_count" FROM (SELECT "id" FROM "users" WHERE "age" > $1 LIMIT $2) AS "sub"`,
			wantArgs:  []any{1, 2},
		},
		{
			name: "InsertMany",
			input: sql.Dialect(dialect.Postgres).
				Insert("users").
				Columns("name", "age").
				Values("a", 1).
				Values("b", 2).
				Returning("id"),
			wantQuery: `INSERT INTO "users" ("name", "age") VALUES ($1, $2), ($3, $4) RETURNING "id"`,
			wantArgs:  []any{"a", 1, "b", 2},
		},
		{
			name:      "InsertDefaultValues",
			input:     sql.Dialect(dialect.SQLite).Insert("users").Returning("id"),
			wantQuery: `INSERT INTO "users" DEFAULT VALUES RETURNING "id"`,
		},
		{
			name:      "InsertDefaultValuesMySQL",
			input:     sql.Dialect(dialect.MySQL).Insert("users").Returning("id"),
			wantQuery: "INSERT INTO `users` () VALUES ()",
		},
		{
			name: "InsertIgnore",
			input: sql.Dialect(dialect.MySQL).
				Insert("_PostToTag").
				Columns("A", "B").
				Values(1, 2).
				OnConflictIgnore(),
			wantQuery: "INSERT IGNORE INTO `_PostToTag` (`A`, `B`) VALUES (?, ?)",
			wantArgs:  []any{1, 2},
		},
		{
			name: "InsertDoNothing",
			input: sql.Dialect(dialect.SQLite).
				Insert("_PostToTag").
				Columns("A", "B").
				Values(1, 2).
				OnConflictIgnore(),
			wantQuery: `INSERT INTO "_PostToTag" ("A", "B") VALUES (?, ?) ON CONFLICT DO NOTHING`,
			wantArgs:  []any{1, 2},
		},
		{
			name: "Upsert",
			input: sql.Dialect(dialect.Postgres).
				Insert("users").
				Columns("email", "name").
				Values("e", "n").
				OnConflictUpdate([]string{"email"}, sql.Dialect(dialect.Postgres).Update("users").Set("name", "n2").Arith("age", "+", 1)).
				Returning("id"),
			wantQuery: `INSERT INTO "users" ("email", "name") VALUES ($1, $2) ON CONFLICT ("email") DO UPDATE SET "name" = $3, "age" = "users"."age" + $4 RETURNING "id"`,
			wantArgs:  []any{"e", "n", "n2", 1},
		},
		{
			name: "UpdateMySQL",
			input: sql.Dialect(dialect.MySQL).
				Update("users").
				Set("name", "x").
				Where(sql.EQ("id", 1)).
				Returning("id"),
			wantQuery: "UPDATE `users` SET `name` = ? WHERE `id` = ?",
			wantArgs:  []any{"x", 1},
		},
		{
			name: "Delete",
			input: sql.Dialect(dialect.Postgres).
				Delete("users").
				Where(sql.NotIn("id")).
				Returning("id"),
			wantQuery: `DELETE FROM "users" WHERE 1 = 1 RETURNING "id"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			query, args := tt.input.Query()
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()
	query, args := sql.In("a").Query(dialect.Postgres)
	assert.Equal(t, "1 = 0", query)
	assert.Empty(t, args)

	query, _ = sql.And().Query(dialect.Postgres)
	assert.Equal(t, "1 = 1", query)

	query, args = sql.Not(sql.EQ("a", 1)).Query(dialect.Postgres)
	assert.Equal(t, `NOT ("a" = $1)`, query)
	assert.Equal(t, []any{1}, args)

	query, args = sql.HasPrefix("a", "50%").Query(dialect.SQLite)
	assert.Equal(t, `"a" LIKE ? ESCAPE '\'`, query)
	assert.Equal(t, []any{`50\%%`}, args)

	query, _ = sql.EQ("a.b", 1).Query(dialect.MySQL)
	assert.Equal(t, "`a`.`b` = ?", query)
}

func BenchmarkSelect(b *testing.B) {
	for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				sql.Dialect(d).Select("id", "name", "email").
					From(sql.Table("users")).
					Where(sql.And(sql.EQ("status", "active"), sql.In("department", "eng", "product"), sql.NotNull("email"))).
					OrderBy("id", sql.OrderAsc).
					Limit(100).
					Query()
			}
		})
	}
}
