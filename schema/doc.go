// Package schema describes the data model the query engine serves: models
// with scalar fields, primary keys and unique criterias, and the relations
// between them.
//
// # Catalog
//
// A Catalog is built once and read concurrently afterwards:
//
//	c := schema.New(schema.ForeignKeys)
//	c.MustAddModel(&schema.Model{
//	    Name: "User",
//	    Fields: []*schema.Field{
//	        {Name: "id", Type: field.TypeInt, Default: schema.Autoincrement()},
//	        {Name: "email", Type: field.TypeString, Unique: true},
//	    },
//	    PrimaryKey: []string{"id"},
//	})
//	c.MustAddRelation(schema.RelationSpec{
//	    Kind: schema.OneToMany,
//	    A:    schema.End{Model: "User", Field: "posts", List: true},
//	    B:    schema.End{Model: "Post", Field: "author", Fields: []string{"authorId"}, References: []string{"id"}},
//	})
//
// Table names default to the underscored plural of the model name, and
// column names to the field name.
//
// # Relations
//
// Every relation has two RelationFields, one per model. The side holding the
// foreign key is inlined: its Fields name the scalar fields referencing the
// primary key of the other side. Many-to-many relations are stored in a join
// table with the columns A and B.
//
// # Relation Mode
//
// In ForeignKeys mode the database enforces referential actions. In Emulated
// mode the query graph checks and applies them itself.
//
// # YAML
//
// Load and LoadFile read a catalog from its YAML definition:
//
//	mode: foreignKeys
//	models:
//	  - name: User
//	    primaryKey: [id]
//	    fields:
//	      - {name: id, type: int, default: autoincrement}
//	relations:
//	  - kind: oneToMany
//	    a: {model: User, field: posts, list: true}
//	    b: {model: Post, field: author, fields: [authorId], references: [id]}
package schema
