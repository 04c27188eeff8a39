// Package schema holds the model catalog consumed by the query graph builder:
// models with their scalar fields and primary identifiers, relations with
// their cardinality, foreign-key placement and referential actions, and the
// relation mode that decides whether integrity is enforced by the database or
// emulated by the engine.
package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/syssam/qengine/schema/field"
)

// RelationMode decides who enforces relational integrity.
type RelationMode uint8

const (
	// ForeignKeys delegates referential actions to database foreign keys.
	ForeignKeys RelationMode = iota
	// Emulated makes the engine enforce referential actions with its own
	// read-then-write logic.
	Emulated
)

// UsesForeignKeys reports if the database enforces relations.
func (m RelationMode) UsesForeignKeys() bool { return m == ForeignKeys }

// IsEmulated reports if the engine emulates relations.
func (m RelationMode) IsEmulated() bool { return m == Emulated }

// String implements fmt.Stringer.
func (m RelationMode) String() string {
	if m == Emulated {
		return "emulated"
	}
	return "foreignKeys"
}

// ParseRelationMode parses the configuration name of a relation mode.
func ParseRelationMode(s string) (RelationMode, error) {
	switch s {
	case "", "foreignKeys", "foreign_keys", "fk":
		return ForeignKeys, nil
	case "emulated":
		return Emulated, nil
	}
	return 0, fmt.Errorf("schema: unknown relation mode %q", s)
}

// ReferentialAction is the action taken on related records when the
// referenced record is deleted or its referenced fields are updated.
type ReferentialAction string

// Referential actions.
const (
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	Restrict   ReferentialAction = "RESTRICT"
	SetDefault ReferentialAction = "SET DEFAULT"
	NoAction   ReferentialAction = "NO ACTION"
)

// DefaultKind is the kind of a field default.
type DefaultKind uint8

// Default kinds.
const (
	DefaultValue DefaultKind = iota + 1
	DefaultUUID
	DefaultNow
	DefaultAutoincrement
)

// Default describes how a value is produced for a field omitted on create.
type Default struct {
	Kind  DefaultKind
	Value any
}

// Value returns a static default.
func Value(v any) *Default { return &Default{Kind: DefaultValue, Value: v} }

// UUID returns a default generating a random UUID.
func UUID() *Default { return &Default{Kind: DefaultUUID} }

// Now returns a default set to the current time.
func Now() *Default { return &Default{Kind: DefaultNow} }

// Autoincrement returns a default generated by the database.
func Autoincrement() *Default { return &Default{Kind: DefaultAutoincrement} }

// Field is a scalar field of a model.
type Field struct {
	Name      string
	Column    string // Defaults to Name.
	Type      field.Type
	Optional  bool
	Unique    bool
	Default   *Default
	UpdatedAt bool // Set to the current time on every update.

	model *Model
}

// Model returns the model the field belongs to.
func (f *Field) Model() *Model { return f.model }

// DBName returns the column name of the field.
func (f *Field) DBName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// IsAutoincrement reports if the database generates the field value.
func (f *Field) IsAutoincrement() bool {
	return f.Default != nil && f.Default.Kind == DefaultAutoincrement
}

// String implements fmt.Stringer.
func (f *Field) String() string {
	if f.model == nil {
		return f.Name
	}
	return f.model.Name + "." + f.Name
}

// Model is a record type of the catalog.
type Model struct {
	Name       string
	Table      string // Defaults to the snake-cased plural of Name.
	Fields     []*Field
	PrimaryKey []string
	Uniques    [][]string // Compound unique constraints.

	catalog   *Catalog
	fields    map[string]*Field
	relations []*RelationField
}

// Catalog returns the catalog the model was added to.
func (m *Model) Catalog() *Catalog { return m.catalog }

// Field returns the scalar field with the given name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// RelationField returns the relation field with the given name.
func (m *Model) RelationField(name string) (*RelationField, bool) {
	for _, rf := range m.relations {
		if rf.Name == name {
			return rf, true
		}
	}
	return nil, false
}

// Relations returns the relation fields of the model in declaration order.
func (m *Model) Relations() []*RelationField { return m.relations }

// PrimaryKeyFields returns the fields of the primary identifier.
func (m *Model) PrimaryKeyFields() []*Field {
	fields := make([]*Field, len(m.PrimaryKey))
	for i, name := range m.PrimaryKey {
		fields[i] = m.fields[name]
	}
	return fields
}

// UniqueCriterias returns every set of fields identifying a single record:
// the primary key first, then single unique fields, then compound uniques.
func (m *Model) UniqueCriterias() [][]*Field {
	criterias := [][]*Field{m.PrimaryKeyFields()}
	for _, f := range m.Fields {
		if f.Unique && !(len(m.PrimaryKey) == 1 && m.PrimaryKey[0] == f.Name) {
			criterias = append(criterias, []*Field{f})
		}
	}
	for _, u := range m.Uniques {
		fields := make([]*Field, len(u))
		for i, name := range u {
			fields[i] = m.fields[name]
		}
		criterias = append(criterias, fields)
	}
	return criterias
}

// String implements fmt.Stringer.
func (m *Model) String() string { return m.Name }

// RelationKind is the cardinality of a relation.
type RelationKind uint8

// Relation kinds.
const (
	OneToOne RelationKind = iota + 1
	OneToMany
	ManyToMany
)

// String implements fmt.Stringer.
func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "1:1"
	case OneToMany:
		return "1:m"
	case ManyToMany:
		return "m:n"
	}
	return "invalid"
}

// Relation connects two models through two relation fields.
type Relation struct {
	Name     string
	Kind     RelationKind
	Table    string    // Join table of m:n relations.
	Columns  [2]string // Join columns of m:n relations, referencing A and B.
	OnDelete ReferentialAction
	OnUpdate ReferentialAction

	A, B *RelationField
}

// IsManyToMany reports if the relation uses a join table.
func (r *Relation) IsManyToMany() bool { return r.Kind == ManyToMany }

// InlinedField returns the relation field holding the foreign key, or nil for m:n relations.
func (r *Relation) InlinedField() *RelationField {
	switch {
	case r.A.IsInlined():
		return r.A
	case r.B.IsInlined():
		return r.B
	}
	return nil
}

// RelationField is one end of a relation, seen from the model declaring it.
type RelationField struct {
	Name       string
	Model      *Model
	Related    *Model
	Relation   *Relation
	List       bool
	Fields     []*Field // Linking scalar fields when this side holds the foreign key.
	References []*Field // Fields of Related referenced by Fields.
}

// IsInlined reports if this side holds the foreign key.
func (rf *RelationField) IsInlined() bool { return len(rf.Fields) > 0 }

// IsRequired reports if the relation must always be set on this side.
// Only inlined to-one sides with non-optional linking fields are required.
func (rf *RelationField) IsRequired() bool {
	if rf.List || !rf.IsInlined() {
		return false
	}
	for _, f := range rf.Fields {
		if f.Optional {
			return false
		}
	}
	return true
}

// Opposite returns the relation field on the related model.
func (rf *RelationField) Opposite() *RelationField {
	if rf.Relation.A == rf {
		return rf.Relation.B
	}
	return rf.Relation.A
}

// IsSideA reports if the field is the A side of the relation.
func (rf *RelationField) IsSideA() bool { return rf.Relation.A == rf }

// LinkingFields returns the fields of Model that identify the relation on
// this side: the foreign key when inlined, the fields referenced by the
// opposite side when the opposite is inlined, and the primary key for m:n.
func (rf *RelationField) LinkingFields() []*Field {
	switch {
	case rf.IsInlined():
		return rf.Fields
	case rf.Opposite().IsInlined():
		return rf.Opposite().References
	default:
		return rf.Model.PrimaryKeyFields()
	}
}

// JoinColumn returns the m:n join table column referencing Model.
func (rf *RelationField) JoinColumn() string {
	if rf.IsSideA() {
		return rf.Relation.Columns[0]
	}
	return rf.Relation.Columns[1]
}

// String implements fmt.Stringer.
func (rf *RelationField) String() string { return rf.Model.Name + "." + rf.Name }

// Catalog is the set of models and relations of a datasource.
type Catalog struct {
	Mode RelationMode

	models    []*Model
	byName    map[string]*Model
	relations []*Relation
}

// New returns an empty catalog with the given relation mode.
func New(mode RelationMode) *Catalog {
	return &Catalog{Mode: mode, byName: make(map[string]*Model)}
}

// Model returns the model with the given name.
func (c *Catalog) Model(name string) (*Model, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// Models returns all models in declaration order.
func (c *Catalog) Models() []*Model { return c.models }

// Relations returns all relations in declaration order.
func (c *Catalog) Relations() []*Relation { return c.relations }

// AddModel validates and registers a model.
func (c *Catalog) AddModel(m *Model) (*Model, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("schema: model name is required")
	}
	if _, ok := c.byName[m.Name]; ok {
		return nil, fmt.Errorf("schema: duplicate model %q", m.Name)
	}
	if m.Table == "" {
		m.Table = inflect.Underscore(inflect.Pluralize(m.Name))
	}
	m.fields = make(map[string]*Field, len(m.Fields))
	for _, f := range m.Fields {
		if !f.Type.Valid() {
			return nil, fmt.Errorf("schema: invalid type for field %s.%s", m.Name, f.Name)
		}
		if _, ok := m.fields[f.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate field %s.%s", m.Name, f.Name)
		}
		f.model = m
		m.fields[f.Name] = f
	}
	if len(m.PrimaryKey) == 0 {
		return nil, fmt.Errorf("schema: model %q has no primary key", m.Name)
	}
	for _, name := range m.PrimaryKey {
		if _, ok := m.fields[name]; !ok {
			return nil, fmt.Errorf("schema: primary key field %s.%s not found", m.Name, name)
		}
	}
	for _, u := range m.Uniques {
		for _, name := range u {
			if _, ok := m.fields[name]; !ok {
				return nil, fmt.Errorf("schema: unique field %s.%s not found", m.Name, name)
			}
		}
	}
	m.catalog = c
	c.models = append(c.models, m)
	c.byName[m.Name] = m
	return m, nil
}

// MustAddModel is like AddModel but panics on error.
func (c *Catalog) MustAddModel(m *Model) *Model {
	m, err := c.AddModel(m)
	if err != nil {
		panic(err)
	}
	return m
}

// End describes one side of a relation being added.
type End struct {
	Model string
	Field string
	List  bool
	// Fields and References are set on the side holding the foreign key.
	Fields     []string
	References []string
}

// RelationSpec describes a relation being added to the catalog.
type RelationSpec struct {
	Name     string
	Kind     RelationKind
	A, B     End
	Table    string    // m:n only; defaults to "_" + Name.
	Columns  [2]string // m:n only; defaults to {"A", "B"}.
	OnDelete ReferentialAction
	OnUpdate ReferentialAction
}

// AddRelation validates and registers a relation between two models.
//
// Unset referential actions default to Restrict on delete for required
// relations, SetNull for optional ones, and Cascade on update.
func (c *Catalog) AddRelation(spec RelationSpec) (*Relation, error) {
	a, err := c.relationEnd(spec.A)
	if err != nil {
		return nil, err
	}
	b, err := c.relationEnd(spec.B)
	if err != nil {
		return nil, err
	}
	a.Related, b.Related = b.Model, a.Model
	if err := resolveReferences(a); err != nil {
		return nil, err
	}
	if err := resolveReferences(b); err != nil {
		return nil, err
	}
	r := &Relation{
		Name:     spec.Name,
		Kind:     spec.Kind,
		Table:    spec.Table,
		Columns:  spec.Columns,
		OnDelete: spec.OnDelete,
		OnUpdate: spec.OnUpdate,
		A:        a,
		B:        b,
	}
	if r.Name == "" {
		r.Name = a.Model.Name + "To" + b.Model.Name
	}
	a.Relation, b.Relation = r, r
	switch r.Kind {
	case OneToOne:
		if a.List || b.List || a.IsInlined() == b.IsInlined() {
			return nil, fmt.Errorf("schema: 1:1 relation %q needs exactly one inlined to-one side", r.Name)
		}
	case OneToMany:
		if a.List == b.List {
			return nil, fmt.Errorf("schema: 1:m relation %q needs exactly one list side", r.Name)
		}
		if many := r.manySide(); many.IsInlined() || !many.Opposite().IsInlined() {
			return nil, fmt.Errorf("schema: 1:m relation %q must be inlined on the to-one side", r.Name)
		}
	case ManyToMany:
		if !a.List || !b.List || a.IsInlined() || b.IsInlined() {
			return nil, fmt.Errorf("schema: m:n relation %q needs two list sides without foreign keys", r.Name)
		}
		if r.Table == "" {
			r.Table = "_" + r.Name
		}
		if r.Columns == [2]string{} {
			r.Columns = [2]string{"A", "B"}
		}
		if len(a.Model.PrimaryKey) != 1 || len(b.Model.PrimaryKey) != 1 {
			return nil, fmt.Errorf("schema: m:n relation %q requires single-field primary keys", r.Name)
		}
	default:
		return nil, fmt.Errorf("schema: relation %q has invalid kind", r.Name)
	}
	if inlined := r.InlinedField(); inlined != nil {
		if r.OnDelete == "" {
			r.OnDelete = SetNull
			if inlined.IsRequired() {
				r.OnDelete = Restrict
			}
		}
		if r.OnUpdate == "" {
			r.OnUpdate = Cascade
		}
	}
	a.Model.relations = append(a.Model.relations, a)
	if b != a {
		b.Model.relations = append(b.Model.relations, b)
	}
	c.relations = append(c.relations, r)
	return r, nil
}

// MustAddRelation is like AddRelation but panics on error.
func (c *Catalog) MustAddRelation(spec RelationSpec) *Relation {
	r, err := c.AddRelation(spec)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Relation) manySide() *RelationField {
	if r.A.List {
		return r.A
	}
	return r.B
}

func (c *Catalog) relationEnd(e End) (*RelationField, error) {
	m, ok := c.byName[e.Model]
	if !ok {
		return nil, fmt.Errorf("schema: relation model %q not found", e.Model)
	}
	if e.Field == "" {
		return nil, fmt.Errorf("schema: relation field name on %q is required", e.Model)
	}
	if _, ok := m.fields[e.Field]; ok {
		return nil, fmt.Errorf("schema: relation field %s.%s collides with a scalar field", m.Name, e.Field)
	}
	if _, ok := m.RelationField(e.Field); ok {
		return nil, fmt.Errorf("schema: duplicate relation field %s.%s", m.Name, e.Field)
	}
	if len(e.Fields) != len(e.References) {
		return nil, fmt.Errorf("schema: relation field %s.%s has %d fields and %d references",
			m.Name, e.Field, len(e.Fields), len(e.References))
	}
	rf := &RelationField{Name: e.Field, Model: m, List: e.List}
	for _, name := range e.Fields {
		f, ok := m.fields[name]
		if !ok {
			return nil, fmt.Errorf("schema: linking field %s.%s not found", m.Name, name)
		}
		rf.Fields = append(rf.Fields, f)
	}
	// References are resolved once the related model is known.
	rf.References = make([]*Field, len(e.References))
	for i, name := range e.References {
		rf.References[i] = &Field{Name: name}
	}
	return rf, nil
}

func resolveReferences(rf *RelationField) error {
	for i, ref := range rf.References {
		f, ok := rf.Related.fields[ref.Name]
		if !ok {
			return fmt.Errorf("schema: referenced field %s.%s not found", rf.Related.Name, ref.Name)
		}
		rf.References[i] = f
	}
	return nil
}
