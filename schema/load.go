package schema

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/qengine/schema/field"
)

// Definition is the YAML representation of a catalog:
//
//	mode: foreignKeys
//	models:
//	  - name: User
//	    primaryKey: [id]
//	    fields:
//	      - {name: id, type: int, default: autoincrement}
//	      - {name: email, type: string, unique: true}
//	      - {name: role, type: string, default: {value: user}}
//	relations:
//	  - kind: oneToMany
//	    a: {model: User, field: posts, list: true}
//	    b: {model: Post, field: author, fields: [authorId], references: [id]}
//	    onDelete: cascade
type Definition struct {
	Mode      string        `yaml:"mode"`
	Models    []ModelDef    `yaml:"models"`
	Relations []RelationDef `yaml:"relations"`
}

// ModelDef is the definition of a model.
type ModelDef struct {
	Name       string     `yaml:"name"`
	Table      string     `yaml:"table"`
	PrimaryKey []string   `yaml:"primaryKey"`
	Uniques    [][]string `yaml:"uniques"`
	Fields     []FieldDef `yaml:"fields"`
}

// FieldDef is the definition of a scalar field.
type FieldDef struct {
	Name      string      `yaml:"name"`
	Column    string      `yaml:"column"`
	Type      string      `yaml:"type"`
	Optional  bool        `yaml:"optional"`
	Unique    bool        `yaml:"unique"`
	UpdatedAt bool        `yaml:"updatedAt"`
	Default   *DefaultDef `yaml:"default"`
}

// DefaultDef is a field default: one of autoincrement, uuid or now, or a
// static {value: v}.
type DefaultDef struct {
	*Default
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DefaultDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "autoincrement":
			d.Default = Autoincrement()
		case "uuid":
			d.Default = UUID()
		case "now":
			d.Default = Now()
		default:
			return fmt.Errorf("schema: line %d: unknown default %q", n.Line, n.Value)
		}
		return nil
	}
	var v struct {
		Value any `yaml:"value"`
	}
	if err := n.Decode(&v); err != nil {
		return err
	}
	d.Default = Value(v.Value)
	return nil
}

// EndDef is the definition of one side of a relation.
type EndDef struct {
	Model      string   `yaml:"model"`
	Field      string   `yaml:"field"`
	List       bool     `yaml:"list"`
	Fields     []string `yaml:"fields"`
	References []string `yaml:"references"`
}

// RelationDef is the definition of a relation.
type RelationDef struct {
	Name     string    `yaml:"name"`
	Kind     string    `yaml:"kind"`
	A        EndDef    `yaml:"a"`
	B        EndDef    `yaml:"b"`
	Table    string    `yaml:"table"`
	Columns  [2]string `yaml:"columns"`
	OnDelete string    `yaml:"onDelete"`
	OnUpdate string    `yaml:"onUpdate"`
}

// Load reads a YAML catalog definition.
func Load(r io.Reader) (*Catalog, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	return def.Catalog()
}

// LoadFile reads the YAML catalog definition at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Catalog builds the catalog of the definition.
func (def *Definition) Catalog() (*Catalog, error) {
	mode, err := ParseRelationMode(def.Mode)
	if err != nil {
		return nil, err
	}
	c := New(mode)
	for _, md := range def.Models {
		m := &Model{Name: md.Name, Table: md.Table, PrimaryKey: md.PrimaryKey, Uniques: md.Uniques}
		for _, fd := range md.Fields {
			t, err := field.ParseType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("schema: field %s.%s: %w", md.Name, fd.Name, err)
			}
			f := &Field{
				Name:      fd.Name,
				Column:    fd.Column,
				Type:      t,
				Optional:  fd.Optional,
				Unique:    fd.Unique,
				UpdatedAt: fd.UpdatedAt,
			}
			if fd.Default != nil {
				f.Default = fd.Default.Default
			}
			m.Fields = append(m.Fields, f)
		}
		if _, err := c.AddModel(m); err != nil {
			return nil, err
		}
	}
	for _, rd := range def.Relations {
		kind, err := parseRelationKind(rd.Kind)
		if err != nil {
			return nil, err
		}
		onDelete, err := parseAction(rd.OnDelete)
		if err != nil {
			return nil, err
		}
		onUpdate, err := parseAction(rd.OnUpdate)
		if err != nil {
			return nil, err
		}
		spec := RelationSpec{
			Name:     rd.Name,
			Kind:     kind,
			A:        End(rd.A),
			B:        End(rd.B),
			Table:    rd.Table,
			Columns:  rd.Columns,
			OnDelete: onDelete,
			OnUpdate: onUpdate,
		}
		if _, err := c.AddRelation(spec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseRelationKind(s string) (RelationKind, error) {
	switch s {
	case "1:1", "oneToOne":
		return OneToOne, nil
	case "1:m", "oneToMany":
		return OneToMany, nil
	case "m:n", "manyToMany":
		return ManyToMany, nil
	}
	return 0, fmt.Errorf("schema: unknown relation kind %q", s)
}

func parseAction(s string) (ReferentialAction, error) {
	if s == "" {
		return "", nil
	}
	a := ReferentialAction(strings.ToUpper(strings.ReplaceAll(s, "_", " ")))
	switch a {
	case Cascade, SetNull, Restrict, SetDefault, NoAction:
		return a, nil
	}
	return "", fmt.Errorf("schema: unknown referential action %q", s)
}
