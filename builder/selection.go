package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// selection is the parsed output selection of a model.
type selection struct {
	fields query.FieldSelection
	order  []string
	nested []*query.RelatedRecords
}

// extractSelection parses the selection of m. An empty selection selects
// every scalar field. The primary key and the linking fields of nested
// relations are always selected; order only lists requested names.
func extractSelection(m *schema.Model, sel []document.Field) (selection, error) {
	var out selection
	if len(sel) == 0 {
		for _, f := range m.Fields {
			out.fields = append(out.fields, f)
			out.order = append(out.order, f.Name)
		}
		return out, nil
	}
	for _, sf := range sel {
		if f, ok := m.Field(sf.Name); ok {
			if len(sf.Selection) > 0 {
				return out, qengine.NewBuilderError(qengine.InputError, "scalar field %s can not have a nested selection", f)
			}
			out.fields = out.fields.Merge(query.Select(f))
			out.order = append(out.order, f.Name)
			continue
		}
		rf, ok := m.RelationField(sf.Name)
		if !ok {
			return out, qengine.NewBuilderError(qengine.InputError, "unknown field %q in selection of %s", sf.Name, m.Name)
		}
		nr, err := relatedSelection(rf, sf)
		if err != nil {
			return out, err
		}
		out.fields = out.fields.Merge(rf.LinkingFields())
		out.nested = append(out.nested, nr)
		out.order = append(out.order, rf.Name)
	}
	out.fields = query.PrimaryIdentifier(m).Merge(out.fields)
	return out, nil
}

func relatedSelection(rf *schema.RelationField, sf document.Field) (*query.RelatedRecords, error) {
	args, err := extractQueryArgs(rf.Related, sf.Arguments)
	if err != nil {
		return nil, err
	}
	child, err := extractSelection(rf.Related, sf.Selection)
	if err != nil {
		return nil, err
	}
	return &query.RelatedRecords{
		Name:        rf.Name,
		ParentField: rf,
		Args:        args,
		Selection:   child.fields,
		Order:       child.order,
		Nested:      child.nested,
	}, nil
}
