package field

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Type is the scalar type of a model field.
type Type uint8

// Field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeEnum
	TypeUUID
	TypeTime
	TypeJSON
	TypeBytes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeEnum:    "enum",
	TypeUUID:    "uuid",
	TypeTime:    "time",
	TypeJSON:    "json",
	TypeBytes:   "bytes",
}

// String returns the name of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports if the type is a known field type.
func (t Type) Valid() bool {
	return t > TypeInvalid && int(t) < len(typeNames)
}

// ParseType returns the type with the given name.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name && Type(t).Valid() {
			return Type(t), nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", name)
}

// Numeric reports if the type supports arithmetic update operations.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

// TimeLayouts are the layouts accepted when a time value arrives as text.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Normalize converts v into the canonical Go representation of the type:
// bool, int64, float64, string (string/enum/uuid/json), time.Time or []byte.
// Drivers return the same column in different shapes (e.g. SQLite booleans
// are integers), and both client input and database output go through here
// so that values compare equal.
func (t Type) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeBool:
		return toBool(v)
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeString, TypeEnum:
		return toString(v)
	case TypeUUID:
		switch v := v.(type) {
		case uuid.UUID:
			return v.String(), nil
		case [16]byte:
			return uuid.UUID(v).String(), nil
		}
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		u, err := uuid.Parse(s.(string))
		if err != nil {
			return nil, fmt.Errorf("field: invalid uuid %q: %w", s, err)
		}
		return u.String(), nil
	case TypeTime:
		return toTime(v)
	case TypeJSON:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case json.RawMessage:
			return string(v), nil
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("field: encode json: %w", err)
			}
			return string(b), nil
		}
	case TypeBytes:
		switch v := v.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	}
	return nil, fmt.Errorf("field: cannot convert %T to %s", v, t)
}

func toBool(v any) (any, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	return nil, fmt.Errorf("field: cannot convert %T to bool", v)
}

func toInt(v any) (any, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("field: %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("field: %v is not an integer", v)
		}
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return nil, fmt.Errorf("field: cannot convert %T to int", v)
}

func toFloat(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	i, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("field: cannot convert %T to float", v)
	}
	return float64(i.(int64)), nil
}

func toString(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return nil, fmt.Errorf("field: cannot convert %T to string", v)
}

func toTime(v any) (any, error) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), nil
	case []byte:
		return parseTime(string(v))
	case string:
		return parseTime(v)
	}
	return nil, fmt.Errorf("field: cannot convert %T to time", v)
}

func parseTime(s string) (any, error) {
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("field: invalid time %q", s)
}
