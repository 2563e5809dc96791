package function

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ArgType is the declared type of an argument, known when the function is bound.
type ArgType int

const (
	TypeVoid ArgType = iota
	TypeString
	TypeVarchar
	TypeChar
	TypeDouble
	TypeFloat
	TypeTinyint
	TypeSmallint
	TypeInt
	TypeBigint
	TypeDecimal
	TypeBoolean
	TypeBinary
	TypeDate
	TypeTimestamp
	TypeArray
	TypeMap
	TypeStruct
)

var typeNames = map[ArgType]string{
	TypeVoid:      "void",
	TypeString:    "string",
	TypeVarchar:   "varchar",
	TypeChar:      "char",
	TypeDouble:    "double",
	TypeFloat:     "float",
	TypeTinyint:   "tinyint",
	TypeSmallint:  "smallint",
	TypeInt:       "int",
	TypeBigint:    "bigint",
	TypeDecimal:   "decimal",
	TypeBoolean:   "boolean",
	TypeBinary:    "binary",
	TypeDate:      "date",
	TypeTimestamp: "timestamp",
	TypeArray:     "array",
	TypeMap:       "map",
	TypeStruct:    "struct",
}

func (t ArgType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func (t ArgType) IsStringLike() bool {
	return t == TypeString || t == TypeVarchar || t == TypeChar
}

func (t ArgType) IsFloating() bool {
	return t == TypeDouble || t == TypeFloat
}

// ParseArgType maps a type name such as "string" or "DOUBLE" to its ArgType.
func ParseArgType(name string) (ArgType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for t, s := range typeNames {
		if s == n {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown argument type %q", name)
}

type valueKind uint8

const (
	kindNull valueKind = iota
	kindString
	kindNumber
)

// Value is a single runtime argument: a string, a number, or null.
// The zero Value is null.
type Value struct {
	kind valueKind
	s    string
	f    float64
}

func String(s string) Value  { return Value{kind: kindString, s: s} }
func Number(f float64) Value { return Value{kind: kindNumber, f: f} }
func Null() Value            { return Value{} }

func (v Value) IsNull() bool { return v.kind == kindNull }

func (v Value) String() string {
	switch v.kind {
	case kindString:
		return strconv.Quote(v.s)
	case kindNumber:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return "NULL"
	}
}

// UnmarshalJSON accepts a JSON number, string or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*v = Null()
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}
		*v = String(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("value must be a number, string or null: %w", err)
		}
		*v = Number(f)
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindString:
		return json.Marshal(v.s)
	case kindNumber:
		return json.Marshal(v.f)
	default:
		return []byte("null"), nil
	}
}
