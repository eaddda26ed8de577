// Package literal converts URI literal text to typed values and back. It
// understands the quoted/typed convention used inside expressions and
// parenthetical keys, and the unquoted convention used by key-as-segment
// paths.
package literal

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
)

// ValueType is the type of a literal value.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeBoolean
	TypeByte
	TypeSByte
	TypeInt16
	TypeInt32
	TypeInt64
	TypeSingle
	TypeDouble
	TypeDecimal
	TypeString
	TypeGuid
	TypeBinary
	TypeDate
	TypeDateTimeOffset
	TypeTimeOfDay
	TypeDuration
	TypeGeography
	TypeGeometry
	TypeEnum
	TypeCustom // produced by a registered custom parser
)

var typeNames = []string{
	TypeNull:           "null",
	TypeBoolean:        "Edm.Boolean",
	TypeByte:           "Edm.Byte",
	TypeSByte:          "Edm.SByte",
	TypeInt16:          "Edm.Int16",
	TypeInt32:          "Edm.Int32",
	TypeInt64:          "Edm.Int64",
	TypeSingle:         "Edm.Single",
	TypeDouble:         "Edm.Double",
	TypeDecimal:        "Edm.Decimal",
	TypeString:         "Edm.String",
	TypeGuid:           "Edm.Guid",
	TypeBinary:         "Edm.Binary",
	TypeDate:           "Edm.Date",
	TypeDateTimeOffset: "Edm.DateTimeOffset",
	TypeTimeOfDay:      "Edm.TimeOfDay",
	TypeDuration:       "Edm.Duration",
	TypeGeography:      "Edm.Geography",
	TypeGeometry:       "Edm.Geometry",
	TypeEnum:           "enum",
	TypeCustom:         "custom",
}

// String returns the EDM name of the type.
func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Primitive returns the EDM primitive kind for t, or PrimitiveNone.
func (t ValueType) Primitive() edm.PrimitiveKind {
	k, _ := edm.PrimitiveKindByName(t.String())
	return k
}

// typeOfKind maps an EDM primitive kind to its value type.
func typeOfKind(k edm.PrimitiveKind) (ValueType, bool) {
	for t := TypeBoolean; t <= TypeGeometry; t++ {
		if t.Primitive() == k {
			return t, true
		}
	}
	return TypeNull, false
}

// Value is a typed literal value.
type Value struct {
	typ      ValueType
	boolVal  bool
	intVal   int64
	floatVal float64
	decVal   decimal.Decimal
	strVal   string // String, enum member, spatial text, custom text
	guidVal  uuid.UUID
	bytesVal []byte
	timeVal  time.Time
	durVal   time.Duration // Duration, TimeOfDay
	typeName string        // enum or custom type name
	custom   any
}

// Null is the untyped null value.
var Null = Value{typ: TypeNull}

func NewBool(v bool) Value { return Value{typ: TypeBoolean, boolVal: v} }
func NewByte(v uint8) Value { return Value{typ: TypeByte, intVal: int64(v)} }
func NewSByte(v int8) Value { return Value{typ: TypeSByte, intVal: int64(v)} }
func NewInt16(v int16) Value { return Value{typ: TypeInt16, intVal: int64(v)} }
func NewInt32(v int32) Value { return Value{typ: TypeInt32, intVal: int64(v)} }
func NewInt64(v int64) Value { return Value{typ: TypeInt64, intVal: v} }
func NewSingle(v float32) Value { return Value{typ: TypeSingle, floatVal: float64(v)} }
func NewDouble(v float64) Value { return Value{typ: TypeDouble, floatVal: v} }
func NewString(v string) Value { return Value{typ: TypeString, strVal: v} }
func NewGuid(v uuid.UUID) Value { return Value{typ: TypeGuid, guidVal: v} }
func NewBinary(v []byte) Value { return Value{typ: TypeBinary, bytesVal: v} }

// NewDecimal creates an Edm.Decimal value.
func NewDecimal(v decimal.Decimal) Value {
	return Value{typ: TypeDecimal, decVal: v}
}

// NewDate creates an Edm.Date value. Only the calendar date of v is kept.
func NewDate(v time.Time) Value {
	y, m, d := v.Date()
	return Value{typ: TypeDate, timeVal: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NewDateTimeOffset creates an Edm.DateTimeOffset value.
func NewDateTimeOffset(v time.Time) Value {
	return Value{typ: TypeDateTimeOffset, timeVal: v}
}

// NewTimeOfDay creates an Edm.TimeOfDay value from the time since midnight.
func NewTimeOfDay(v time.Duration) Value {
	return Value{typ: TypeTimeOfDay, durVal: v}
}

// NewDuration creates an Edm.Duration value.
func NewDuration(v time.Duration) Value {
	return Value{typ: TypeDuration, durVal: v}
}

// NewGeography creates an Edm.Geography value from its well-known text.
func NewGeography(text string) Value {
	return Value{typ: TypeGeography, strVal: text}
}

// NewGeometry creates an Edm.Geometry value from its well-known text.
func NewGeometry(text string) Value {
	return Value{typ: TypeGeometry, strVal: text}
}

// NewEnum creates an enum value; member is a member name or a comma list of
// names for flags enums.
func NewEnum(typeName, member string) Value {
	return Value{typ: TypeEnum, typeName: typeName, strVal: member}
}

// NewCustom wraps a value produced by a custom literal parser. text is the
// literal the value was parsed from and is used when formatting it.
func NewCustom(typeName, text string, v any) Value {
	return Value{typ: TypeCustom, typeName: typeName, strVal: text, custom: v}
}

// Type returns the value's type.
func (v Value) Type() ValueType { return v.typ }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.typ == TypeNull }

// TypeName returns the qualified type name, including enum and custom types.
func (v Value) TypeName() string {
	if v.typ == TypeEnum || v.typ == TypeCustom {
		return v.typeName
	}
	return v.typ.String()
}

func (v Value) mustBe(fn string, types ...ValueType) {
	for _, t := range types {
		if v.typ == t {
			return
		}
	}
	panic(fmt.Sprintf("%s called on %s value", fn, v.typ))
}

// AsBool returns the boolean value. Panics if not a bool.
func (v Value) AsBool() bool {
	v.mustBe("AsBool", TypeBoolean)
	return v.boolVal
}

// AsInt returns the value of any integral type. Panics otherwise.
func (v Value) AsInt() int64 {
	v.mustBe("AsInt", TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64)
	return v.intVal
}

// AsFloat returns the value of a Single or Double. Panics otherwise.
func (v Value) AsFloat() float64 {
	v.mustBe("AsFloat", TypeSingle, TypeDouble)
	return v.floatVal
}

// AsDecimal returns the decimal value. Panics if not a decimal.
func (v Value) AsDecimal() decimal.Decimal {
	v.mustBe("AsDecimal", TypeDecimal)
	return v.decVal
}

// AsString returns the text of a String, enum, spatial or custom value.
func (v Value) AsString() string {
	v.mustBe("AsString", TypeString, TypeEnum, TypeGeography, TypeGeometry, TypeCustom)
	return v.strVal
}

// AsGuid returns the guid value. Panics if not a guid.
func (v Value) AsGuid() uuid.UUID {
	v.mustBe("AsGuid", TypeGuid)
	return v.guidVal
}

// AsBytes returns the binary value. Panics if not binary.
func (v Value) AsBytes() []byte {
	v.mustBe("AsBytes", TypeBinary)
	return v.bytesVal
}

// AsTime returns the value of a Date or DateTimeOffset. Panics otherwise.
func (v Value) AsTime() time.Time {
	v.mustBe("AsTime", TypeDate, TypeDateTimeOffset)
	return v.timeVal
}

// AsDuration returns the value of a Duration or TimeOfDay. Panics otherwise.
func (v Value) AsDuration() time.Duration {
	v.mustBe("AsDuration", TypeDuration, TypeTimeOfDay)
	return v.durVal
}

// Custom returns the payload of a custom value.
func (v Value) Custom() any {
	v.mustBe("Custom", TypeCustom)
	return v.custom
}

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeBoolean:
		return v.boolVal
	case TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		return v.intVal
	case TypeSingle, TypeDouble:
		return v.floatVal
	case TypeDecimal:
		return v.decVal
	case TypeGuid:
		return v.guidVal
	case TypeBinary:
		return v.bytesVal
	case TypeDate, TypeDateTimeOffset:
		return v.timeVal
	case TypeTimeOfDay, TypeDuration:
		return v.durVal
	case TypeCustom:
		return v.custom
	default:
		return v.strVal
	}
}

// Equal reports whether two values have the same type and value. NaN equals NaN.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeBoolean:
		return v.boolVal == other.boolVal
	case TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		return v.intVal == other.intVal
	case TypeSingle, TypeDouble:
		if math.IsNaN(v.floatVal) && math.IsNaN(other.floatVal) {
			return true
		}
		return v.floatVal == other.floatVal
	case TypeDecimal:
		return v.decVal.Equal(other.decVal)
	case TypeGuid:
		return v.guidVal == other.guidVal
	case TypeBinary:
		return bytes.Equal(v.bytesVal, other.bytesVal)
	case TypeDate, TypeDateTimeOffset:
		return v.timeVal.Equal(other.timeVal)
	case TypeTimeOfDay, TypeDuration:
		return v.durVal == other.durVal
	case TypeEnum, TypeCustom:
		return v.typeName == other.typeName && v.strVal == other.strVal
	default:
		return v.strVal == other.strVal
	}
}

// String returns the quoted/typed literal form of v.
func (v Value) String() string {
	return Format(v, ModeDefault)
}
