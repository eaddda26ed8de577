package literal

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm/edmtest"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

func TestParseInfersType(t *testing.T) {
	tests := []struct {
		input string
		want  ValueType
	}{
		{"null", TypeNull},
		{"true", TypeBoolean},
		{"42", TypeInt32},
		{"-42", TypeInt32},
		{"3000000000", TypeInt64},
		{"42L", TypeInt64},
		{"99999999999999999999", TypeDecimal},
		{"1.5", TypeDecimal},
		{"1.5M", TypeDecimal},
		{"1.5e3", TypeDouble},
		{"1.5d", TypeDouble},
		{"1.5f", TypeSingle},
		{"INF", TypeDouble},
		{"-INF", TypeDouble},
		{"NaN", TypeDouble},
		{"INFf", TypeSingle},
		{"'O''Neil'", TypeString},
		{"01234567-89ab-cdef-0123-456789abcdef", TypeGuid},
		{"binary'AQID'", TypeBinary},
		{"X'0102'", TypeBinary},
		{"2024-02-29", TypeDate},
		{"2024-02-29T12:30:00Z", TypeDateTimeOffset},
		{"2024-02-29T12:30+02:00", TypeDateTimeOffset},
		{"12:30:15.25", TypeTimeOfDay},
		{"duration'P1DT2H'", TypeDuration},
		{"geography'SRID=4326;Point(1 2)'", TypeGeography},
		{"geometry'Point(1 2)'", TypeGeometry},
		{"Demo.Color'Red'", TypeEnum},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Type())
		})
	}
}

func TestParseValues(t *testing.T) {
	v, err := Parse("'O''Neil'")
	require.NoError(t, err)
	assert.Equal(t, "O'Neil", v.AsString())

	v, err = Parse("binary'AQID'")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, v.AsBytes())

	v, err = Parse("duration'-P1DT2H3M4.5S'")
	require.NoError(t, err)
	assert.Equal(t, -(26*time.Hour + 3*time.Minute + 4500*time.Millisecond), v.AsDuration())

	v, err = Parse("1.50M")
	require.NoError(t, err)
	assert.True(t, v.AsDecimal().Equal(decimal.RequireFromString("1.5")))

	v, err = Parse("-INF")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.AsFloat(), -1))
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"'unterminated",
		"'bad'quote'",
		"12abc",
		"1.",
		"binary'!!'",
		"duration'P1Y'",
		"foo'bar'",
		"2024-13-01",
		"25:00",
		"9999999999999999999L",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			var pe *types.ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
	_, err := Parse("'open")
	assert.True(t, errors.Is(err, types.ErrUnterminatedLiteral))
}

func TestRoundTripDefault(t *testing.T) {
	values := []Value{
		Null,
		NewBool(false),
		NewInt32(-7),
		NewInt64(1 << 40),
		NewInt64(5),
		NewSingle(0.1),
		NewSingle(float32(math.Inf(1))),
		NewDouble(2),
		NewDouble(1e21),
		NewDouble(math.Inf(-1)),
		NewDouble(math.NaN()),
		NewDecimal(decimal.RequireFromString("12.345")),
		NewDecimal(decimal.NewFromInt(3)),
		NewString("it's"),
		NewString(""),
		NewGuid(uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")),
		NewBinary([]byte{0xff, 0x00, 0x10}),
		NewDate(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)),
		NewDateTimeOffset(time.Date(2024, 2, 29, 12, 30, 1, 5000, time.FixedZone("", 3600))),
		NewTimeOfDay(13*time.Hour + 5*time.Second + 120*time.Millisecond),
		NewDuration(50*time.Hour + 90*time.Second),
		NewDuration(0),
		NewGeography("SRID=4326;Point(1 2)"),
		NewGeometry("LineString(1 1, 2 2)"),
		NewEnum("Demo.Color", "Green"),
	}
	for _, v := range values {
		text := Format(v, ModeDefault)
		t.Run(text, func(t *testing.T) {
			got, err := Parse(text)
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "parse(format(v)) = %v, want %v", got, v)
			assert.Equal(t, text, Format(got, ModeDefault))
		})
	}
}

func TestCanonicalForm(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.50M", "1.5M"},
		{"1.50", "1.5M"},
		{"12:30", "12:30:00"},
		{"12:30:00.500", "12:30:00.5"},
		{"duration'PT36H'", "duration'P1DT12H'"},
		{"duration'P0D'", "duration'PT0S'"},
		{"01234567-89AB-CDEF-0123-456789ABCDEF", "01234567-89ab-cdef-0123-456789abcdef"},
		{"X'0102'", "binary'AQI='"},
		{"1.5e3", "1500d"},
		{"2024-02-29T12:30+00:00", "2024-02-29T12:30:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(v, ModeDefault))
		})
	}
}

func TestRoundTripKeyAsSegment(t *testing.T) {
	_, ty := edmtest.NewWithTypes()
	tests := []struct {
		value    Value
		expected edm.TypeRef
		text     string
	}{
		{NewInt32(42), edm.PrimitiveRef(edm.Int32), "42"},
		{NewInt64(42), edm.PrimitiveRef(edm.Int64), "42"},
		{NewInt16(-3), edm.PrimitiveRef(edm.Int16), "-3"},
		{NewByte(200), edm.PrimitiveRef(edm.Byte), "200"},
		{NewString("abc"), edm.PrimitiveRef(edm.String), "abc"},
		{NewString("$filter"), edm.PrimitiveRef(edm.String), "$$filter"},
		{NewString("it's"), edm.PrimitiveRef(edm.String), "it's"},
		{NewDouble(1.25), edm.PrimitiveRef(edm.Double), "1.25"},
		{NewSingle(0.5), edm.PrimitiveRef(edm.Single), "0.5"},
		{NewDecimal(decimal.RequireFromString("7.5")), edm.PrimitiveRef(edm.Decimal), "7.5"},
		{NewBool(true), edm.PrimitiveRef(edm.Boolean), "true"},
		{NewGuid(uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")), edm.PrimitiveRef(edm.Guid), "01234567-89ab-cdef-0123-456789abcdef"},
		{NewBinary([]byte{1, 2, 3}), edm.PrimitiveRef(edm.Binary), "AQID"},
		{NewDate(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)), edm.PrimitiveRef(edm.Date), "2020-01-02"},
		{NewTimeOfDay(time.Hour), edm.PrimitiveRef(edm.TimeOfDay), "01:00:00"},
		{NewDuration(time.Minute), edm.PrimitiveRef(edm.Duration), "PT1M"},
		{NewEnum("Demo.Color", "Blue"), edm.SingleOf(ty.Color), "Blue"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.text, Format(tt.value, ModeKeyAsSegment))
			got, err := Convert(tt.text, tt.expected, ModeKeyAsSegment)
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(got), "got %v, want %v", got, tt.value)
		})
	}
}

func TestConvertDefaultMode(t *testing.T) {
	_, ty := edmtest.NewWithTypes()
	tests := []struct {
		name     string
		text     string
		expected edm.TypeRef
		want     Value
		wantErr  bool
	}{
		{"widen to Int64", "5", edm.PrimitiveRef(edm.Int64), NewInt64(5), false},
		{"narrow to Int16", "5", edm.PrimitiveRef(edm.Int16), NewInt16(5), false},
		{"Int16 overflow", "70000", edm.PrimitiveRef(edm.Int16), Null, true},
		{"int to Double", "5", edm.PrimitiveRef(edm.Double), NewDouble(5), false},
		{"decimal to Double", "1.5", edm.PrimitiveRef(edm.Double), NewDouble(1.5), false},
		{"date to DateTimeOffset", "2020-01-02", edm.PrimitiveRef(edm.DateTimeOffset),
			NewDateTimeOffset(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)), false},
		{"unquoted string", "abc", edm.PrimitiveRef(edm.String), Null, true},
		{"quoted string", "'abc'", edm.PrimitiveRef(edm.String), NewString("abc"), false},
		{"string for Int32", "'12'", edm.PrimitiveRef(edm.Int32), Null, true},
		{"typed enum", "Demo.Color'Blue'", edm.SingleOf(ty.Color), NewEnum("Demo.Color", "Blue"), false},
		{"quoted enum", "'Red'", edm.SingleOf(ty.Color), NewEnum("Demo.Color", "Red"), false},
		{"numeric enum", "'1'", edm.SingleOf(ty.Color), NewEnum("Demo.Color", "Green"), false},
		{"wrong enum type", "Demo.Other'Red'", edm.SingleOf(ty.Color), Null, true},
		{"unknown member", "'Purple'", edm.SingleOf(ty.Color), Null, true},
		{"null", "null", edm.PrimitiveRef(edm.Int32), Null, false},
		{"untyped", "12L", edm.TypeRef{}, NewInt64(12), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.text, tt.expected, ModeDefault)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestFlagsEnum(t *testing.T) {
	et := &edm.EnumType{Namespace: "Demo", Name: "Access", Flags: true,
		Members: []edm.EnumMember{{Name: "Read", Value: 1}, {Name: "Write", Value: 2}}}
	v, err := Convert("Demo.Access'Read, Write'", edm.SingleOf(et), ModeDefault)
	require.NoError(t, err)
	assert.Equal(t, "Read,Write", v.AsString())
}

type upperParser struct{ typeName string }

func (p *upperParser) ParseLiteral(text string, _ edm.TypeRef) (Value, bool, error) {
	if len(text) > 1 && text[0] == '^' {
		return NewCustom(p.typeName, text, text[1:]), true, nil
	}
	return Null, false, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p := &upperParser{typeName: "Demo.Tag"}
	require.NoError(t, r.Add(p))
	assert.ErrorIs(t, r.Add(p), ErrParserRegistered)

	v, err := Convert("^abc", edm.PrimitiveRef(edm.String), ModeDefault, r)
	require.NoError(t, err)
	assert.Equal(t, TypeCustom, v.Type())
	assert.Equal(t, "abc", v.Custom())
	assert.Equal(t, "^abc", Format(v, ModeDefault))

	typed := NewFuncParser("int-words", func(text string, _ edm.TypeRef) (Value, bool, error) {
		if text == "one" {
			return NewInt32(1), true, nil
		}
		return Null, false, nil
	})
	require.NoError(t, r.AddForType("Edm.Int32", typed))
	assert.ErrorIs(t, r.AddForType("Edm.Int32", typed), ErrTypeRegistered)

	v, err = Convert("one", edm.PrimitiveRef(edm.Int32), ModeDefault, r)
	require.NoError(t, err)
	assert.True(t, v.Equal(NewInt32(1)))
	_, err = Convert("one", edm.PrimitiveRef(edm.Int64), ModeDefault, r)
	assert.Error(t, err, "type-scoped parser is not consulted for other types")

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Remove(typed))
	assert.False(t, r.Remove(typed))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryConcurrentAdd(t *testing.T) {
	m := edmtest.New()
	r := ForModel(m)
	assert.Same(t, r, ForModel(m))

	const n = 64
	parsers := make([]*upperParser, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range parsers {
		parsers[i] = &upperParser{typeName: fmt.Sprintf("Demo.T%d", i)}
		wg.Add(1)
		go func(p *upperParser) {
			defer wg.Done()
			errs <- r.Add(p)
		}(parsers[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, r.Len())

	var wg2 sync.WaitGroup
	for i := 0; i < n; i += 2 {
		wg2.Add(1)
		go func(p *upperParser) {
			defer wg2.Done()
			assert.True(t, r.Remove(p))
		}(parsers[i])
	}
	wg2.Wait()
	assert.Equal(t, n/2, r.Len())
}

func TestForModelIsPerModel(t *testing.T) {
	a, b := edmtest.New(), edmtest.New()
	assert.NotSame(t, ForModel(a), ForModel(b))
}
