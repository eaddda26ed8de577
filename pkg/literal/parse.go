package literal

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// Mode selects the literal convention.
type Mode int

const (
	// ModeDefault is the quoted/typed form: 'text', 12L, binary'..', Demo.Color'Red'.
	ModeDefault Mode = iota
	// ModeKeyAsSegment is the unquoted form used in /People/1 style keys. A
	// leading "$$" stands for a literal "$".
	ModeKeyAsSegment
)

const (
	dateLayout   = "2006-01-02"
	dtoMinLayout = "2006-01-02T15:04Z07:00"
)

func invalid(text, format string, args ...any) error {
	return types.NewSyntaxError(fmt.Sprintf(format, args...), 0, text).WithCause(types.ErrInvalidLiteral)
}

// Parse converts quoted/typed literal text to a value, inferring its type.
func Parse(text string) (Value, error) {
	if text == "" {
		return Null, invalid(text, "empty literal")
	}
	switch text {
	case "null":
		return Null, nil
	case "true":
		return NewBool(true), nil
	case "false":
		return NewBool(false), nil
	}

	if text[0] == '\'' {
		s, err := Unquote(text)
		if err != nil {
			return Null, err
		}
		return NewString(s), nil
	}
	if prefix, body, ok := splitTyped(text); ok {
		return parseTyped(text, prefix, body)
	}
	if isGuid(text) {
		g, err := uuid.Parse(text)
		if err != nil {
			return Null, invalid(text, "invalid guid: %v", err)
		}
		return NewGuid(g), nil
	}
	if looksTemporal(text) {
		return parseTemporal(text)
	}
	return parseNumber(text)
}

// Unquote removes the single quotes around a string literal and collapses
// doubled quotes.
func Unquote(text string) (string, error) {
	if len(text) < 2 || text[0] != '\'' || text[len(text)-1] != '\'' {
		return "", types.NewSyntaxError("unterminated string literal", 0, text).WithCause(types.ErrUnterminatedLiteral)
	}
	body := text[1 : len(text)-1]
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\'' {
			if i+1 >= len(body) || body[i+1] != '\'' {
				return "", invalid(text, "unescaped quote in string literal at offset %d", i+1)
			}
			i++
		}
		sb.WriteByte(body[i])
	}
	return sb.String(), nil
}

// Quote wraps s in single quotes, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// splitTyped splits prefix'body' literals such as binary'AQ==' or Demo.Color'Red'.
func splitTyped(text string) (string, string, bool) {
	i := strings.IndexByte(text, '\'')
	if i <= 0 || text[len(text)-1] != '\'' || len(text) < i+2 {
		return "", "", false
	}
	prefix := text[:i]
	for j := 0; j < len(prefix); j++ {
		c := prefix[j]
		if !(c == '.' || c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return "", "", false
		}
	}
	return prefix, text[i:], true
}

func parseTyped(text, prefix, quoted string) (Value, error) {
	body, err := Unquote(quoted)
	if err != nil {
		return Null, err
	}
	switch strings.ToLower(prefix) {
	case "binary", "x":
		b, err := decodeBinary(body, prefix == "X" || prefix == "x")
		if err != nil {
			return Null, invalid(text, "invalid binary literal: %v", err)
		}
		return NewBinary(b), nil
	case "duration":
		d, err := ParseDuration(body)
		if err != nil {
			return Null, invalid(text, "%v", err)
		}
		return NewDuration(d), nil
	case "geography":
		return NewGeography(body), nil
	case "geometry":
		return NewGeometry(body), nil
	}
	if !strings.Contains(prefix, ".") {
		return Null, invalid(text, "unknown literal prefix %q", prefix)
	}
	if body == "" {
		return Null, invalid(text, "enum literal has no member")
	}
	return NewEnum(prefix, body), nil
}

func decodeBinary(body string, hexForm bool) ([]byte, error) {
	if hexForm {
		return hex.DecodeString(body)
	}
	if b, err := base64.URLEncoding.DecodeString(body); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(body); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(body)
}

func isGuid(text string) bool {
	if len(text) != 36 {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(c) {
				return false
			}
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// looksTemporal reports whether text has the shape of a date, a
// date-time-offset or a time of day.
func looksTemporal(text string) bool {
	if len(text) >= 10 && text[4] == '-' && text[7] == '-' && allDigits(text[:4]) {
		return true
	}
	return len(text) >= 5 && text[2] == ':' && allDigits(text[:2]) && allDigits(text[3:5])
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func parseTemporal(text string) (Value, error) {
	if text[2] == ':' {
		d, err := ParseTimeOfDay(text)
		if err != nil {
			return Null, invalid(text, "%v", err)
		}
		return NewTimeOfDay(d), nil
	}
	if len(text) == len(dateLayout) {
		t, err := time.Parse(dateLayout, text)
		if err != nil {
			return Null, invalid(text, "invalid date: %v", err)
		}
		return NewDate(t), nil
	}
	t, err := ParseDateTimeOffset(text)
	if err != nil {
		return Null, invalid(text, "%v", err)
	}
	return NewDateTimeOffset(t), nil
}

// ParseDateTimeOffset parses an RFC 3339 timestamp; seconds are optional.
func ParseDateTimeOffset(text string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t, nil
	}
	t, err := time.Parse(dtoMinLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date-time-offset %q", text)
	}
	return t, nil
}

// ParseTimeOfDay parses hh:mm[:ss[.fffffffff]] into the time since midnight.
func ParseTimeOfDay(text string) (time.Duration, error) {
	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", text)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || len(parts[0]) != 2 || len(parts[1]) != 2 || h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", text)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	if len(parts) == 3 {
		sec, frac, _ := strings.Cut(parts[2], ".")
		s, err := strconv.Atoi(sec)
		if err != nil || len(sec) != 2 || s > 59 {
			return 0, fmt.Errorf("invalid time of day %q", text)
		}
		d += time.Duration(s) * time.Second
		ns, err := parseFraction(frac)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q", text)
		}
		d += ns
	}
	return d, nil
}

// parseFraction turns the digits after a decimal point into nanoseconds.
// Digits beyond nanosecond precision are dropped.
func parseFraction(frac string) (time.Duration, error) {
	if frac == "" {
		return 0, nil
	}
	if !allDigits(frac) {
		return 0, fmt.Errorf("invalid fraction %q", frac)
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	n, _ := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
	return time.Duration(n), nil
}

// ParseDuration parses an ISO 8601 day-time duration such as -P1DT2H3M4.5S.
func ParseDuration(text string) (time.Duration, error) {
	s := text
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", text)
	}
	s = s[1:]
	var d time.Duration
	inTime := false
	seen := false
	for s != "" {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("invalid duration %q", text)
			}
			inTime, s = true, s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("invalid duration %q", text)
		}
		num, unit := s[:i], s[i]
		s = s[i+1:]
		whole, frac, hasFrac := strings.Cut(num, ".")
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", text)
		}
		if hasFrac && unit != 'S' {
			return 0, fmt.Errorf("invalid duration %q: only seconds may have a fraction", text)
		}
		switch {
		case unit == 'D' && !inTime:
			d += time.Duration(n) * 24 * time.Hour
		case unit == 'H' && inTime:
			d += time.Duration(n) * time.Hour
		case unit == 'M' && inTime:
			d += time.Duration(n) * time.Minute
		case unit == 'S' && inTime:
			ns, err := parseFraction(frac)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", text)
			}
			d += time.Duration(n)*time.Second + ns
		default:
			return 0, fmt.Errorf("invalid duration %q: unexpected designator %q", text, unit)
		}
		seen = true
	}
	if !seen {
		return 0, fmt.Errorf("invalid duration %q", text)
	}
	if neg {
		d = -d
	}
	return d, nil
}

// parseNumber handles the numeric literal forms and their type suffixes.
func parseNumber(text string) (Value, error) {
	if f, ok := specialFloat(text); ok {
		return NewDouble(f), nil
	}
	body, suffix := text, byte(0)
	last := text[len(text)-1]
	switch last {
	case 'L', 'l', 'f', 'F', 'd', 'D', 'm', 'M':
		body, suffix = text[:len(text)-1], last|0x20
	}
	if f, ok := specialFloat(body); ok {
		switch suffix {
		case 0, 'd':
			return NewDouble(f), nil
		case 'f':
			return NewSingle(float32(f)), nil
		}
		return Null, invalid(text, "invalid numeric literal")
	}
	if !isNumeric(body) {
		return Null, invalid(text, "unrecognized literal %q", text)
	}
	hasPoint := strings.Contains(body, ".")
	hasExp := strings.ContainsAny(body, "eE")

	switch suffix {
	case 'l':
		if hasPoint || hasExp {
			return Null, invalid(text, "invalid Int64 literal")
		}
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return Null, invalid(text, "Int64 literal out of range")
		}
		return NewInt64(n), nil
	case 'f':
		f, err := strconv.ParseFloat(body, 32)
		if err != nil {
			return Null, invalid(text, "invalid Single literal")
		}
		return NewSingle(float32(f)), nil
	case 'd':
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Null, invalid(text, "invalid Double literal")
		}
		return NewDouble(f), nil
	case 'm':
		dec, err := decimal.NewFromString(body)
		if err != nil {
			return Null, invalid(text, "invalid Decimal literal")
		}
		return NewDecimal(dec), nil
	}

	switch {
	case hasExp:
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Null, invalid(text, "invalid Double literal")
		}
		return NewDouble(f), nil
	case hasPoint:
		dec, err := decimal.NewFromString(body)
		if err != nil {
			return Null, invalid(text, "invalid Decimal literal")
		}
		return NewDecimal(dec), nil
	}
	if n, err := strconv.ParseInt(body, 10, 32); err == nil {
		return NewInt32(int32(n)), nil
	}
	if n, err := strconv.ParseInt(body, 10, 64); err == nil {
		return NewInt64(n), nil
	}
	dec, err := decimal.NewFromString(body)
	if err != nil {
		return Null, invalid(text, "invalid numeric literal")
	}
	return NewDecimal(dec), nil
}

func specialFloat(body string) (float64, bool) {
	switch body {
	case "INF":
		return math.Inf(1), true
	case "-INF":
		return math.Inf(-1), true
	case "NaN":
		return math.NaN(), true
	}
	return 0, false
}

// isNumeric checks the [-]digits[.digits][e[+-]digits] shape.
func isNumeric(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		fs := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == fs {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '-' || s[i] == '+') {
			i++
		}
		es := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == es {
			return false
		}
	}
	return i == len(s)
}

// Convert parses text as a value of the expected type, consulting the custom
// parser registries first. A nil expected type infers the type from text.
func Convert(text string, expected edm.TypeRef, mode Mode, registries ...*Registry) (Value, error) {
	for _, r := range registries {
		if r == nil {
			continue
		}
		v, ok, err := r.Parse(text, expected)
		if err != nil {
			return Null, err
		}
		if ok {
			return v, nil
		}
	}
	if mode == ModeKeyAsSegment {
		return convertUnquoted(text, expected)
	}
	if expected.Type == nil {
		return Parse(text)
	}
	if text == "null" {
		return Null, nil
	}
	if et := expected.Enum(); et != nil {
		return convertEnum(text, et)
	}
	k, ok := expected.Primitive()
	if !ok {
		return Parse(text)
	}
	if k == edm.String {
		s, err := Unquote(text)
		if err != nil {
			return Null, invalid(text, "expected a quoted Edm.String literal")
		}
		return NewString(s), nil
	}
	v, err := Parse(text)
	if err != nil {
		return Null, err
	}
	return Coerce(v, k)
}

func convertEnum(text string, et *edm.EnumType) (Value, error) {
	member := text
	if prefix, body, ok := splitTyped(text); ok {
		if prefix != et.FullName() {
			return Null, invalid(text, "enum literal of type %s does not match %s", prefix, et.FullName())
		}
		member, _ = Unquote(body)
	} else if strings.HasPrefix(text, "'") {
		s, err := Unquote(text)
		if err != nil {
			return Null, err
		}
		member = s
	}
	name, err := enumMember(et, member)
	if err != nil {
		return Null, invalid(text, "%v", err)
	}
	return NewEnum(et.FullName(), name), nil
}

// enumMember validates a member name, a numeric value, or for flags enums a
// comma list of names, returning the canonical member text.
func enumMember(et *edm.EnumType, member string) (string, error) {
	parts := []string{member}
	if et.Flags {
		parts = strings.Split(member, ",")
	}
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if m, ok := et.Member(p); ok {
			names = append(names, m.Name)
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		found := false
		if err == nil {
			for _, m := range et.Members {
				if m.Value == n {
					names, found = append(names, m.Name), true
					break
				}
			}
		}
		if !found {
			return "", fmt.Errorf("%q is not a member of %s", p, et.FullName())
		}
	}
	return strings.Join(names, ","), nil
}

// Coerce converts a parsed value to the primitive kind k where the
// conversion is lossless: integers widen, and integers or decimals convert to
// floating point.
func Coerce(v Value, k edm.PrimitiveKind) (Value, error) {
	target, ok := typeOfKind(k)
	if !ok || v.typ == target || v.typ == TypeNull {
		return v, nil
	}
	fail := func() (Value, error) {
		return Null, types.NewBindingError(fmt.Sprintf("cannot convert %s literal %s to %s", v.typ, v.String(), k)).
			WithCause(types.ErrInvalidLiteral)
	}
	switch v.typ {
	case TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		n := v.intVal
		switch target {
		case TypeByte:
			if n >= 0 && n <= math.MaxUint8 {
				return NewByte(uint8(n)), nil
			}
		case TypeSByte:
			if n >= math.MinInt8 && n <= math.MaxInt8 {
				return NewSByte(int8(n)), nil
			}
		case TypeInt16:
			if n >= math.MinInt16 && n <= math.MaxInt16 {
				return NewInt16(int16(n)), nil
			}
		case TypeInt32:
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				return NewInt32(int32(n)), nil
			}
		case TypeInt64:
			return NewInt64(n), nil
		case TypeSingle:
			return NewSingle(float32(n)), nil
		case TypeDouble:
			return NewDouble(float64(n)), nil
		case TypeDecimal:
			return NewDecimal(decimal.NewFromInt(n)), nil
		}
	case TypeDecimal:
		f, _ := v.decVal.Float64()
		switch target {
		case TypeDouble:
			return NewDouble(f), nil
		case TypeSingle:
			return NewSingle(float32(f)), nil
		}
	case TypeSingle:
		if target == TypeDouble {
			return NewDouble(v.floatVal), nil
		}
	case TypeDouble:
		if target == TypeSingle && (math.IsInf(v.floatVal, 0) || math.IsNaN(v.floatVal) || math.Abs(v.floatVal) <= math.MaxFloat32) {
			return NewSingle(float32(v.floatVal)), nil
		}
		if target == TypeDecimal && !math.IsInf(v.floatVal, 0) && !math.IsNaN(v.floatVal) {
			return NewDecimal(decimal.NewFromFloat(v.floatVal)), nil
		}
	case TypeDate:
		if target == TypeDateTimeOffset {
			return NewDateTimeOffset(v.timeVal), nil
		}
	case TypeGeography, TypeGeometry:
		if target == TypeGeography || target == TypeGeometry {
			return Value{typ: target, strVal: v.strVal}, nil
		}
	}
	return fail()
}

// convertUnquoted parses key-as-segment text, which carries no quotes or
// type prefixes, against the expected type.
func convertUnquoted(text string, expected edm.TypeRef) (Value, error) {
	if et := expected.Enum(); et != nil {
		name, err := enumMember(et, text)
		if err != nil {
			return Null, invalid(text, "%v", err)
		}
		return NewEnum(et.FullName(), name), nil
	}
	k, ok := expected.Primitive()
	if !ok {
		if strings.HasPrefix(text, "$$") {
			return NewString(text[1:]), nil
		}
		return NewString(text), nil
	}
	switch k {
	case edm.String:
		if strings.HasPrefix(text, "$$") {
			text = text[1:]
		}
		return NewString(text), nil
	case edm.Guid:
		if !isGuid(text) {
			return Null, invalid(text, "invalid guid")
		}
		return NewGuid(uuid.MustParse(text)), nil
	case edm.Binary:
		b, err := decodeBinary(text, false)
		if err != nil {
			return Null, invalid(text, "invalid binary value: %v", err)
		}
		return NewBinary(b), nil
	case edm.Duration:
		d, err := ParseDuration(text)
		if err != nil {
			return Null, invalid(text, "%v", err)
		}
		return NewDuration(d), nil
	case edm.Geography:
		return NewGeography(text), nil
	case edm.Geometry:
		return NewGeometry(text), nil
	case edm.Boolean:
		b, err := strconv.ParseBool(text)
		if err != nil || (text != "true" && text != "false") {
			return Null, invalid(text, "invalid Edm.Boolean value")
		}
		return NewBool(b), nil
	case edm.Decimal:
		dec, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSuffix(text, "M"), "m"))
		if err != nil {
			return Null, invalid(text, "invalid Edm.Decimal value")
		}
		return NewDecimal(dec), nil
	}
	v, err := Parse(text)
	if err != nil {
		return Null, err
	}
	return Coerce(v, k)
}
