package literal

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"time"
)

// Format renders v as literal text in the given convention. In ModeDefault
// the result parses back to an equal value with Parse; in ModeKeyAsSegment it
// parses back with Convert against the value's type.
func Format(v Value, mode Mode) string {
	unquoted := mode == ModeKeyAsSegment
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return strconv.FormatBool(v.boolVal)
	case TypeByte, TypeSByte, TypeInt16, TypeInt32:
		return strconv.FormatInt(v.intVal, 10)
	case TypeInt64:
		if unquoted {
			return strconv.FormatInt(v.intVal, 10)
		}
		return strconv.FormatInt(v.intVal, 10) + "L"
	case TypeSingle:
		return formatFloat(v.floatVal, 32, "f", unquoted)
	case TypeDouble:
		return formatFloat(v.floatVal, 64, "d", unquoted)
	case TypeDecimal:
		if unquoted {
			return v.decVal.String()
		}
		return v.decVal.String() + "M"
	case TypeString:
		if unquoted {
			if strings.HasPrefix(v.strVal, "$") {
				return "$" + v.strVal
			}
			return v.strVal
		}
		return Quote(v.strVal)
	case TypeGuid:
		return v.guidVal.String()
	case TypeBinary:
		enc := base64.URLEncoding.EncodeToString(v.bytesVal)
		if unquoted {
			return enc
		}
		return "binary'" + enc + "'"
	case TypeDate:
		return v.timeVal.Format(dateLayout)
	case TypeDateTimeOffset:
		return v.timeVal.Format(time.RFC3339Nano)
	case TypeTimeOfDay:
		return FormatTimeOfDay(v.durVal)
	case TypeDuration:
		if unquoted {
			return FormatDuration(v.durVal)
		}
		return "duration'" + FormatDuration(v.durVal) + "'"
	case TypeGeography:
		if unquoted {
			return v.strVal
		}
		return "geography" + Quote(v.strVal)
	case TypeGeometry:
		if unquoted {
			return v.strVal
		}
		return "geometry" + Quote(v.strVal)
	case TypeEnum:
		if unquoted {
			return v.strVal
		}
		return v.typeName + Quote(v.strVal)
	case TypeCustom:
		return v.strVal
	}
	return ""
}

func formatFloat(f float64, bits int, suffix string, unquoted bool) string {
	var s string
	switch {
	case math.IsInf(f, 1):
		s = "INF"
	case math.IsInf(f, -1):
		s = "-INF"
	case math.IsNaN(f):
		s = "NaN"
	default:
		s = strconv.FormatFloat(f, 'G', -1, bits)
	}
	if unquoted || (bits == 64 && !isFinite(f)) {
		return s
	}
	return s + suffix
}

// FormatTimeOfDay renders the time since midnight as hh:mm:ss[.fffffffff].
func FormatTimeOfDay(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ns := d - s*time.Second
	var sb strings.Builder
	sb.WriteString(pad2(int64(h)))
	sb.WriteByte(':')
	sb.WriteString(pad2(int64(m)))
	sb.WriteByte(':')
	sb.WriteString(pad2(int64(s)))
	writeFraction(&sb, ns)
	return sb.String()
}

// FormatDuration renders d as an ISO 8601 day-time duration, e.g. P1DT2H30M.
func FormatDuration(d time.Duration) string {
	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	sb.WriteByte('P')
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ns := d - s*time.Second

	if days > 0 {
		sb.WriteString(strconv.FormatInt(int64(days), 10))
		sb.WriteByte('D')
	}
	if h == 0 && m == 0 && s == 0 && ns == 0 {
		if days == 0 {
			sb.WriteString("T0S")
		}
		return sb.String()
	}
	sb.WriteByte('T')
	if h > 0 {
		sb.WriteString(strconv.FormatInt(int64(h), 10))
		sb.WriteByte('H')
	}
	if m > 0 {
		sb.WriteString(strconv.FormatInt(int64(m), 10))
		sb.WriteByte('M')
	}
	if s > 0 || ns > 0 {
		sb.WriteString(strconv.FormatInt(int64(s), 10))
		writeFraction(&sb, ns)
		sb.WriteByte('S')
	}
	return sb.String()
}

func writeFraction(sb *strings.Builder, ns time.Duration) {
	if ns == 0 {
		return
	}
	frac := strconv.FormatInt(int64(ns)+1e9, 10)[1:]
	sb.WriteByte('.')
	sb.WriteString(strings.TrimRight(frac, "0"))
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
