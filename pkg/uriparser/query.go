package uriparser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// ErrNotUnderRoot is the cause of errors for request URIs outside the service root.
var ErrNotUnderRoot = errors.New("request URI is not under the service root")

// System query options understood by the facade.
const (
	OptionFilter        = "$filter"
	OptionSelect        = "$select"
	OptionExpand        = "$expand"
	OptionOrderBy       = "$orderby"
	OptionTop           = "$top"
	OptionSkip          = "$skip"
	OptionIndex         = "$index"
	OptionCount         = "$count"
	OptionSearch        = "$search"
	OptionApply         = "$apply"
	OptionCompute       = "$compute"
	OptionSkipToken     = "$skiptoken"
	OptionDeltaToken    = "$deltatoken"
	OptionFormat        = "$format"
	OptionSchemaVersion = "$schemaversion"
)

var systemOptions = map[string]bool{
	OptionFilter: true, OptionSelect: true, OptionExpand: true, OptionOrderBy: true,
	OptionTop: true, OptionSkip: true, OptionIndex: true, OptionCount: true,
	OptionSearch: true, OptionApply: true, OptionCompute: true, OptionSkipToken: true,
	OptionDeltaToken: true, OptionFormat: true, OptionSchemaVersion: true,
}

// QueryOption is one name=value pair of the query string, percent-decoded.
type QueryOption struct {
	Name  string
	Value string
}

// queryOptions is the query string sorted into its three kinds.
type queryOptions struct {
	system  map[string]string
	aliases map[string]string
	custom  []QueryOption
}

// splitQuery decodes the raw query string. '+' is kept as is.
func splitQuery(raw string) ([]QueryOption, error) {
	var out []QueryOption
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		n, err := url.PathUnescape(name)
		if err != nil {
			return nil, types.NewSyntaxError(fmt.Sprintf("query option name '%s' is not properly escaped", name), 0, part).
				WithCause(types.ErrInvalidOption)
		}
		v, err := url.PathUnescape(value)
		if err != nil {
			return nil, types.NewSyntaxError(fmt.Sprintf("value of query option '%s' is not properly escaped", n), 0, part).
				WithCause(types.ErrInvalidOption)
		}
		out = append(out, QueryOption{Name: n, Value: v})
	}
	return out, nil
}

// classify sorts options into system options, parameter aliases and custom
// options. A system option given twice is an error.
func classify(opts []QueryOption, caseInsensitive, noDollar bool) (*queryOptions, error) {
	q := &queryOptions{system: map[string]string{}, aliases: map[string]string{}}
	for _, o := range opts {
		if name, ok := systemName(o.Name, caseInsensitive, noDollar); ok {
			if _, dup := q.system[name]; dup {
				return nil, types.NewSyntaxError(fmt.Sprintf("query option '%s' was specified more than once", name), 0, o.Name).
					WithCause(types.ErrInvalidOption)
			}
			q.system[name] = o.Value
			continue
		}
		if len(o.Name) > 1 && o.Name[0] == '@' {
			q.aliases[o.Name] = o.Value
			continue
		}
		q.custom = append(q.custom, o)
	}
	return q, nil
}

func systemName(name string, caseInsensitive, noDollar bool) (string, bool) {
	n := strings.TrimSpace(name)
	if caseInsensitive {
		n = strings.ToLower(n)
	}
	if noDollar && !strings.HasPrefix(n, "$") && systemOptions["$"+n] {
		n = "$" + n
	}
	return n, systemOptions[n]
}

// splitPath returns the percent-decoded segments of request relative to
// root. Both must be absolute, or root may be nil for a relative request.
func splitPath(root, request *url.URL) ([]string, error) {
	path := request.EscapedPath()
	if root != nil {
		if request.IsAbs() && (!strings.EqualFold(root.Scheme, request.Scheme) || !strings.EqualFold(root.Host, request.Host)) {
			return nil, notUnderRoot(request, root)
		}
		base := strings.TrimSuffix(root.EscapedPath(), "/")
		if request.IsAbs() || strings.HasPrefix(path, "/") {
			if path != base && !strings.HasPrefix(path, base+"/") {
				return nil, notUnderRoot(request, root)
			}
			path = path[len(base):]
		}
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		decoded, err := url.PathUnescape(p)
		if err != nil {
			return nil, types.NewSyntaxError(fmt.Sprintf("path segment '%s' is not properly escaped", p), 0, p).
				WithCause(types.ErrUnexpectedToken)
		}
		parts[i] = decoded
	}
	return parts, nil
}

func notUnderRoot(request, root *url.URL) error {
	return types.NewBindingError(fmt.Sprintf("'%s' is not under the service root '%s'", request.Redacted(), root.Redacted())).
		WithCause(ErrNotUnderRoot).WithNotFound()
}
