package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

const shopModel = "../../pkg/edm/testdata/shop.yaml"

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--no-color"))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestFilterCommand(t *testing.T) {
	out, _, err := execute(t, "filter", "Age gt 1 and Name eq 'x'")
	require.NoError(t, err)
	assert.Equal(t, "((Age gt 1) and (Name eq 'x'))\n", out)
}

func TestFilterCommandSyntaxError(t *testing.T) {
	_, errOut, err := execute(t, "filter", "Age gt")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSyntax))
	assert.Contains(t, errOut, "error:")
	assert.Contains(t, errOut, "^")
}

func TestParseCommand(t *testing.T) {
	out, _, err := execute(t, "parse", "--model", shopModel, "Customers(1)/Orders?$top=2&$orderby=Id desc")
	require.NoError(t, err)
	assert.Contains(t, out, "Customers(1)/Orders")
	assert.Contains(t, out, "Id desc")
	assert.Regexp(t, `\$top\s+2`, out)
}

func TestPathCommand(t *testing.T) {
	out, _, err := execute(t, "path", "--model", shopModel, "Customers(1)/Name")
	require.NoError(t, err)
	assert.Contains(t, out, "EntitySet")
	assert.Contains(t, out, "Property")
	assert.Contains(t, out, "source=Customers")

	out, _, err = execute(t, "path", "--model", shopModel, "")
	require.NoError(t, err)
	assert.Contains(t, out, "(service document)")
}

func TestPathCommandKeyAsSegment(t *testing.T) {
	out, _, err := execute(t, "parse", "--model", shopModel, "--key-as-segment", "Customers/1/Name")
	require.NoError(t, err)
	assert.Contains(t, out, "Customers(1)/Name")
}

func TestPathCommandReportsContext(t *testing.T) {
	_, errOut, err := execute(t, "path", "--model", shopModel, "Customers(1)/Nope/Name")
	require.Error(t, err)
	assert.Equal(t, types.CodeNotFound, types.StatusOf(err))
	assert.Contains(t, errOut, "parsed:    Customers/(1)")
	assert.Contains(t, errOut, "segment:   Nope")
	assert.Contains(t, errOut, "remaining: Name")
}

func TestServiceRoot(t *testing.T) {
	out, _, err := execute(t, "parse", "--model", shopModel,
		"--service-root", "https://example.com/shop/", "https://example.com/shop/Owner/Name")
	require.NoError(t, err)
	assert.Contains(t, out, "Owner/Name")

	_, _, err = execute(t, "parse", "--model", shopModel,
		"--service-root", "https://example.com/shop/", "https://other.example.com/Owner")
	require.Error(t, err)
	assert.Equal(t, types.CodeNotFound, types.StatusOf(err))
}

func TestModelRequired(t *testing.T) {
	t.Setenv("ODATA_MODEL", "")
	_, errOut, err := execute(t, "parse", "Customers")
	require.Error(t, err)
	assert.Contains(t, errOut, "model file is required")
}

func TestSettingsSources(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("filterLimit: 2\n"), 0o644))

	_, _, err := execute(t, "filter", "--config", cfg, "((((Age gt 1))))")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRecursionLimit))

	env := filepath.Join(dir, "odata.env")
	require.NoError(t, os.WriteFile(env, []byte("ODATA_FILTER_LIMIT=0\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ODATA_FILTER_LIMIT") })
	_, _, err = execute(t, "filter", "--env-file", env, "Age gt 1")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, "filter", "--log-level", "loud", "Age gt 1")
	assert.ErrorContains(t, err, "invalid log level")
}
