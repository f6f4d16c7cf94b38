package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/resolve"
)

func TestParseParameters(t *testing.T) {
	params, err := ParseParameters([]byte(`
Token:
  name: Example
  supply: 1000000000000000000000000
  decimals: 18
  paused: false
  owners: [alice, bob]
  limits:
    daily: 0x10
`))
	require.NoError(t, err)
	assert.Equal(t, resolve.Parameters{"Token": ir.IRObject{
		"name":     ir.IRString("Example"),
		"supply":   ir.IRString("1000000000000000000000000"),
		"decimals": ir.IRInt(18),
		"paused":   ir.IRBool(false),
		"owners":   ir.IRArray{ir.IRString("alice"), ir.IRString("bob")},
		"limits":   ir.IRObject{"daily": ir.IRInt(16)},
	}}, params)
}

func TestParseParameters_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "float", doc: "M: {rate: 1.5}", want: "floats are not allowed"},
		{name: "null", doc: "M: {owner: null}", want: "null is not a valid value"},
		{name: "module not an object", doc: "M: 3", want: "parameters of module M must be an object"},
		{name: "top level list", doc: "[1, 2]", want: "must map module ids to objects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParameters([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadParameters_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Counter": {"start": 7, "big": 123456789012345678901234567890}}`), 0o644))

	params, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(7), params["Counter"]["start"])
	assert.Equal(t, ir.IRString("123456789012345678901234567890"), params["Counter"]["big"])
}

func TestLoadParameters_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	params, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Empty(t, params)
}
