package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/cmd/tracefabric/cli"
)

func TestParseAddress_ValidInputs(t *testing.T) {
	tests := []struct {
		input    string
		expected cli.Address
	}{
		{"0", 0},
		{"4096", 4096},
		{"0x20090000", 0x20090000},
		{"0X1F", 0x1f},
		{"  0x10  ", 0x10},
		{"0o17", 0o17},
		{"0xffffffffffffffff", cli.Address(^uint64(0))},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a, err := cli.ParseAddress(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, a)
		})
	}
}

func TestParseAddress_InvalidInputs(t *testing.T) {
	for _, input := range []string{"", "0x", "-1", "0xg", "1e3", "0x10000000000000000"} {
		t.Run(input, func(t *testing.T) {
			_, err := cli.ParseAddress(input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid address")
		})
	}
}

func TestAddress_String(t *testing.T) {
	assert.Equal(t, "0x20090000", cli.Address(0x20090000).String())
	assert.Equal(t, "0x0", cli.Address(0).String())
}

func TestParseDeviceID(t *testing.T) {
	id, err := cli.ParseDeviceID(" etm0 ")
	require.NoError(t, err)
	assert.Equal(t, tracefabric.DeviceID("etm0"), id)

	_, err = cli.ParseDeviceID("")
	assert.ErrorContains(t, err, "must not be empty")

	_, err = cli.ParseDeviceID("etm 0")
	assert.ErrorContains(t, err, "whitespace")
}

func TestOutputFlags_Format(t *testing.T) {
	tests := []struct {
		output string
		format cli.OutputFormat
		expr   string
	}{
		{"table", cli.OutputFormatTable, ""},
		{"json", cli.OutputFormatJSON, ""},
		{"jsonpath={.id}", cli.OutputFormatJSONPath, "{.id}"},
		{"jsonpath=", cli.OutputFormatTable, ""},
		{"yaml", cli.OutputFormatTable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			f := cli.OutputFlags{Output: tt.output}
			assert.Equal(t, tt.format, f.Format())
			assert.Equal(t, tt.expr, f.JSONPathExpr())
		})
	}
}
