package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/errors"
)

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int
	}{
		{"single", "80", []int{80}},
		{"list is sorted", "443,22,80", []int{22, 80, 443}},
		{"range", "8000-8003", []int{8000, 8001, 8002, 8003}},
		{"mixed with duplicates", "22, 20-23 ,22", []int{20, 21, 22, 23}},
		{"trailing comma", "80,", []int{80}},
		{"bounds", "1,65535", []int{1, 65535}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports, err := ParsePorts(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ports)
		})
	}
}

func TestParsePortsInvalid(t *testing.T) {
	for _, input := range []string{"", " ", ",", "0", "65536", "http", "90-80", "1-x", "-5"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePorts(input)
			require.Error(t, err)
			assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
		})
	}
}

func TestFormatPorts(t *testing.T) {
	assert.Equal(t, "22,80,443", FormatPorts([]int{22, 80, 443}))
	assert.Equal(t, "", FormatPorts(nil))
}
