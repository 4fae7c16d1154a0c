package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapacities(t *testing.T) {
	capacities, err := parseCapacities([]string{"gateway=2", "browser=4"})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"gateway": 2, "browser": 4}, capacities)
}

func TestParseCapacities_Empty(t *testing.T) {
	capacities, err := parseCapacities(nil)

	require.NoError(t, err)
	assert.Empty(t, capacities)
}

func TestParseCapacities_Invalid(t *testing.T) {
	for _, entry := range []string{"gateway", "=2", "gateway=", "gateway=zero", "gateway=0", "gateway=-1"} {
		_, err := parseCapacities([]string{entry})

		assert.Error(t, err, "entry %q", entry)
	}
}
