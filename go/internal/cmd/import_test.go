package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTeamMapping(t *testing.T) {
	id := uuid.New()

	got, err := parseTeamMapping([]string{"Real Madrink=" + id.String(), " A=B = " + id.String()})
	require.NoError(t, err)
	assert.Equal(t, map[string]uuid.UUID{"Real Madrink": id, "A=B": id}, got)

	got, err = parseTeamMapping(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseTeamMapping([]string{"no-separator"})
	assert.ErrorContains(t, err, "want name=uuid")

	_, err = parseTeamMapping([]string{"Team=42"})
	assert.ErrorContains(t, err, "invalid member id")
}
