package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttentionSetString(t *testing.T) {
	s := NewAttentionSet(AttentionR4, AttentionR1, AttentionR3)

	// Sorted and comma-joined regardless of insertion order.
	assert.Equal(t, "R1,R3,R4", s.String())

	s.Add(AttentionR1)
	assert.Equal(t, "R1,R3,R4", s.String(), "adding an existing flag should not duplicate it")

	s.Remove(AttentionR3)
	assert.Equal(t, "R1,R4", s.String())
}

func TestAttentionSetSetAndHas(t *testing.T) {
	s := AttentionSet{}

	s.Set(AttentionR1, true)
	assert.True(t, s.Has(AttentionR1))

	s.Set(AttentionR1, false)
	assert.False(t, s.Has(AttentionR1))

	// Clearing an absent flag is a no-op.
	s.Set(AttentionR5, false)
	assert.Equal(t, "", s.String())
}

func TestAttentionSetScanRoundTrip(t *testing.T) {
	original := NewAttentionSet(AttentionR1, AttentionR5)

	value, err := original.Value()
	require.NoError(t, err)

	var scanned AttentionSet
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original, scanned)

	var fromNil AttentionSet
	require.NoError(t, fromNil.Scan(nil))
	assert.Empty(t, fromNil)

	var fromEmpty AttentionSet
	require.NoError(t, fromEmpty.Scan(""))
	assert.Empty(t, fromEmpty)
}

func TestAttentionSetJSON(t *testing.T) {
	s := NewAttentionSet(AttentionR3, AttentionR1)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["R1","R3"]`, string(data))

	var decoded AttentionSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, decoded)
}

func TestParseAttentionFlag(t *testing.T) {
	flag, err := ParseAttentionFlag("r5")
	require.NoError(t, err)
	assert.Equal(t, AttentionR5, flag)

	_, err = ParseAttentionFlag("R2")
	assert.Error(t, err)
}
