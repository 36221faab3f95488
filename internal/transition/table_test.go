package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lastmile/pkg/domain-errors"
)

type testStatus string

const (
	stDraft  testStatus = "draft"
	stActive testStatus = "active"
	stPaused testStatus = "paused"
	stClosed testStatus = "closed"
)

var testTable = Table[testStatus]{
	stDraft:  {stActive, stClosed},
	stActive: {stPaused, stClosed},
	stPaused: {stActive},
}

func TestTable_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		from    testStatus
		to      testStatus
		allowed bool
	}{
		{"listed edge", stDraft, stActive, true},
		{"second listed edge", stDraft, stClosed, true},
		{"skipping a state", stDraft, stPaused, false},
		{"self transition rejected", stActive, stActive, false},
		{"from terminal", stClosed, stActive, false},
		{"unknown source", testStatus("bogus"), stActive, false},
		{"unknown target", stDraft, testStatus("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, testTable.IsValid(tt.from, tt.to))
		})
	}
}

func TestTable_ValidFrom(t *testing.T) {
	t.Run("returns sorted allowed set", func(t *testing.T) {
		assert.Equal(t, []testStatus{stActive, stClosed}, testTable.ValidFrom(stDraft))
	})

	t.Run("terminal status has empty set", func(t *testing.T) {
		assert.Empty(t, testTable.ValidFrom(stClosed))
	})
}

func TestTable_IsTerminal(t *testing.T) {
	assert.True(t, testTable.IsTerminal(stClosed))
	assert.False(t, testTable.IsTerminal(stDraft))
}

func TestTable_Known(t *testing.T) {
	assert.True(t, testTable.Known(stDraft))
	assert.True(t, testTable.Known(stClosed)) // appears only as a target
	assert.False(t, testTable.Known(testStatus("bogus")))
}

func TestTable_Validate(t *testing.T) {
	t.Run("legal edge passes", func(t *testing.T) {
		require.NoError(t, testTable.Validate("widget", stDraft, stActive))
	})

	t.Run("illegal edge names current, target, and allowed set", func(t *testing.T) {
		err := testTable.Validate("widget", stDraft, stPaused)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), `"draft"`)
		assert.Contains(t, err.Error(), `"paused"`)
		assert.Contains(t, err.Error(), "active, closed")
	})

	t.Run("terminal status reported as terminal", func(t *testing.T) {
		err := testTable.Validate("widget", stClosed, stDraft)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "terminal")
	})
}
