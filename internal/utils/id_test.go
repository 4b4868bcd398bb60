package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestIterationID(t *testing.T) {
	assert.Equal(t, "batch_iter_007", IterationID("batch", 7))
	assert.Equal(t, "b_iter_1234", IterationID("b", 1234))
}
