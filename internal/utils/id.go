package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID for requests
func GenerateID() string {
	return uuid.NewString()
}

// IterationID names the result of one profile within a batch.
func IterationID(batchID string, iteration int) string {
	return fmt.Sprintf("%s_iter_%03d", batchID, iteration)
}
