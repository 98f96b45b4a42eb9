// services/validator_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedValidatorApproves(t *testing.T) {
	v := SimulatedValidator{}
	verdict, err := v.Classify(context.Background(), "https://cdn.example.com/reports/a.jpg",
		ValidationContext{Kind: JobReport})
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.False(t, verdict.Fraud)
}

func TestSimulatedValidatorTimeout(t *testing.T) {
	v := SimulatedValidator{Delay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := v.Classify(ctx, "https://cdn.example.com/reports/a.jpg",
		ValidationContext{Kind: JobReport})
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
}
