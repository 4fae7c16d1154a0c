package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpilot/gridpilot/pkg/models"
)

func TestSubmit_RejectsMissingPlaybookID(t *testing.T) {
	service := NewExecution(nil, nil)

	_, err := service.Submit(context.Background(), SubmitRequest{})

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSubmit_RejectsOutOfRangePriority(t *testing.T) {
	service := NewExecution(nil, nil)

	_, err := service.Submit(context.Background(), SubmitRequest{
		PlaybookID: "pb-1",
		Priority:   101,
	})

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSubmit_RejectsBadTimeoutOverrides(t *testing.T) {
	service := NewExecution(nil, nil)

	cases := map[string]map[string]string{
		"unknown category": {"leisurely": "5m"},
		"bad duration":     {"slow": "five minutes"},
		"negative":         {"slow": "-2m"},
	}

	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.Submit(context.Background(), SubmitRequest{
				PlaybookID:       "pb-1",
				TimeoutOverrides: overrides,
			})

			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestParseTimeoutOverrides(t *testing.T) {
	overrides, err := parseTimeoutOverrides(map[string]string{
		"slow":        "20m",
		"interactive": "1h",
	})

	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, overrides[models.TimeoutCategorySlow])
	assert.Equal(t, time.Hour, overrides[models.TimeoutCategoryInteractive])
}

func TestParseTimeoutOverrides_Empty(t *testing.T) {
	overrides, err := parseTimeoutOverrides(nil)

	require.NoError(t, err)
	assert.Nil(t, overrides)
}
