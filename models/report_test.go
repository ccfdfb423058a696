package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCategory("Road")
	assert.True(t, errors.Is(err, ErrInvalidCategory))
	_, err = ParseCategory("")
	assert.True(t, errors.Is(err, ErrInvalidCategory))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("in-progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)

	_, err = ParseStatus("pending")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestReportStatus_Active(t *testing.T) {
	assert.True(t, StatusOpen.Active())
	assert.True(t, StatusInProgress.Active())
	assert.False(t, StatusResolved.Active())
	assert.False(t, StatusClosed.Active())
}

func TestParseSeverity_DefaultsToMedium(t *testing.T) {
	sv, err := ParseSeverity("")
	require.NoError(t, err)
	assert.Equal(t, SeverityMedium, sv)

	sv, err = ParseSeverity("critical")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, sv)

	_, err = ParseSeverity("urgent")
	assert.True(t, errors.Is(err, ErrInvalidSeverity))
}

func TestCoordinates_Validate(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinates
		ok   bool
	}{
		{"origin", Coordinates{0, 0}, true},
		{"bounds", Coordinates{-90, 180}, true},
		{"lat too high", Coordinates{90.0001, 0}, false},
		{"lng too low", Coordinates{0, -180.5}, false},
		{"nan", Coordinates{math.NaN(), 0}, false},
		{"inf", Coordinates{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidCoordinates))
		})
	}
}
