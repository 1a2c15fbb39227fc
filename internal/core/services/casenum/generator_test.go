package casenum

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Next(t *testing.T) {
	fixed := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	gen := NewGeneratorAt(func() time.Time { return fixed })

	assert.Equal(t, "CASE-2026-000001", gen.Next(0))
	assert.Equal(t, "CASE-2026-000043", gen.Next(42))
	assert.Equal(t, "CASE-2026-1000001", gen.Next(1000000))
}

func TestGenerator_YearRollsOver(t *testing.T) {
	year := 2025
	gen := NewGeneratorAt(func() time.Time {
		return time.Date(year, time.December, 31, 23, 59, 0, 0, time.UTC)
	})

	assert.Equal(t, "CASE-2025-000010", gen.Next(9))
	year = 2026
	assert.Equal(t, fmt.Sprintf("CASE-%d-000010", year), gen.Next(9))
}
