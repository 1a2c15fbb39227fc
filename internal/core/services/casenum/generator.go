package casenum

import (
	"fmt"
	"time"
)

// Generator produces human-readable case numbers of the form
// CASE-<year>-<zero-padded sequence>. The generator is advisory:
// uniqueness is enforced by the database constraint on case number, and
// a collision is treated as a retryable failure for that row.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a case-number generator.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorAt creates a generator with a fixed clock, for tests.
func NewGeneratorAt(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next derives a case number from the running case count at the moment
// of creation.
func (g *Generator) Next(totalCases int64) string {
	return fmt.Sprintf("CASE-%d-%06d", g.now().Year(), totalCases+1)
}
