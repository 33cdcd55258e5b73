package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/elementstore/internal/engine"
)

// RunWithGolden executes a scenario on backend and compares its trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The trace is backend-independent, so one golden file serves every
// backend.
func RunWithGolden(t *testing.T, scenario *Scenario, backend engine.Backend) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, backend)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, []byte(result.TraceText()))
}
