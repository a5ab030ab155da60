package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sim "github.com/retail-sim/retail-sim/sim"
	"github.com/retail-sim/retail-sim/sim/checkpoint"
	"github.com/retail-sim/retail-sim/sim/registry"
)

func inspectConfig(t *testing.T) sim.Config {
	cfg := sim.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestInspect_EmptyDataDir(t *testing.T) {
	cfg := inspectConfig(t)
	var out bytes.Buffer

	require.NoError(t, inspect(context.Background(), cfg, &out))

	assert.Contains(t, out.String(), "(none)")
	assert.Contains(t, out.String(), registry.TotalTransaction)
}

func TestInspect_ShowsNewestCheckpoint(t *testing.T) {
	cfg := inspectConfig(t)
	store, err := openCheckpoints(cfg)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), [][]byte{[]byte(`{"kind":"cust1","id":0}`)}, checkpoint.Metadata{
		RunID:         "run-a",
		StartDate:     "2024-01-01",
		FinishDate:    "2024-01-04",
		DaysSimulated: 3,
		Counts:        map[string]int{"cust1": 1},
	})
	require.NoError(t, err)
	var out bytes.Buffer

	require.NoError(t, inspect(context.Background(), cfg, &out))

	s := out.String()
	assert.Contains(t, s, "run-a")
	assert.Contains(t, s, "2024-01-01 to 2024-01-04 (3 days)")
	assert.Contains(t, s, "Runs In History      : 1")
	assert.NotContains(t, s, "(none)")
}
