package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-sim/retail-sim/sim/agent"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

type backendFactory func(t *testing.T, dir string) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"file": func(t *testing.T, dir string) Backend {
			return NewFileBackend(filepath.Join(dir, "id_seeds_test.json"))
		},
		"sqlite": func(t *testing.T, dir string) Backend {
			b, err := OpenSQLite(context.Background(), filepath.Join(dir, "ids.db"))
			require.NoError(t, err)
			return b
		},
	}
}

func TestRegistry_FreshSeeds(t *testing.T) {
	r, err := Open(context.Background(), &MemoryBackend{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Peek(agent.KindCust1))
	assert.Equal(t, int64(5000), r.Peek(agent.KindCust2))
	assert.Equal(t, int64(10000), r.Peek(agent.KindProduct))
	assert.NoError(t, r.Verify(nil), "empty ranges are trivially consistent")
}

func TestRegistry_NextIsMonotonic(t *testing.T) {
	r, err := Open(context.Background(), &MemoryBackend{})
	require.NoError(t, err)
	prev := int64(-1)
	for i := 0; i < 10; i++ {
		id, err := r.Next(agent.KindCust1)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, int64(10), r.Totals()[TotalCustomer1])
	assert.Equal(t, int64(0), r.Initial(agent.KindCust1))

	_, err = r.Next(agent.Kind("Supplier"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCeiling(t *testing.T) {
	tests := []struct {
		kind    agent.Kind
		want    int64
		bounded bool
	}{
		{agent.KindCust1, 5000, true},
		{agent.KindCust2, 10000, true},
		{agent.KindProduct, 0, false},
		{agent.Kind("Supplier"), 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, ok := Ceiling(tt.kind)
			assert.Equal(t, tt.bounded, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_NextStopsAtNextKindsBase(t *testing.T) {
	seeds := DefaultSeeds()
	seeds[string(agent.KindCust1)] = 4999
	seeds[string(agent.KindCust2)] = 9999
	r, err := Open(context.Background(), NewMemoryBackend(seeds))
	require.NoError(t, err)

	for _, tt := range []struct {
		kind agent.Kind
		last int64
	}{{agent.KindCust1, 4999}, {agent.KindCust2, 9999}} {
		id, err := r.Next(tt.kind)
		require.NoError(t, err)
		assert.Equal(t, tt.last, id)

		_, err = r.Next(tt.kind)
		assert.ErrorIs(t, err, ErrRangeExhausted)
		assert.Equal(t, tt.last+1, r.Peek(tt.kind), "a refused allocation does not advance the counter")
	}
	assert.Equal(t, int64(1), r.Totals()[TotalCustomer1])

	id, err := r.Next(agent.KindProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), id)
}

func TestRegistry_CommitSurvivesReopen(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			b := factory(t, dir)
			r, err := Open(ctx, b)
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				_, err := r.Next(agent.KindProduct)
				require.NoError(t, err)
			}
			_, err = r.Next(agent.KindCust2)
			require.NoError(t, err)
			r.AddTransactions(7)
			require.NoError(t, r.Commit(ctx))
			require.NoError(t, r.Close())

			r2, err := Open(ctx, factory(t, dir))
			require.NoError(t, err)
			defer r2.Close()
			assert.Equal(t, int64(10003), r2.Peek(agent.KindProduct))
			assert.Equal(t, int64(5001), r2.Peek(agent.KindCust2))
			assert.Equal(t, int64(0), r2.Peek(agent.KindCust1))
			totals := r2.Totals()
			assert.Equal(t, int64(3), totals[TotalProduct])
			assert.Equal(t, int64(1), totals[TotalCustomer2])
			assert.Equal(t, int64(7), totals[TotalTransaction])
		})
	}
}

func TestRegistry_UncommittedAllocationsAreDropped(t *testing.T) {
	ctx := context.Background()
	b := &MemoryBackend{}
	r, err := Open(ctx, b)
	require.NoError(t, err)
	_, err = r.Next(agent.KindCust1)
	require.NoError(t, err)
	require.NoError(t, r.Reload(ctx))
	assert.Equal(t, int64(0), r.Peek(agent.KindCust1))
}

func TestRegistry_CommitRejectsRegression(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			stale, err := Open(ctx, factory(t, dir))
			require.NoError(t, err)
			defer stale.Close()

			ahead, err := Open(ctx, factory(t, dir))
			require.NoError(t, err)
			defer ahead.Close()
			for i := 0; i < 5; i++ {
				_, err := ahead.Next(agent.KindCust1)
				require.NoError(t, err)
			}
			require.NoError(t, ahead.Commit(ctx))

			_, err = stale.Next(agent.KindCust1)
			require.NoError(t, err)
			err = stale.Commit(ctx)
			assert.ErrorIs(t, err, ErrRegressed)
		})
	}
}

func TestRegistry_OpenRejectsSeedBelowBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id_seeds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Cust1": 0, "Cust2": 12, "Product": 10000}`), 0o644))
	_, err := Open(context.Background(), NewFileBackend(path))
	assert.ErrorIs(t, err, ErrRegressed)
}

func TestFileBackend_MissingCountersDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id_seeds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Cust1": 40}`), 0o644))
	r, err := Open(context.Background(), NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, int64(40), r.Peek(agent.KindCust1))
	assert.Equal(t, int64(10000), r.Peek(agent.KindProduct))
}

func TestRegistry_Verify(t *testing.T) {
	ctx := context.Background()
	b := &MemoryBackend{}
	require.NoError(t, b.Update(ctx, func(s Seeds) (Seeds, error) {
		s[string(agent.KindCust1)] = 3
		s[string(agent.KindProduct)] = 10002
		return s, nil
	}))
	r, err := Open(ctx, b)
	require.NoError(t, err)

	tests := []struct {
		name    string
		loaded  map[agent.Kind][]int64
		wantErr bool
	}{
		{
			name: "exact",
			loaded: map[agent.Kind][]int64{
				agent.KindCust1:   {0, 1, 2},
				agent.KindProduct: {10000, 10001},
			},
		},
		{
			name: "ids outside the range are ignored",
			loaded: map[agent.Kind][]int64{
				agent.KindCust1:   {0, 1, 2, 77},
				agent.KindProduct: {10000, 10001, 9},
			},
		},
		{
			name: "missing agent",
			loaded: map[agent.Kind][]int64{
				agent.KindCust1:   {0, 2},
				agent.KindProduct: {10000, 10001},
			},
			wantErr: true,
		},
		{
			name: "nothing loaded",
			loaded: map[agent.Kind][]int64{
				agent.KindProduct: {10000, 10001},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Verify(tt.loaded)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInconsistent), "got %v", err)
		})
	}
}
