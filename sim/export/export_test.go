package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-sim/retail-sim/sim/agent"
	"github.com/retail-sim/retail-sim/sim/dist"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppend_SkipsExistingKeys(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	table := Table{Name: "t", Header: []string{"id", "v"}, KeyColumns: 1}

	n, err := w.Append(table, "20230101", [][]string{{"1", "a"}, {"2", "b"}, {"2", "dup"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.Append(table, "20230101", [][]string{{"2", "changed"}, {"3", "c"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.Append(table, "20230101", [][]string{{"1", "a"}})
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, [][]string{{"id", "v"}, {"1", "a"}, {"2", "b"}, {"3", "c"}},
		readAll(t, w.Path(table, "20230101")))
}

func TestAppend_PartitionsAreIndependent(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	table := Table{Name: "t", Header: []string{"id"}, KeyColumns: 1}
	for _, day := range []string{"20230101", "20230102"} {
		n, err := w.Append(table, day, [][]string{{"1"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n, day)
	}
}

func TestAppend_Errors(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	table := Table{Name: "t", Header: []string{"id", "v"}, KeyColumns: 1}

	_, err = w.Append(table, "20230101", [][]string{{"1"}})
	assert.Error(t, err, "ragged row")

	path := w.Path(table, "20230102")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("other,header\n"), 0o644))
	_, err = w.Append(table, "20230102", [][]string{{"1", "a"}})
	assert.Error(t, err, "header mismatch")
}

func TestExport_Idempotent(t *testing.T) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	c, err := agent.RestoreCust1(agent.Cust1Record{
		Type:            agent.KindCust1,
		ID:              7,
		Age:             30,
		Gender:          "F",
		ProductCategory: map[string]float64{"dairy": 1},
		Purchase:        dist.FieldRecord{Table: map[string]float64{"10": 1}},
		VisitProb:       1,
		PurchaseHistory: agent.History{
			"dairy": {
				{ProductID: 10000, UnitPrice: 4, Quantity: 2, Date: "20230101"},
				{ProductID: 10000, UnitPrice: 4, Quantity: 1, Date: "20230102"},
			},
		},
	})
	require.NoError(t, err)
	p, err := agent.RestoreProduct(agent.ProductRecord{Type: agent.KindProduct, ID: 10000, Category: "dairy", UnitPrice: 4, Stock: 97})
	require.NoError(t, err)

	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	res, err := w.Export([]agent.Agent{c, p}, day)
	require.NoError(t, err)
	assert.Equal(t, Result{"transactions": 2, "cust1_demographics": 1, "products": 1}, res)

	rows := readAll(t, w.Path(Transactions, "20230101"))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Cust1", "7", "dairy", "0", "10000", "4", "2", "20230101"}, rows[1])
	assert.FileExists(t, w.Path(Products, "20230102"))

	res, err = w.Export([]agent.Agent{c, p}, day)
	require.NoError(t, err)
	assert.Empty(t, res)
}
