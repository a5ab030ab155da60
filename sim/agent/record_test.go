package agent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	c1 := dairyShopper(t)
	c1.budget = 12.5
	c1.history["dairy"] = []Purchase{{ProductID: 10000, UnitPrice: 4, Quantity: 2, Date: "20230101"}}

	c2, err := RestoreCust2(cust2Record())
	require.NoError(t, err)

	p := NewProduct(10000, "dairy", 4, 30, rng)
	p.RecordSales(day0, 7)
	p.Step(day0)

	for _, a := range []Agent{c1, c2, p} {
		t.Run(string(a.Kind()), func(t *testing.T) {
			line, err := Encode(a)
			require.NoError(t, err)
			back, err := Decode(line)
			require.NoError(t, err)
			require.Equal(t, a.Kind(), back.Kind())
			assert.Equal(t, a.ID(), back.ID())

			again, err := Encode(back)
			require.NoError(t, err)
			assert.JSONEq(t, string(line), string(again))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, line := range []string{
		`not json`,
		`{"type":"Supplier","unique_id":1}`,
		`{"type":"Cust1","unique_id":1,"product_category":{}}`,
		`{"type":"Product","unique_id":10000,"stock":-3}`,
	} {
		_, err := Decode([]byte(line))
		assert.Error(t, err, line)
	}
}

func TestEncode_UnknownAgent(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}
