package analyzer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// customerFrame builds a small dataset exercising every column kind.
func customerFrame(t *testing.T, rows int) *Frame {
	t.Helper()
	header := []string{"User_ID", "Purchase_Date", "Gender", "Purchase", "Note"}
	records := make([][]string, rows)
	for i := range records {
		gender := "M"
		if i%3 == 0 {
			gender = "F"
		}
		records[i] = []string{
			fmt.Sprintf("%d", 1000+i),
			fmt.Sprintf("2019-03-%02d", 1+i%28),
			gender,
			fmt.Sprintf("%d", 100+(i*37)%80),
			fmt.Sprintf("note %d", i%60),
		}
	}
	f, err := NewFrame(header, records)
	require.NoError(t, err)
	return f
}

func TestProcessDataset_ClassifiesEveryKind(t *testing.T) {
	enc, err := ProcessDataset(customerFrame(t, 120), DefaultOptions())
	require.NoError(t, err)

	want := map[string]ColumnKind{
		"user_id":       KindID,
		"purchase_date": KindDatetime,
		"year":          KindCategorical,
		"month":         KindCategorical,
		"date":          KindCategorical,
		"gender":        KindCategorical,
		"purchase":      KindNumeric,
		"note":          KindText,
	}
	for col, kind := range want {
		if got := enc.Kinds[col]; got != kind {
			t.Errorf("kind of %q = %v, want %v", col, got, kind)
		}
	}
	assert.Equal(t, []string{"purchase_date"}, enc.Datetime)
	assert.Equal(t, []string{"year", "month", "date", "gender"}, enc.Categorical)
}

func TestProcessDataset_OneHot(t *testing.T) {
	enc, err := ProcessDataset(customerFrame(t, 120), DefaultOptions())
	require.NoError(t, err)

	var gender []Indicator
	for _, ind := range enc.Indicators {
		if ind.Column == "gender" {
			gender = append(gender, ind)
		}
	}
	require.Len(t, gender, 2)
	assert.Equal(t, "F", gender[0].Category)
	assert.Equal(t, "M", gender[1].Category)
	for i := 0; i < enc.Rows; i++ {
		if gender[0].Values[i]+gender[1].Values[i] != 1 {
			t.Fatalf("row %d: indicators are not exclusive", i)
		}
	}
	// 28 distinct days of month
	days := 0
	for _, ind := range enc.Indicators {
		if ind.Column == "date" {
			days++
		}
	}
	assert.Equal(t, 28, days)
}

func TestProcessDataset_UniqueColumnIsIdentifier(t *testing.T) {
	f, err := NewFrame([]string{"code", "flag"}, [][]string{{"a", "x"}, {"b", "x"}, {"c", "y"}})
	require.NoError(t, err)
	enc, err := ProcessDataset(f, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, KindID, enc.Kinds["code"])
	assert.Equal(t, KindCategorical, enc.Kinds["flag"])
}

func TestProcessDataset_MalformedDate(t *testing.T) {
	records := make([][]string, 20)
	for i := range records {
		records[i] = []string{fmt.Sprintf("2020-01-%02d", 1+i%10), "x"}
	}
	records[19][0] = "not-a-date"
	f, err := NewFrame([]string{"when", "flag"}, records)
	require.NoError(t, err)

	_, err = ProcessDataset(f, DefaultOptions())
	if !errors.Is(err, ErrMalformedDate) {
		t.Errorf("got error %v, want ErrMalformedDate", err)
	}
}
