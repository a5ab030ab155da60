package export

import (
	"sort"
	"strconv"
	"time"

	"github.com/retail-sim/retail-sim/sim/agent"
)

// Output tables.
var (
	Transactions = Table{
		Name:       "transactions",
		Header:     []string{"cust_type", "unique_id", "category", "seq", "product_id", "unit_price", "quantity", "date_purchased"},
		KeyColumns: 4,
	}
	Cust1Demographics = Table{
		Name:       "cust1_demographics",
		Header:     []string{"unique_id", "age", "gender", "city_category", "stay_in_current_city_years", "marital_status", "segment_id", "visit_prob"},
		KeyColumns: 1,
	}
	Cust2Demographics = Table{
		Name:       "cust2_demographics",
		Header:     []string{"unique_id", "branch", "city", "customer_type", "gender", "payment_method", "segment_id"},
		KeyColumns: 1,
	}
	Products = Table{
		Name:       "products",
		Header:     []string{"product_id", "category", "unit_price", "stock", "lead_days", "eoq", "total_sales"},
		KeyColumns: 1,
	}
)

// Result counts rows appended per table name.
type Result map[string]int

func (r Result) add(table string, n int) {
	if n > 0 {
		r[table] += n
	}
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
func itoa(v int64) string   { return strconv.FormatInt(v, 10) }

// transactionRows flattens a customer's history, partitioned by purchase
// date. seq is the entry's position within its category.
func transactionRows(c agent.Customer) map[string][][]string {
	out := make(map[string][][]string)
	h := c.History()
	for _, cat := range h.Categories() {
		for i, p := range h[cat] {
			out[p.Date] = append(out[p.Date], []string{
				string(c.Kind()), itoa(c.ID()), cat, strconv.Itoa(i),
				itoa(p.ProductID), ftoa(p.UnitPrice), strconv.Itoa(p.Quantity), p.Date,
			})
		}
	}
	return out
}

// Export appends transactions, demographics and product attributes for
// agents. Transactions land in their purchase-date partitions; the other
// tables in the partition of day.
func (w *Writer) Export(agents []agent.Agent, day time.Time) (Result, error) {
	partition := agent.FormatDate(day)
	tx := make(map[string][][]string)
	rows := map[*Table][][]string{}
	for _, a := range agents {
		switch v := a.(type) {
		case *agent.Cust1:
			rows[&Cust1Demographics] = append(rows[&Cust1Demographics], []string{
				itoa(v.ID()), strconv.Itoa(v.Age), v.Gender, v.CityCategory,
				v.StayInCurrentCityYears, v.MaritalStatus, strconv.Itoa(v.Segment()), ftoa(v.VisitProb()),
			})
		case *agent.Cust2:
			rows[&Cust2Demographics] = append(rows[&Cust2Demographics], []string{
				itoa(v.ID()), v.Branch, v.City, v.CustomerType, v.Gender, v.PaymentMethod, strconv.Itoa(v.Segment()),
			})
		case *agent.Product:
			rows[&Products] = append(rows[&Products], []string{
				itoa(v.ID()), v.Category(), ftoa(v.UnitPrice()), strconv.Itoa(v.Stock()),
				strconv.Itoa(v.LeadDays()), ftoa(v.EOQ()), strconv.Itoa(v.TotalSales()),
			})
		}
		if c, ok := a.(agent.Customer); ok {
			for d, r := range transactionRows(c) {
				tx[d] = append(tx[d], r...)
			}
		}
	}

	res := make(Result)
	days := make([]string, 0, len(tx))
	for d := range tx {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		n, err := w.Append(Transactions, d, tx[d])
		if err != nil {
			return res, err
		}
		res.add(Transactions.Name, n)
	}
	for _, t := range []*Table{&Cust1Demographics, &Cust2Demographics, &Products} {
		if len(rows[t]) == 0 {
			continue
		}
		n, err := w.Append(*t, partition, rows[t])
		if err != nil {
			return res, err
		}
		res.add(t.Name, n)
	}
	return res, nil
}
