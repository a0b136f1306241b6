// Package report turns sales and audit queries into tables, either returned
// as rows or rendered to a file that is archived as an immutable record.
package report

import (
	"time"

	"github.com/shopspring/decimal"
)

type Format string

const (
	FormatScreen Format = "screen"
	FormatPDF    Format = "pdf"
	FormatExcel  Format = "excel"
	FormatCSV    Format = "csv"
)

func (f Format) Valid() bool {
	switch f {
	case FormatScreen, FormatPDF, FormatExcel, FormatCSV:
		return true
	}
	return false
}

type GroupBy string

const (
	GroupProduct  GroupBy = "product"
	GroupCustomer GroupBy = "customer"
	GroupCategory GroupBy = "category"
	GroupMonth    GroupBy = "month"
)

func (g GroupBy) Valid() bool {
	switch g {
	case GroupProduct, GroupCustomer, GroupCategory, GroupMonth:
		return true
	}
	return false
}

const dateLayout = "2006-01-02"

// Range is an inclusive span of calendar days.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func newRange(from, to time.Time) *Range {
	return &Range{From: day(from), To: day(to)}
}

// Bounds returns the half-open instant interval [start, end) covering the range.
func (r Range) Bounds() (time.Time, time.Time) {
	return day(r.From), day(r.To).AddDate(0, 0, 1)
}

func (r Range) String() string {
	if r.From.Equal(r.To) {
		return r.From.Format(dateLayout)
	}
	return r.From.Format(dateLayout) + " a " + r.To.Format(dateLayout)
}

// Hint is the product category a prompt seems to be about.
type Hint struct {
	Bucket   string `json:"bucket"`
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
}

// Spec is what a free-text prompt asks for.
type Spec struct {
	Prompt     string  `json:"prompt"`
	Format     Format  `json:"format"`
	GroupBy    GroupBy `json:"group_by"`
	Range      *Range  `json:"range,omitempty"`
	RangeLabel string  `json:"range_label,omitempty"`
	Hint       *Hint   `json:"hint,omitempty"`
}

// Explicit reports whether the prompt named a time range.
func (s Spec) Explicit() bool { return s.Range != nil }

// Query is the aggregation request handed to a Source.
type Query struct {
	GroupBy       GroupBy
	From, To      *time.Time // To is exclusive
	CategoryIDs   []int64
	CategoryNames []string
	Keywords      []string
}

type Row struct {
	Key           string          `json:"key"`
	Quantity      int64           `json:"quantity"`
	Total         decimal.Decimal `json:"total"`
	Orders        int64           `json:"orders,omitempty"`
	FirstPurchase *time.Time      `json:"first_purchase,omitempty"`
	LastPurchase  *time.Time      `json:"last_purchase,omitempty"`
}

type Result struct {
	GroupBy   GroupBy         `json:"group_by"`
	Range     *Range          `json:"range,omitempty"`
	Rows      []Row           `json:"rows"`
	Quantity  int64           `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	Synthetic bool            `json:"synthetic"`
}

func (r *Result) sum() {
	r.Quantity, r.Total = 0, decimal.Zero
	for _, row := range r.Rows {
		r.Quantity += row.Quantity
		r.Total = r.Total.Add(row.Total)
	}
}
