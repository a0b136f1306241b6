package report

import (
	"regexp"
	"strconv"
	"time"
)

// Parser reads Spanish free-text report requests.
type Parser struct {
	Buckets *Buckets
	Now     func() time.Time
}

func NewParser() *Parser {
	return &Parser{Buckets: DefaultBuckets(), Now: time.Now}
}

var (
	reDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	reLastN   = regexp.MustCompile(`\bultim[oa]s?\s+(\d{1,4})\s+dias?\b`)
	reMonth   = regexp.MustCompile(`\b(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)\b(?:\s+(?:de\s+|del\s+)?((?:19|20)\d{2})\b)?`)
	reYear    = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	rePDF     = regexp.MustCompile(`\bpdf\b`)
	reExcel   = regexp.MustCompile(`\b(?:excel|xlsx|xls)\b`)
	reCSV     = regexp.MustCompile(`\bcsv\b`)
	reCust    = regexp.MustCompile(`\bclientes?\b`)
	reCat     = regexp.MustCompile(`\bcategorias?\b`)
	reMonthly = regexp.MustCompile(`\b(?:mensual(?:es|mente)?|por mes(?:es)?|mes a mes)\b`)
)

var months = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October, "noviembre": time.November,
	"diciembre": time.December,
}

// namedRange resolves a relative range against today.
type namedRange struct {
	re      *regexp.Regexp
	label   string
	resolve func(today time.Time) (time.Time, time.Time)
}

func monday(t time.Time) time.Time {
	off := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -off)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func quarterStart(t time.Time) time.Time {
	m := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), m, 1, 0, 0, 0, 0, t.Location())
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

var namedRanges = []namedRange{
	{regexp.MustCompile(`\bhoy\b`), "hoy", func(t time.Time) (time.Time, time.Time) { return t, t }},
	{regexp.MustCompile(`\bayer\b`), "ayer", func(t time.Time) (time.Time, time.Time) {
		y := t.AddDate(0, 0, -1)
		return y, y
	}},
	{regexp.MustCompile(`\besta semana\b`), "esta semana", func(t time.Time) (time.Time, time.Time) {
		return monday(t), t
	}},
	{regexp.MustCompile(`\b(?:semana pasada|ultima semana)\b`), "semana pasada", func(t time.Time) (time.Time, time.Time) {
		start := monday(t).AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 6)
	}},
	{regexp.MustCompile(`\beste mes\b`), "este mes", func(t time.Time) (time.Time, time.Time) {
		return monthStart(t), t
	}},
	{regexp.MustCompile(`\b(?:mes pasado|ultimo mes)\b`), "mes pasado", func(t time.Time) (time.Time, time.Time) {
		cur := monthStart(t)
		return cur.AddDate(0, -1, 0), cur.AddDate(0, 0, -1)
	}},
	{regexp.MustCompile(`\beste trimestre\b`), "este trimestre", func(t time.Time) (time.Time, time.Time) {
		return quarterStart(t), t
	}},
	{regexp.MustCompile(`\b(?:ultimo trimestre|trimestre pasado)\b`), "trimestre pasado", func(t time.Time) (time.Time, time.Time) {
		cur := quarterStart(t)
		return cur.AddDate(0, -3, 0), cur.AddDate(0, 0, -1)
	}},
	{regexp.MustCompile(`\beste ano\b`), "este año", func(t time.Time) (time.Time, time.Time) {
		return yearStart(t), t
	}},
	{regexp.MustCompile(`\b(?:ano pasado|ultimo ano)\b`), "año pasado", func(t time.Time) (time.Time, time.Time) {
		cur := yearStart(t)
		return cur.AddDate(-1, 0, 0), cur.AddDate(0, 0, -1)
	}},
}

// Parse extracts format, grouping, date range and category hint from prompt.
// Date rules are tried in order and the first one that matches wins.
func (p *Parser) Parse(prompt string) Spec {
	s := Normalize(prompt)
	today := day(p.Now())
	spec := Spec{Prompt: prompt, Format: parseFormat(s), GroupBy: parseGroup(s)}

	for _, rule := range []func(string, time.Time) (*Range, string){
		explicitDates, relativeRange, lastNDays, monthName, bareYear,
	} {
		if r, label := rule(s, today); r != nil {
			spec.Range, spec.RangeLabel = r, label
			break
		}
	}
	if p.Buckets != nil {
		spec.Hint = p.Buckets.Match(s)
	}
	return spec
}

func parseFormat(s string) Format {
	switch {
	case rePDF.MatchString(s):
		return FormatPDF
	case reExcel.MatchString(s):
		return FormatExcel
	case reCSV.MatchString(s):
		return FormatCSV
	}
	return FormatScreen
}

func parseGroup(s string) GroupBy {
	switch {
	case reCust.MatchString(s):
		return GroupCustomer
	case reCat.MatchString(s):
		return GroupCategory
	case reMonthly.MatchString(s):
		return GroupMonth
	}
	return GroupProduct
}

func explicitDates(s string, today time.Time) (*Range, string) {
	var dates []time.Time
	for _, m := range reDate.FindAllStringSubmatch(s, -1) {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, today.Location())
		// time.Date normalizes 31/02 into March; such dates are rejected.
		if t.Day() != d || int(t.Month()) != mo {
			continue
		}
		dates = append(dates, t)
		if len(dates) == 2 {
			break
		}
	}
	switch len(dates) {
	case 0:
		return nil, ""
	case 1:
		r := newRange(dates[0], dates[0])
		return r, r.String()
	}
	from, to := dates[0], dates[1]
	if to.Before(from) {
		from, to = to, from
	}
	r := newRange(from, to)
	return r, r.String()
}

func relativeRange(s string, today time.Time) (*Range, string) {
	for _, nr := range namedRanges {
		if nr.re.MatchString(s) {
			return newRange(nr.resolve(today)), nr.label
		}
	}
	return nil, ""
}

func lastNDays(s string, today time.Time) (*Range, string) {
	m := reLastN.FindStringSubmatch(s)
	if m == nil {
		return nil, ""
	}
	n, _ := strconv.Atoi(m[1])
	return newRange(today.AddDate(0, 0, -n), today), "ultimos " + m[1] + " dias"
}

func monthName(s string, today time.Time) (*Range, string) {
	m := reMonth.FindStringSubmatch(s)
	if m == nil {
		return nil, ""
	}
	year := today.Year()
	if m[2] != "" {
		year, _ = strconv.Atoi(m[2])
	} else if y := reYear.FindString(s); y != "" {
		year, _ = strconv.Atoi(y)
	}
	start := time.Date(year, months[m[1]], 1, 0, 0, 0, 0, today.Location())
	return newRange(start, start.AddDate(0, 1, -1)), m[1] + " " + strconv.Itoa(year)
}

func bareYear(s string, today time.Time) (*Range, string) {
	m := reYear.FindString(s)
	if m == "" {
		return nil, ""
	}
	y, _ := strconv.Atoi(m)
	start := time.Date(y, time.January, 1, 0, 0, 0, 0, today.Location())
	return newRange(start, start.AddDate(1, 0, -1)), m
}
