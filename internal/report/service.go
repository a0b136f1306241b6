package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/audit"
)

// AuditSource lists audit entries.
type AuditSource interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type Service struct {
	Source    Source
	Audit     AuditSource
	Archive   Archive
	Parser    *Parser
	Renderers map[Format]Renderer
	Noise     func() float64 // uniform in [0,1), safe for concurrent use
	Now       func() time.Time
}

func NewService(src Source, au AuditSource, ar Archive) *Service {
	return &Service{
		Source:    src,
		Audit:     au,
		Archive:   ar,
		Parser:    NewParser(),
		Renderers: Renderers(),
		Noise:     rand.Float64,
		Now:       time.Now,
	}
}

// SalesRequest is the structured form of a sales report.
type SalesRequest struct {
	From        string   `json:"from,omitempty"` // 2006-01-02
	To          string   `json:"to,omitempty"`
	GroupBy     GroupBy  `json:"group_by,omitempty"`
	Format      Format   `json:"format,omitempty"`
	CategoryIDs []int64  `json:"category_ids,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Output is a sales report. Record is set when a file was rendered.
type Output struct {
	Spec   *Spec   `json:"spec,omitempty"`
	Result Result  `json:"result"`
	Record *Record `json:"report,omitempty"`
}

// FromPrompt answers a free-text request.
func (s *Service) FromPrompt(ctx context.Context, actor int64, prompt string) (Output, error) {
	if prompt == "" {
		return Output{}, apperr.Validation("prompt is required")
	}
	spec := s.Parser.Parse(prompt)
	q := Query{GroupBy: spec.GroupBy}
	if spec.Range != nil {
		from, to := spec.Range.Bounds()
		q.From, q.To = &from, &to
	}
	if spec.Hint != nil {
		q.CategoryNames = []string{spec.Hint.Category}
		q.Keywords = []string{spec.Hint.Keyword}
	}
	res, err := s.aggregate(ctx, q, spec.Range)
	if err != nil {
		return Output{}, err
	}
	out := Output{Spec: &spec, Result: res}
	if spec.Format == FormatScreen {
		return out, nil
	}
	out.Record, err = s.archive(ctx, actor, KindSales, spec.Format, spec, salesDocument(res, spec.RangeLabel))
	return out, err
}

// Sales answers a structured request.
func (s *Service) Sales(ctx context.Context, actor int64, req SalesRequest) (Output, error) {
	if req.GroupBy == "" {
		req.GroupBy = GroupProduct
	}
	if req.Format == "" {
		req.Format = FormatScreen
	}
	if !req.GroupBy.Valid() {
		return Output{}, apperr.Validation("unknown group_by %q", req.GroupBy)
	}
	if !req.Format.Valid() {
		return Output{}, apperr.Validation("unknown format %q", req.Format)
	}
	rng, err := parseRange(req.From, req.To, s.Now().Location())
	if err != nil {
		return Output{}, err
	}
	q := Query{GroupBy: req.GroupBy, CategoryIDs: req.CategoryIDs}
	for _, k := range req.Keywords {
		if k = Normalize(k); k != "" {
			q.Keywords = append(q.Keywords, k)
		}
	}
	label := ""
	if rng != nil {
		from, to := rng.Bounds()
		q.From, q.To = &from, &to
		label = rng.String()
	}
	res, err := s.aggregate(ctx, q, rng)
	if err != nil {
		return Output{}, err
	}
	out := Output{Result: res}
	if req.Format == FormatScreen {
		return out, nil
	}
	out.Record, err = s.archive(ctx, actor, KindSales, req.Format, req, salesDocument(res, label))
	return out, err
}

func parseRange(from, to string, loc *time.Location) (*Range, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, apperr.Validation("from and to go together")
	}
	f, err := time.ParseInLocation(dateLayout, from, loc)
	if err != nil {
		return nil, apperr.Validation("from: expected YYYY-MM-DD")
	}
	t, err := time.ParseInLocation(dateLayout, to, loc)
	if err != nil {
		return nil, apperr.Validation("to: expected YYYY-MM-DD")
	}
	if t.Before(f) {
		return nil, apperr.Validation("to is before from")
	}
	return newRange(f, t), nil
}

// aggregate queries the source; with no rows and no explicit range it falls
// back to a synthetic series.
func (s *Service) aggregate(ctx context.Context, q Query, rng *Range) (Result, error) {
	rows, err := s.Source.Sales(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 && rng == nil {
		slog.InfoContext(ctx, "sales report empty, returning synthetic series", "group_by", q.GroupBy)
		return synthesize(s.Now(), s.Noise), nil
	}
	res := Result{GroupBy: q.GroupBy, Range: rng, Rows: rows}
	if res.Rows == nil {
		res.Rows = []Row{}
	}
	res.sum()
	return res, nil
}

// AuditRequest filters an audit report.
type AuditRequest struct {
	From      string       `json:"from,omitempty"`
	To        string       `json:"to,omitempty"`
	Action    audit.Action `json:"action,omitempty"`
	ModelName string       `json:"model_name,omitempty"`
	UserID    *int64       `json:"user_id,omitempty"`
	Format    Format       `json:"format,omitempty"`
}

type AuditOutput struct {
	Entries []audit.Entry `json:"entries"`
	Record  *Record       `json:"report,omitempty"`
}

func (s *Service) AuditReport(ctx context.Context, actor int64, req AuditRequest) (AuditOutput, error) {
	if req.Format == "" {
		req.Format = FormatScreen
	}
	if !req.Format.Valid() {
		return AuditOutput{}, apperr.Validation("unknown format %q", req.Format)
	}
	rng, err := parseRange(req.From, req.To, s.Now().Location())
	if err != nil {
		return AuditOutput{}, err
	}
	f := audit.Filter{Action: req.Action, ModelName: req.ModelName, UserID: req.UserID, Limit: 1000}
	if rng != nil {
		from, to := rng.Bounds()
		f.From, f.To = &from, &to
	}
	entries, err := s.Audit.List(ctx, f)
	if err != nil {
		return AuditOutput{}, err
	}
	out := AuditOutput{Entries: entries}
	if out.Entries == nil {
		out.Entries = []audit.Entry{}
	}
	if req.Format == FormatScreen {
		return out, nil
	}
	label := "Todo el historial"
	if rng != nil {
		label = rng.String()
	}
	out.Record, err = s.archive(ctx, actor, KindAudit, req.Format, req, auditDocument(entries, label))
	return out, err
}

func (s *Service) archive(ctx context.Context, actor int64, kind Kind, f Format, filters any, doc Document) (*Record, error) {
	r, ok := s.Renderers[f]
	if !ok {
		return nil, apperr.Validation("format %q cannot be rendered", f)
	}
	var buf bytes.Buffer
	if err := r.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render %s: %w", f, err)
	}
	raw, err := json.Marshal(filters)
	if err != nil {
		return nil, err
	}
	prefix := "ventas"
	if kind == KindAudit {
		prefix = "auditoria"
	}
	rec := &Record{
		Kind:        kind,
		CreatedBy:   &actor,
		Filters:     raw,
		Format:      f,
		FileName:    fmt.Sprintf("%s_%s.%s", prefix, s.Now().Format("20060102_150405"), r.Ext()),
		ContentType: r.ContentType(),
		Content:     buf.Bytes(),
	}
	if err := s.Archive.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

var groupLabels = map[GroupBy]string{
	GroupProduct:  "Producto",
	GroupCustomer: "Cliente",
	GroupCategory: "Categoría",
	GroupMonth:    "Mes",
}

func salesDocument(res Result, rangeLabel string) Document {
	d := Document{Title: "Reporte de ventas"}
	switch {
	case res.Synthetic:
		d.Subtitle = "Datos sintéticos: no hay ventas registradas"
	case rangeLabel != "":
		d.Subtitle = "Periodo: " + rangeLabel
	default:
		d.Subtitle = "Periodo: todo el historial"
	}
	d.Columns = []string{groupLabels[res.GroupBy], "Cantidad", "Total"}
	if res.GroupBy == GroupCustomer {
		d.Columns = append(d.Columns, "Pedidos", "Primera compra", "Última compra")
	}
	for _, r := range res.Rows {
		line := []string{r.Key, strconv.FormatInt(r.Quantity, 10), r.Total.StringFixed(2)}
		if res.GroupBy == GroupCustomer {
			line = append(line, strconv.FormatInt(r.Orders, 10), fmtDate(r.FirstPurchase), fmtDate(r.LastPurchase))
		}
		d.Rows = append(d.Rows, line)
	}
	total := []string{"TOTAL", strconv.FormatInt(res.Quantity, 10), res.Total.StringFixed(2)}
	if res.GroupBy == GroupCustomer {
		total = append(total, "", "", "")
	}
	d.Rows = append(d.Rows, total)
	return d
}

func auditDocument(entries []audit.Entry, rangeLabel string) Document {
	d := Document{
		Title:    "Reporte de auditoría",
		Subtitle: "Periodo: " + rangeLabel,
		Columns:  []string{"Fecha", "Usuario", "Acción", "Modelo", "Objeto"},
	}
	for _, e := range entries {
		user := "-"
		if e.UserID != nil {
			user = strconv.FormatInt(*e.UserID, 10)
		}
		d.Rows = append(d.Rows, []string{
			e.CreatedAt.Format("2006-01-02 15:04:05"), user, string(e.Action), e.ModelName, e.ObjectID,
		})
	}
	return d
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
