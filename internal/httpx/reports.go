package httpx

import (
	"net/http"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/report"
)

func (a *API) listReports(w http.ResponseWriter, r *http.Request, kind report.Kind) {
	list, err := a.Archive.List(r.Context(), kind, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []report.Record{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) download(w http.ResponseWriter, r *http.Request, kind report.Kind) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := a.Archive.Get(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, rec.FileName, rec.ContentType, rec.Content)
}

func (a *API) listSalesReports(w http.ResponseWriter, r *http.Request) {
	a.listReports(w, r, report.KindSales)
}

func (a *API) listAuditReports(w http.ResponseWriter, r *http.Request) {
	a.listReports(w, r, report.KindAudit)
}

func (a *API) downloadSalesReport(w http.ResponseWriter, r *http.Request) {
	a.download(w, r, report.KindSales)
}

func (a *API) downloadAuditReport(w http.ResponseWriter, r *http.Request) {
	a.download(w, r, report.KindAudit)
}

func (a *API) generateSalesReport(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req report.SalesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := a.Reports.Sales(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if out.Record != nil {
		code = http.StatusCreated
	}
	writeJSON(w, code, out)
}

// exportSalesCSV generates, archives and returns a CSV in one call.
func (a *API) exportSalesCSV(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req report.SalesRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	req.Format = report.FormatCSV
	out, err := a.Reports.Sales(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out.Record == nil {
		writeError(w, r, apperr.Validation("nothing to export"))
		return
	}
	writeFile(w, out.Record.FileName, out.Record.ContentType, out.Record.Content)
}

type promptReq struct {
	Prompt string `json:"prompt" validate:"required,max=500"`
}

func (a *API) promptReport(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req promptReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := a.Reports.FromPrompt(r.Context(), uid, req.Prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if out.Record != nil {
		code = http.StatusCreated
	}
	writeJSON(w, code, out)
}

func (a *API) generateAuditReport(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req report.AuditRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := a.Reports.AuditReport(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if out.Record != nil {
		code = http.StatusCreated
	}
	writeJSON(w, code, out)
}
