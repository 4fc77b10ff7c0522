package server

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/reg2progress/internal/export"
	"github.com/alfredjeanlab/reg2progress/internal/model"
	"github.com/alfredjeanlab/reg2progress/internal/stats"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExport handles GET /v1/export?start=YYYY-MM-DD&end=YYYY-MM-DD.
// Nothing is written to the response until the workbook is complete.
func (s *ClinicServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := export.ParseRange(q.Get("start"), q.Get("end"), s.loc)
	if err != nil {
		writeErr(w, err)
		return
	}
	report, err := export.Load(r.Context(), s.store, rng)
	if err != nil {
		writeErr(w, err)
		return
	}

	var buf bytes.Buffer
	if err := s.xlsx.Write(&buf, report.Sheets); err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Meeting-Count", strconv.Itoa(report.Meetings))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleStats handles GET /v1/stats.
func (s *ClinicServer) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := s.store.ListIssues(ctx, model.IssueFilter{})
	if err != nil {
		writeErr(w, err)
		return
	}
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Compute(all, branches, s.now().In(s.loc)))
}

// handleListEvents handles GET /v1/events?subject=.
func (s *ClinicServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeErr(w, inputError("subject is required"))
		return
	}
	evts, err := s.store.GetEvents(r.Context(), subject)
	if err != nil {
		writeErr(w, err)
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}
