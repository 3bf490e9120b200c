package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/reportfiles"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

const (
	maxReportUpload = 10 << 20
	// form fields and part headers on top of the file itself
	maxMultipartOverhead = 1 << 20
)

// AdminHandler serves lab staff endpoints.
type AdminHandler struct {
	store    LabStore
	files    ReportFiles
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	now      func() time.Time
}

func NewAdminHandler(store LabStore, files ReportFiles, gatherer prometheus.Gatherer, logger *logging.Logger) *AdminHandler {
	if store == nil {
		panic("handlers: lab store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		store:    store,
		files:    files,
		gatherer: gatherer,
		logger:   logger,
		now:      time.Now,
	}
}

// statusFilter parses ?status=a,b (repeatable). Empty means all.
func statusFilter(r *http.Request) ([]labtests.Status, error) {
	var out []labtests.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := labtests.ParseStatus(part)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// GET /admin/appointments?status=
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	statuses, err := statusFilter(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	appts, err := h.store.ListAppointmentsByStatus(r.Context(), statuses...)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": viewsOf(appts),
		"summary":      labtests.Summarize(appts),
	})
}

// GET /admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	appts, err := h.store.ListAppointmentsByStatus(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, buildDashboard(appts, h.gatherer, h.now()))
}

type statusUpdateRequest struct {
	Status     string `json:"status"`
	AssignedTo string `json:"assignedTo"`
}

// PATCH /admin/appointments/{appointmentID}/status
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	status, err := labtests.ParseStatus(req.Status)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	appt, err := h.store.UpdateAppointmentStatus(r.Context(), chi.URLParam(r, "appointmentID"), status, req.AssignedTo)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*appt))
}

// POST /admin/appointments/{appointmentID}/report
// Accepts a JSON ReportInput, or multipart/form-data with a "file" part that
// is uploaded to report storage before the report is attached.
func (h *AdminHandler) AttachReport(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")

	var (
		in  labtests.ReportInput
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, err = h.reportFromMultipart(w, r, appointmentID)
	} else {
		err = decodeJSON(r, &in)
	}
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	in.AppointmentID = appointmentID

	report, err := h.store.AddReport(r.Context(), in)
	if err != nil {
		if reportfiles.IsStored(in.FileURL) {
			h.logger.Warn("report rejected after upload; file orphaned",
				"appointment_id", appointmentID, "file_url", in.FileURL, "error", err)
		}
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *AdminHandler) reportFromMultipart(w http.ResponseWriter, r *http.Request, appointmentID string) (labtests.ReportInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportUpload+maxMultipartOverhead)
	if err := r.ParseMultipartForm(maxReportUpload); err != nil {
		return labtests.ReportInput{}, fmt.Errorf("%w: %v", labtests.ErrInvalidInput, err)
	}
	in := labtests.ReportInput{
		PatientID:     r.FormValue("patientId"),
		TestID:        r.FormValue("testId"),
		TestName:      r.FormValue("testName"),
		ResultSummary: r.FormValue("resultSummary"),
		FileURL:       r.FormValue("fileUrl"),
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, fmt.Errorf("%w: %v", labtests.ErrInvalidInput, err)
	}
	defer file.Close()
	if header.Size > maxReportUpload {
		return in, fmt.Errorf("%w: report file exceeds %d bytes", labtests.ErrInvalidInput, maxReportUpload)
	}

	if h.files == nil || !h.files.Enabled() {
		return in, reportfiles.ErrDisabled
	}
	// Reject before uploading so unknown appointments do not leave files behind.
	if _, err := h.store.GetAppointment(r.Context(), appointmentID); err != nil {
		return in, err
	}
	data, err := io.ReadAll(io.LimitReader(file, maxReportUpload+1))
	if err != nil {
		return in, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxReportUpload {
		return in, fmt.Errorf("%w: report file exceeds %d bytes", labtests.ErrInvalidInput, maxReportUpload)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	stored, err := h.files.Put(r.Context(), appointmentID, header.Filename, contentType, data)
	if err != nil {
		return in, err
	}
	in.FileURL = stored.URL
	return in, nil
}

// GET /admin/appointments/export?status=
func (h *AdminHandler) ExportAppointments(w http.ResponseWriter, r *http.Request) {
	statuses, err := statusFilter(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	appts, err := h.store.ListAppointmentsByStatus(r.Context(), statuses...)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	data, err := exportAppointments(appts)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	filename := fmt.Sprintf("appointments-%s.xlsx", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
