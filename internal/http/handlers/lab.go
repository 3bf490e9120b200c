package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	"github.com/wolfman30/hmpv-lab-platform/internal/http/middleware"
	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/reportfiles"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// LabStore is the subset of *labtests.Store the HTTP layer uses.
type LabStore interface {
	ListAvailableTests(ctx context.Context) ([]labtests.Test, error)
	ListAppointmentsForPatient(ctx context.Context, patientID string) ([]labtests.Appointment, error)
	ListAppointmentsByStatus(ctx context.Context, statuses ...labtests.Status) ([]labtests.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*labtests.Appointment, error)
	BookAppointment(ctx context.Context, in labtests.BookingInput) (*labtests.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status labtests.Status, assignedTo string) (*labtests.Appointment, error)
	AddReport(ctx context.Context, in labtests.ReportInput) (*labtests.Report, error)
	GetReportByID(ctx context.Context, id string) (*labtests.Report, error)
	ListReportsForPatient(ctx context.Context, patientID string) ([]labtests.Report, error)
	TrackByTrackingID(ctx context.Context, trackingID string) (*labtests.Appointment, error)
}

// ReportFiles stores report attachments. Satisfied by *reportfiles.Store.
type ReportFiles interface {
	Enabled() bool
	Put(ctx context.Context, appointmentID, filename, contentType string, data []byte) (*reportfiles.File, error)
	Open(ctx context.Context, fileURL string) (io.ReadCloser, string, error)
}

// LabHandler serves the public catalog, tracking, and patient endpoints.
type LabHandler struct {
	store  LabStore
	files  ReportFiles
	logger *logging.Logger
}

func NewLabHandler(store LabStore, files ReportFiles, logger *logging.Logger) *LabHandler {
	if store == nil {
		panic("handlers: lab store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LabHandler{store: store, files: files, logger: logger}
}

// AppointmentView adds display fields to an appointment.
type AppointmentView struct {
	labtests.Appointment
	StatusLabel string `json:"statusLabel"`
}

// UnmarshalJSON keeps the label, which the embedded appointment's own
// decoder would otherwise swallow.
func (v *AppointmentView) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &v.Appointment); err != nil {
		return err
	}
	var display struct {
		StatusLabel string `json:"statusLabel"`
	}
	if err := json.Unmarshal(data, &display); err != nil {
		return err
	}
	v.StatusLabel = display.StatusLabel
	return nil
}

func viewOf(a labtests.Appointment) AppointmentView {
	return AppointmentView{Appointment: a, StatusLabel: a.Status.Label()}
}

func viewsOf(appts []labtests.Appointment) []AppointmentView {
	out := make([]AppointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, viewOf(a))
	}
	return out
}

// TrackResponse is returned by GET /track/{trackingID}.
type TrackResponse struct {
	Appointment AppointmentView         `json:"appointment"`
	Timeline    []labtests.TimelineStep `json:"timeline"`
}

// PatientAppointmentsResponse is returned by GET /appointments.
type PatientAppointmentsResponse struct {
	Appointments []AppointmentView `json:"appointments"`
	Summary      labtests.Summary  `json:"summary"`
}

// GET /tests
func (h *LabHandler) ListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListAvailableTests(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

// GET /track/{trackingID}
func (h *LabHandler) Track(w http.ResponseWriter, r *http.Request) {
	appt, err := h.store.TrackByTrackingID(r.Context(), chi.URLParam(r, "trackingID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TrackResponse{
		Appointment: viewOf(*appt),
		Timeline:    labtests.Timeline(*appt),
	})
}

// GET /appointments
func (h *LabHandler) ListMyAppointments(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	appts, err := h.store.ListAppointmentsForPatient(r.Context(), claims.Subject)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, PatientAppointmentsResponse{
		Appointments: viewsOf(appts),
		Summary:      labtests.Summarize(appts),
	})
}

// POST /appointments
// Body: {"testId","dateTime","address"}; patient identity comes from the session.
func (h *LabHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var in labtests.BookingInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	in.PatientID = claims.Subject
	in.PatientName = claims.Name
	in.PatientEmail = claims.Email

	appt, err := h.store.BookAppointment(r.Context(), in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*appt))
}

// GET /reports
func (h *LabHandler) ListMyReports(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	reports, err := h.store.ListReportsForPatient(r.Context(), claims.Subject)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// reportForCaller loads a report the caller may see, writing the error response if not.
func (h *LabHandler) reportForCaller(w http.ResponseWriter, r *http.Request) (*labtests.Report, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	report, err := h.store.GetReportByID(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return nil, false
	}
	if claims.Role != auth.RoleAdmin && report.PatientID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return report, true
}

// GET /reports/{reportID}
func (h *LabHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.reportForCaller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /reports/{reportID}/file
// Stored files are streamed; any other fileUrl is a redirect.
func (h *LabHandler) DownloadReportFile(w http.ResponseWriter, r *http.Request) {
	report, ok := h.reportForCaller(w, r)
	if !ok {
		return
	}
	if report.FileURL == "" {
		writeError(w, http.StatusNotFound, "report has no attached file")
		return
	}
	if !reportfiles.IsStored(report.FileURL) {
		http.Redirect(w, r, report.FileURL, http.StatusFound)
		return
	}
	if h.files == nil || !h.files.Enabled() {
		respondError(w, r, h.logger, reportfiles.ErrDisabled)
		return
	}
	body, contentType, err := h.files.Open(r.Context(), report.FileURL)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.ID+"-"+path.Base(report.FileURL)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("report download interrupted", "report_id", report.ID, "error", err)
	}
}
