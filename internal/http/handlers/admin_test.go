package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"

	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
	"github.com/wolfman30/hmpv-lab-platform/internal/observability/metrics"
)

func adminRequest(method, target string, body any, params ...string) *http.Request {
	return withClaims(withURLParams(newRequest(method, target, body), params...), adminClaims())
}

func TestAdminHandler_UpdateStatus(t *testing.T) {
	h := NewAdminHandler(newLabStore(t), nil, nil, nil)

	cases := []struct {
		name string
		id   string
		body map[string]string
		want int
	}{
		{"collect sample", "app-1", map[string]string{"status": "sample_collected", "assignedTo": "Nurse Joy"}, http.StatusOK},
		{"unknown status", "app-1", map[string]string{"status": "lost"}, http.StatusBadRequest},
		{"completed is terminal", "app-2", map[string]string{"status": "processing"}, http.StatusConflict},
		{"unknown appointment", "app-404", map[string]string{"status": "cancelled"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.UpdateStatus(rec, adminRequest(http.MethodPatch, "/admin/appointments/"+tc.id+"/status", tc.body, "appointmentID", tc.id))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAdminHandler_UpdateStatusReturnsAssignee(t *testing.T) {
	h := NewAdminHandler(newLabStore(t), nil, nil, nil)
	rec := httptest.NewRecorder()
	body := map[string]string{"status": "sample_collected", "assignedTo": "Nurse Joy"}
	h.UpdateStatus(rec, adminRequest(http.MethodPatch, "/admin/appointments/app-1/status", body, "appointmentID", "app-1"))

	var appt AppointmentView
	decodeBody(t, rec, &appt)
	if appt.Status != labtests.StatusSampleCollected || appt.AssignedTo != "Nurse Joy" {
		t.Fatalf("unexpected appointment %+v", appt.Appointment)
	}
	if appt.StatusLabel != labtests.StatusSampleCollected.Label() {
		t.Fatalf("unexpected label %q", appt.StatusLabel)
	}
}

func TestAdminHandler_ListAppointmentsFiltersByStatus(t *testing.T) {
	h := NewAdminHandler(newLabStore(t), nil, nil, nil)

	cases := []struct {
		query string
		want  int
		code  int
	}{
		{"", 2, http.StatusOK},
		{"?status=completed", 1, http.StatusOK},
		{"?status=pending,completed", 2, http.StatusOK},
		{"?status=processing", 0, http.StatusOK},
		{"?status=bogus", 0, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ListAppointments(rec, adminRequest(http.MethodGet, "/admin/appointments"+tc.query, nil))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.code != http.StatusOK {
				return
			}
			var body struct {
				Appointments []AppointmentView `json:"appointments"`
			}
			decodeBody(t, rec, &body)
			if len(body.Appointments) != tc.want {
				t.Fatalf("expected %d appointments, got %d", tc.want, len(body.Appointments))
			}
		})
	}
}

func TestAdminHandler_AttachReportJSON(t *testing.T) {
	ctx := context.Background()
	store := newLabStore(t)
	if _, err := store.UpdateAppointmentStatus(ctx, "app-1", labtests.StatusSampleCollected, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	h := NewAdminHandler(store, nil, nil, nil)

	body := map[string]string{"resultSummary": "Negative for HMPV", "patientId": "patient-123"}
	rec := httptest.NewRecorder()
	h.AttachReport(rec, adminRequest(http.MethodPost, "/admin/appointments/app-1/report", body, "appointmentID", "app-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var report labtests.Report
	decodeBody(t, rec, &report)
	if report.AppointmentID != "app-1" || report.TestID != "test-1" {
		t.Fatalf("unexpected report %+v", report)
	}

	appt, err := store.GetAppointment(ctx, "app-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if appt.Status != labtests.StatusCompleted || appt.ReportID != report.ID {
		t.Fatalf("appointment not completed: %+v", appt)
	}

	rec = httptest.NewRecorder()
	h.AttachReport(rec, adminRequest(http.MethodPost, "/admin/appointments/app-1/report", body, "appointmentID", "app-1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second report, got %d", rec.Code)
	}
}

func TestAdminHandler_AttachReportPendingCompletes(t *testing.T) {
	store := newLabStore(t)
	h := NewAdminHandler(store, nil, nil, nil)
	rec := httptest.NewRecorder()
	body := map[string]string{"resultSummary": "Negative"}
	h.AttachReport(rec, adminRequest(http.MethodPost, "/admin/appointments/app-1/report", body, "appointmentID", "app-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	appt, err := store.GetAppointment(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if appt.Status != labtests.StatusCompleted || appt.ReportID == "" {
		t.Fatalf("appointment not completed: %+v", appt)
	}
}

func TestAdminHandler_AttachReportCancelledIsConflict(t *testing.T) {
	store := newLabStore(t)
	if _, err := store.UpdateAppointmentStatus(context.Background(), "app-1", labtests.StatusCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	h := NewAdminHandler(store, nil, nil, nil)
	rec := httptest.NewRecorder()
	body := map[string]string{"resultSummary": "Negative"}
	h.AttachReport(rec, adminRequest(http.MethodPost, "/admin/appointments/app-1/report", body, "appointmentID", "app-1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func multipartReport(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestAdminHandler_AttachReportMultipartUploadsFile(t *testing.T) {
	ctx := context.Background()
	store := newLabStore(t)
	if _, err := store.UpdateAppointmentStatus(ctx, "app-1", labtests.StatusSampleCollected, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	files := newMemoryFiles()
	h := NewAdminHandler(store, files, nil, nil)

	body, contentType := multipartReport(t, map[string]string{"resultSummary": "Positive for HMPV"}, "result.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/admin/appointments/app-1/report", body)
	req.Header.Set("Content-Type", contentType)
	req = withClaims(withURLParams(req, "appointmentID", "app-1"), adminClaims())

	rec := httptest.NewRecorder()
	h.AttachReport(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var report labtests.Report
	decodeBody(t, rec, &report)
	if report.FileURL != "s3://test-bucket/reports/app-1/result.pdf" {
		t.Fatalf("unexpected file url %q", report.FileURL)
	}
	if files.count() != 1 {
		t.Fatalf("expected 1 stored file, got %d", files.count())
	}
}

func TestAdminHandler_AttachReportMultipartRejectsOversizedFile(t *testing.T) {
	cases := []struct {
		name string
		size int
	}{
		{"just over the file limit", maxReportUpload + 4<<10},
		{"over the request limit", maxReportUpload + maxMultipartOverhead + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newLabStore(t)
			files := newMemoryFiles()
			h := NewAdminHandler(store, files, nil, nil)

			body, contentType := multipartReport(t, map[string]string{"resultSummary": "Negative"}, "result.pdf", bytes.Repeat([]byte("x"), tc.size))
			req := httptest.NewRequest(http.MethodPost, "/admin/appointments/app-1/report", body)
			req.Header.Set("Content-Type", contentType)
			req = withClaims(withURLParams(req, "appointmentID", "app-1"), adminClaims())

			rec := httptest.NewRecorder()
			h.AttachReport(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if files.count() != 0 {
				t.Fatalf("oversized file must not be stored")
			}
			appt, err := store.GetAppointment(context.Background(), "app-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if appt.ReportID != "" || appt.Status != labtests.StatusPending {
				t.Fatalf("appointment changed: %+v", appt)
			}
		})
	}
}

func TestAdminHandler_AttachReportMultipartUnknownAppointment(t *testing.T) {
	files := newMemoryFiles()
	h := NewAdminHandler(newLabStore(t), files, nil, nil)

	body, contentType := multipartReport(t, map[string]string{"resultSummary": "Negative"}, "result.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/admin/appointments/app-404/report", body)
	req.Header.Set("Content-Type", contentType)
	req = withClaims(withURLParams(req, "appointmentID", "app-404"), adminClaims())

	rec := httptest.NewRecorder()
	h.AttachReport(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if files.count() != 0 {
		t.Fatalf("no file should be uploaded for an unknown appointment")
	}
}

func TestAdminHandler_AttachReportMultipartWithoutStorage(t *testing.T) {
	ctx := context.Background()
	store := newLabStore(t)
	if _, err := store.UpdateAppointmentStatus(ctx, "app-1", labtests.StatusSampleCollected, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	h := NewAdminHandler(store, nil, nil, nil)

	body, contentType := multipartReport(t, map[string]string{"resultSummary": "Negative"}, "result.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/admin/appointments/app-1/report", body)
	req.Header.Set("Content-Type", contentType)
	req = withClaims(withURLParams(req, "appointmentID", "app-1"), adminClaims())

	rec := httptest.NewRecorder()
	h.AttachReport(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAdminHandler_Dashboard(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewLabMetrics(reg)
	store := newLabStore(t, labtests.WithMetrics(m))
	if _, err := store.ListAvailableTests(context.Background()); err != nil {
		t.Fatalf("list tests: %v", err)
	}
	h := NewAdminHandler(store, nil, reg, nil)

	rec := httptest.NewRecorder()
	h.Dashboard(rec, adminRequest(http.MethodGet, "/admin/dashboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var dash Dashboard
	decodeBody(t, rec, &dash)
	if dash.Summary.Total != 2 {
		t.Fatalf("expected total 2, got %d", dash.Summary.Total)
	}
	if dash.ByStatus[labtests.StatusPending] != 1 || dash.ByStatus[labtests.StatusProcessing] != 0 {
		t.Fatalf("unexpected status counts %+v", dash.ByStatus)
	}
	if len(dash.Recent) != 2 {
		t.Fatalf("expected 2 recent appointments, got %d", len(dash.Recent))
	}
	if len(dash.StoreLatency) == 0 {
		t.Fatalf("expected store latency snapshot")
	}
	for _, op := range dash.StoreLatency {
		if op.Operation == "" || op.Count < 1 {
			t.Fatalf("unexpected latency entry %+v", op)
		}
	}
}

func TestAdminHandler_ExportAppointments(t *testing.T) {
	h := NewAdminHandler(newLabStore(t), nil, nil, nil)
	rec := httptest.NewRecorder()
	h.ExportAppointments(rec, adminRequest(http.MethodGet, "/admin/appointments/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(appointmentsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Tracking ID" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	tracking := map[string]bool{rows[1][0]: true, rows[2][0]: true}
	if !tracking["HMPV-1001"] || !tracking["HMPV-1002"] {
		t.Fatalf("unexpected tracking ids %v", tracking)
	}
}
