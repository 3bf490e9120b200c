package labtests

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hmpv-lab-platform/internal/events"
	"github.com/wolfman30/hmpv-lab-platform/internal/latency"
	"github.com/wolfman30/hmpv-lab-platform/internal/observability/metrics"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

var labTracer = otel.Tracer("hmpv.internal.labtests")

var (
	ErrNotFound          = errors.New("labtests: not found")
	ErrInvalidInput      = errors.New("labtests: invalid input")
	ErrInvalidStatus     = errors.New("labtests: invalid status")
	ErrInvalidTransition = errors.New("labtests: invalid status transition")
	ErrReportExists      = errors.New("labtests: appointment already has a report")
)

const trackingPrefix = "HMPV-"

// EventSink receives domain events after each committed mutation.
type EventSink interface {
	Emit(ctx context.Context, evt events.CanonicalEvent)
}

// Store holds the appointment and report collections in memory and mirrors
// every mutation to the persistence adapter before it becomes visible.
type Store struct {
	adapter *Adapter
	logger  *logging.Logger
	metrics *metrics.LabMetrics
	sink    EventSink
	delays  latency.Profile
	resync  bool
	now     func() time.Time
	newID   func(prefix string) string

	mu           sync.RWMutex
	loaded       bool
	appointments []Appointment
	reports      []Report
}

type Option func(*Store)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.LabMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Store) { s.sink = sink }
}

func WithLatency(p latency.Profile) Option {
	return func(s *Store) { s.delays = p }
}

// WithResync reloads both collections from the backend before every
// operation, for deployments where several replicas share one backend.
func WithResync(enabled bool) Option {
	return func(s *Store) { s.resync = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(gen func(prefix string) string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func NewStore(adapter *Adapter, opts ...Option) *Store {
	if adapter == nil {
		panic("labtests: adapter required")
	}
	s := &Store{
		adapter: adapter,
		logger:  logging.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func(prefix string) string { return prefix + "-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the durable state, seeding defaults into an empty backend.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

func (s *Store) reload(ctx context.Context) error {
	snap, err := s.adapter.Load(ctx)
	if err != nil {
		return err
	}
	s.appointments = snap.Appointments
	s.reports = snap.Reports
	s.loaded = true
	return nil
}

// sync must be called with the write lock held.
func (s *Store) sync(ctx context.Context) error {
	if s.loaded && !s.resync {
		return nil
	}
	return s.reload(ctx)
}

// readLocked takes the write lock only when a reload is due.
func (s *Store) readLocked(ctx context.Context) (func(), error) {
	s.mu.RLock()
	if s.loaded && !s.resync {
		return s.mu.RUnlock, nil
	}
	s.mu.RUnlock()
	s.mu.Lock()
	if err := s.sync(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return s.mu.Unlock, nil
}

func (s *Store) instrument(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := labTracer.Start(ctx, "labtests."+op)
	span.SetAttributes(attrs...)
	start := time.Now()
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
		}
		s.metrics.ObserveOperation(op, time.Since(start).Seconds(), err)
		span.End()
	}
}

func (s *Store) emit(ctx context.Context, evt events.CanonicalEvent) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(ctx, evt)
}

// ListAvailableTests returns the static catalog.
func (s *Store) ListAvailableTests(ctx context.Context) (_ []Test, err error) {
	ctx, done := s.instrument(ctx, latency.OpListTests)
	defer done(&err)
	if err := s.delays.Wait(ctx, latency.OpListTests); err != nil {
		return nil, err
	}
	return Catalog(), nil
}

// ListAppointmentsForPatient returns the patient's appointments in booking order.
func (s *Store) ListAppointmentsForPatient(ctx context.Context, patientID string) (_ []Appointment, err error) {
	ctx, done := s.instrument(ctx, latency.OpListAppointments, attribute.String("hmpv.patient_id", patientID))
	defer done(&err)
	if err := s.delays.Wait(ctx, latency.OpListAppointments); err != nil {
		return nil, err
	}
	if strings.TrimSpace(patientID) == "" {
		return []Appointment{}, nil
	}
	unlock, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return lo.Filter(s.appointments, func(a Appointment, _ int) bool { return a.PatientID == patientID }), nil
}

// ListAllAppointments returns every appointment in booking order.
func (s *Store) ListAllAppointments(ctx context.Context) ([]Appointment, error) {
	return s.ListAppointmentsByStatus(ctx)
}

// ListAppointmentsByStatus returns appointments in any of the given statuses,
// or all of them when none are given.
func (s *Store) ListAppointmentsByStatus(ctx context.Context, statuses ...Status) (_ []Appointment, err error) {
	ctx, done := s.instrument(ctx, latency.OpListAppointments)
	defer done(&err)
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}
	if err := s.delays.Wait(ctx, latency.OpListAppointments); err != nil {
		return nil, err
	}
	unlock, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if len(statuses) == 0 {
		return slices.Clone(s.appointments), nil
	}
	return lo.Filter(s.appointments, func(a Appointment, _ int) bool {
		return slices.Contains(statuses, a.Status)
	}), nil
}

// GetAppointment returns one appointment by id.
func (s *Store) GetAppointment(ctx context.Context, id string) (_ *Appointment, err error) {
	ctx, done := s.instrument(ctx, "get_appointment", attribute.String("hmpv.appointment_id", id))
	defer done(&err)
	unlock, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	appt, ok := lo.Find(s.appointments, func(a Appointment) bool { return a.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	return &appt, nil
}

// BookAppointment creates a pending appointment with the next tracking id.
func (s *Store) BookAppointment(ctx context.Context, in BookingInput) (_ *Appointment, err error) {
	ctx, done := s.instrument(ctx, latency.OpBook,
		attribute.String("hmpv.patient_id", in.PatientID),
		attribute.String("hmpv.test_id", in.TestID),
	)
	defer done(&err)

	if err := in.validate(); err != nil {
		return nil, err
	}
	test, ok := findTest(in.TestID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown test %q", ErrInvalidInput, in.TestID)
	}
	if err := s.delays.Wait(ctx, latency.OpBook); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sync(ctx); err != nil {
		return nil, err
	}

	appt := Appointment{
		ID:           s.newID("app"),
		TestID:       test.ID,
		TestName:     test.Name,
		PatientID:    strings.TrimSpace(in.PatientID),
		PatientName:  strings.TrimSpace(in.PatientName),
		PatientEmail: strings.TrimSpace(in.PatientEmail),
		DateTime:     in.DateTime.UTC(),
		Address:      strings.TrimSpace(in.Address),
		Status:       StatusPending,
		TrackingID:   nextTrackingID(s.appointments),
		CreatedAt:    s.now(),
	}
	next := append(slices.Clone(s.appointments), appt)
	if err := s.adapter.Save(ctx, Snapshot{Appointments: next, Reports: s.reports}); err != nil {
		return nil, err
	}
	s.appointments = next

	s.metrics.ObserveBooking(appt.TestID)
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "tracking_id", appt.TrackingID, "test_id", appt.TestID)
	s.emit(ctx, events.AppointmentBookedV1{
		AppointmentID: appt.ID,
		TrackingID:    appt.TrackingID,
		TestID:        appt.TestID,
		TestName:      appt.TestName,
		PatientID:     appt.PatientID,
		PatientName:   appt.PatientName,
		PatientEmail:  appt.PatientEmail,
		ScheduledFor:  appt.DateTime,
		Address:       appt.Address,
		BookedAt:      appt.CreatedAt,
	})
	return &appt, nil
}

// nextTrackingID is 1000+count+1, bumped past the highest issued number so
// ids stay unique even if records were removed out of band.
func nextTrackingID(appts []Appointment) string {
	n := 1000 + len(appts) + 1
	for _, a := range appts {
		if v, ok := trackingNumber(a.TrackingID); ok && v >= n {
			n = v + 1
		}
	}
	return trackingPrefix + strconv.Itoa(n)
}

func trackingNumber(id string) (int, bool) {
	raw, ok := strings.CutPrefix(id, trackingPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// UpdateAppointmentStatus moves an appointment to status and, when assignedTo
// is non-empty, records the assigned technician.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status Status, assignedTo string) (_ *Appointment, err error) {
	ctx, done := s.instrument(ctx, latency.OpUpdateStatus,
		attribute.String("hmpv.appointment_id", id),
		attribute.String("hmpv.status", string(status)),
	)
	defer done(&err)

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.delays.Wait(ctx, latency.OpUpdateStatus); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sync(ctx); err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(s.appointments, func(a Appointment) bool { return a.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	current := s.appointments[idx]
	if !current.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	updated := current
	updated.Status = status
	if tech := strings.TrimSpace(assignedTo); tech != "" {
		updated.AssignedTo = tech
	}
	next := slices.Clone(s.appointments)
	next[idx] = updated
	if err := s.adapter.Save(ctx, Snapshot{Appointments: next, Reports: s.reports}); err != nil {
		return nil, err
	}
	s.appointments = next

	s.metrics.ObserveStatusChange(string(status))
	s.logger.Info("appointment status updated", "appointment_id", id, "from", current.Status, "to", status)
	s.emit(ctx, events.AppointmentStatusChangedV1{
		AppointmentID:  updated.ID,
		TrackingID:     updated.TrackingID,
		PatientID:      updated.PatientID,
		PatientName:    updated.PatientName,
		PatientEmail:   updated.PatientEmail,
		TestName:       updated.TestName,
		PreviousStatus: string(current.Status),
		Status:         string(updated.Status),
		AssignedTo:     updated.AssignedTo,
		ChangedAt:      s.now(),
	})
	return &updated, nil
}

// AddReport attaches a result report and completes its appointment. Both
// collections are written together; nothing is written on failure.
func (s *Store) AddReport(ctx context.Context, in ReportInput) (_ *Report, err error) {
	ctx, done := s.instrument(ctx, latency.OpAddReport, attribute.String("hmpv.appointment_id", in.AppointmentID))
	defer done(&err)

	if strings.TrimSpace(in.AppointmentID) == "" {
		return nil, fmt.Errorf("%w: missing appointmentId", ErrInvalidInput)
	}
	if strings.TrimSpace(in.ResultSummary) == "" {
		return nil, fmt.Errorf("%w: missing resultSummary", ErrInvalidInput)
	}
	if err := s.delays.Wait(ctx, latency.OpAddReport); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sync(ctx); err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(s.appointments, func(a Appointment) bool { return a.ID == in.AppointmentID })
	if idx < 0 {
		return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, in.AppointmentID)
	}
	appt := s.appointments[idx]
	if appt.ReportID != "" || slices.ContainsFunc(s.reports, func(r Report) bool { return r.AppointmentID == appt.ID }) {
		return nil, fmt.Errorf("%w: %s", ErrReportExists, appt.ID)
	}
	if !appt.Status.AcceptsReport() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCompleted)
	}
	if err := matchesAppointment(in, appt); err != nil {
		return nil, err
	}

	date := in.Date.UTC()
	if in.Date.IsZero() {
		date = s.now()
	}
	report := Report{
		ID:            s.newID("rep"),
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		TestID:        appt.TestID,
		TestName:      appt.TestName,
		ResultSummary: strings.TrimSpace(in.ResultSummary),
		FileURL:       strings.TrimSpace(in.FileURL),
		Date:          date,
	}
	previous := appt.Status
	appt.Status = StatusCompleted
	appt.ReportID = report.ID

	nextAppts := slices.Clone(s.appointments)
	nextAppts[idx] = appt
	nextReports := append(slices.Clone(s.reports), report)
	if err := s.adapter.Save(ctx, Snapshot{Appointments: nextAppts, Reports: nextReports}); err != nil {
		return nil, err
	}
	s.appointments = nextAppts
	s.reports = nextReports

	s.metrics.ObserveReport()
	s.metrics.ObserveStatusChange(string(StatusCompleted))
	s.logger.Info("report attached", "report_id", report.ID, "appointment_id", appt.ID, "from", previous)
	s.emit(ctx, events.ReportAttachedV1{
		ReportID:      report.ID,
		AppointmentID: appt.ID,
		TrackingID:    appt.TrackingID,
		PatientID:     appt.PatientID,
		PatientName:   appt.PatientName,
		PatientEmail:  appt.PatientEmail,
		TestName:      appt.TestName,
		HasFile:       report.FileURL != "",
		AttachedAt:    s.now(),
	})
	return &report, nil
}

func matchesAppointment(in ReportInput, appt Appointment) error {
	switch {
	case in.PatientID != "" && in.PatientID != appt.PatientID:
		return fmt.Errorf("%w: patientId does not match appointment", ErrInvalidInput)
	case in.TestID != "" && in.TestID != appt.TestID:
		return fmt.Errorf("%w: testId does not match appointment", ErrInvalidInput)
	case in.TestName != "" && in.TestName != appt.TestName:
		return fmt.Errorf("%w: testName does not match appointment", ErrInvalidInput)
	}
	return nil
}

// GetReportByID returns one report.
func (s *Store) GetReportByID(ctx context.Context, id string) (_ *Report, err error) {
	ctx, done := s.instrument(ctx, latency.OpGetReport, attribute.String("hmpv.report_id", id))
	defer done(&err)
	if err := s.delays.Wait(ctx, latency.OpGetReport); err != nil {
		return nil, err
	}
	unlock, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	report, ok := lo.Find(s.reports, func(r Report) bool { return r.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, id)
	}
	return &report, nil
}

// ListReportsForPatient returns the patient's reports in creation order.
func (s *Store) ListReportsForPatient(ctx context.Context, patientID string) (_ []Report, err error) {
	ctx, done := s.instrument(ctx, latency.OpListReports, attribute.String("hmpv.patient_id", patientID))
	defer done(&err)
	if err := s.delays.Wait(ctx, latency.OpListReports); err != nil {
		return nil, err
	}
	unlock, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return lo.Filter(s.reports, func(r Report, _ int) bool { return r.PatientID == patientID }), nil
}

// TrackByTrackingID returns the appointment with the given tracking id.
func (s *Store) TrackByTrackingID(ctx context.Context, trackingID string) (_ *Appointment, err error) {
	ctx, done := s.instrument(ctx, latency.OpTrack, attribute.String("hmpv.tracking_id", trackingID))
	defer done(&err)
	if err := s.delays.Wait(ctx, latency.OpTrack); err != nil {
		return nil, err
	}
	trackingID = strings.ToUpper(strings.TrimSpace(trackingID))
	unlock, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	appt, ok := lo.Find(s.appointments, func(a Appointment) bool { return a.TrackingID == trackingID })
	if !ok {
		return nil, fmt.Errorf("%w: tracking id %s", ErrNotFound, trackingID)
	}
	return &appt, nil
}
