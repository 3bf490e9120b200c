package events

import "time"

// AppointmentBookedV1 is emitted when a patient books a test.
type AppointmentBookedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	TrackingID    string    `json:"tracking_id"`
	TestID        string    `json:"test_id"`
	TestName      string    `json:"test_name"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	Address       string    `json:"address"`
	BookedAt      time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return "lab.appointment.booked.v1" }

func (e AppointmentBookedV1) AggregateID() string { return "appointment:" + e.AppointmentID }

// AppointmentStatusChangedV1 is emitted on every admin status update.
type AppointmentStatusChangedV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	TrackingID     string    `json:"tracking_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	PatientEmail   string    `json:"patient_email"`
	TestName       string    `json:"test_name"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	AssignedTo     string    `json:"assigned_to,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
}

func (AppointmentStatusChangedV1) EventType() string { return "lab.appointment.status_changed.v1" }

func (e AppointmentStatusChangedV1) AggregateID() string { return "appointment:" + e.AppointmentID }

// ReportAttachedV1 is emitted once a result report completes an appointment.
type ReportAttachedV1 struct {
	ReportID      string    `json:"report_id"`
	AppointmentID string    `json:"appointment_id"`
	TrackingID    string    `json:"tracking_id"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email"`
	TestName      string    `json:"test_name"`
	HasFile       bool      `json:"has_file"`
	AttachedAt    time.Time `json:"attached_at"`
}

func (ReportAttachedV1) EventType() string { return "lab.report.attached.v1" }

func (e ReportAttachedV1) AggregateID() string { return "appointment:" + e.AppointmentID }
