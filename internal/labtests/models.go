// Package labtests owns the diagnostic test catalog, patient appointments and
// result reports, and enforces the appointment status lifecycle.
package labtests

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Test is an orderable diagnostic test.
type Test struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	PreparationInfo string  `json:"preparationInfo,omitempty"`
}

// Appointment is a booked sample collection for one test.
type Appointment struct {
	ID           string    `json:"id"`
	TestID       string    `json:"testId"`
	TestName     string    `json:"testName"`
	PatientID    string    `json:"patientId"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	DateTime     time.Time `json:"dateTime"`
	Address      string    `json:"address"`
	Status       Status    `json:"status"`
	AssignedTo   string    `json:"assignedTo,omitempty"`
	TrackingID   string    `json:"trackingId"`
	ReportID     string    `json:"reportId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Report is the result document attached to a completed appointment.
type Report struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointmentId"`
	PatientID     string    `json:"patientId"`
	TestID        string    `json:"testId"`
	TestName      string    `json:"testName"`
	ResultSummary string    `json:"resultSummary"`
	FileURL       string    `json:"fileUrl,omitempty"`
	Date          time.Time `json:"date"`
}

// BookingInput carries the patient-supplied fields of a new appointment.
type BookingInput struct {
	TestID       string    `json:"testId"`
	PatientID    string    `json:"patientId"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	DateTime     time.Time `json:"dateTime"`
	Address      string    `json:"address"`
}

func (in BookingInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.TestID) == "" {
		missing = append(missing, "testId")
	}
	if strings.TrimSpace(in.PatientID) == "" {
		missing = append(missing, "patientId")
	}
	if strings.TrimSpace(in.PatientName) == "" {
		missing = append(missing, "patientName")
	}
	if strings.TrimSpace(in.PatientEmail) == "" {
		missing = append(missing, "patientEmail")
	}
	if in.DateTime.IsZero() {
		missing = append(missing, "dateTime")
	}
	if strings.TrimSpace(in.Address) == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// ReportInput carries the admin-supplied fields of a result report. Patient
// and test fields are optional; when set they must match the appointment.
type ReportInput struct {
	AppointmentID string    `json:"appointmentId"`
	PatientID     string    `json:"patientId,omitempty"`
	TestID        string    `json:"testId,omitempty"`
	TestName      string    `json:"testName,omitempty"`
	ResultSummary string    `json:"resultSummary"`
	FileURL       string    `json:"fileUrl,omitempty"`
	Date          time.Time `json:"date,omitempty"`
}

// Records written by older clients carry zone-less local timestamps
// ("2025-05-25T10:00:00"); they are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("labtests: unrecognised timestamp %q", raw)
}

func (a *Appointment) UnmarshalJSON(data []byte) error {
	type plain Appointment
	aux := struct {
		*plain
		DateTime  string `json:"dateTime"`
		CreatedAt string `json:"createdAt"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if a.DateTime, err = parseTime(aux.DateTime); err != nil {
		return err
	}
	if a.CreatedAt, err = parseTime(aux.CreatedAt); err != nil {
		return err
	}
	return nil
}

func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	aux := struct {
		*plain
		Date string `json:"date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	r.Date, err = parseTime(aux.Date)
	return err
}

func (in *BookingInput) UnmarshalJSON(data []byte) error {
	type plain BookingInput
	aux := struct {
		*plain
		DateTime string `json:"dateTime"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if in.DateTime, err = parseTime(aux.DateTime); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
