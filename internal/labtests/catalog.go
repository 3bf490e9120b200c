package labtests

import "time"

var catalog = []Test{
	{
		ID:              "test-1",
		Name:            "HMPV PCR Test",
		Description:     "Detects Human Metapneumovirus genetic material using PCR technology",
		Price:           120,
		PreparationInfo: "No special preparation needed. Avoid food and drinks 30 minutes before the test.",
	},
	{
		ID:              "test-2",
		Name:            "HMPV Antibody Test",
		Description:     "Detects antibodies against Human Metapneumovirus",
		Price:           95,
		PreparationInfo: "No special preparation needed.",
	},
	{
		ID:              "test-3",
		Name:            "Respiratory Pathogen Panel",
		Description:     "Comprehensive test for multiple respiratory pathogens including HMPV",
		Price:           200,
		PreparationInfo: "No special preparation needed.",
	},
	{
		ID:              "test-4",
		Name:            "HMPV Rapid Antigen Test",
		Description:     "Quick test for HMPV antigens using nasal swab",
		Price:           75,
		PreparationInfo: "No eating, drinking, or smoking 30 minutes before the test.",
	},
}

// Catalog returns a copy of the orderable tests.
func Catalog() []Test {
	out := make([]Test, len(catalog))
	copy(out, catalog)
	return out
}

func findTest(id string) (Test, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Test{}, false
}

func seedTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

// DefaultAppointments are written to an empty backend on first load.
func DefaultAppointments() []Appointment {
	return []Appointment{
		{
			ID:           "app-1",
			TestID:       "test-1",
			TestName:     "HMPV PCR Test",
			PatientID:    "patient-123",
			PatientName:  "Test Patient",
			PatientEmail: "patient@test.com",
			DateTime:     seedTime(2025, time.May, 25, 10, 0),
			Address:      "123 Test St, Test City",
			Status:       StatusPending,
			TrackingID:   "HMPV-1001",
			CreatedAt:    seedTime(2025, time.May, 20, 8, 30),
		},
		{
			ID:           "app-2",
			TestID:       "test-3",
			TestName:     "Respiratory Pathogen Panel",
			PatientID:    "patient-123",
			PatientName:  "Test Patient",
			PatientEmail: "patient@test.com",
			DateTime:     seedTime(2025, time.May, 18, 14, 0),
			Address:      "123 Test St, Test City",
			Status:       StatusCompleted,
			AssignedTo:   "Lab Tech 1",
			TrackingID:   "HMPV-1002",
			ReportID:     "rep-1",
			CreatedAt:    seedTime(2025, time.May, 15, 11, 20),
		},
	}
}

// DefaultReports accompany DefaultAppointments.
func DefaultReports() []Report {
	return []Report{
		{
			ID:            "rep-1",
			AppointmentID: "app-2",
			PatientID:     "patient-123",
			TestID:        "test-3",
			TestName:      "Respiratory Pathogen Panel",
			ResultSummary: "Negative for HMPV. No respiratory pathogens detected.",
			FileURL:       "/sample-report.pdf",
			Date:          seedTime(2025, time.May, 19, 9, 15),
		},
	}
}
