package labtests

import "github.com/samber/lo"

// Summary groups appointments the way the patient and admin dashboards do.
type Summary struct {
	Total      int `json:"total"`
	Upcoming   int `json:"upcoming"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

func Summarize(appts []Appointment) Summary {
	return Summary{
		Total:    len(appts),
		Upcoming: lo.CountBy(appts, func(a Appointment) bool { return a.Status == StatusPending }),
		InProgress: lo.CountBy(appts, func(a Appointment) bool {
			return a.Status == StatusSampleCollected || a.Status == StatusProcessing
		}),
		Completed: lo.CountBy(appts, func(a Appointment) bool { return a.Status == StatusCompleted }),
		Cancelled: lo.CountBy(appts, func(a Appointment) bool { return a.Status == StatusCancelled }),
	}
}

// TimelineStep is one stage of the patient-facing tracking view.
type TimelineStep struct {
	Status    Status `json:"status"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
	Active    bool   `json:"active"`
}

var timelineSteps = []TimelineStep{
	{Status: StatusPending, Label: "Appointment Confirmed"},
	{Status: StatusSampleCollected, Label: "Sample Collected"},
	{Status: StatusProcessing, Label: "Processing in Lab"},
	{Status: StatusCompleted, Label: "Results Ready"},
}

// Timeline marks every step up to the appointment's current one as completed.
// Cancelled appointments stay on the first step.
func Timeline(appt Appointment) []TimelineStep {
	current := 0
	for i, step := range timelineSteps {
		if step.Status == appt.Status {
			current = i
		}
	}
	return lo.Map(timelineSteps, func(step TimelineStep, i int) TimelineStep {
		step.Completed = i <= current
		step.Active = i == current
		return step
	})
}
