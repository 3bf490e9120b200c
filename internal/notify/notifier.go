package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/hmpv-lab-platform/internal/events"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// Notifier turns appointment events into patient emails. It plugs into the
// event dispatcher as a publisher.
type Notifier struct {
	email   EmailSender
	baseURL string
	logger  *logging.Logger
}

func NewNotifier(email EmailSender, baseURL string, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Notifier{
		email:   email,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (n *Notifier) Name() string { return "email" }

func (n *Notifier) Publish(ctx context.Context, env events.Envelope) error {
	msg, ok, err := n.render(env)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if strings.TrimSpace(msg.To) == "" {
		n.logger.Warn("notify: no recipient for event", "type", env.EventType, "event_id", env.EventID)
		return nil
	}
	return n.email.Send(ctx, msg)
}

func (n *Notifier) trackURL(trackingID string) string {
	return n.baseURL + "/track/" + trackingID
}

func (n *Notifier) render(env events.Envelope) (EmailMessage, bool, error) {
	switch env.EventType {
	case events.AppointmentBookedV1{}.EventType():
		var evt events.AppointmentBookedV1
		if err := env.Decode(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		when := evt.ScheduledFor.Format("January 02, 2006 at 3:04 PM")
		return EmailMessage{
			To:       evt.PatientEmail,
			ToName:   evt.PatientName,
			Subject:  fmt.Sprintf("Appointment booked: %s", evt.TestName),
			Category: "booking",
			Body: fmt.Sprintf(
				"Hi %s,\n\nYour %s sample collection is scheduled for %s at %s.\nTracking ID: %s\nTrack your test: %s\n",
				evt.PatientName, evt.TestName, when, evt.Address, evt.TrackingID, n.trackURL(evt.TrackingID),
			),
		}, true, nil

	case events.AppointmentStatusChangedV1{}.EventType():
		var evt events.AppointmentStatusChangedV1
		if err := env.Decode(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		if evt.Status != "cancelled" || evt.PreviousStatus == evt.Status {
			return EmailMessage{}, false, nil
		}
		return EmailMessage{
			To:       evt.PatientEmail,
			ToName:   evt.PatientName,
			Subject:  fmt.Sprintf("Appointment cancelled: %s", evt.TrackingID),
			Category: "cancellation",
			Body: fmt.Sprintf(
				"Hi %s,\n\nYour %s appointment (%s) has been cancelled. Please book a new appointment if you still need the test.\n",
				evt.PatientName, evt.TestName, evt.TrackingID,
			),
		}, true, nil

	case events.ReportAttachedV1{}.EventType():
		var evt events.ReportAttachedV1
		if err := env.Decode(&evt); err != nil {
			return EmailMessage{}, false, err
		}
		return EmailMessage{
			To:       evt.PatientEmail,
			ToName:   evt.PatientName,
			Subject:  fmt.Sprintf("Your %s results are ready", evt.TestName),
			Category: "results",
			Body: fmt.Sprintf(
				"Hi %s,\n\nResults for tracking ID %s are ready. Sign in to view report %s.\n%s\n",
				evt.PatientName, evt.TrackingID, evt.ReportID, n.trackURL(evt.TrackingID),
			),
		}, true, nil
	}
	return EmailMessage{}, false, nil
}
