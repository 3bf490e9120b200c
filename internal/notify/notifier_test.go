package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/hmpv-lab-platform/internal/events"
)

func mustEnvelope(t *testing.T, evt events.CanonicalEvent) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(evt)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestNotifierBookingConfirmation(t *testing.T) {
	stub := NewStubEmailSender(nil)
	n := NewNotifier(stub, "https://lab.example.com/", nil)

	env := mustEnvelope(t, events.AppointmentBookedV1{
		AppointmentID: "app-9",
		TrackingID:    "HMPV-1003",
		TestName:      "HMPV PCR Test",
		PatientName:   "Test Patient",
		PatientEmail:  "patient@test.com",
		ScheduledFor:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Address:       "1 Main St",
	})
	if err := n.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sent := stub.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].To != "patient@test.com" {
		t.Fatalf("unexpected recipient %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "HMPV-1003") || !strings.Contains(sent[0].Body, "https://lab.example.com/track/HMPV-1003") {
		t.Fatalf("body missing tracking details: %s", sent[0].Body)
	}
	if !strings.Contains(sent[0].Body, "June 01, 2025") {
		t.Fatalf("body missing schedule: %s", sent[0].Body)
	}
}

func TestNotifierStatusChanges(t *testing.T) {
	stub := NewStubEmailSender(nil)
	n := NewNotifier(stub, "", nil)

	progress := mustEnvelope(t, events.AppointmentStatusChangedV1{AppointmentID: "app-1", PatientEmail: "patient@test.com", PreviousStatus: "pending", Status: "sample_collected"})
	if err := n.Publish(context.Background(), progress); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(stub.Sent()) != 0 {
		t.Fatal("progress updates should not email")
	}

	cancelled := mustEnvelope(t, events.AppointmentStatusChangedV1{AppointmentID: "app-1", TrackingID: "HMPV-1001", PatientEmail: "patient@test.com", PreviousStatus: "pending", Status: "cancelled"})
	if err := n.Publish(context.Background(), cancelled); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sent := stub.Sent(); len(sent) != 1 || !strings.Contains(sent[0].Subject, "cancelled") {
		t.Fatalf("expected cancellation email, got %#v", sent)
	}
}

func TestNotifierReportReady(t *testing.T) {
	stub := NewStubEmailSender(nil)
	n := NewNotifier(stub, "", nil)
	env := mustEnvelope(t, events.ReportAttachedV1{AppointmentID: "app-1", ReportID: "rep-7", TestName: "HMPV PCR Test", PatientEmail: "patient@test.com"})
	if err := n.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	sent := stub.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Subject, "results are ready") {
		t.Fatalf("unexpected emails: %#v", sent)
	}
}

func TestNotifierSkipsMissingRecipient(t *testing.T) {
	stub := NewStubEmailSender(nil)
	n := NewNotifier(stub, "", nil)
	env := mustEnvelope(t, events.ReportAttachedV1{AppointmentID: "app-1", ReportID: "rep-7"})
	if err := n.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(stub.Sent()) != 0 {
		t.Fatal("expected no email without recipient")
	}
}

type failingSender struct{}

func (failingSender) Send(context.Context, EmailMessage) error { return errors.New("smtp down") }

func TestNotifierSurfacesSendErrors(t *testing.T) {
	n := NewNotifier(failingSender{}, "", nil)
	env := mustEnvelope(t, events.ReportAttachedV1{AppointmentID: "app-1", PatientEmail: "patient@test.com"})
	if err := n.Publish(context.Background(), env); err == nil {
		t.Fatal("expected send error")
	}
	if n.Name() != "email" {
		t.Fatalf("unexpected name %q", n.Name())
	}
}
