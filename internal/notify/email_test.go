package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "lab@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "lab@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "HMPV Lab" {
		t.Errorf("expected default from name 'HMPV Lab', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "patient@test.com", Subject: "Test"})
	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_RecordsMessages(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "patient@test.com", Subject: "Hello"}); err != nil {
		t.Fatalf("stub sender should not return error, got: %v", err)
	}
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].Subject != "Hello" {
		t.Fatalf("unexpected sent messages: %#v", sent)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without client")
	}

	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "lab@example.com"}, nil)
	err := sender.Send(context.Background(), EmailMessage{
		To:      "patient@test.com",
		Subject: "Results ready",
		Body:    "plain",
		HTML:    "<p>html</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(client.input.FromEmailAddress); got != "HMPV Lab <lab@example.com>" {
		t.Fatalf("unexpected from address %q", got)
	}
	if client.input.Destination.ToAddresses[0] != "patient@test.com" {
		t.Fatalf("unexpected recipient")
	}
	if client.input.Content.Simple.Body.Html == nil || client.input.Content.Simple.Body.Text == nil {
		t.Fatalf("expected both text and html bodies")
	}
	if client.input.EmailTags != nil || client.input.ConfigurationSetName != nil {
		t.Fatalf("expected no tags or configuration set")
	}

	tagged := NewSESSender(client, SESConfig{FromEmail: "lab@example.com", ConfigurationSet: "lab-mail"}, nil)
	if err := tagged.Send(context.Background(), EmailMessage{
		To:       "patient@test.com",
		ToName:   "Test Patient",
		Subject:  "Results ready",
		Body:     "plain",
		Category: "results",
	}); err != nil {
		t.Fatalf("send tagged: %v", err)
	}
	if got := client.input.Destination.ToAddresses[0]; got != `"Test Patient" <patient@test.com>` {
		t.Fatalf("unexpected named recipient %q", got)
	}
	if aws.ToString(client.input.ConfigurationSetName) != "lab-mail" {
		t.Fatalf("configuration set not applied")
	}
	if len(client.input.EmailTags) != 1 || aws.ToString(client.input.EmailTags[0].Value) != "results" {
		t.Fatalf("unexpected tags %+v", client.input.EmailTags)
	}

	client.err = errors.New("throttled")
	if err := sender.Send(context.Background(), EmailMessage{To: "patient@test.com"}); err == nil {
		t.Fatal("expected error from SES")
	}
}
