package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/digistore-backend/pkg/config"
)

type stubAPI struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (s *stubAPI) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	s.sent = append(s.sent, email)
	if s.err != nil {
		return nil, s.err
	}
	return &rest.Response{StatusCode: s.status, Body: "rejected"}, nil
}

func validMessage() Message {
	return Message{ToEmail: "buyer@example.com", Subject: "Hi", Text: "body"}
}

func TestNew_RequiresFromWhenEnabled(t *testing.T) {
	if _, err := New(config.SendgridConfig{APIKey: "key"}, nil); err == nil {
		t.Fatal("expected missing from address to fail")
	}
}

func TestSend_DisabledDropsMessage(t *testing.T) {
	s, err := New(config.SendgridConfig{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Send(context.Background(), validMessage()); err != nil {
		t.Fatalf("expected disabled sender to succeed, got %v", err)
	}
}

func TestSend_ValidatesMessage(t *testing.T) {
	s := &SendGrid{api: &stubAPI{status: 202}, from: mail.NewEmail("", "shop@example.com")}
	if err := s.Send(context.Background(), Message{Subject: "x", Text: "y"}); err == nil {
		t.Fatal("expected missing recipient to fail")
	}
	if err := s.Send(context.Background(), Message{ToEmail: "a@b.c", Subject: "x"}); err == nil {
		t.Fatal("expected missing body to fail")
	}
}

func TestSend_StatusHandling(t *testing.T) {
	api := &stubAPI{status: 202}
	s := &SendGrid{api: api, from: mail.NewEmail("Shop", "shop@example.com")}
	if err := s.Send(context.Background(), validMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.sent) != 1 || api.sent[0].Subject != "Hi" {
		t.Fatalf("expected one message with subject, got %+v", api.sent)
	}

	api.status = 400
	if err := s.Send(context.Background(), validMessage()); err == nil {
		t.Fatal("expected non-2xx status to fail")
	}

	api.err = errors.New("network")
	if err := s.Send(context.Background(), validMessage()); err == nil {
		t.Fatal("expected transport error to fail")
	}
}
