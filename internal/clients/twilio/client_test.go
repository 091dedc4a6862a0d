package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/camprush/camprush/internal/logger"
)

func TestSendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "tok" {
			t.Errorf("basic auth: %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("To") != "+15551234567" || r.PostForm.Get("From") != "+15550000000" {
			t.Errorf("form: %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL, DefaultFrom: "+15550000000"})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := c.SendSMS(context.Background(), "+15551234567", "Registration is open")
	if err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if msg.SID != "SM1" || msg.Status != "queued" {
		t.Errorf("message: %+v", msg)
	}
}

func TestSendSMSClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To"}`))
	}))
	defer srv.Close()

	c, _ := New(logger.Nop(), Config{AccountSID: "AC1", AuthToken: "t", BaseURL: srv.URL, DefaultFrom: "+1"})
	if _, err := c.SendSMS(context.Background(), "+1bad", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("want 1 call, got %d", calls)
	}
}
