package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{AuthToken: "tok"}); err == nil {
		t.Fatalf("expected missing account sid to fail")
	}
	if _, err := NewClient(Config{AccountSID: "AC1"}); err == nil {
		t.Fatalf("expected missing auth token to fail")
	}
}

func TestCreateCallPostsFormAndParsesSid(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuthUser string
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuthUser, _, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"From":   r.PostFormValue("From"),
			"To":     r.PostFormValue("To"),
			"Url":    r.PostFormValue("Url"),
			"Method": r.PostFormValue("Method"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA123","status":"queued"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{AccountSID: "AC1", AuthToken: "tok", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	callID, err := client.CreateCall(context.Background(), "+15550001", "+15550002", "https://host/twiml")
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	if callID != "CA123" {
		t.Fatalf("unexpected call sid %q", callID)
	}
	if gotPath != "/Accounts/AC1/Calls.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuthUser != "AC1" {
		t.Fatalf("unexpected basic auth user %q", gotAuthUser)
	}
	if gotForm["From"] != "+15550001" || gotForm["To"] != "+15550002" ||
		gotForm["Url"] != "https://host/twiml" || gotForm["Method"] != "POST" {
		t.Fatalf("unexpected form %v", gotForm)
	}
}

func TestCreateCallSurfacesProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' phone number"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{AccountSID: "AC1", AuthToken: "tok", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CreateCall(context.Background(), "+1", "+2", "https://host/twiml"); err == nil {
		t.Fatalf("expected provider error to surface")
	}
}

func TestUpdateCallTargetsCallResource(t *testing.T) {
	t.Parallel()

	var gotPath, gotURL, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotURL = r.PostFormValue("Url")
		gotMethod = r.PostFormValue("Method")
		_, _ = w.Write([]byte(`{"sid":"CA123","status":"in-progress"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{AccountSID: "AC1", AuthToken: "tok", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.UpdateCall(context.Background(), "CA123", "https://host/dtmf?digits=1", ""); err != nil {
		t.Fatalf("update call: %v", err)
	}
	if gotPath != "/Accounts/AC1/Calls/CA123.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotURL != "https://host/dtmf?digits=1" || gotMethod != "POST" {
		t.Fatalf("unexpected form url=%q method=%q", gotURL, gotMethod)
	}
}

func TestUpdateCallRequiresIdentifiers(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{AccountSID: "AC1", AuthToken: "tok"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.UpdateCall(context.Background(), "", "https://host/hangup", ""); err == nil {
		t.Fatalf("expected missing call_id to fail")
	}
	if err := client.UpdateCall(context.Background(), "CA123", "", ""); err == nil {
		t.Fatalf("expected missing control url to fail")
	}
}
