package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSimulationDeterministicSuccess(t *testing.T) {
	sim := NewSimulation(SimulationOptions{}, testLogger())

	for i := 0; i < 5; i++ {
		result := sim.Send(context.Background(), "+919876543210", "hello")
		if !result.Success {
			t.Fatal("simulation must succeed by default")
		}
		if !strings.HasPrefix(result.MessageID, "sim_") {
			t.Fatalf("expected synthetic id, got %q", result.MessageID)
		}
	}
}

func TestSimulationOptInFailure(t *testing.T) {
	sim := NewSimulation(SimulationOptions{Fail: true}, testLogger())
	result := sim.Send(context.Background(), "+919876543210", "hello")
	if result.Success {
		t.Fatal("failure injection should fail every send")
	}
	if result.ErrorDetail == "" {
		t.Fatal("failed sends must carry an error detail")
	}
}

func TestWhatsAppLinkSynthesis(t *testing.T) {
	wa := NewWhatsAppLink(testLogger())
	result := wa.Send(context.Background(), "+919876543210", "Hello")

	if !result.Success {
		t.Fatal("whatsapp link sends always succeed")
	}
	if result.MessageID != "https://wa.me/919876543210?text=Hello" {
		t.Fatalf("unexpected link: %s", result.MessageID)
	}
}

func TestWhatsAppLinkEncodesMessage(t *testing.T) {
	url := LinkURL("+919876543210", "Price: ₹45.50/kg & rising")
	if strings.ContainsAny(url[len("https://wa.me/919876543210?text="):], " &₹") {
		t.Fatalf("message not encoded: %s", url)
	}
	if !strings.HasPrefix(url, "https://wa.me/919876543210?text=") {
		t.Fatalf("unexpected url shape: %s", url)
	}
}

func TestTextBeltSuccess(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		form = map[string]string{
			"phone":   r.PostFormValue("phone"),
			"message": r.PostFormValue("message"),
			"key":     r.PostFormValue("key"),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "textId": 12345})
	}))
	defer srv.Close()

	adapter := NewTextBelt(TextBeltOptions{APIURL: srv.URL}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+15551234567", "hello")

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.MessageID != "12345" {
		t.Fatalf("expected textId 12345, got %q", result.MessageID)
	}
	if form["phone"] != "+15551234567" || form["key"] != "textbelt" {
		t.Fatalf("unexpected form payload: %v", form)
	}
}

func TestTextBeltProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Out of quota"})
	}))
	defer srv.Close()

	adapter := NewTextBelt(TextBeltOptions{APIURL: srv.URL}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+15551234567", "hello")

	if result.Success {
		t.Fatal("2xx with success=false must fail")
	}
	if result.ErrorDetail != "Out of quota" {
		t.Fatalf("provider error detail should be preserved, got %q", result.ErrorDetail)
	}
}

func TestTextBeltHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := NewTextBelt(TextBeltOptions{APIURL: srv.URL}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+15551234567", "hello")

	if result.Success {
		t.Fatal("non-2xx must fail")
	}
	if !strings.Contains(result.ErrorDetail, "500") {
		t.Fatalf("error detail should carry the http status, got %q", result.ErrorDetail)
	}
}

func TestTextBeltTransportError(t *testing.T) {
	adapter := NewTextBelt(TextBeltOptions{APIURL: "http://127.0.0.1:1"}, 200*time.Millisecond, testLogger())
	result := adapter.Send(context.Background(), "+15551234567", "hello")

	if result.Success {
		t.Fatal("transport errors must fail, not panic")
	}
	if !strings.Contains(result.ErrorDetail, "transport error") {
		t.Fatalf("unexpected error detail: %q", result.ErrorDetail)
	}
}

func TestTextLocalErrorMessagePreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "failure",
			"errors": []map[string]any{{"code": 3, "message": "Invalid login details"}},
		})
	}))
	defer srv.Close()

	adapter := NewTextLocal(TextLocalOptions{APIURL: srv.URL, APIKey: "key"}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if result.Success {
		t.Fatal("failure status must not report success")
	}
	if result.ErrorDetail != "Invalid login details" {
		t.Fatalf("expected provider error message, got %q", result.ErrorDetail)
	}
}

func TestMSG91SuccessCarriesRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("msg91 adapter must use GET, got %s", r.Method)
		}
		if r.URL.Query().Get("authkey") != "auth" {
			t.Fatalf("missing authkey: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"type": "success", "message": "3763646"})
	}))
	defer srv.Close()

	adapter := NewMSG91(MSG91Options{APIURL: srv.URL, AuthKey: "auth"}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if !result.Success || result.MessageID != "3763646" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFast2SMSFlattensArrayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"return":  false,
			"message": []string{"Invalid Authentication", "Check API key"},
		})
	}))
	defer srv.Close()

	adapter := NewFast2SMS(Fast2SMSOptions{APIURL: srv.URL, APIKey: "key"}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if result.Success {
		t.Fatal("return=false must fail")
	}
	if result.ErrorDetail != "Invalid Authentication, Check API key" {
		t.Fatalf("unexpected detail: %q", result.ErrorDetail)
	}
}

func TestTwilioShortCircuitsWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected without credentials")
	}))
	defer srv.Close()

	adapter := NewTwilio(TwilioOptions{BaseURL: srv.URL}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if result.Success {
		t.Fatal("missing credentials must fail")
	}
	if !strings.Contains(result.ErrorDetail, "credentials not configured") {
		t.Fatalf("unexpected detail: %q", result.ErrorDetail)
	}
}

func TestTwilioAcceptsOnCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "sid" || pass != "token" {
			t.Fatalf("basic auth not set correctly: %s %s", user, pass)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"sid": "SM123"})
	}))
	defer srv.Close()

	adapter := NewTwilio(TwilioOptions{BaseURL: srv.URL, AccountSID: "sid", AuthToken: "token", FromNumber: "+10000000000"}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if !result.Success || result.MessageID != "SM123" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVonageShortCircuitsWithoutCredentials(t *testing.T) {
	adapter := NewVonage(VonageOptions{APIURL: "http://127.0.0.1:1"}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if result.Success || !strings.Contains(result.ErrorDetail, "credentials not configured") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVonageChecksMessageStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"status": "2", "error-text": "Missing to param"}},
		})
	}))
	defer srv.Close()

	adapter := NewVonage(VonageOptions{APIURL: srv.URL, APIKey: "k", APISecret: "s"}, time.Second, testLogger())
	result := adapter.Send(context.Background(), "+919876543210", "hello")

	if result.Success {
		t.Fatal("non-zero status must fail")
	}
	if result.ErrorDetail != "Missing to param" {
		t.Fatalf("unexpected detail: %q", result.ErrorDetail)
	}
}

func TestFactoryUnknownProvider(t *testing.T) {
	factory := NewFactory(Config{}, testLogger())
	if _, err := factory.New("carrier-pigeon"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestFactoryBuildsEveryRegisteredProvider(t *testing.T) {
	factory := NewFactory(Config{}, testLogger())
	for _, name := range Names() {
		adapter, err := factory.New(name)
		if err != nil {
			t.Fatalf("factory failed for %s: %v", name, err)
		}
		if adapter.Name() != name {
			t.Fatalf("adapter name mismatch: %s != %s", adapter.Name(), name)
		}
	}
}
