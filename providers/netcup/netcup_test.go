package netcup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/postupdate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI mimics the netcup endpoint.
type fakeAPI struct {
	mu           sync.Mutex
	actions      []string
	update       map[string]any
	shortMessage string
	loginStatus  string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string         `json:"action"`
		Param  map[string]any `json:"param"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, req.Action)

	w.Header().Set("Content-Type", "application/json")
	switch req.Action {
	case "login":
		status := f.loginStatus
		if status == "" {
			status = "success"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"action":       "login",
			"status":       status,
			"statuscode":   2000,
			"shortmessage": "Login successful",
			"responsedata": map[string]string{"apisessionid": "sess-42"},
		})
	case "updateDnsRecords":
		f.update = req.Param
		_ = json.NewEncoder(w).Encode(map[string]any{
			"action":       "updateDnsRecords",
			"status":       "success",
			"statuscode":   2000,
			"shortmessage": f.shortMessage,
		})
	case "logout":
		_ = json.NewEncoder(w).Encode(map[string]any{"action": "logout", "status": "success"})
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func newTestAction(t *testing.T, api *fakeAPI) *Action {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg, err := LoadConfigFromMap(map[string]string{
		"API_KEY":         "key",
		"API_PASSWORD":    "pw",
		"CUSTOMER_NUMBER": "12345",
		"DOMAIN":          "example.com",
		"RECORDS":         "*=111, @=222",
		"ENDPOINT":        srv.URL,
	})
	if err != nil {
		t.Fatalf("LoadConfigFromMap() error: %v", err)
	}
	return New(cfg, NewClient(cfg, srv.Client(), discardLogger()), discardLogger())
}

func TestPropagate(t *testing.T) {
	api := &fakeAPI{shortMessage: "DNS records successful updated "}
	action := newTestAction(t, api)

	if err := action.Propagate(context.Background(), "203.0.113.10"); err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}

	if got := strings.Join(api.actions, ","); got != "login,updateDnsRecords,logout" {
		t.Errorf("actions = %s, want login,updateDnsRecords,logout", got)
	}

	if api.update["apisessionid"] != "sess-42" {
		t.Errorf("apisessionid = %v, want sess-42", api.update["apisessionid"])
	}
	if api.update["domainname"] != "example.com" || api.update["customernumber"] != "12345" {
		t.Errorf("update param = %v", api.update)
	}

	set, _ := api.update["dnsrecordset"].(map[string]any)
	records, _ := set["dnsrecords"].([]any)
	if len(records) != 2 {
		t.Fatalf("dnsrecords = %v, want 2 entries", set)
	}
	first, _ := records[0].(map[string]any)
	want := map[string]string{
		"id":           "111",
		"hostname":     "*",
		"type":         "A",
		"priority":     "0",
		"destination":  "203.0.113.10",
		"deleterecord": "FALSE",
		"state":        "yes",
	}
	for k, v := range want {
		if first[k] != v {
			t.Errorf("record[0][%s] = %v, want %s", k, first[k], v)
		}
	}
}

func TestPropagateIPv6(t *testing.T) {
	api := &fakeAPI{shortMessage: updatedMessage}
	action := newTestAction(t, api)

	if err := action.Propagate(context.Background(), "2001:db8::10"); err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}

	set, _ := api.update["dnsrecordset"].(map[string]any)
	records, _ := set["dnsrecords"].([]any)
	first, _ := records[0].(map[string]any)
	if first["type"] != "AAAA" {
		t.Errorf("type = %v, want AAAA", first["type"])
	}
}

func TestPropagateUnconfirmed(t *testing.T) {
	api := &fakeAPI{shortMessage: "Something else happened"}
	action := newTestAction(t, api)

	err := action.Propagate(context.Background(), "203.0.113.10")
	if !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("Propagate() error = %v, want ErrUnconfirmed", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Propagate() error = %v, want *APIError", err)
	}
	if !strings.Contains(apiErr.Raw, "Something else happened") {
		t.Errorf("raw response = %q, want it preserved", apiErr.Raw)
	}
}

func TestPropagateLoginFailure(t *testing.T) {
	api := &fakeAPI{loginStatus: "error", shortMessage: updatedMessage}
	action := newTestAction(t, api)

	err := action.Propagate(context.Background(), "203.0.113.10")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Action != "login" {
		t.Fatalf("Propagate() error = %v, want login *APIError", err)
	}
	if got := strings.Join(api.actions, ","); got != "login" {
		t.Errorf("actions = %s, want only login", got)
	}
}

func TestLoadConfigFromMap(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"API_KEY":         "key",
			"API_PASSWORD":    "pw",
			"CUSTOMER_NUMBER": "12345",
			"DOMAIN":          "example.com",
		}
	}

	t.Run("legacy record ids", func(t *testing.T) {
		settings := base()
		settings["STAR_ID"] = "1"
		settings["AT_ID"] = "2"

		cfg, err := LoadConfigFromMap(settings)
		if err != nil {
			t.Fatalf("LoadConfigFromMap() error: %v", err)
		}
		if len(cfg.Records) != 2 || cfg.Records[0] != (Record{Hostname: "*", ID: "1"}) || cfg.Records[1] != (Record{Hostname: "@", ID: "2"}) {
			t.Errorf("Records = %+v", cfg.Records)
		}
		if cfg.Endpoint != "" {
			t.Errorf("Endpoint = %q, want empty (default applied by client)", cfg.Endpoint)
		}
	})

	t.Run("no records", func(t *testing.T) {
		if _, err := LoadConfigFromMap(base()); err == nil {
			t.Error("expected error without records")
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		if _, err := LoadConfigFromMap(map[string]string{"RECORDS": "@=1"}); err == nil {
			t.Error("expected error without credentials")
		}
	})

	t.Run("bad records", func(t *testing.T) {
		settings := base()
		settings["RECORDS"] = "@=1,broken"
		if _, err := LoadConfigFromMap(settings); err == nil {
			t.Error("expected error for malformed RECORDS")
		}
	})
}

func TestParseRecords(t *testing.T) {
	records, err := ParseRecords(" *=10 , home = 20 ")
	if err != nil {
		t.Fatalf("ParseRecords() error: %v", err)
	}
	if len(records) != 2 || records[1] != (Record{Hostname: "home", ID: "20"}) {
		t.Errorf("ParseRecords() = %+v", records)
	}

	for _, bad := range []string{"=1", "host=", "host"} {
		if _, err := ParseRecords(bad); err == nil {
			t.Errorf("ParseRecords(%q) expected error", bad)
		}
	}
}

func TestFactory(t *testing.T) {
	action, err := Factory()(postupdate.FactoryConfig{
		Settings: map[string]string{
			"API_KEY":         "key",
			"API_PASSWORD":    "pw",
			"CUSTOMER_NUMBER": "12345",
			"DOMAIN":          "example.com",
			"RECORDS":         "@=1",
		},
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("Factory() error: %v", err)
	}
	if action.Name() != Name {
		t.Errorf("Name() = %q, want %q", action.Name(), Name)
	}
	if a := action.(*Action); a.client.endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want default", a.client.endpoint)
	}
}
