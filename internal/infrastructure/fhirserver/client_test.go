package fhirserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/fhir"
	c, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func searchPage(next string, ids ...string) string {
	var entries []string
	for _, id := range ids {
		entries = append(entries, fmt.Sprintf(`{"resource":{"resourceType":"Condition","id":%q},"search":{"mode":"match"}}`, id))
	}
	links := `[]`
	if next != "" {
		links = fmt.Sprintf(`[{"relation":"next","url":%q}]`, next)
	}
	return fmt.Sprintf(`{"resourceType":"Bundle","type":"searchset","link":%s,"entry":[%s]}`, links, strings.Join(entries, ","))
}

func TestSearchByPatientFollowsNextLinks(t *testing.T) {
	var base string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != fhirJSON {
			t.Errorf("Accept = %q", got)
		}
		switch r.URL.Query().Get("page") {
		case "":
			if r.URL.Path != "/fhir/Condition" || r.URL.Query().Get("patient") != "p1" {
				t.Errorf("unexpected first request %s", r.URL)
			}
			fmt.Fprint(w, searchPage(base+"/fhir/Condition?page=2", "c1", "c2"))
		case "2":
			// relative links resolve against the base
			fmt.Fprint(w, searchPage("Condition?page=3", "c3"))
		case "3":
			fmt.Fprint(w, searchPage("", "c4"))
		}
	}, Config{PageSize: 2})
	base = srv.URL

	got, err := c.SearchByPatient(context.Background(), r4.TypeCondition, "p1", nil)
	if err != nil {
		t.Fatalf("SearchByPatient() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d resources, want 4", len(got))
	}
	var last struct{ ID string }
	_ = json.Unmarshal(got[3], &last)
	if last.ID != "c4" {
		t.Errorf("last id = %q, want c4", last.ID)
	}
}

func TestSearchStopsAtPageLimit(t *testing.T) {
	calls := 0
	var base string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, searchPage(fmt.Sprintf("%s/fhir/Observation?page=%d", base, calls+1), fmt.Sprintf("o%d", calls)))
	}, Config{MaxPages: 3})
	base = srv.URL

	got, err := c.SearchByPatient(context.Background(), r4.TypeObservation, "p1", nil)
	if err != nil {
		t.Fatalf("SearchByPatient() error = %v", err)
	}
	if calls != 3 || len(got) != 3 {
		t.Errorf("calls = %d, resources = %d, want 3 and 3", calls, len(got))
	}
}

func TestSearchSkipsOutcomeEntries(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resourceType":"Bundle","type":"searchset","entry":[
			{"resource":{"resourceType":"MedicationRequest","id":"mr1"},"search":{"mode":"match"}},
			{"resource":{"resourceType":"Medication","id":"m1"},"search":{"mode":"include"}},
			{"resource":{"resourceType":"OperationOutcome","issue":[]},"search":{"mode":"outcome"}}
		]}`)
	}, Config{})

	got, err := c.Search(context.Background(), r4.TypeMedicationRequest, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d resources, want 2", len(got))
	}
}

func TestStatusErrorCarriesOperationOutcome(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(r4.NewErrorOutcome("not-found", "Resource Patient/nope is not known"))
	}, Config{})

	_, err := c.GetPatient(context.Background(), "nope")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound || se.Outcome == nil {
		t.Fatalf("status = %d, outcome = %v", se.StatusCode, se.Outcome)
	}
	if !strings.Contains(err.Error(), "is not known") {
		t.Errorf("Error() = %q, want outcome diagnostics", err.Error())
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
}

func TestGetPatient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fhir/Patient/p1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"resourceType":"Patient","id":"p1","gender":"female","birthDate":"1970-03"}`)
	}, Config{})

	p, err := c.GetPatient(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPatient() error = %v", err)
	}
	if p.ID != "p1" || p.Gender != "female" {
		t.Errorf("patient = %+v", p)
	}
}

func TestCreatePostsFHIRJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fhir/DocumentReference" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != fhirJSON {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"resourceType":"DocumentReference"`) {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"resourceType":"DocumentReference","id":"dr-1"}`)
	}, Config{})

	raw, err := c.Create(context.Background(), r4.TypeDocumentReference, map[string]string{"resourceType": "DocumentReference"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.Contains(string(raw), "dr-1") {
		t.Errorf("response = %s", raw)
	}
}

func TestCreateIfNoneExistSendsCondition(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "conditional", query: "identifier=urn:ietf:rfc:3986|urn:uuid:abc"},
		{name: "plain", query: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got, present := r.Header["If-None-Exist"]
				if tt.query == "" && present {
					t.Errorf("unexpected If-None-Exist %q", got)
				}
				if tt.query != "" && r.Header.Get("If-None-Exist") != tt.query {
					t.Errorf("If-None-Exist = %q, want %q", r.Header.Get("If-None-Exist"), tt.query)
				}
				if r.Header.Get("Content-Type") != fhirJSON {
					t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
				}
				// a match is answered with 200 and the existing resource
				fmt.Fprint(w, `{"resourceType":"DocumentReference","id":"dr-7"}`)
			}, Config{})

			raw, err := c.CreateIfNoneExist(context.Background(), r4.TypeDocumentReference, map[string]string{"resourceType": "DocumentReference"}, tt.query)
			if err != nil {
				t.Fatalf("CreateIfNoneExist() error = %v", err)
			}
			if !strings.Contains(string(raw), "dr-7") {
				t.Errorf("response = %s", raw)
			}
		})
	}
}

func TestPostBundleRejectsNonTransaction(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	}, Config{})

	_, err := c.PostBundle(context.Background(), json.RawMessage(`{"resourceType":"Bundle","type":"collection"}`))
	if !errors.Is(err, ErrNotTransaction) {
		t.Errorf("error = %v, want ErrNotTransaction", err)
	}
}

func TestPostBundleTransaction(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fhir" {
			t.Errorf("path = %s, want server base", r.URL.Path)
		}
		fmt.Fprint(w, `{"resourceType":"Bundle","type":"transaction-response","entry":[{}]}`)
	}, Config{})

	resp, err := c.PostBundle(context.Background(), json.RawMessage(`{"resourceType":"Bundle","type":"transaction","entry":[]}`))
	if err != nil {
		t.Fatalf("PostBundle() error = %v", err)
	}
	if resp.Type != "transaction-response" {
		t.Errorf("type = %q", resp.Type)
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	cfg := BreakerConfig()
	if !cfg.IsSuccessful(&StatusError{StatusCode: http.StatusNotFound}) {
		t.Error("404 should not count as a failure")
	}
	if cfg.IsSuccessful(&StatusError{StatusCode: http.StatusBadGateway}) {
		t.Error("502 should count as a failure")
	}
	if cfg.IsSuccessful(errors.New("connection refused")) {
		t.Error("transport errors should count as failures")
	}

	cfg.ConsecutiveFailures = 1
	cb, err := circuitbreaker.New(cfg, nil)
	if err != nil {
		t.Fatalf("circuitbreaker.New() error = %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL}, cb, nil)
	for i := 0; i < 3; i++ {
		_, _ = c.Read(context.Background(), r4.TypePatient, "missing")
	}
	if cb.State() == circuitbreaker.StateOpen {
		t.Error("circuit opened on 404s")
	}
}

func TestLoadOrderPutsSharedBundlesFirst(t *testing.T) {
	got := LoadOrder([]string{
		"Zed_Patient.json",
		"practitionerInformation1.json",
		"Abe_Patient.json",
		"hospitalInformation1.json",
		"README.md",
	})
	want := []string{"hospitalInformation1.json", "practitionerInformation1.json", "Abe_Patient.json", "Zed_Patient.json"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("LoadOrder() = %v, want %v", got, want)
	}
}
