package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/packs"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/report"
)

// stubPack returns a canned report or error.
type stubPack struct {
	id  string
	rep report.Report
	err error
}

func (s stubPack) ID() string { return s.id }

func (s stubPack) Scan(ctx context.Context, req packs.Request) (report.Report, error) {
	if s.err != nil {
		return report.Report{}, s.err
	}
	rep := s.rep
	rep.Input = req.Input
	return rep, nil
}

func newTestServer(pack packs.Pack) http.Handler {
	return New(packs.NewRegistry(pack), nil).Handler()
}

func TestHealthz(t *testing.T) {
	h := newTestServer(stubPack{id: "global.pci_lite.v1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status string   `json:"status"`
		Packs  []string `json:"packs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || len(body.Packs) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestScanEndpoint(t *testing.T) {
	pack := stubPack{id: "global.pci_lite.v1", rep: report.Report{
		RunID:    "run-1",
		Decision: policy.Review,
	}}
	h := newTestServer(pack)

	body := `{"pack": "global.pci_lite.v1", "input": "/data/doc.json"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rep report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Decision != policy.Review || rep.Input != "/data/doc.json" {
		t.Errorf("report = %+v", rep)
	}
}

func TestScanUnknownPack(t *testing.T) {
	h := newTestServer(stubPack{id: "global.pci_lite.v1"})
	body := `{"pack": "nope", "input": "/data/doc.json"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScanMissingFields(t *testing.T) {
	h := newTestServer(stubPack{id: "global.pci_lite.v1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(`{"pack": "global.pci_lite.v1"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScanExtractionFailure(t *testing.T) {
	pack := stubPack{id: "global.pci_lite.v1", err: extract.ErrExtraction}
	h := newTestServer(pack)
	body := `{"pack": "global.pci_lite.v1", "input": "/data/broken.json"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(body)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScanInternalFailure(t *testing.T) {
	pack := stubPack{id: "global.pci_lite.v1", err: errors.New("disk full")}
	h := newTestServer(pack)
	body := `{"pack": "global.pci_lite.v1", "input": "/data/doc.json"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(body)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(stubPack{id: "global.pci_lite.v1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cardshield_scan_duration_seconds") {
		t.Error("metrics exposition missing scan duration histogram")
	}
}
