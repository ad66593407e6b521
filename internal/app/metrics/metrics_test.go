package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestRouteLabelUsesTemplate(t *testing.T) {
	var got string
	r := mux.NewRouter()
	r.HandleFunc("/v1/me/bets/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = routeLabel(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me/bets/42", nil))
	if got != "/v1/me/bets/{id}" {
		t.Fatalf("routeLabel = %q", got)
	}

	if l := routeLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); l != "unmatched" {
		t.Fatalf("unmatched request labelled %q", l)
	}
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	RecordReservation("reserved", time.Millisecond)
	RecordAdmission("admitted", 2)
	RecordSettledBet("BOG", "WON")
	RecordSettlement("BOG", time.Second, true)
	RecordJobRun("result-sync", 0, false)

	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/v1/me/bets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me/bets/1", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"lottery_layer_inventory_reservations_total",
		"lottery_layer_admission_bets_total",
		"lottery_layer_settlement_bets_total",
		"lottery_layer_scheduler_job_runs_total",
		`lottery_layer_http_requests_total{method="GET",path="/v1/me/bets/{id}",status="418"}`,
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}
