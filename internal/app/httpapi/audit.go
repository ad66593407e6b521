package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/lottery_layer/internal/middleware"
)

// auditEntry records one administrative request. Lottery is set for routes
// scoped to a lottery.
type auditEntry struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Lottery  string    `json:"lottery_id,omitempty"`
	Route    string    `json:"route"`
	Path     string    `json:"path"`
	Method   string    `json:"method"`
	Status   int       `json:"status"`
	TraceID  string    `json:"trace_id,omitempty"`
	ClientIP string    `json:"client_ip,omitempty"`
}

type auditSink interface {
	Write(entry auditEntry) error
}

// auditTrail keeps the newest admin requests in a fixed ring and mirrors each
// one to the optional sink.
type auditTrail struct {
	mu   sync.Mutex
	ring []auditEntry
	next int
	full bool
	sink auditSink
}

func newAuditTrail(capacity int, sink auditSink) *auditTrail {
	if capacity <= 0 {
		capacity = 200
	}
	return &auditTrail{ring: make([]auditEntry, capacity), sink: sink}
}

func (t *auditTrail) record(entry auditEntry) error {
	t.mu.Lock()
	t.ring[t.next] = entry
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
	t.mu.Unlock()

	if t.sink == nil {
		return nil
	}
	return t.sink.Write(entry)
}

// recent returns up to limit entries, oldest first. A non-empty lotteryID
// keeps only the entries of that lottery.
func (t *auditTrail) recent(limit int, lotteryID string) []auditEntry {
	t.mu.Lock()
	var ordered []auditEntry
	if t.full {
		ordered = append(ordered, t.ring[t.next:]...)
	}
	ordered = append(ordered, t.ring[:t.next]...)
	t.mu.Unlock()

	out := make([]auditEntry, 0, len(ordered))
	for _, e := range ordered {
		if lotteryID == "" || e.Lottery == lotteryID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// auditMiddleware records every admin request after it completes. Reads of
// the audit log itself are not recorded.
func (h *handler) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &auditRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if route == "/v1/admin/audit" {
			return
		}
		entry := auditEntry{
			At:       h.now().UTC(),
			Actor:    maskKey(r.Header.Get(middleware.AdminKeyHeader)),
			Route:    route,
			Path:     r.URL.Path,
			Method:   r.Method,
			Status:   rec.status,
			TraceID:  middleware.GetTraceID(r.Context()),
			ClientIP: r.RemoteAddr,
		}
		if strings.HasPrefix(route, "/v1/admin/lotteries/{id}") {
			entry.Lottery = mux.Vars(r)["id"]
		}
		if err := h.audit.record(entry); err != nil {
			h.log.WithError(err).WithField("route", route).Warn("failed to write audit entry")
		}
	})
}

type auditRecorder struct {
	http.ResponseWriter
	status int
}

func (r *auditRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// maskKey keeps the last four characters of an admin key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// fileAuditSink appends audit entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}
