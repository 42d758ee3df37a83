package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prudhvinik1/lansync/internal/models"
)

// fakePocketBase serves the record and realtime endpoints the commands use.
// Realtime events queued with push are written once a topic is registered.
type fakePocketBase struct {
	mu         sync.Mutex
	records    map[string][]models.Record
	queries    []string
	registered chan string
	pushes     chan string
}

func newFakePocketBase(t *testing.T) (*fakePocketBase, *httptest.Server) {
	t.Helper()
	pb := &fakePocketBase{
		records:    make(map[string][]models.Record),
		registered: make(chan string, 4),
		pushes:     make(chan string, 16),
	}
	srv := httptest.NewServer(pb)
	t.Cleanup(srv.Close)
	return pb, srv
}

func (pb *fakePocketBase) push(topic string, ev models.MutationEvent) {
	data, _ := json.Marshal(ev)
	pb.pushes <- fmt.Sprintf("event:%s\ndata:%s\n\n", topic, data)
}

func (pb *fakePocketBase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/realtime":
		pb.serveRealtime(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/collections/"):
		pb.serveRecords(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (pb *fakePocketBase) serveRecords(w http.ResponseWriter, r *http.Request) {
	// /api/collections/{collection}/records[/{id}]
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/collections/"), "/")
	if len(parts) < 2 || parts[1] != "records" {
		http.NotFound(w, r)
		return
	}

	pb.mu.Lock()
	pb.queries = append(pb.queries, r.URL.RawQuery)
	records := pb.records[parts[0]]
	pb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if len(parts) == 3 {
		for _, rec := range records {
			if rec.ID() == parts[2] {
				json.NewEncoder(w).Encode(rec)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":404,"message":"The requested resource wasn't found.","data":{}}`)
		return
	}

	if records == nil {
		records = []models.Record{}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"page":       1,
		"perPage":    len(records),
		"totalItems": len(records),
		"totalPages": 1,
		"items":      records,
	})
}

func (pb *fakePocketBase) serveRealtime(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var body struct {
			Subscriptions []string `json:"subscriptions"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
		for _, topic := range body.Subscriptions {
			pb.registered <- topic
		}
		return
	}

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, "id:cli-client\nevent:PB_CONNECT\ndata:{\"clientId\":\"cli-client\"}\n\n")
	flusher.Flush()

	for {
		select {
		case ev := <-pb.pushes:
			fmt.Fprint(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (pb *fakePocketBase) lastQuery() string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if len(pb.queries) == 0 {
		return ""
	}
	return pb.queries[len(pb.queries)-1]
}
