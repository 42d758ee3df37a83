package pocketbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("not a url")
	assert.Error(t, err)
}

func TestListRecords_SendsQueryOptions(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collections/sessions/records", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"page":    q.Get("page"),
			"perPage": q.Get("perPage"),
			"filter":  q.Get("filter"),
			"sort":    q.Get("sort"),
			"expand":  q.Get("expand"),
		}
		json.NewEncoder(w).Encode(ListResult{
			Page: 1, PerPage: 50, TotalItems: 1, TotalPages: 1,
			Items: []models.Record{{"id": "s1", "status": "Active"}},
		})
	})
	c := newTestClient(t, mux)

	res, err := c.ListRecords(context.Background(), "sessions", ListOptions{
		PerPage: 50,
		Filter:  `status="Active"`,
		Sort:    "-created",
		Expand:  "customer",
	})

	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "s1", res.Items[0].ID())
	assert.Equal(t, map[string]string{
		"page":    "1",
		"perPage": "50",
		"filter":  `status="Active"`,
		"sort":    "-created",
		"expand":  "customer",
	}, got)
}

func TestFullList_WalksPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collections/devices/records", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
		var items []models.Record
		if page == 1 {
			for i := 0; i < perPage; i++ {
				items = append(items, models.Record{"id": fmt.Sprintf("d%d", i)})
			}
		} else {
			items = []models.Record{{"id": "last"}}
		}
		json.NewEncoder(w).Encode(ListResult{Page: page, PerPage: perPage, Items: items})
	})
	c := newTestClient(t, mux)

	all, err := c.FullList(context.Background(), "devices", ListOptions{PerPage: 2})

	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "last", all[2].ID())
}

func TestGetRecord_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collections/customers/records/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":404,"message":"The requested resource wasn't found.","data":{}}`))
	})
	c := newTestClient(t, mux)

	_, err := c.GetRecord(context.Background(), "customers", "missing", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "The requested resource wasn't found.", apiErr.Message)
}

func TestAuthWithPassword_StoresToken(t *testing.T) {
	var seenAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collections/_superusers/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["identity"] != "admin@cafe.local" || body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"token":"tok-1","record":{"id":"u1"}}`))
	})
	mux.HandleFunc("/api/collections/snacks/records/x", func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":"x"}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	res, err := c.AuthWithPassword(ctx, SuperusersCollection, "admin@cafe.local", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Record.ID())

	_, err = c.GetRecord(ctx, "snacks", "x", "")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", seenAuth)
}

func TestCreateUpdateDelete(t *testing.T) {
	var methods []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/collections/recharges/records", func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.Write([]byte(`{"id":"r1","amount":100}`))
	})
	mux.HandleFunc("/api/collections/recharges/records/r1", func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`{"id":"r1","amount":150}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	created, err := c.CreateRecord(ctx, "recharges", models.Record{"amount": 100})
	require.NoError(t, err)
	assert.Equal(t, "r1", created.ID())

	updated, err := c.UpdateRecord(ctx, "recharges", "r1", models.Record{"amount": 150})
	require.NoError(t, err)
	assert.EqualValues(t, 150, updated["amount"])

	require.NoError(t, c.DeleteRecord(ctx, "recharges", "r1"))
	assert.Equal(t, []string{http.MethodPost, http.MethodPatch, http.MethodDelete}, methods)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("server-side-secret"))
	require.NoError(t, err)

	got, err := TokenExpiry(token)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	c, err := New("http://pb.local", WithToken(token))
	require.NoError(t, err)
	assert.False(t, c.TokenExpiresSoon(time.Minute))
	assert.True(t, c.TokenExpiresSoon(time.Hour))

	c.SetToken("")
	assert.True(t, c.TokenExpiresSoon(time.Minute))
}

// realtimeServer emulates PocketBase's SSE endpoint for one client.
type realtimeServer struct {
	events []string

	once       sync.Once
	registered chan struct{}
	mu         sync.Mutex
	topics     []string
}

func (s *realtimeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			ClientID      string   `json:"clientId"`
			Subscriptions []string `json:"subscriptions"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.ClientID != "client-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.mu.Lock()
		s.topics = body.Subscriptions
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		s.once.Do(func() { close(s.registered) })
	case http.MethodGet:
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id:client-1\nevent:PB_CONNECT\ndata:{\"clientId\":\"client-1\"}\n\n")
		flusher.Flush()

		select {
		case <-s.registered:
		case <-r.Context().Done():
			return
		}
		for _, ev := range s.events {
			fmt.Fprint(w, ev)
			flusher.Flush()
		}
		<-r.Context().Done()
	}
}

func TestSubscribe_DeliversTopicEventsInOrder(t *testing.T) {
	rt := &realtimeServer{
		registered: make(chan struct{}),
		events: []string{
			": keepalive\n\n",
			"event:devices/*\ndata:{\"action\":\"create\",\"record\":{\"id\":\"d1\",\"name\":\"PC-01\"}}\n\n",
			"event:customers/*\ndata:{\"action\":\"create\",\"record\":{\"id\":\"c1\"}}\n\n",
			"event:devices/*\ndata:not-json\n\n",
			"event:devices/*\ndata:{\"action\":\"update\",\"record\":{\"id\":\"d1\",\"status\":\"busy\"}}\n\n",
			"event:devices/*\ndata:{\"action\":\"delete\",\"record\":{\"id\":\"d1\"}}\n\n",
		},
	}
	mux := http.NewServeMux()
	mux.Handle("/api/realtime", rt)
	c := newTestClient(t, mux)

	sub, err := c.Subscribe(context.Background(), "devices", AllRecords)
	require.NoError(t, err)
	defer sub.Close()

	var got []models.MutationEvent
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-sub.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	assert.Equal(t, models.ActionCreate, got[0].Action)
	assert.Equal(t, "PC-01", got[0].Record["name"])
	assert.Equal(t, models.ActionUpdate, got[1].Action)
	assert.Equal(t, models.ActionDelete, got[2].Action)
	rt.mu.Lock()
	assert.Equal(t, []string{"devices/*"}, rt.topics)
	rt.mu.Unlock()

	require.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open, "events channel should be closed after Close")
	assert.NoError(t, sub.Err())
	assert.NoError(t, sub.Close(), "second Close is a no-op")
}

func TestSubscribe_HandshakeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/realtime", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:something-else\ndata:{}\n\n")
	})
	c := newTestClient(t, mux)

	_, err := c.Subscribe(context.Background(), "devices", AllRecords)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRealtimeHandshake)
}

func TestEventReader_MultilineData(t *testing.T) {
	r := newEventReader(strings.NewReader("event:x\ndata:a\ndata: b\n\n"))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", ev.Name)
	assert.Equal(t, "a\nb", ev.Data)

	_, err = r.Next()
	assert.Error(t, err)
}
