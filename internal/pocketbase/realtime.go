package pocketbase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/prudhvinik1/lansync/internal/models"
	"go.uber.org/zap"
)

const (
	realtimePath = "/api/realtime"
	connectEvent = "PB_CONNECT"
	// AllRecords subscribes to every record of a collection.
	AllRecords = "*"
)

var ErrRealtimeHandshake = errors.New("pocketbase: realtime handshake failed")

// Subscription is one open realtime channel for a single topic. Events are
// delivered in the order the server sends them.
type Subscription struct {
	topic  string
	events chan models.MutationEvent
	cancel context.CancelFunc
	body   io.ReadCloser
	done   chan struct{}
	log    *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Events is closed when the stream ends, either through Close or a
// transport failure (see Err).
func (s *Subscription) Events() <-chan models.MutationEvent {
	return s.events
}

// Err returns the error that ended the stream, nil after a clean Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the stream down and waits for the reader to exit. After Close
// returns no further events are sent. Calling it again is a no-op.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
		<-s.done
	})
	return err
}

func topicName(collection, topic string) string {
	if topic == "" {
		topic = AllRecords
	}
	return collection + "/" + topic
}

// Subscribe opens a dedicated SSE connection, completes the PB_CONNECT
// handshake and registers a single topic on it.
func (c *Client) Subscribe(ctx context.Context, collection, topic string) (*Subscription, error) {
	name := topicName(collection, topic)
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, http.MethodGet, realtimePath, nil, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open realtime stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, decodeAPIError(resp)
	}

	reader := newEventReader(resp.Body)
	clientID, err := readClientID(reader)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	body := map[string]any{
		"clientId":      clientID,
		"subscriptions": []string{name},
	}
	if err := c.do(ctx, http.MethodPost, realtimePath, nil, body, nil); err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("failed to register topic %s: %w", name, err)
	}

	sub := &Subscription{
		topic:  name,
		events: make(chan models.MutationEvent),
		cancel: cancel,
		body:   resp.Body,
		done:   make(chan struct{}),
		log:    c.log.With(zap.String("topic", name)),
	}
	go sub.run(streamCtx, reader)

	c.log.Debug("realtime subscription opened", zap.String("topic", name), zap.String("client_id", clientID))
	return sub, nil
}

func readClientID(r *eventReader) (string, error) {
	ev, err := r.Next()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRealtimeHandshake, err)
	}
	if ev.Name != connectEvent {
		return "", fmt.Errorf("%w: expected %s, got %q", ErrRealtimeHandshake, connectEvent, ev.Name)
	}
	var payload struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil || payload.ClientID == "" {
		if ev.ID != "" {
			return ev.ID, nil
		}
		return "", fmt.Errorf("%w: missing clientId", ErrRealtimeHandshake)
	}
	return payload.ClientID, nil
}

func (s *Subscription) run(ctx context.Context, r *eventReader) {
	defer close(s.done)
	defer close(s.events)

	for {
		ev, err := r.Next()
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = fmt.Errorf("realtime stream ended: %w", err)
				s.mu.Unlock()
				s.log.Warn("realtime stream ended", zap.Error(err))
			}
			return
		}
		if ev.Name != s.topic {
			continue
		}

		var mut models.MutationEvent
		if err := json.Unmarshal([]byte(ev.Data), &mut); err != nil {
			s.log.Warn("skipping malformed realtime event", zap.Error(err))
			continue
		}
		if !mut.Action.Valid() || mut.Record.ID() == "" {
			s.log.Warn("skipping realtime event without action or id", zap.String("action", string(mut.Action)))
			continue
		}

		select {
		case s.events <- mut:
		case <-ctx.Done():
			return
		}
	}
}

type sseEvent struct {
	ID   string
	Name string
	Data string
}

// eventReader parses a text/event-stream body.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), 8<<20)
	return &eventReader{scanner: s}
}

func (r *eventReader) Next() (sseEvent, error) {
	var ev sseEvent
	var data []string
	seen := false

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		default:
			continue
		}
		seen = true
	}

	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	return sseEvent{}, io.EOF
}
