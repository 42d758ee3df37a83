package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // sync reached an error state
	ExitCommandError = 2 // bad flags, unreachable server, failed sign-in
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

type statusLine struct {
	Collection string `json:"collection"`
	ID         string `json:"id,omitempty"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	Count      int    `json:"count"`
}

type eventLine struct {
	Action models.Action `json:"action"`
	Record models.Record `json:"record"`
}

// printer serializes output from the command goroutine and engine hooks.
type printer struct {
	mu     sync.Mutex
	format string
	w      io.Writer
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{format: format, w: w}
}

func (p *printer) status(st statusLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		json.NewEncoder(p.w).Encode(st)
		return
	}
	name := st.Collection
	if st.ID != "" {
		name += "/" + st.ID
	}
	fmt.Fprintf(p.w, "# %s: %s (%d records)", name, st.State, st.Count)
	if st.Error != "" {
		fmt.Fprintf(p.w, ": %s", st.Error)
	}
	fmt.Fprintln(p.w)
}

func (p *printer) records(recs []models.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		if recs == nil {
			recs = []models.Record{}
		}
		json.NewEncoder(p.w).Encode(recs)
		return
	}
	for _, r := range recs {
		fmt.Fprintln(p.w, formatRecord(r))
	}
}

// record prints a single record; nil prints as <absent> or JSON null.
func (p *printer) record(r models.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		json.NewEncoder(p.w).Encode(r)
		return
	}
	fmt.Fprintln(p.w, formatRecord(r))
}

func (p *printer) event(ev models.MutationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		json.NewEncoder(p.w).Encode(eventLine{Action: ev.Action, Record: ev.Record})
		return
	}
	fmt.Fprintf(p.w, "%-6s %s\n", ev.Action, formatRecord(ev.Record))
}

func statusOf(collection string, v livesync.View) statusLine {
	st := statusLine{Collection: collection, State: v.State.String(), Count: len(v.Records)}
	if v.Err != nil {
		st.Error = v.Err.Error()
	}
	return st
}

// formatRecord renders "id key=value ..." with the remaining keys sorted.
func formatRecord(r models.Record) string {
	if r == nil {
		return "<absent>"
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(r.ID())
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		if s, ok := r[k].(string); ok {
			b.WriteString(s)
			continue
		}
		v, err := json.Marshal(r[k])
		if err != nil {
			v = []byte(fmt.Sprint(r[k]))
		}
		b.Write(v)
	}
	return b.String()
}
