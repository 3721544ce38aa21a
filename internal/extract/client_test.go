package extract

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/munin/internal/apperr"
)

// fakeUpstream mimics the generate endpoint wire protocol: it receives
// the prompt and answers with a scripted response per call.
type fakeUpstream struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	respond func(call int, prompt string) (status int, response string)
}

func (f *fakeUpstream) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	call := f.calls
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	status, response := f.respond(call, req.Prompt)
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream exploded"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"response": response, "done": true})
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestClient(t *testing.T, f *fakeUpstream) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	c, err := New(srv.URL+"/api/generate", "test-model", 5*time.Second, 2, logger)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExtract_ValidObject(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusOK, "```json\n{\"title\":\"Reminders\",\"summary\":\"Errand and call reminder\",\"tags\":[\"todo\",\"personal\"],\"content\":\"Buy milk tomorrow at 9am, call mom\"}\n```"
	}}
	c := newTestClient(t, f)

	note, err := c.Extract(t.Context(), "Buy milk tomorrow at 9am, call mom")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if note.Title != "Reminders" || note.Summary != "Errand and call reminder" {
		t.Errorf("unexpected note: %+v", note)
	}
	if len(note.Tags) != 2 || note.Tags[0] != "todo" || note.Tags[1] != "personal" {
		t.Errorf("unexpected tags: %v", note.Tags)
	}
	if note.Content != "Buy milk tomorrow at 9am, call mom" {
		t.Errorf("unexpected content: %q", note.Content)
	}
	if f.callCount() != 1 {
		t.Errorf("calls = %d, want 1", f.callCount())
	}
}

func TestExtract_BodyAliasAccepted(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusOK, `{"title":"T","summary":"","tags":[],"body":"the text"}`
	}}
	c := newTestClient(t, f)

	note, err := c.Extract(t.Context(), "the text")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if note.Content != "the text" {
		t.Errorf("content = %q, want body alias value", note.Content)
	}
}

func TestExtract_ArrayAnswerKeepsFirstSection(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusOK, `[{"title":"First","summary":"s","tags":["a"],"content":"c1"},{"title":"Second","summary":"s","tags":[],"content":"c2"}]`
	}}
	c := newTestClient(t, f)

	note, err := c.Extract(t.Context(), "two topics")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if note.Title != "First" {
		t.Errorf("title = %q, want First", note.Title)
	}
}

func TestExtract_MissingTagsIsSchemaError(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusOK, `{"title":"T","summary":"s","content":"c"}`
	}}
	c := newTestClient(t, f)

	_, err := c.Extract(t.Context(), "some text")
	if !errors.Is(err, apperr.ErrBadSchema) {
		t.Fatalf("err = %v, want ErrBadSchema", err)
	}
	if f.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (schema errors must not be resubmitted)", f.callCount())
	}
}

func TestExtract_RepairRecoversBrokenJSON(t *testing.T) {
	f := &fakeUpstream{respond: func(call int, prompt string) (int, string) {
		if call == 0 {
			return http.StatusOK, "sure, here is your data"
		}
		return http.StatusOK, `{"title":"Fixed","summary":"s","tags":[],"content":"c"}`
	}}
	c := newTestClient(t, f)

	note, err := c.Extract(t.Context(), "some text")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if note.Title != "Fixed" {
		t.Errorf("title = %q, want Fixed", note.Title)
	}
	if f.callCount() != 2 {
		t.Fatalf("calls = %d, want exactly 2 (one repair pass)", f.callCount())
	}
	f.mu.Lock()
	repair := f.prompts[1]
	f.mu.Unlock()
	if !strings.Contains(repair, "Fix the following") {
		t.Errorf("second call is not a repair prompt: %q", repair)
	}
}

func TestExtract_RepairStillBrokenIsUpstreamError(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusOK, "still not json"
	}}
	c := newTestClient(t, f)

	_, err := c.Extract(t.Context(), "some text")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if f.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (exactly one repair, never more)", f.callCount())
	}
}

func TestExtract_TransientFailureRetried(t *testing.T) {
	f := &fakeUpstream{respond: func(call int, _ string) (int, string) {
		if call == 0 {
			return http.StatusInternalServerError, ""
		}
		return http.StatusOK, `{"title":"T","summary":"s","tags":[],"content":"c"}`
	}}
	c := newTestClient(t, f)

	note, err := c.Extract(t.Context(), "some text")
	if err != nil {
		t.Fatalf("extract failed after transient 5xx: %v", err)
	}
	if note.Title != "T" {
		t.Errorf("unexpected note: %+v", note)
	}
	if f.callCount() != 2 {
		t.Errorf("calls = %d, want 2", f.callCount())
	}
}

func TestExtract_BadRequestNotRetried(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusBadRequest, ""
	}}
	c := newTestClient(t, f)

	_, err := c.Extract(t.Context(), "some text")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if f.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (4xx is permanent)", f.callCount())
	}
}

func TestExtract_EmptyTextRejected(t *testing.T) {
	f := &fakeUpstream{respond: func(int, string) (int, string) {
		return http.StatusOK, "{}"
	}}
	c := newTestClient(t, f)

	_, err := c.Extract(t.Context(), "   \n")
	if err == nil {
		t.Fatal("empty text should be rejected before any upstream call")
	}
	if !errors.Is(err, apperr.ErrBadSchema) {
		t.Errorf("err = %v, want ErrBadSchema (classified, not internal)", err)
	}
	if f.callCount() != 0 {
		t.Errorf("calls = %d, want 0", f.callCount())
	}
}
