// Package testutil provides shared fixtures for streaming tests: a
// scripted SSE server that plays one canned body per hop, builders for
// SSE event frames, and the canned tools used by the end-to-end
// scenarios.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/calebwray/relay"
)

// Hop is one scripted HTTP response.
type Hop struct {
	Status int
	Header http.Header
	Body   string
}

// Server plays scripted hops in order and captures request bodies.
type Server struct {
	t    *testing.T
	srv  *httptest.Server
	hops []Hop

	mu       sync.Mutex
	requests [][]byte
	headers  []http.Header
}

// NewServer starts a server that answers the n-th request with the
// n-th hop. Requests beyond the script fail the test.
func NewServer(t *testing.T, hops ...Hop) *Server {
	t.Helper()
	s := &Server{t: t, hops: hops}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// NewSSEServer starts a server that streams each body as a 200
// text/event-stream response, one per request.
func NewSSEServer(t *testing.T, bodies ...string) *Server {
	t.Helper()
	hops := make([]Hop, 0, len(bodies))
	for _, body := range bodies {
		hops = append(hops, Hop{Status: http.StatusOK, Body: body})
	}
	return NewServer(t, hops...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, body)
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	if n >= len(s.hops) {
		s.t.Errorf("unexpected request %d beyond scripted %d hops", n+1, len(s.hops))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	hop := s.hops[n]
	for key, values := range hop.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if hop.Status == http.StatusOK {
		w.Header().Set("Content-Type", "text/event-stream")
	}
	w.WriteHeader(hop.Status)
	_, _ = io.WriteString(w, hop.Body)
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.srv.URL }

// RequestCount reports how many requests the server has received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// RequestBody returns the captured body of the n-th request.
func (s *Server) RequestBody(n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.requests) {
		s.t.Fatalf("request %d not captured (have %d)", n, len(s.requests))
	}
	return s.requests[n]
}

// RequestHeader returns the captured headers of the n-th request.
func (s *Server) RequestHeader(n int) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.headers) {
		s.t.Fatalf("request %d not captured (have %d)", n, len(s.headers))
	}
	return s.headers[n]
}

// Event renders one SSE frame.
func Event(name, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

// MessageStart renders a message_start frame.
func MessageStart(id, model string) string {
	return Event("message_start", fmt.Sprintf(
		`{"type":"message_start","message":{"id":%q,"model":%q,"usage":{"input_tokens":12,"output_tokens":1}}}`,
		id, model))
}

// TextBlockStart renders a content_block_start for a text block.
func TextBlockStart(index int) string {
	return Event("content_block_start", fmt.Sprintf(
		`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index))
}

// TextDelta renders a text_delta frame.
func TextDelta(index int, text string) string {
	quoted, _ := json.Marshal(text)
	return Event("content_block_delta", fmt.Sprintf(
		`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}`, index, quoted))
}

// ToolUseBlockStart renders a content_block_start for a tool_use block.
func ToolUseBlockStart(index int, id, name string) string {
	return Event("content_block_start", fmt.Sprintf(
		`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":%q,"name":%q,"input":{}}}`,
		index, id, name))
}

// InputJSONDelta renders an input_json_delta frame with a partial JSON
// fragment.
func InputJSONDelta(index int, fragment string) string {
	quoted, _ := json.Marshal(fragment)
	return Event("content_block_delta", fmt.Sprintf(
		`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}`,
		index, quoted))
}

// ThinkingBlockStart renders a content_block_start for a thinking
// block.
func ThinkingBlockStart(index int) string {
	return Event("content_block_start", fmt.Sprintf(
		`{"type":"content_block_start","index":%d,"content_block":{"type":"thinking","thinking":""}}`, index))
}

// ThinkingDelta renders a thinking_delta frame.
func ThinkingDelta(index int, text string) string {
	quoted, _ := json.Marshal(text)
	return Event("content_block_delta", fmt.Sprintf(
		`{"type":"content_block_delta","index":%d,"delta":{"type":"thinking_delta","thinking":%s}}`, index, quoted))
}

// SignatureDelta renders a signature_delta frame.
func SignatureDelta(index int, signature string) string {
	return Event("content_block_delta", fmt.Sprintf(
		`{"type":"content_block_delta","index":%d,"delta":{"type":"signature_delta","signature":%q}}`, index, signature))
}

// CitationsDelta renders a citations_delta frame with the given raw
// citation object.
func CitationsDelta(index int, citation string) string {
	return Event("content_block_delta", fmt.Sprintf(
		`{"type":"content_block_delta","index":%d,"delta":{"type":"citations_delta","citation":%s}}`, index, citation))
}

// BlockStop renders a content_block_stop frame.
func BlockStop(index int) string {
	return Event("content_block_stop", fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index))
}

// MessageDelta renders a message_delta frame carrying a stop reason.
func MessageDelta(stopReason string) string {
	return Event("message_delta", fmt.Sprintf(
		`{"type":"message_delta","delta":{"stop_reason":%q},"usage":{"output_tokens":7}}`, stopReason))
}

// MessageStop renders a message_stop frame.
func MessageStop() string {
	return Event("message_stop", `{"type":"message_stop"}`)
}

// Ping renders a ping frame.
func Ping() string {
	return Event("ping", `{"type":"ping"}`)
}

// TextTurn renders a complete single-text-block turn ending in
// end_turn.
func TextTurn(id, model string, deltas ...string) string {
	body := MessageStart(id, model) + TextBlockStart(0)
	for _, d := range deltas {
		body += TextDelta(0, d)
	}
	return body + BlockStop(0) + MessageDelta("end_turn") + MessageStop()
}

// SearchTool returns the canned search tool from the seed scenario.
func SearchTool() relay.Tool {
	return relay.NewTool("search", "Search the web for current information",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
			},
			"required": []string{"query"},
		},
		func(args map[string]any) (string, error) {
			return "Tigers game is at 3pm in Detroit today.", nil
		})
}

// WeatherTool returns the canned weather tool from the seed scenario.
func WeatherTool() relay.Tool {
	return relay.NewTool("weather", "Get the current weather for a city",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "description": "City name"},
			},
			"required": []string{"city"},
		},
		func(args map[string]any) (string, error) {
			return "The weather in Detroit is 75° and sunny.", nil
		})
}
