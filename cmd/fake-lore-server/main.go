// ABOUTME: Minimal fake lore backend for local development and E2E testing.
// ABOUTME: Usage: fake-lore-server [-addr localhost:8000] [-answers answers.yaml]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const identityHeader = "X-Device-ID"

// answerBook holds canned replies keyed by message keywords.
type answerBook struct {
	Answers []cannedAnswer `yaml:"answers"`
	Default string         `yaml:"default"`
}

type cannedAnswer struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

func (b *answerBook) lookup(message string) string {
	lowered := strings.ToLower(message)
	for _, a := range b.Answers {
		for _, kw := range a.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return a.Reply
			}
		}
	}
	if b.Default != "" {
		return b.Default
	}
	return fmt.Sprintf("I don't have lore notes on that yet, but I heard you ask: %q", message)
}

type storedMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type storedSession struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []storedMessage
}

// server keeps everything in memory, partitioned by device identity.
type server struct {
	mu       sync.Mutex
	sessions map[string]map[string]*storedSession // device -> session id -> session
	answers  *answerBook
	logger   *slog.Logger
}

func newServer(answers *answerBook) *server {
	return &server{
		sessions: make(map[string]map[string]*storedSession),
		answers:  answers,
		logger:   slog.Default().With("component", "fake-lore-server"),
	}
}

func main() {
	addr := flag.String("addr", "localhost:8000", "Listen address")
	answersPath := flag.String("answers", "", "YAML file of canned answers")
	flag.Parse()

	book := &answerBook{}
	if *answersPath != "" {
		data, err := os.ReadFile(*answersPath)
		if err != nil {
			log.Fatalf("reading answers file: %v", err)
		}
		if err := yaml.Unmarshal(data, book); err != nil {
			log.Fatalf("parsing answers file: %v", err)
		}
	}

	s := newServer(book)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)

	fmt.Printf("fake-lore-server listening on %s (%d canned answers)\n", *addr, len(book.Answers))
	log.Fatal(http.ListenAndServe(*addr, mux))
}

// device extracts the identity header, writing a 400 when it is missing.
func device(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(identityHeader))
	if id == "" {
		http.Error(w, `{"detail": "missing device identity"}`, http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := device(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	owned := s.sessions[deviceID]
	summaries := make([]map[string]any, 0, len(owned))
	for _, sess := range owned {
		summaries = append(summaries, map[string]any{
			"id":         sess.ID,
			"title":      sess.Title,
			"created_at": sess.CreatedAt,
			"updated_at": sess.UpdatedAt,
		})
	}
	s.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i]["updated_at"].(time.Time).After(summaries[j]["updated_at"].(time.Time))
	})

	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := device(w, r)
	if !ok {
		return
	}
	sessionID := r.PathValue("id")

	s.mu.Lock()
	sess := s.sessions[deviceID][sessionID]
	var payload map[string]any
	if sess != nil {
		messages := make([]storedMessage, len(sess.Messages))
		copy(messages, sess.Messages)
		payload = map[string]any{
			"session_id": sess.ID,
			"title":      sess.Title,
			"messages":   messages,
		}
	}
	s.mu.Unlock()

	if payload == nil {
		http.Error(w, `{"detail": "Session not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := device(w, r)
	if !ok {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Message == "" {
		http.Error(w, `{"detail": "session_id and message required"}`, http.StatusUnprocessableEntity)
		return
	}

	reply := s.answers.lookup(req.Message)
	now := time.Now().UTC()

	s.mu.Lock()
	owned := s.sessions[deviceID]
	if owned == nil {
		owned = make(map[string]*storedSession)
		s.sessions[deviceID] = owned
	}
	sess := owned[req.SessionID]
	if sess == nil {
		// Session existence is established by the first exchange.
		sess = &storedSession{
			ID:        req.SessionID,
			Title:     "New Conversation",
			CreatedAt: now,
			UpdatedAt: now,
		}
		owned[req.SessionID] = sess
	}
	sess.Messages = append(sess.Messages,
		storedMessage{ID: uuid.NewString(), Role: "user", Content: req.Message, CreatedAt: now},
		storedMessage{ID: uuid.NewString(), Role: "assistant", Content: reply, CreatedAt: now.Add(time.Millisecond)},
	)
	sess.UpdatedAt = now
	s.mu.Unlock()

	s.logger.Info("chat exchange", "device", deviceID, "session", req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"response": reply,
		"sources":  []map[string]any{},
	})
}
