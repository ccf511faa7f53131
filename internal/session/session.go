// Package session owns conversational session state: who is talking, in
// which assistant context, with which model settings, and what has been
// said. Sessions are explicit values created at login and mutated only
// through the Controller; nothing here lives in package-level state.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

// Context selects which assistant surface a session is talking to.
type Context string

const (
	// ContextCloudFoundry routes turns to the Cloud Foundry operations agent.
	ContextCloudFoundry Context = "CF"
	// ContextIRA routes turns to the incident-reliability agent.
	ContextIRA Context = "IRA"
	// ContextDirect talks to the model without tool access.
	ContextDirect Context = "DIRECT"
)

// ParseContext validates a context string from user input.
func ParseContext(s string) (Context, error) {
	switch Context(s) {
	case ContextCloudFoundry, ContextIRA, ContextDirect:
		return Context(s), nil
	}
	return "", fmt.Errorf("unknown context %q (want CF, IRA, or DIRECT)", s)
}

// DefaultTemperature matches the conservative sampling default for
// operational conversations.
const DefaultTemperature = 0.7

// Session is one user's conversational state. Each context keeps its own
// transcript and its own conversation ID, so switching context never leaks
// history between surfaces.
type Session struct {
	UserID      string
	DisplayName string
	CreatedAt   time.Time

	ActiveContext Context
	Model         string
	Temperature   float64

	transcripts     map[Context][]llm.Message
	conversationIDs map[Context]uuid.UUID

	// pendingQuestion is set while a tool waits for the user's answer.
	pendingQuestion string
}

func newSession(userID, displayName, model string) *Session {
	s := &Session{
		UserID:          userID,
		DisplayName:     displayName,
		CreatedAt:       time.Now().UTC(),
		ActiveContext:   ContextCloudFoundry,
		Model:           model,
		Temperature:     DefaultTemperature,
		transcripts:     make(map[Context][]llm.Message),
		conversationIDs: make(map[Context]uuid.UUID),
	}
	for _, c := range []Context{ContextCloudFoundry, ContextIRA, ContextDirect} {
		s.conversationIDs[c] = uuid.New()
	}
	return s
}

// Transcript returns a copy of the active context's transcript.
func (s *Session) Transcript() []llm.Message {
	t := s.transcripts[s.ActiveContext]
	cp := make([]llm.Message, len(t))
	copy(cp, t)
	return cp
}

// AwaitingInput reports whether a tool question is pending, and the question.
func (s *Session) AwaitingInput() (string, bool) {
	return s.pendingQuestion, s.pendingQuestion != ""
}

func (s *Session) appendTurn(user, assistant string) {
	s.transcripts[s.ActiveContext] = append(s.transcripts[s.ActiveContext],
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
}
