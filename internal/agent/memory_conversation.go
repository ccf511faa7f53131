package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

// InMemoryConversationStore keeps transcripts in process memory only.
// It backs tests and ad-hoc runs where no database is configured;
// everything is lost on restart.
type InMemoryConversationStore struct {
	mu    sync.RWMutex
	convs map[uuid.UUID]*memConversation
}

type memConversation struct {
	owner    string
	messages []llm.Message
}

// NewInMemoryConversationStore creates an ephemeral conversation store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{convs: make(map[uuid.UUID]*memConversation)}
}

func (s *InMemoryConversationStore) GetOrCreateConversation(
	_ context.Context, userID string, convID uuid.UUID,
) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.convs[convID]; ok {
		if conv.owner != userID {
			return uuid.Nil, fmt.Errorf("conversation belongs to a different user")
		}
		return convID, nil
	}

	s.convs[convID] = &memConversation{owner: userID}
	return convID, nil
}

func (s *InMemoryConversationStore) AppendMessages(
	_ context.Context, convID uuid.UUID, msgs []llm.Message,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return fmt.Errorf("conversation %s not found", convID)
	}
	conv.messages = append(conv.messages, msgs...)
	return nil
}

func (s *InMemoryConversationStore) LoadHistory(
	_ context.Context, convID uuid.UUID, maxMessages int,
) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[convID]
	if !ok {
		return nil, nil
	}

	window := conv.messages
	if maxMessages > 0 && len(window) > maxMessages {
		window = window[len(window)-maxMessages:]
	}

	out := make([]llm.Message, len(window))
	copy(out, window)
	return out, nil
}

func (s *InMemoryConversationStore) DeleteConversation(
	_ context.Context, convID uuid.UUID,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, convID)
	return nil
}

var _ ConversationStore = (*InMemoryConversationStore)(nil)
