package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

// ConversationStore persists per-user chat transcripts so context survives
// bot restarts. Ownership is checked on every lookup so one operator can
// never read another operator's history.
type ConversationStore interface {
	// GetOrCreateConversation resolves convID to a conversation owned by
	// userID, creating it on first use.
	GetOrCreateConversation(ctx context.Context, userID string, convID uuid.UUID) (uuid.UUID, error)

	// AppendMessages atomically appends a turn's messages in order.
	AppendMessages(ctx context.Context, convID uuid.UUID, msgs []llm.Message) error

	// LoadHistory returns up to maxMessages of the most recent messages,
	// oldest first, ready to replay into an LLM request.
	LoadHistory(ctx context.Context, convID uuid.UUID, maxMessages int) ([]llm.Message, error)

	// DeleteConversation drops the conversation and its messages.
	DeleteConversation(ctx context.Context, convID uuid.UUID) error
}

// DefaultMaxHistoryMessages caps how much history is replayed per turn.
const DefaultMaxHistoryMessages = 100

// DefaultMaxMessageBytes caps a single stored message body (32 KB); tool
// output beyond it is truncated before persisting.
const DefaultMaxMessageBytes = 32768
