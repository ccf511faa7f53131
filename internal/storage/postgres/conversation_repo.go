package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nguyenhx22/chatops-ai-bot/internal/agent"
	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
)

var _ agent.ConversationStore = (*ConversationRepository)(nil)

// ConversationRepository persists chat transcripts in the chatops database,
// next to the entitlement tables.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a ConversationRepository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreateConversation resolves convID to a conversation owned by userID,
// creating it on first use. An existing conversation owned by someone else
// is an error, never silently reassigned.
func (r *ConversationRepository) GetOrCreateConversation(ctx context.Context, userID string, convID uuid.UUID) (uuid.UUID, error) {
	var conv ConversationModel
	err := r.db.WithContext(ctx).Where("id = ?", convID).First(&conv).Error

	switch {
	case err == nil:
		if conv.UserID != userID {
			return uuid.Nil, fmt.Errorf("conversation belongs to a different user")
		}
		r.db.WithContext(ctx).Model(&conv).Update("updated_at", time.Now().UTC())
		return conv.ID, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now().UTC()
		conv = ConversationModel{
			ID:        convID,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.db.WithContext(ctx).Create(&conv).Error; err != nil {
			return uuid.Nil, fmt.Errorf("creating conversation: %w", err)
		}
		return conv.ID, nil

	default:
		return uuid.Nil, fmt.Errorf("looking up conversation: %w", err)
	}
}

// AppendMessages appends a turn's messages in one transaction. Sequence
// numbers continue from the current maximum so replay order is stable.
func (r *ConversationRepository) AppendMessages(ctx context.Context, convID uuid.UUID, msgs []llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lastSeq int
		err := tx.Model(&ConversationMessageModel{}).
			Where("conversation_id = ?", convID).
			Select("COALESCE(MAX(seq_num), 0)").
			Scan(&lastSeq).Error
		if err != nil {
			return fmt.Errorf("getting max seq_num: %w", err)
		}

		rows := make([]ConversationMessageModel, len(msgs))
		for i, msg := range msgs {
			rows[i] = toConversationMessageModel(convID, lastSeq+i+1, msg)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("inserting messages: %w", err)
		}
		return nil
	})
}

// LoadHistory returns the newest maxMessages messages, oldest first.
func (r *ConversationRepository) LoadHistory(ctx context.Context, convID uuid.UUID, maxMessages int) ([]llm.Message, error) {
	if maxMessages <= 0 {
		maxMessages = agent.DefaultMaxHistoryMessages
	}

	var rows []ConversationMessageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("seq_num DESC").
		Limit(maxMessages).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}

	// Fetched newest-first to apply the limit; flip back for replay.
	msgs := make([]llm.Message, len(rows))
	for i := range rows {
		msgs[len(rows)-1-i] = toMessage(&rows[i])
	}
	return msgs, nil
}

// DeleteConversation removes the messages and the conversation record.
// Messages go first: AutoMigrate does not install an FK cascade.
func (r *ConversationRepository) DeleteConversation(ctx context.Context, convID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&ConversationMessageModel{}).Error; err != nil {
			return fmt.Errorf("deleting conversation messages: %w", err)
		}
		if err := tx.Where("id = ?", convID).Delete(&ConversationModel{}).Error; err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		return nil
	})
}
