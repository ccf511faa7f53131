package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nguyenhx22/chatops-ai-bot/internal/agent"
	"github.com/nguyenhx22/chatops-ai-bot/internal/entitlement"
	"github.com/nguyenhx22/chatops-ai-bot/internal/llm"
	"github.com/nguyenhx22/chatops-ai-bot/internal/observability"
)

// ErrNoSession is returned for users who have not signed in (or whose
// session was torn down).
var ErrNoSession = errors.New("no active session")

const directSystemPrompt = "You are a helpful assistant. Answer the following questions considering the history of the conversation."

// directHistoryWindow caps how much transcript the direct chat carries.
const directHistoryWindow = 6

// Controller routes user turns to the right agent for the session's active
// context, maintains transcripts, and handles tool-initiated questions.
// Safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*Session

	agents       map[Context]agent.Agent
	direct       llm.Provider
	store        entitlement.Store
	suggester    *agent.Suggester
	metrics      *observability.MetricsCollector // nil = metrics disabled
	logger       *slog.Logger
	defaultModel string
}

// NewController creates a session controller. direct is the provider used
// for tool-less chat; agents for CF and IRA are attached with WithAgent.
func NewController(store entitlement.Store, direct llm.Provider, logger *slog.Logger) *Controller {
	return &Controller{
		sessions: make(map[string]*Session),
		agents:   make(map[Context]agent.Agent),
		direct:   direct,
		store:    store,
		logger:   logger,
	}
}

// WithAgent attaches the agent serving a context.
func (c *Controller) WithAgent(ctx Context, a agent.Agent) *Controller {
	c.agents[ctx] = a
	return c
}

// WithSuggester attaches a prompt suggester.
func (c *Controller) WithSuggester(s *agent.Suggester) *Controller {
	c.suggester = s
	return c
}

// WithMetrics attaches a metrics collector.
func (c *Controller) WithMetrics(m *observability.MetricsCollector) *Controller {
	c.metrics = m
	return c
}

// WithDefaultModel sets the model recorded on new sessions.
func (c *Controller) WithDefaultModel(model string) *Controller {
	c.defaultModel = model
	return c
}

// StartSession creates (or replaces) the session for a user after login.
func (c *Controller) StartSession(userID, displayName string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := newSession(userID, displayName, c.defaultModel)
	c.sessions[userID] = s
	c.logger.Info("session started",
		slog.String("user_id", userID),
		slog.String("context", string(s.ActiveContext)),
	)
	return s
}

// EndSession tears down a user's session at logout.
func (c *Controller) EndSession(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, userID)
	c.logger.Info("session ended", slog.String("user_id", userID))
}

// Get returns the session for a user, or an error when none is active.
func (c *Controller) Get(userID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[userID]
	if !ok {
		return nil, fmt.Errorf("%w for user %s", ErrNoSession, userID)
	}
	return s, nil
}

// SwitchContext changes the session's active context. The per-context
// transcripts are preserved; a pending tool question is dropped because it
// belonged to the surface being left.
func (c *Controller) SwitchContext(userID string, to Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[userID]
	if !ok {
		return fmt.Errorf("%w for user %s", ErrNoSession, userID)
	}
	s.ActiveContext = to
	s.pendingQuestion = ""
	c.logger.Info("session context switched",
		slog.String("user_id", userID),
		slog.String("context", string(to)),
	)
	return nil
}

// SetModel changes the model used for subsequent turns.
func (c *Controller) SetModel(userID, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[userID]
	if !ok {
		return fmt.Errorf("%w for user %s", ErrNoSession, userID)
	}
	s.Model = model
	return nil
}

// SetTemperature changes the sampling temperature for subsequent turns.
func (c *Controller) SetTemperature(userID string, temperature float64) error {
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", temperature)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[userID]
	if !ok {
		return fmt.Errorf("%w for user %s", ErrNoSession, userID)
	}
	s.Temperature = temperature
	return nil
}

// HandleMessage processes one user turn in the session's active context and
// returns the assistant reply. Provider and agent failures are mapped to
// readable replies rather than errors: the conversation must survive a bad
// turn.
func (c *Controller) HandleMessage(ctx context.Context, userID, message string) (string, error) {
	c.mu.Lock()
	s, ok := c.sessions[userID]
	if !ok {
		c.mu.Unlock()
		return "", fmt.Errorf("%w for user %s", ErrNoSession, userID)
	}
	active := s.ActiveContext
	temperature := s.Temperature
	convID := s.conversationIDs[active]
	transcript := s.Transcript()
	// The incoming message answers any pending tool question.
	s.pendingQuestion = ""
	c.mu.Unlock()

	correlationID := uuid.New().String()

	c.logger.InfoContext(ctx, "handling chat turn",
		slog.String("user_id", userID),
		slog.String("context", string(active)),
		slog.String("correlation_id", correlationID),
	)

	var reply string
	var pending string
	status := "ok"

	switch active {
	case ContextDirect:
		reply, status = c.directTurn(ctx, transcript, message, temperature)
	default:
		reply, pending, status = c.agentTurn(ctx, s, active, convID, correlationID, message, temperature)
	}

	c.mu.Lock()
	if cur, stillThere := c.sessions[userID]; stillThere {
		cur.appendTurn(message, reply)
		cur.pendingQuestion = pending
	}
	c.mu.Unlock()

	c.metrics.RecordChatTurn(string(active), status)
	return reply, nil
}

func (c *Controller) agentTurn(
	ctx context.Context,
	s *Session,
	active Context,
	convID uuid.UUID,
	correlationID, message string,
	temperature float64,
) (reply, pending, status string) {
	a, ok := c.agents[active]
	if !ok {
		return fmt.Sprintf("Error: No agent is configured for context %s.", active), "", "error"
	}

	var contextData string
	switch active {
	case ContextCloudFoundry:
		contextData = cloudFoundryKnowledge(ctx, c.store, s.UserID)
	case ContextIRA:
		contextData = iraKnowledge()
	}

	resp, err := a.Process(ctx, &agent.Input{
		UserID:         s.UserID,
		Message:        message,
		CorrelationID:  correlationID,
		ConversationID: convID.String(),
		Temperature:    &temperature,
		ContextData:    contextData,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "agent turn failed",
			slog.String("user_id", s.UserID),
			slog.String("context", string(active)),
			slog.String("error", err.Error()),
		)
		if llm.IsAuthError(err) {
			return "Invalid API key. Please check the configured LLM API key.", "", "error"
		}
		return fmt.Sprintf("An unexpected error occurred: %s", err.Error()), "", "error"
	}

	if resp.AwaitingHumanInput {
		return resp.Message, resp.Message, "awaiting_input"
	}
	return resp.Message, "", "ok"
}

// directTurn talks to the model without tools, carrying a short history window.
func (c *Controller) directTurn(ctx context.Context, transcript []llm.Message, message string, temperature float64) (string, string) {
	start := len(transcript) - directHistoryWindow
	if start < 0 {
		start = 0
	}
	messages := append(append([]llm.Message{}, transcript[start:]...), llm.Message{
		Role:    llm.RoleUser,
		Content: message,
	})

	resp, err := c.direct.SendMessage(ctx, &llm.Request{
		SystemPrompt: directSystemPrompt,
		Messages:     messages,
		Temperature:  &temperature,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "direct turn failed", slog.String("error", err.Error()))
		if llm.IsAuthError(err) {
			return "Invalid API key. Please check the configured LLM API key.", "error"
		}
		return fmt.Sprintf("An unexpected error occurred: %s", err.Error()), "error"
	}
	if resp.Content == "" {
		return "The LLM returned an empty response. Please try rephrasing.", "error"
	}
	return resp.Content, "ok"
}

// Suggestions generates follow-up prompts for the session's active context.
func (c *Controller) Suggestions(ctx context.Context, userID string, n int) ([]string, error) {
	c.mu.Lock()
	s, ok := c.sessions[userID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w for user %s", ErrNoSession, userID)
	}
	active := s.ActiveContext
	transcript := s.Transcript()
	c.mu.Unlock()

	if c.suggester == nil {
		return nil, nil
	}
	return c.suggester.Generate(ctx, toolDocs(active), transcript, n), nil
}
