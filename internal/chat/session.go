package chat

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/stream-chat/internal/models"
	"github.com/google/uuid"
)

// Streamer opens a streamed reply for a conversation. Client is the production implementation.
type Streamer interface {
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[Chunk, error]
}

// Session holds the in-memory state of a single conversation: the messages keyed by id and the text of
// the input field. All methods are safe for concurrent use; every state change is a single step under
// the session lock.
type Session struct {
	mu       sync.Mutex
	messages map[string]models.Message
	order    []string
	input    string

	streamer Streamer
	turns    sync.WaitGroup

	render   func(update func())
	onChange func()
	onError  func(userMessageID string, err error)

	logger *slog.Logger
}

// SessionOption configures optional Session hooks.
type SessionOption func(*Session)

// WithRender wraps every update caused by a streamed chunk, e.g. to run it on a UI goroutine or inside a
// visual transition. Without it updates are applied immediately.
func WithRender(render func(update func())) SessionOption {
	return func(s *Session) {
		s.render = render
	}
}

// WithOnChange registers a callback invoked after every state change.
func WithOnChange(fn func()) SessionOption {
	return func(s *Session) {
		s.onChange = fn
	}
}

// WithOnError registers a callback invoked when the reply to a user message fails.
func WithOnError(fn func(userMessageID string, err error)) SessionOption {
	return func(s *Session) {
		s.onError = fn
	}
}

// NewSession creates an empty conversation whose replies are fetched through streamer.
func NewSession(streamer Streamer, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		messages: make(map[string]models.Message),
		streamer: streamer,
		logger:   logger.With(slog.String("module", "session")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInput replaces the text of the input field.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// Input returns the text of the input field.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit turns the current input into a user message, clears the input and starts fetching the reply in
// the background with the whole conversation as payload. It returns the new user message, or false if
// the input is blank.
func (s *Session) Submit(ctx context.Context) (models.Message, bool) {
	s.mu.Lock()
	if strings.TrimSpace(s.input) == "" {
		s.mu.Unlock()
		return models.Message{}, false
	}

	msg := models.Message{
		ID:      uuid.NewString(),
		Role:    models.RoleUser,
		Content: s.input,
	}
	s.insert(msg)
	payload := s.snapshot()
	s.input = ""
	s.mu.Unlock()

	s.changed()

	s.turns.Add(1)
	go s.respond(ctx, msg.ID, payload)

	return msg, true
}

// Merge folds a chunk into the conversation: the first chunk of an id creates an "ai" message, later
// ones append to its content.
func (s *Session) Merge(chunk Chunk) {
	s.mu.Lock()
	existing, ok := s.messages[chunk.ID]
	if !ok {
		s.insert(models.Message{
			ID:             chunk.ID,
			Role:           models.RoleAI,
			Content:        chunk.Text,
			StreamingState: models.StreamingStateStreaming,
		})
	} else {
		existing.Content += chunk.Text
		s.messages[chunk.ID] = existing
	}
	s.mu.Unlock()

	s.changed()
}

// Messages returns a snapshot of the conversation in the order messages were created.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Message returns the message with the given id.
func (s *Session) Message(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	return msg, ok
}

// Wait blocks until every reply started by Submit has finished streaming.
func (s *Session) Wait() {
	s.turns.Wait()
}

func (s *Session) respond(ctx context.Context, userMessageID string, payload []models.Message) {
	defer s.turns.Done()

	replyID := ""
	for chunk, err := range s.streamer.Stream(ctx, payload) {
		if err != nil {
			s.logger.Error("Reply failed",
				slog.String("userMessageID", userMessageID),
				slog.String("err", err.Error()))
			s.apply(func() { s.finish(userMessageID, replyID, err) })
			if s.onError != nil {
				s.onError(userMessageID, err)
			}
			return
		}
		replyID = chunk.ID
		s.apply(func() { s.Merge(chunk) })
	}

	s.apply(func() { s.finish(userMessageID, replyID, nil) })
}

// finish marks the reply as ended. A turn that failed before its first chunk has no reply message, so
// the failure is recorded on the user message instead.
func (s *Session) finish(userMessageID, replyID string, err error) {
	id := replyID
	if id == "" {
		if err == nil {
			return
		}
		id = userMessageID
	}

	s.mu.Lock()
	msg, ok := s.messages[id]
	if ok {
		if id == replyID {
			msg.StreamingState = models.StreamingStateEnded
		}
		if err != nil {
			msg.Err = err.Error()
		}
		s.messages[id] = msg
	}
	s.mu.Unlock()

	if ok {
		s.changed()
	}
}

func (s *Session) apply(update func()) {
	if s.render == nil {
		update()
		return
	}
	s.render(update)
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// insert must be called with s.mu held.
func (s *Session) insert(msg models.Message) {
	if _, ok := s.messages[msg.ID]; !ok {
		s.order = append(s.order, msg.ID)
	}
	s.messages[msg.ID] = msg
}

// snapshot must be called with s.mu held.
func (s *Session) snapshot() []models.Message {
	msgs := make([]models.Message, 0, len(s.order))
	for _, id := range s.order {
		msgs = append(msgs, s.messages[id])
	}
	return msgs
}
