package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/stream-chat/internal/models"
)

// maxRequestBodySize caps the size of the message list accepted by HandleChat.
const maxRequestBodySize = 1 << 20

// messagePayload is the wire shape of a message. Pointer fields let validation tell a missing field
// apart from an empty one.
type messagePayload struct {
	ID      *string `validate:"required"`
	Role    *string `validate:"required,oneof=user ai"`
	Content *string `validate:"required"`
}

var (
	errNotArray     = errors.New("request body must be a JSON array of messages")
	errTrailingData = errors.New("unexpected data after the message array")
)

// HandleChat relays a streamed completion for the posted conversation. It accepts a JSON array of
// {id, role, content} messages, opens a completion stream on the LLM and forwards every text delta as a
// chunk of a plain-text chunked response.
//
// A body that doesn't match the message shape is rejected with 400. If the upstream stream fails before
// yielding anything the handler responds with 502. Once the 200 header is sent a failure can no longer be
// reported in-band, so the connection is aborted and the client observes a truncated body.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messages, err := m.decodeMessages(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		m.logger.Error("Invalid chat request", slog.String(errLoggerKey, err.Error()))
		m.metrics.recordRequest(statusInvalid)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if m.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.maxDuration)
		defer cancel()
	}

	m.metrics.StreamsInFlight.Inc()
	defer m.metrics.StreamsInFlight.Dec()
	start := time.Now()
	defer m.metrics.recordStream(start)

	next, stop := iter.Pull2(m.llm.Chat(ctx, messages))
	defer stop()

	// The first unit is pulled before the header goes out so that a stream that can't be opened still
	// gets a proper status code.
	delta, err, ok := next()
	if err != nil {
		m.logger.Error("Failed to open upstream stream", slog.String(errLoggerKey, err.Error()))
		m.metrics.recordRequest(statusUpstreamError)
		http.Error(w, "Failed to get a response from the model", http.StatusBadGateway)
		return
	}

	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	chunks := 0
	for ok {
		if delta != "" {
			if _, err := io.WriteString(w, delta); err != nil {
				m.logger.Warn("Client went away", slog.String(errLoggerKey, err.Error()))
				m.metrics.recordRequest(statusAborted)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			chunks++
			m.metrics.ChunksTotal.Inc()
		}

		delta, err, ok = next()
		if err != nil {
			m.logger.Error("Upstream stream failed",
				slog.Int("chunks", chunks),
				slog.String(errLoggerKey, err.Error()))
			m.metrics.recordRequest(statusAborted)
			panic(http.ErrAbortHandler)
		}
	}

	// Providers end the stream quietly when the context is cancelled, so a client that went away or a
	// stream cut by maxDuration looks like a normal end here.
	if err := ctx.Err(); err != nil {
		m.logger.Warn("Stream ended early",
			slog.Int("chunks", chunks),
			slog.String(errLoggerKey, err.Error()))
		m.metrics.recordRequest(statusAborted)
		return
	}

	m.logger.Debug("Stream relayed",
		slog.Int("messages", len(messages)),
		slog.Int("chunks", chunks),
		slog.Duration("took", time.Since(start)))
	m.metrics.recordRequest(statusOK)
}

func (m Main) decodeMessages(body io.Reader) ([]models.Message, error) {
	dec := json.NewDecoder(body)

	var elements []map[string]json.RawMessage
	if err := dec.Decode(&elements); err != nil {
		return nil, fmt.Errorf("%w: %w", errNotArray, err)
	}
	if elements == nil {
		return nil, errNotArray
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}

	messages := make([]models.Message, len(elements))
	for i, element := range elements {
		p, err := payloadFromElement(element)
		if err != nil {
			return nil, fmt.Errorf("invalid message at index %d: %w", i, err)
		}
		if err := m.validate.Struct(p); err != nil {
			return nil, fmt.Errorf("invalid message at index %d: %w", i, err)
		}
		messages[i] = models.Message{
			ID:      *p.ID,
			Role:    models.Role(*p.Role),
			Content: *p.Content,
		}
	}
	return messages, nil
}

// payloadFromElement looks fields up by their exact key. Decoding straight into messagePayload would
// match keys case-insensitively. Unknown keys are ignored.
func payloadFromElement(element map[string]json.RawMessage) (messagePayload, error) {
	var p messagePayload
	fields := []struct {
		key string
		dst **string
	}{
		{"id", &p.ID},
		{"role", &p.Role},
		{"content", &p.Content},
	}
	for _, f := range fields {
		raw, ok := element[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return messagePayload{}, fmt.Errorf("field %s: %w", f.key, err)
		}
	}
	return p, nil
}
