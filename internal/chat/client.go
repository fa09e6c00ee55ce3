package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/MegaGrindStone/stream-chat/internal/models"
	"github.com/google/uuid"
)

// Chunk is a piece of decoded text of an AI reply, tagged with the id of the reply it belongs to.
type Chunk struct {
	ID   string
	Text string
}

var (
	// ErrRequestFailed is returned when the relay answers with a non-2xx status.
	ErrRequestFailed = errors.New("failed to make a request")
	// ErrEmptyBody is returned when the relay answers without a response body.
	ErrEmptyBody = errors.New("body is empty")
)

const readBufferSize = 32 * 1024

// Client talks to the chat relay endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client

	logger *slog.Logger
}

// NewClient creates a Client posting conversations to endpoint, e.g. http://localhost:8080/api/chat.
func NewClient(endpoint string, logger *slog.Logger) Client {
	return Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     logger.With(slog.String("module", "chat-client")),
	}
}

// Stream posts messages to the relay and yields the reply as it arrives. A single id is generated per
// call, so every chunk of one reply carries the same id. The iterator yields ErrRequestFailed or
// ErrEmptyBody before any chunk if the relay response is unusable, and a wrapped read error if the
// body breaks off mid-stream.
func (c Client) Stream(ctx context.Context, messages []models.Message) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		id := uuid.NewString()

		if messages == nil {
			messages = []models.Message{}
		}
		body, err := json.Marshal(messages)
		if err != nil {
			yield(Chunk{}, fmt.Errorf("error marshaling messages: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			yield(Chunk{}, fmt.Errorf("error creating request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			yield(Chunk{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.logger.Error("Relay rejected request", slog.Int("status", resp.StatusCode))
			yield(Chunk{}, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status))
			return
		}
		if resp.Body == nil || resp.Body == http.NoBody {
			yield(Chunk{}, ErrEmptyBody)
			return
		}

		buf := make([]byte, readBufferSize)
		var pending []byte
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				text, rest := splitIncompleteRune(pending)
				pending = append(pending[:0], rest...)
				if text != "" {
					if !yield(Chunk{ID: id, Text: text}, nil) {
						return
					}
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				yield(Chunk{}, fmt.Errorf("error reading response: %w", err))
				return
			}
		}

		if len(pending) > 0 {
			yield(Chunk{ID: id, Text: string(pending)}, nil)
		}
	}
}

// splitIncompleteRune returns the decodable prefix of b as text and the trailing bytes of a UTF-8
// sequence that was cut short by the read boundary.
func splitIncompleteRune(b []byte) (string, []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			break
		}
		return string(b[:i]), b[i:]
	}
	return string(b), nil
}
