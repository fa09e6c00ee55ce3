package handlers

import (
	"context"
	"html/template"
	"iter"
	"log/slog"
	"time"

	streamchat "github.com/MegaGrindStone/stream-chat"
	"github.com/MegaGrindStone/stream-chat/internal/models"
	"github.com/go-playground/validator/v10"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context
// and a sequence of messages, returning an iterator that yields the text delta of every unit received
// from the upstream stream and potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Main handles the core functionality of the chat application: serving the browser UI and relaying
// completion streams from the LLM to the caller.
type Main struct {
	templates *template.Template
	validate  *validator.Validate

	llm         LLM
	metrics     Metrics
	maxDuration time.Duration

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided LLM implementation. It parses the required HTML
// templates from the embedded filesystem. A positive maxDuration bounds how long a single relayed stream
// may run.
func NewMain(llm LLM, metrics Metrics, maxDuration time.Duration, logger *slog.Logger) (Main, error) {
	tmpl, err := template.ParseFS(
		streamchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	return Main{
		templates:   tmpl,
		validate:    validator.New(),
		llm:         llm,
		metrics:     metrics,
		maxDuration: maxDuration,
		logger:      logger.With(slog.String("module", "main")),
	}, nil
}
