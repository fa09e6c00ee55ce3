package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/MegaGrindStone/stream-chat/internal/chat"
	"github.com/MegaGrindStone/stream-chat/internal/ui"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the chat relay")
	transcript := flag.String("transcript", "", "Write the conversation as HTML to this file on exit")
	logPath := flag.String("log", "", "Write logs to this file")
	flag.Parse()

	logger, closeLog, err := newLogger(*logPath)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	endpoint, err := url.JoinPath(*server, "/api/chat")
	if err != nil {
		log.Fatal(fmt.Errorf("invalid server url: %w", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := chat.NewClient(endpoint, logger)
	app := ui.New(client, logger)

	if err := app.Run(ctx); err != nil {
		logger.Error("Terminal client failed", slog.String("err", err.Error()))
		cancel()
		os.Exit(1)
	}

	// Replies still streaming are cut off; the transcript holds what arrived so far.
	cancel()
	app.Session().Wait()

	if *transcript == "" {
		return
	}
	if err := writeTranscript(*transcript, app.Session()); err != nil {
		log.Fatal(err)
	}
}

func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}

func writeTranscript(path string, session *chat.Session) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating transcript file: %w", err)
	}
	defer f.Close()

	if err := chat.WriteHTML(f, session.Messages()); err != nil {
		return fmt.Errorf("error writing transcript: %w", err)
	}
	return nil
}
