// Command auditor consumes sale events from the queue and appends one line
// per checkout to an audit file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/iliyamo/seat-reservation-engine/internal/config"
	"github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
	"github.com/iliyamo/seat-reservation-engine/internal/queue"
)

func main() {
	envFile := flag.String("env-file", "", "path to a .env file (default .env when present)")
	out := flag.String("out", "", "audit file, overrides AUDIT_LOG_FILE")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Load()
	if !cfg.AMQP.Enabled {
		fmt.Fprintln(os.Stderr, "RABBITMQ_URL or AMQP_URL is required")
		os.Exit(1)
	}
	if *out != "" {
		cfg.AMQP.AuditLog = *out
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("app", "auditor"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.AuditLog, log)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("auditor stopped", sl.Err(err))
		os.Exit(1)
	}
}
