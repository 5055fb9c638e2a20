// Command watch prints the events of one job as JSON lines until the job
// reports its terminal event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dontdude/vedit/internal/config"
	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/platform/broker"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s <job-id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	jobID := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := broker.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("Redis unavailable", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	channel := broker.NewRedis(rdb, cfg.KeyPrefix, cfg.EventTTL, cfg.EventHistoryMax)
	last, err := watch(ctx, channel, jobID, json.NewEncoder(os.Stdout))
	if err != nil {
		logger.Error("Watch failed", "jobID", jobID, "error", err)
		os.Exit(1)
	}
	if last.Type == domain.EventError {
		os.Exit(3)
	}
}

// watch writes history then live events of jobID to enc, skipping events
// already written, and returns the terminal event.
func watch(ctx context.Context, channel domain.Channel, jobID string, enc *json.Encoder) (domain.Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	live, err := channel.Subscribe(ctx, jobID)
	if err != nil {
		return domain.Event{}, err
	}
	history, err := channel.History(ctx, jobID)
	if err != nil {
		slog.Warn("History unavailable", "jobID", jobID, "error", err)
	}

	var lastSeq int64
	write := func(e domain.Event) (bool, error) {
		if e.Seq <= lastSeq {
			return false, nil
		}
		lastSeq = e.Seq
		return e.Terminal(), enc.Encode(e)
	}

	for _, e := range history {
		done, err := write(e)
		if err != nil || done {
			return e, err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		case e, ok := <-live:
			if !ok {
				return domain.Event{}, fmt.Errorf("subscription to job %s closed", jobID)
			}
			done, err := write(e)
			if err != nil || done {
				return e, err
			}
		}
	}
}
