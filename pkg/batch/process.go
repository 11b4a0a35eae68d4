package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
)

// BuildFunc turns one prompt into a finished conversation.
type BuildFunc func(ctx context.Context, prompt string) (*chat.Log, error)

// ProcessConfig controls Process.
type ProcessConfig struct {
	// Clear discards existing progress first.
	Clear  bool
	Logger *zap.Logger
}

// Process builds a conversation for every prompt the checkpoint does not
// already hold, one at a time, persisting each under its prompt index. It
// returns the checkpoint view sized to len(prompts).
//
// A build or persist error stops the walk; everything saved so far is kept
// and the next call resumes after it.
func Process(ctx context.Context, store checkpoint.Store, prompts []string, build BuildFunc, cfg ProcessConfig) (checkpoint.View, error) {
	if store == nil || build == nil {
		return nil, fmt.Errorf("%w: store and build function are required", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Clear {
		if err := store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("clear checkpoint: %w", err)
		}
	}

	view, err := checkpoint.LoadStoreView(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	view = view.Resize(len(prompts))

	built := 0
	for i, prompt := range prompts {
		if view.Done(i) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return view, err
		}

		log, err := build(ctx, prompt)
		if err != nil {
			return view, fmt.Errorf("build conversation %d: %w", i, err)
		}
		if err := store.Append(ctx, checkpoint.Tagged(i, log)); err != nil {
			return view, fmt.Errorf("persist conversation %d: %w", i, err)
		}
		view[i] = log
		built++
	}

	logger.Info("Processed prompts",
		zap.Int("prompts", len(prompts)),
		zap.Int("built", built),
	)
	return view, nil
}

// ProcessLastMessages runs Process and returns the content of each
// conversation's last message; nil marks prompts left unbuilt.
func ProcessLastMessages(ctx context.Context, store checkpoint.Store, prompts []string, build BuildFunc, cfg ProcessConfig) ([]*string, error) {
	view, err := Process(ctx, store, prompts, build, cfg)
	if err != nil {
		return nil, err
	}
	return view.LastMessages(), nil
}
