package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/chatbatch/pkg/batch"
	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
	"github.com/aixgo-dev/chatbatch/pkg/client"
)

// storeFlags selects the checkpoint backend for a command.
type storeFlags struct {
	path  string
	redis string
	name  string
}

func (a *app) httpClient() *http.Client {
	return &http.Client{}
}

func (a *app) rawClient() (*client.Client, error) {
	return client.New(a.cfg.APIKey,
		client.WithBaseURL(a.cfg.BaseURL),
		client.WithChatURL(a.cfg.ChatURL),
		client.WithHTTPClient(a.httpClient()),
	)
}

// completer returns the configured Completer: go-openai when use_sdk is set,
// the raw HTTP client otherwise.
func (a *app) completer() (client.Completer, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	if a.cfg.UseSDK {
		return client.NewSDKCompleter(a.cfg.APIKey, a.cfg.BaseURL, a.httpClient())
	}
	return a.rawClient()
}

// openStore opens a Redis store when an address is known, the file store
// otherwise. Flags take precedence over the configuration.
func (a *app) openStore(f storeFlags) (checkpoint.Store, error) {
	addr := f.redis
	if addr == "" {
		addr = a.cfg.Checkpoint.RedisAddr
	}
	path := f.path
	if path == "" {
		path = a.cfg.Checkpoint.Path
	}

	if addr != "" {
		name := f.name
		if name == "" {
			name = path
		}
		if name == "" {
			return nil, errors.New("redis checkpoint needs a name (--name or --checkpoint)")
		}
		return checkpoint.NewRedisStore(checkpoint.RedisConfig{
			Addr:     addr,
			Password: a.cfg.Checkpoint.RedisPassword,
			DB:       a.cfg.Checkpoint.RedisDB,
			Prefix:   a.cfg.Checkpoint.RedisPrefix,
			Name:     name,
		})
	}

	if path == "" {
		return nil, errors.New("checkpoint path is required (--checkpoint or checkpoint.path)")
	}
	store, err := checkpoint.NewFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	return store, nil
}

func (a *app) batchConfig(reset bool) batch.Config {
	return batch.Config{
		Model:             a.cfg.Model,
		Options:           a.cfg.Options,
		MaxRequests:       a.cfg.Batch.MaxRequests,
		Concurrency:       a.cfg.Batch.Concurrency,
		Timeout:           a.cfg.Batch.Timeout,
		Jitter:            a.cfg.Batch.Jitter,
		RequestsPerSecond: a.cfg.Batch.RequestsPerSecond,
		ClearCheckpoint:   reset,
	}
}

func (s *storeFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&s.path, "checkpoint", "", "checkpoint file (JSON lines)")
	flags.StringVar(&s.redis, "redis", "", "store the checkpoint in Redis at this address")
	flags.StringVar(&s.name, "name", "", "checkpoint name inside Redis (defaults to --checkpoint)")
}
