package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

func translator(calls *int) BuildFunc {
	return func(_ context.Context, msg string) (*chat.Log, error) {
		*calls++
		return chat.NewLog().
			System("You are a helpful translator for numbers.").
			User(fmt.Sprintf("Please translate the digit to Roman numerals: %s", msg)).
			Assistant("III"), nil
	}
}

func TestProcess_Resumes(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	calls := 0
	build := translator(&calls)

	msgs := []string{"1", "2", "3"}
	chats, err := Process(ctx, store, msgs, build, ProcessConfig{Clear: true})
	require.NoError(t, err)
	require.Len(t, chats, 3)
	for _, c := range chats {
		assert.Equal(t, 3, c.Len())
	}
	assert.Equal(t, 3, calls)

	msgs = append(msgs, "4", "5", "6")
	more, err := Process(ctx, store, msgs, build, ProcessConfig{})
	require.NoError(t, err)
	require.Len(t, more, 6)
	assert.Equal(t, 6, calls, "only new prompts are built")
	for i := range chats {
		assert.True(t, chats[i].Equal(more[i]))
	}

	last, err := ProcessLastMessages(ctx, store, msgs, build, ProcessConfig{})
	require.NoError(t, err)
	require.Len(t, last, 6)
	for i, c := range more {
		m, _ := c.Last()
		assert.Equal(t, m.Content, *last[i])
	}

	last, err = ProcessLastMessages(ctx, store, msgs[:3], build, ProcessConfig{})
	require.NoError(t, err)
	assert.Len(t, last, 3, "view is sized to the prompt list")
	assert.Equal(t, 6, calls)
}

func TestProcess_StopsOnBuildError(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	boom := errors.New("boom")

	build := func(_ context.Context, msg string) (*chat.Log, error) {
		if msg == "2" {
			return nil, boom
		}
		return chat.NewLog().User(msg).Assistant("ok"), nil
	}

	view, err := Process(ctx, store, []string{"1", "2", "3"}, build, ProcessConfig{})
	require.ErrorIs(t, err, boom)
	assert.True(t, view.Done(0))
	assert.False(t, view.Done(1))
	assert.False(t, view.Done(2))

	calls := 0
	view, err = Process(ctx, store, []string{"1", "2", "3"}, translator(&calls), ProcessConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, view.Count())
}

func TestProcess_RequiresBuild(t *testing.T) {
	_, err := Process(context.Background(), newFileStore(t), []string{"1"}, nil, ProcessConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
