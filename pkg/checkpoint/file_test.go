package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

const reply = "你好, how can I assist you today?"

func TestFileStore_UntaggedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.log")

	require.NoError(t, AppendRecord(path, chat.NewLog(), nil, ModeTruncate))
	log := chat.NewLog().User("hello!")
	require.NoError(t, AppendRecord(path, log, nil, ModeAppend))
	log.Assistant(reply)
	require.NoError(t, AppendRecord(path, log, nil, ModeAppend))

	view, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, view, 3)
	assert.Equal(t, 0, view[0].Len())
	assert.True(t, view[1].Equal(chat.NewLog().User("hello!")))
	assert.True(t, view[2].Equal(chat.NewLog().User("hello!").Assistant(reply)))

	last, err := LoadLastMessages(path)
	require.NoError(t, err)
	assert.Equal(t, []*string{nil, strPtr("hello!"), strPtr(reply)}, last)
}

func TestFileStore_TaggedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmp.log")

	require.NoError(t, AppendRecord(path, chat.NewLog(), intPtr(0), ModeTruncate))
	log := chat.NewLog().User("hello!")
	require.NoError(t, AppendRecord(path, log, intPtr(3), ModeAppend))
	log.Assistant(reply)
	require.NoError(t, AppendRecord(path, log, intPtr(2), ModeAppend))

	view, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, view, 4)
	assert.Equal(t, 0, view[0].Len())
	assert.Nil(t, view[1])
	assert.True(t, view[2].Equal(chat.NewLog().User("hello!").Assistant(reply)))
	assert.True(t, view[3].Equal(chat.NewLog().User("hello!")))

	last, err := LoadLastMessages(path)
	require.NoError(t, err)
	assert.Equal(t, []*string{nil, nil, strPtr(reply), strPtr("hello!")}, last)
}

func TestFileStore_MixedTaggedAndUntagged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.log")
	log0 := chat.NewLog().User("zero")
	log3 := chat.NewLog().User("three")
	log2 := chat.NewLog().User("two")

	require.NoError(t, AppendRecord(path, log0, nil, ModeAppend))
	require.NoError(t, AppendRecord(path, log3, intPtr(3), ModeAppend))
	require.NoError(t, AppendRecord(path, log2, intPtr(2), ModeAppend))

	view, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, view, 4)
	assert.True(t, view[0].Equal(log0))
	assert.Nil(t, view[1])
	assert.True(t, view[2].Equal(log2))
	assert.True(t, view[3].Equal(log3))

	again, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, again, len(view))
	for i := range view {
		assert.True(t, view[i].Equal(again[i]), "slot %d differs between loads", i)
	}
}

func TestFileStore_LastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lww.log")

	require.NoError(t, AppendRecord(path, chat.NewLog().User("first"), intPtr(1), ModeAppend))
	require.NoError(t, AppendRecord(path, chat.NewLog().User("other"), intPtr(0), ModeAppend))
	require.NoError(t, AppendRecord(path, chat.NewLog().User("second"), intPtr(1), ModeAppend))

	view, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, view, 2)
	assert.True(t, view[1].Equal(chat.NewLog().User("second")))
}

func TestLoadView_MissingFile(t *testing.T) {
	view, err := LoadView(filepath.Join(t.TempDir(), "absent.log"))
	require.NoError(t, err)
	assert.Empty(t, view)
}

func TestLoadView_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "not_json", line: "this is not json"},
		{name: "truncated", line: `[{"role":"user","content":"hel`},
		{name: "missing_log", line: `{"chat_id": 1}`},
		{name: "negative_id", line: `{"chat_id": -1, "chat_log": []}`},
		{name: "huge_id", line: `{"chat_id": 9000000000000, "chat_log": []}`},
		{name: "id_past_limit", line: `{"chat_id": 16777216, "chat_log": []}`},
		{name: "scalar", line: `42`},
		{name: "bad_role", line: `[{"role":"robot","content":"x"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "corrupt.log")
			require.NoError(t, AppendRecord(path, chat.NewLog().User("ok"), intPtr(0), ModeAppend))
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
			require.NoError(t, err)
			_, err = f.WriteString(tt.line + "\n")
			require.NoError(t, err)
			require.NoError(t, f.Close())

			_, err = LoadView(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorruptCheckpoint)

			var ce *CorruptError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, 2, ce.Line)
		})
	}
}

func TestLoadView_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.log")
	content := "[{\"role\":\"user\",\"content\":\"a\"}]\n\n   \n{\"chat_id\":2,\"chat_log\":[]}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	view, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, view, 3)
	assert.Nil(t, view[1])
}

func TestLoadView_ObjectWithoutIDIsPositional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noid.log")
	content := `{"chat_log":[{"role":"user","content":"a"}]}` + "\n" + `[{"role":"user","content":"b"}]` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	view, err := LoadView(path)
	require.NoError(t, err)
	require.Len(t, view, 2)
	assert.True(t, view[0].Equal(chat.NewLog().User("a")))
	assert.True(t, view[1].Equal(chat.NewLog().User("b")))
}

func TestLoadViewCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "count.log")
	require.NoError(t, AppendRecord(path, chat.NewLog().User("x"), intPtr(1), ModeAppend))

	view, err := LoadViewCount(path, 4)
	require.NoError(t, err)
	require.Len(t, view, 4)
	assert.False(t, view.Done(0))
	assert.True(t, view.Done(1))
	assert.False(t, view.Done(3))

	view, err = LoadViewCount(path, 1)
	require.NoError(t, err)
	assert.Len(t, view, 1)
}

func TestFileStore_ResetAndClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reset.log")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, Tagged(0, chat.NewLog().User("x"))))
	require.NoError(t, store.Reset(ctx))
	require.NoError(t, store.Reset(ctx))

	recs, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Append(ctx, Untagged(chat.NewLog())), ErrStoreClosed)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func TestRecord_MarshalLine(t *testing.T) {
	data, err := Tagged(2, chat.NewLog().User("q")).MarshalLine()
	require.NoError(t, err)
	assert.JSONEq(t, `{"chat_id":2,"chat_log":[{"role":"user","content":"q"}]}`, string(data))

	data, err = Untagged(nil).MarshalLine()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = Tagged(-1, chat.NewLog()).MarshalLine()
	assert.Error(t, err)

	_, err = Tagged(MaxChatID+1, chat.NewLog()).MarshalLine()
	assert.Error(t, err)

	rec, err := UnmarshalLine([]byte(`{"chat_id":16777215,"chat_log":[]}`))
	require.NoError(t, err)
	assert.Equal(t, MaxChatID, *rec.ChatID)
}
