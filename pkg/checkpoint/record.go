package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

// MaxChatID is the largest slot index a record may carry. Loading a view
// allocates every slot up to the highest id, so ids are bounded.
const MaxChatID = 1<<24 - 1

func checkChatID(id int) error {
	if id < 0 {
		return fmt.Errorf("negative chat id %d", id)
	}
	if id > MaxChatID {
		return fmt.Errorf("chat id %d exceeds %d", id, MaxChatID)
	}
	return nil
}

// Record is one persisted line: a conversation, optionally tagged with the
// index of the conversation it belongs to.
type Record struct {
	ChatID *int
	Log    *chat.Log
}

// Tagged returns a record bound to slot id.
func Tagged(id int, log *chat.Log) Record {
	return Record{ChatID: &id, Log: log}
}

// Untagged returns a record placed after the current last slot on load.
func Untagged(log *chat.Log) Record {
	return Record{Log: log}
}

type taggedLine struct {
	ChatID  *int      `json:"chat_id"`
	ChatLog *chat.Log `json:"chat_log"`
}

// MarshalLine encodes the record as a single JSON line without a newline.
func (r Record) MarshalLine() ([]byte, error) {
	log := r.Log
	if log == nil {
		log = chat.NewLog()
	}
	if r.ChatID == nil {
		return log.MarshalJSON()
	}
	if err := checkChatID(*r.ChatID); err != nil {
		return nil, err
	}
	return json.Marshal(taggedLine{ChatID: r.ChatID, ChatLog: log})
}

// UnmarshalLine decodes a record written by MarshalLine. Objects without a
// chat_id are treated as untagged.
func UnmarshalLine(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, errors.New("empty record")
	}

	switch line[0] {
	case '[':
		log := &chat.Log{}
		if err := log.UnmarshalJSON(line); err != nil {
			return Record{}, err
		}
		return Record{Log: log}, nil
	case '{':
		var tl taggedLine
		if err := json.Unmarshal(line, &tl); err != nil {
			return Record{}, err
		}
		if tl.ChatLog == nil {
			return Record{}, errors.New("record has no chat_log")
		}
		if tl.ChatID != nil {
			if err := checkChatID(*tl.ChatID); err != nil {
				return Record{}, err
			}
		}
		return Record{ChatID: tl.ChatID, Log: tl.ChatLog}, nil
	default:
		return Record{}, fmt.Errorf("unexpected record start %q", line[0])
	}
}
