package checkpoint

import "github.com/aixgo-dev/chatbatch/pkg/chat"

// View is the reconstructed state of a checkpoint: slot i holds the latest
// log recorded for conversation i, or nil when none was recorded.
type View []*chat.Log

// BuildView reconstructs the slot view from records in write order.
// Tagged records grow the view to at least id+1 slots and overwrite slot id;
// untagged records are appended after the current last slot.
func BuildView(recs []Record) View {
	view := View{}
	for _, rec := range recs {
		if rec.ChatID == nil {
			view = append(view, rec.Log)
			continue
		}
		id := *rec.ChatID
		if id >= len(view) {
			view = view.Resize(id + 1)
		}
		view[id] = rec.Log
	}
	return view
}

// Done reports whether slot i holds a completed conversation.
func (v View) Done(i int) bool {
	return i >= 0 && i < len(v) && v[i] != nil
}

// Resize pads the view with absent slots, or truncates it, to exactly n slots.
func (v View) Resize(n int) View {
	if n < 0 {
		n = 0
	}
	if len(v) >= n {
		return v[:n]
	}
	out := make(View, n)
	copy(out, v)
	return out
}

// LastMessages projects each slot to the content of its last message.
// Absent and empty slots yield nil.
func (v View) LastMessages() []*string {
	out := make([]*string, len(v))
	for i, log := range v {
		if m, ok := log.Last(); ok {
			content := m.Content
			out[i] = &content
		}
	}
	return out
}

// Count returns the number of present slots.
func (v View) Count() int {
	n := 0
	for _, log := range v {
		if log != nil {
			n++
		}
	}
	return n
}
