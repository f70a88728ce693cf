package stream

import (
	"encoding/json"
	"sort"

	"github.com/nexushq/nexus/internal/domain"
)

type partialCall struct {
	name string
	args []byte
}

// Accumulator merges tool-call fragments for a single assistant turn,
// keyed by position index. The function name is fixed by the first
// fragment that carries one; argument text is concatenated in arrival
// order and never reordered.
type Accumulator struct {
	calls map[int]*partialCall
}

func NewAccumulator() *Accumulator {
	return &Accumulator{calls: map[int]*partialCall{}}
}

func (a *Accumulator) Add(f ToolCallFragment) {
	pc, ok := a.calls[f.Index]
	if !ok {
		pc = &partialCall{}
		a.calls[f.Index] = pc
	}
	if pc.name == "" {
		pc.name = f.Name
	}
	pc.args = append(pc.args, f.Arguments...)
}

// ToolCall returns the merged call at the lowest index, but only once a
// name is known and the concatenated argument text parses as a JSON
// object. Until both hold, nothing is surfaced.
func (a *Accumulator) ToolCall() (domain.ToolCall, bool) {
	if len(a.calls) == 0 {
		return domain.ToolCall{}, false
	}
	idxs := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	pc := a.calls[idxs[0]]
	if pc.name == "" {
		return domain.ToolCall{}, false
	}
	raw := pc.args
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return domain.ToolCall{}, false
	}
	return domain.ToolCall{Name: pc.name, Arguments: json.RawMessage(raw)}, true
}
