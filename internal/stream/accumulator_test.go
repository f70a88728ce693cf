package stream

import (
	"encoding/json"
	"testing"
)

func TestAccumulator_SplitArguments(t *testing.T) {
	a := NewAccumulator()
	a.Add(ToolCallFragment{Index: 0, Name: "create_ticket", Arguments: `{"tit`})
	if _, ok := a.ToolCall(); ok {
		t.Fatalf("tool call must not surface before arguments parse")
	}
	a.Add(ToolCallFragment{Index: 0, Arguments: `le":"Fix bug"}`})
	tc, ok := a.ToolCall()
	if !ok {
		t.Fatalf("expected completed tool call")
	}
	if tc.Name != "create_ticket" {
		t.Fatalf("name = %q", tc.Name)
	}
	var args struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		t.Fatalf("arguments should be valid JSON: %v", err)
	}
	if args.Title != "Fix bug" {
		t.Fatalf("title = %q, want %q", args.Title, "Fix bug")
	}
}

func TestAccumulator_NameFixedByFirstFragment(t *testing.T) {
	a := NewAccumulator()
	a.Add(ToolCallFragment{Index: 0, Name: "create_ticket", Arguments: "{"})
	a.Add(ToolCallFragment{Index: 0, Name: "other_tool", Arguments: "}"})
	tc, ok := a.ToolCall()
	if !ok || tc.Name != "create_ticket" {
		t.Fatalf("name must stay fixed after first fragment: %#v ok=%v", tc, ok)
	}
}

func TestAccumulator_NoNameNeverSurfaces(t *testing.T) {
	a := NewAccumulator()
	a.Add(ToolCallFragment{Index: 0, Arguments: `{"title":"x"}`})
	if _, ok := a.ToolCall(); ok {
		t.Fatalf("tool call without a name must not surface")
	}
}

func TestAccumulator_InvalidJSONAtEndStaysHidden(t *testing.T) {
	a := NewAccumulator()
	a.Add(ToolCallFragment{Index: 0, Name: "create_ticket", Arguments: `{"title":`})
	if _, ok := a.ToolCall(); ok {
		t.Fatalf("truncated arguments must never surface as a tool call")
	}
}

func TestAccumulator_Empty(t *testing.T) {
	if _, ok := NewAccumulator().ToolCall(); ok {
		t.Fatalf("empty accumulator must not surface a tool call")
	}
}
