package model

import (
	"testing"

	"github.com/KevinKickass/cangen/internal/document"
	"github.com/KevinKickass/cangen/internal/report"
)

func mustDoc(t *testing.T, s string) document.Value {
	t.Helper()
	v, err := document.ParseJSON([]byte(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return v
}

func TestInvertBitIndex(t *testing.T) {
	tests := []struct {
		pos, size, want int
	}{
		{7, 8, -7},
		{7, 1, 0},
		{0, 1, 7},
		{31, 8, 17},
		{8, 4, 12},
		{0, 8, 0},
		{23, 8, 9},
		{39, 4, 29},
		{3, 2, 3},
	}
	for _, tt := range tests {
		if got := InvertBitIndex(tt.pos, tt.size); got != tt.want {
			t.Errorf("InvertBitIndex(%d, %d) = %d, want %d", tt.pos, tt.size, got, tt.want)
		}
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"0x100", 0x100, true},
		{"0X7DF", 0x7df, true},
		{"256", 256, true},
		{"010", 10, true},
		{" 0x1 ", 1, true},
		{"engine", 0, false},
		{"0x", 0, false},
		{"-1", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseID(%q) = %d, %v; want %d, ok=%v", tt.in, got, err, tt.want, tt.ok)
		}
	}
}

func TestBuildSingleMessage(t *testing.T) {
	doc := mustDoc(t, `{
		"name": "passenger",
		"buses": {"hs": {"speed": 500000, "controller": 1}},
		"messages": {
			"0x100": {
				"bus": "hs",
				"name": "Engine",
				"signals": {
					"EngineSpeed": {"generic_name": "engine_speed", "bit_position": 7, "bit_size": 8}
				}
			}
		}
	}`)
	rep := report.New()

	ms := Build(doc, nil, rep)

	if ms.Name != "passenger" {
		t.Errorf("Name = %q", ms.Name)
	}
	if !ms.BitNumberingInverted {
		t.Error("BitNumberingInverted should default to true")
	}
	bus := ms.Buses["hs"]
	if bus == nil || bus.Speed == nil || *bus.Speed != 500000 || bus.Address() != "0x101" {
		t.Fatalf("bus = %+v", bus)
	}
	msg := bus.Messages[0x100]
	if msg == nil {
		t.Fatalf("message 0x100 missing, have %v", bus.Messages)
	}
	sig := msg.Signals["EngineSpeed"]
	if sig == nil {
		t.Fatal("signal missing")
	}
	if sig.GenericName != "engine_speed" || sig.Factor != 1 || sig.Offset != 0 {
		t.Errorf("signal = %+v", sig)
	}
	if sig.SendFrequency != 1 || !sig.SendSame || !sig.Enabled {
		t.Errorf("defaults not applied: %+v", sig)
	}
	if sig.Message != msg {
		t.Error("signal does not point back at its message")
	}
	if got := sig.BitPosition(); got != -7 {
		t.Errorf("BitPosition() = %d, want inverted -7", got)
	}
	if len(rep.Warnings) != 0 {
		t.Errorf("warnings = %v", rep.Warnings)
	}
}

func TestBitPositionFollowsMessageFlag(t *testing.T) {
	doc := mustDoc(t, `{
		"name": "x",
		"bit_numbering_inverted": false,
		"buses": {"hs": {"speed": 1, "controller": 1}},
		"messages": {
			"1": {"bus": "hs", "signals": {"a": {"bit_position": 7, "bit_size": 8}}},
			"2": {"bus": "hs", "bit_numbering_inverted": true, "signals": {"a": {"bit_position": 7, "bit_size": 8}}}
		}
	}`)
	ms := Build(doc, nil, report.New())

	plain := ms.Buses["hs"].Messages[1].Signals["a"]
	inverted := ms.Buses["hs"].Messages[2].Signals["a"]
	if plain.BitPosition() != 7 {
		t.Errorf("plain BitPosition() = %d, want 7", plain.BitPosition())
	}
	if inverted.BitPosition() != -7 {
		t.Errorf("inverted BitPosition() = %d, want -7", inverted.BitPosition())
	}
	if *plain.RawBitPosition != 7 || *inverted.RawBitPosition != 7 {
		t.Error("raw bit position must stay as written")
	}
}

func TestBuildStatesAndHandler(t *testing.T) {
	tests := []struct {
		name    string
		signal  string
		handler string
		states  []SignalState
	}{
		{
			name:    "states derive stateHandler",
			signal:  `{"bit_position": 0, "bit_size": 2, "states": {"A": [1, 2], "B": [3]}}`,
			handler: StateHandler,
			states:  []SignalState{{1, "A"}, {2, "A"}, {3, "B"}},
		},
		{
			name:    "explicit handler is kept",
			signal:  `{"bit_position": 0, "bit_size": 2, "handler": "doorHandler", "states": {"A": [1]}}`,
			handler: "doorHandler",
			states:  []SignalState{{1, "A"}},
		},
		{
			name:    "ignore wins over everything",
			signal:  `{"bit_position": 0, "bit_size": 2, "ignore": true, "handler": "doorHandler", "states": {"A": [1]}}`,
			handler: IgnoreHandler,
			states:  []SignalState{{1, "A"}},
		},
		{
			name:    "duplicate pairs collapse",
			signal:  `{"bit_position": 0, "bit_size": 2, "states": {"B": [3, 3], "A": [3]}}`,
			handler: StateHandler,
			states:  []SignalState{{3, "A"}, {3, "B"}},
		},
		{
			name:    "no states no handler",
			signal:  `{"bit_position": 0, "bit_size": 2}`,
			handler: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := buildSignal("s", mustDoc(t, tt.signal))
			if sig.Handler != tt.handler {
				t.Errorf("Handler = %q, want %q", sig.Handler, tt.handler)
			}
			if len(sig.States) != len(tt.states) {
				t.Fatalf("States = %v, want %v", sig.States, tt.states)
			}
			for i := range tt.states {
				if sig.States[i] != tt.states[i] {
					t.Errorf("States[%d] = %v, want %v", i, sig.States[i], tt.states[i])
				}
			}
		})
	}
}

func TestBuildPoolAndTopLevelMessages(t *testing.T) {
	doc := mustDoc(t, `{
		"name": "x",
		"buses": {"hs": {"speed": 1, "controller": 1}, "ms": {"speed": 1, "controller": 2}},
		"initializers": ["setInit"],
		"commands": [{"name": "turn_signal", "handler": "turnHandler"}],
		"messages": {
			"256": {"signals": {"speed": {"factor": 2}}}
		}
	}`)
	pool := &Pool{
		Messages: []PooledMessage{
			{ID: "0x100", Bus: "hs", Doc: mustDoc(t, `{"signals": {"speed": {"bit_position": 0, "bit_size": 8, "factor": 1}}}`)},
			{ID: "0x100", Bus: "ms", Doc: mustDoc(t, `{"signals": {"other": {"bit_position": 0, "bit_size": 8}}}`)},
			{ID: "0x200", Bus: "ms", Doc: mustDoc(t, `{"enabled": false}`)},
		},
		Commands:     []document.Value{mustDoc(t, `{"name": "mapped", "enabled": false}`)},
		Initializers: []string{"mappingInit"},
	}

	ms := Build(doc, pool, report.New())

	if got := ms.Buses["hs"].Messages[0x100].Signals["speed"]; got == nil || got.Factor != 1 {
		t.Errorf("top-level message without bus should not pick one of two candidates, got %+v", got)
	}
	orphan := ms.Buses[""]
	if orphan == nil || orphan.Declared || orphan.Messages[256] == nil {
		t.Fatalf("top-level message should land on the undeclared bus, buses = %v", ms.Buses)
	}
	if ms.Buses["ms"].Messages[0x200].Enabled {
		t.Error("message 0x200 should stay disabled")
	}
	if len(ms.Initializers) != 2 || ms.Initializers[0] != "setInit" || ms.Initializers[1] != "mappingInit" {
		t.Errorf("Initializers = %v", ms.Initializers)
	}
	if len(ms.Commands) != 2 || ms.Commands[0].Name != "mapped" || ms.Commands[0].Enabled {
		t.Errorf("Commands = %+v", ms.Commands)
	}
	if active := ms.ActiveCommands(); len(active) != 1 || active[0].Handler != "turnHandler" {
		t.Errorf("ActiveCommands = %+v", active)
	}
}

func TestBuildTopLevelOverridesPool(t *testing.T) {
	doc := mustDoc(t, `{
		"name": "x",
		"buses": {"hs": {"speed": 1, "controller": 1}},
		"messages": {"256": {"signals": {"speed": {"factor": 2}}}}
	}`)
	pool := &Pool{Messages: []PooledMessage{
		{ID: "0x100", Bus: "hs", Doc: mustDoc(t, `{"name": "Speed", "signals": {"speed": {"bit_position": 0, "bit_size": 8, "factor": 1}}}`)},
	}}

	ms := Build(doc, pool, report.New())

	msg := ms.Buses["hs"].Messages[0x100]
	if msg == nil {
		t.Fatal("message 0x100 missing")
	}
	sig := msg.Signals["speed"]
	if sig.Factor != 2 || sig.Size() != 8 || msg.Name != "Speed" {
		t.Errorf("merged signal = %+v, message = %q", sig, msg.Name)
	}
	if len(ms.Buses) != 1 {
		t.Errorf("buses = %v, want only hs", ms.Buses)
	}
}

func TestBuildBadMessageID(t *testing.T) {
	doc := mustDoc(t, `{"name": "x", "messages": {"engine": {"bus": "hs"}}}`)
	rep := report.New()

	ms := Build(doc, nil, rep)

	if len(rep.Warnings) != 1 || rep.Warnings[0].Code != report.CodeMessageBadID {
		t.Fatalf("warnings = %v", rep.Warnings)
	}
	if len(ms.Buses) != 0 {
		t.Errorf("buses = %v, want none", ms.Buses)
	}
}

func TestActiveOrdering(t *testing.T) {
	doc := mustDoc(t, `{
		"name": "x",
		"buses": {"b": {"speed": 1, "controller": 2}, "a": {"speed": 1, "controller": 1}, "bad": {"speed": 1, "controller": 3}},
		"messages": {
			"0x300": {"bus": "a", "signals": {"z": {"generic_name": "alpha", "bit_position": 0, "bit_size": 1}, "y": {"generic_name": "beta", "bit_position": 1, "bit_size": 1}}},
			"0x100": {"bus": "b", "signals": {"x": {"bit_position": 0, "bit_size": 1}}},
			"0x200": {"bus": "a", "signals": {"w": {"bit_position": 0, "bit_size": 1, "enabled": false}}},
			"0x400": {"bus": "bad", "signals": {"v": {"bit_position": 0, "bit_size": 1}}}
		}
	}`)
	ms := Build(doc, nil, report.New())

	var ids []uint32
	for _, m := range ms.ActiveMessages() {
		ids = append(ids, m.ID)
	}
	want := []uint32{0x200, 0x300, 0x100}
	if len(ids) != len(want) {
		t.Fatalf("ActiveMessages ids = %x, want %x", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ActiveMessages ids = %x, want %x", ids, want)
			break
		}
	}

	var names []string
	for _, s := range ms.ActiveSignals() {
		names = append(names, s.GenericName)
	}
	if len(names) != 3 || names[0] != "alpha" || names[1] != "beta" || names[2] != "x" {
		t.Errorf("ActiveSignals = %v", names)
	}
}
