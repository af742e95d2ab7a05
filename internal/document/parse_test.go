package document

import (
	"testing"
)

func TestParseJSONNumbersAndKeys(t *testing.T) {
	v, err := ParseJSON([]byte(`{"0x100": {"bit_position": 7, "factor": 0.5, "name": "x", "on": true}}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}

	msg, ok := v.Get("0x100")
	if !ok {
		t.Fatalf("keys = %v, want 0x100", v.Keys())
	}
	if pos, ok := msg.Get("bit_position"); !ok {
		t.Error("missing bit_position")
	} else if i, ok := pos.AsInt(); !ok || i != 7 {
		t.Errorf("bit_position = %v, want 7", pos)
	}
	if f, _ := msg.Get("factor"); f.String() != "0.5" {
		t.Errorf("factor = %s, want 0.5", f)
	}
	if b, _ := msg.Get("on"); b.Scalar() != true {
		t.Errorf("on = %v, want true", b)
	}
}

func TestParseJSONErrors(t *testing.T) {
	for _, in := range []string{`{"a": }`, `{"a": 1} {"b": 2}`, ``} {
		if _, err := ParseJSON([]byte(in)); err == nil {
			t.Errorf("ParseJSON(%q) succeeded, want error", in)
		}
	}
}

func TestParseYAMLKeepsHexKeys(t *testing.T) {
	src := `
name: test
messages:
  0x100:
    bus: hs
    signals:
      EngineSpeed:
        bit_position: 7
        states:
          A: [1, 2]
`
	v, err := Parse("set.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := mustJSON(t, `{"name": "test", "messages": {"0x100": {"bus": "hs", "signals": {"EngineSpeed": {"bit_position": 7, "states": {"A": [1, 2]}}}}}}`)
	if !Equal(v, want) {
		got, _ := v.MarshalJSON()
		t.Errorf("Parse = %s", got)
	}
}

func TestParseYAMLAnchors(t *testing.T) {
	src := `
defaults: &d {factor: 2}
signal: *d
`
	v, err := ParseYAML([]byte(src))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	sig, _ := v.Get("signal")
	if f, _ := sig.Get("factor"); f.String() != "2" {
		t.Errorf("factor = %s, want 2", f)
	}
}

func TestParseYAMLEmpty(t *testing.T) {
	v, err := ParseYAML(nil)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if !v.IsMapping() || v.Len() != 0 {
		t.Errorf("ParseYAML(nil) = %v, want empty mapping", v)
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		in   Value
		want int64
		ok   bool
	}{
		{Number(256), 256, true},
		{String("0x100"), 256, true},
		{String("0X1F"), 31, true},
		{String("42"), 42, true},
		{Number(1.5), 0, false},
		{String("engine"), 0, false},
		{Null(), 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.AsInt()
		if ok != tt.ok || got != tt.want {
			t.Errorf("AsInt(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
