package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/cangen/internal/document"
	"github.com/KevinKickass/cangen/internal/loader"
	"github.com/KevinKickass/cangen/internal/model"
	"github.com/KevinKickass/cangen/internal/report"
	"go.uber.org/zap/zaptest"
)

const engineXML = `<Network>
  <Node>
    <Name>ECM</Name>
    <TxMessage>
      <Name>EngineData</Name>
      <ID>0x1A0</ID>
      <Signal>
        <Name>EngineSpeed</Name>
        <Bitposition>24</Bitposition>
        <Bitsize>16</Bitsize>
        <Factor>0.25</Factor>
        <Offset>0</Offset>
        <Minimum>0</Minimum>
        <Maximum>16383.75</Maximum>
      </Signal>
    </TxMessage>
  </Node>
</Network>`

func setup(t *testing.T, files map[string]string) (*Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	logger := zaptest.NewLogger(t)
	l, err := loader.NewLoader([]string{dir}, logger)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return NewResolver(l, logger), dir
}

func parse(t *testing.T, s string) document.Value {
	t.Helper()
	v, err := document.ParseJSON([]byte(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return v
}

func codes(issues []report.Issue) map[string]int {
	out := map[string]int{}
	for _, i := range issues {
		out[i.Code]++
	}
	return out
}

func TestResolveDatabaseEnrichment(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"engine.xml": engineXML,
		"engine.json": `{
			"messages": {
				"0x1a0": {"signals": {"EngineSpeed": {"generic_name": "engine_speed", "factor": 0.5}}},
				"0x7ff": {"signals": {"Ghost": {"bit_position": 0, "bit_size": 1}}}
			},
			"initializers": ["engineInit"]
		}`,
	})
	doc := parse(t, `{"name": "x", "buses": {"hs": {"speed": 500000, "controller": 1}},
		"mappings": [{"mapping": "engine.json", "bus": "hs", "database": "engine.xml"}]}`)
	rep := report.New()

	pool, err := r.Resolve("x", doc, rep)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if n := codes(rep.Warnings)[report.CodeDatabaseMissingID]; n != 1 {
		t.Errorf("DATABASE_001 count = %d, warnings = %v", n, rep.Warnings)
	}
	if len(pool.Initializers) != 1 || pool.Initializers[0] != "engineInit" {
		t.Errorf("Initializers = %v", pool.Initializers)
	}
	if len(pool.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(pool.Messages))
	}

	ms := model.Build(doc, pool, rep)
	msg := ms.Buses["hs"].Messages[0x1a0]
	if msg == nil {
		t.Fatal("0x1a0 not built on hs")
	}
	if msg.Name != "EngineData" {
		t.Errorf("Name = %q, want database name", msg.Name)
	}
	sig := msg.Signals["EngineSpeed"]
	if sig.GenericName != "engine_speed" || sig.Factor != 0.5 {
		t.Errorf("mapping values should win: %+v", sig)
	}
	if *sig.RawBitPosition != 24 || sig.Size() != 16 || sig.MaxValue != 16383.75 {
		t.Errorf("database values missing: %+v", sig)
	}
}

func TestResolveDisabledMapping(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"body.json": `{
			"messages": {"0x300": {"signals": {"door": {"bit_position": 0, "bit_size": 1}}}},
			"commands": [{"name": "unlock", "handler": "unlockHandler"}],
			"initializers": ["bodyInit"],
			"loopers": ["bodyLoop"]
		}`,
	})
	doc := parse(t, `{"name": "x", "buses": {"hs": {"speed": 1, "controller": 1}},
		"mappings": [{"mapping": "body.json", "bus": "hs", "enabled": false}]}`)
	rep := report.New()

	pool, err := r.Resolve("x", doc, rep)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if codes(rep.Warnings)[report.CodeMappingDisabled] != 1 {
		t.Errorf("warnings = %v", rep.Warnings)
	}
	if len(pool.Initializers) != 0 || len(pool.Loopers) != 0 {
		t.Errorf("disabled mapping contributed lifecycle hooks: %v %v", pool.Initializers, pool.Loopers)
	}
	if len(pool.Commands) != 1 {
		t.Fatalf("Commands = %d, want 1", len(pool.Commands))
	}
	if en, _ := pool.Commands[0].Get("enabled"); en.Scalar() != false {
		t.Errorf("command enabled = %v, want false", en)
	}

	ms := model.Build(doc, pool, rep)
	if ms.Buses["hs"].Messages[0x300].Enabled {
		t.Error("message from disabled mapping is enabled")
	}
	if len(ms.ActiveCommands()) != 0 {
		t.Errorf("ActiveCommands = %v", ms.ActiveCommands())
	}
}

func TestResolveWarnings(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"empty.json": `{"messages": {}}`,
		"own.json":   `{"messages": {"0x10": {"bus": "ms", "signals": {}}}}`,
	})
	doc := parse(t, `{"name": "x", "buses": {"hs": {"speed": 1, "controller": 1}},
		"mappings": [
			{"mapping": "empty.json"},
			{"mapping": "own.json", "bus": "body"}
		]}`)
	rep := report.New()

	pool, err := r.Resolve("x", doc, rep)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got := codes(rep.Warnings)
	for _, code := range []string{report.CodeMappingEmpty, report.CodeMappingNoBus, report.CodeMappingUndefBus} {
		if got[code] != 1 {
			t.Errorf("%s count = %d, warnings = %v", code, got[code], rep.Warnings)
		}
	}
	if len(pool.Messages) != 1 || pool.Messages[0].Bus != "ms" {
		t.Errorf("message should keep its own bus: %+v", pool.Messages)
	}
}

func TestResolveFatal(t *testing.T) {
	tests := []struct {
		name     string
		mappings string
	}{
		{"missing mapping path", `[{"bus": "hs"}]`},
		{"mapping file not found", `[{"mapping": "nowhere.json"}]`},
		{"database not found", `[{"mapping": "m.json", "database": "nowhere.xml"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setup(t, map[string]string{
				"m.json": `{"messages": {"0x1": {"signals": {}}}}`,
			})
			doc := parse(t, `{"name": "x", "mappings": `+tt.mappings+`}`)

			if _, err := r.Resolve("x", doc, report.New()); err == nil {
				t.Error("Resolve succeeded, want error")
			}
		})
	}
}

func TestResolveKeepsMappingOrder(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"a.json": `{"messages": {"0x1": {"signals": {"s": {"factor": 1}}}}}`,
		"b.json": `{"messages": {"0x1": {"signals": {"s": {"factor": 2}}}}}`,
	})
	doc := parse(t, `{"name": "x", "buses": {"hs": {"speed": 1, "controller": 1}},
		"mappings": [{"mapping": "a.json", "bus": "hs"}, {"mapping": "b.json", "bus": "hs"}]}`)
	rep := report.New()

	pool, err := r.Resolve("x", doc, rep)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	ms := model.Build(doc, pool, rep)

	if f := ms.Buses["hs"].Messages[1].Signals["s"].Factor; f != 2 {
		t.Errorf("Factor = %v, want later mapping to win", f)
	}
}

const engineDBC = `VERSION ""

BU_: ECM TCM

BO_ 416 EngineData: 8 ECM
 SG_ EngineSpeed : 31|16@0+ (0.25,0) [0|16383.75] "rpm" TCM
 SG_ OilPressure : 40|8@1+ (1,0) [0|255] "kPa" TCM
`

func TestResolveDBCByteOrder(t *testing.T) {
	r, _ := setup(t, map[string]string{
		"engine.dbc": engineDBC,
		"engine.json": `{"messages": {"0x1a0": {"signals": {
			"EngineSpeed": {"generic_name": "engine_speed"},
			"OilPressure": {"generic_name": "oil_pressure"}
		}}}}`,
	})
	doc := parse(t, `{"name": "x", "buses": {"hs": {"speed": 500000, "controller": 1}},
		"mappings": [{"mapping": "engine.json", "bus": "hs", "database": "engine.dbc"}]}`)
	rep := report.New()

	pool, err := r.Resolve("x", doc, rep)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n := codes(rep.Warnings)[report.CodeDatabaseUnusable]; n != 1 {
		t.Errorf("DATABASE_002 count = %d, warnings = %v", n, rep.Warnings)
	}

	ms := model.Build(doc, pool, rep)
	msg := ms.Buses["hs"].Messages[0x1a0]
	speed := msg.Signals["EngineSpeed"]
	if got := speed.BitPosition(); got != 24 || speed.Size() != 16 {
		t.Errorf("EngineSpeed at bit %d size %d, want 24 size 16", got, speed.Size())
	}
	if oil := msg.Signals["OilPressure"]; oil.Complete() {
		t.Errorf("OilPressure picked up a position: %+v", oil)
	}
}
