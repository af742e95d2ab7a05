package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	_ "embed"

	"github.com/KevinKickass/cangen/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed templates/header.cpp.tmpl
var headerTemplate string

//go:embed templates/footer.cpp
var footerSource string

var header = template.Must(template.New("header").Parse(headerTemplate))

// fingerprintSpace namespaces the name-based UUIDs of generated tables.
var fingerprintSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/KevinKickass/cangen/fingerprint"))

const indent = "    "

// SourceReader finds and reads files named by extra_sources.
type SourceReader interface {
	ReadFile(name string) ([]byte, string, error)
}

type Generator struct {
	version string
	sources SourceReader
	logger  *zap.Logger
}

func New(version string, sources SourceReader, logger *zap.Logger) *Generator {
	return &Generator{
		version: version,
		sources: sources,
		logger:  logger,
	}
}

// Sizes are the table dimensions shared by every compiled message set.
type Sizes struct {
	MessageSets     int `json:"message_sets" yaml:"message_sets"`
	Messages        int `json:"messages" yaml:"messages"`
	Signals         int `json:"signals" yaml:"signals"`
	StatefulSignals int `json:"stateful_signals" yaml:"stateful_signals"`
	Commands        int `json:"commands" yaml:"commands"`
}

// ComputeSizes takes the maximum of every per-set count.
func ComputeSizes(sets []*model.MessageSet) Sizes {
	s := Sizes{MessageSets: len(sets)}
	for _, ms := range sets {
		signals := ms.ActiveSignals()
		stateful := 0
		for _, sig := range signals {
			if len(sig.States) > 0 {
				stateful++
			}
		}
		s.Messages = max(s.Messages, len(ms.ActiveMessages()))
		s.Signals = max(s.Signals, len(signals))
		s.StatefulSignals = max(s.StatefulSignals, stateful)
		s.Commands = max(s.Commands, len(ms.ActiveCommands()))
	}
	return s
}

// SortSets orders message sets by name and assigns each its index.
func SortSets(sets []*model.MessageSet) []*model.MessageSet {
	sorted := append([]*model.MessageSet(nil), sets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i, ms := range sorted {
		ms.Index = i
	}
	return sorted
}

// setTables holds the per-set indexes the table builders share.
type setTables struct {
	ms       *model.MessageSet
	buses    []*model.CanBus
	busIndex map[*model.CanBus]int
	messages []*model.Message
	msgIndex map[*model.Message]int
	signals  []*model.Signal
	sigIndex map[*model.Signal]int
	// stateIndex is the row of a signal in SIGNAL_STATES, for signals that
	// have states.
	stateIndex map[*model.Signal]int
}

func newSetTables(ms *model.MessageSet) *setTables {
	t := &setTables{
		ms:         ms,
		buses:      ms.ValidBuses(),
		busIndex:   map[*model.CanBus]int{},
		messages:   ms.ActiveMessages(),
		msgIndex:   map[*model.Message]int{},
		signals:    ms.ActiveSignals(),
		sigIndex:   map[*model.Signal]int{},
		stateIndex: map[*model.Signal]int{},
	}
	for i, b := range t.buses {
		t.busIndex[b] = i
	}
	for i, m := range t.messages {
		t.msgIndex[m] = i
	}
	stateful := 0
	for i, s := range t.signals {
		t.sigIndex[s] = i
		if len(s.States) > 0 {
			t.stateIndex[s] = stateful
			stateful++
		}
	}
	return t
}

// Build renders the validated message sets into an in-memory document.
func (g *Generator) Build(sets []*model.MessageSet) (*Document, error) {
	sorted := SortSets(sets)
	sizes := ComputeSizes(sorted)

	tables := make([]*setTables, len(sorted))
	for i, ms := range sorted {
		tables[i] = newSetTables(ms)
	}

	extra, err := g.extraSources(sorted)
	if err != nil {
		return nil, err
	}

	body := []Section{
		{Name: "extra_sources", Lines: extra},
		{Name: "message_sets", Lines: buildMessageSets(tables)},
		{Name: "buses", Lines: buildBuses(tables)},
		{Name: "messages", Lines: buildMessages(tables, sizes)},
		{Name: "signal_states", Lines: buildSignalStates(tables, sizes)},
		{Name: "signals", Lines: buildSignals(tables, sizes)},
		{Name: "initializers", Lines: buildLifecycle(tables, "initialize", func(ms *model.MessageSet) []string { return ms.Initializers })},
		{Name: "loop", Lines: buildLifecycle(tables, "loop", func(ms *model.MessageSet) []string { return ms.Loopers })},
		{Name: "commands", Lines: buildCommands(tables, sizes)},
		{Name: "decoder", Lines: buildDecoder(tables, sizes)},
		{Name: "filters", Lines: buildFilters(tables)},
		{Name: "footer", Lines: splitLines(footerSource)},
	}

	doc := &Document{Version: g.version}
	fingerprint := (&Document{Sections: body}).Bytes()
	doc.Fingerprint = uuid.NewSHA1(fingerprintSpace, fingerprint).String()

	head, err := g.header(doc, sorted)
	if err != nil {
		return nil, err
	}
	doc.Sections = append([]Section{{Name: "header", Lines: head}}, body...)

	g.logger.Info("Source generated",
		zap.Int("message_sets", sizes.MessageSets),
		zap.Int("max_messages", sizes.Messages),
		zap.Int("max_signals", sizes.Signals),
		zap.Int("max_commands", sizes.Commands),
		zap.String("fingerprint", doc.Fingerprint))

	return doc, nil
}

func (g *Generator) header(doc *Document, sets []*model.MessageSet) ([]string, error) {
	names := make([]string, 0, len(sets))
	for _, ms := range sets {
		names = append(names, ms.Name)
	}

	var buf bytes.Buffer
	err := header.Execute(&buf, struct {
		Version     string
		Fingerprint string
		MessageSets []string
	}{doc.Version, doc.Fingerprint, names})
	if err != nil {
		return nil, fmt.Errorf("failed to render header: %w", err)
	}
	return splitLines(buf.String()), nil
}

func (g *Generator) extraSources(sets []*model.MessageSet) ([]string, error) {
	var out lines
	for _, ms := range sets {
		for _, name := range ms.ExtraSources {
			if g.sources == nil {
				return nil, fmt.Errorf("extra source %s: no search paths configured", name)
			}
			data, path, err := g.sources.ReadFile(name)
			if err != nil {
				return nil, fmt.Errorf("extra source for message set %s: %w", ms.Name, err)
			}
			g.logger.Debug("Extra source included",
				zap.String("message_set", ms.Name),
				zap.String("path", path))
			out.extend(splitLines(string(data)))
		}
	}
	return out, nil
}

// lister wraps each set's block in a "{ // message set: name" row.
func lister(tables []*setTables, block func(t *setTables) []string) []string {
	var out lines
	for _, t := range tables {
		out.addf(indent+"{ // message set: %s", t.ms.Name)
		out.extend(block(t))
		out.add(indent + "},")
	}
	return out
}

// switcher emits a switch on the active configuration with one case per set.
func switcher(tables []*setTables, block func(t *setTables) []string) []string {
	var out lines
	out.add(indent + "switch(getConfiguration()->messageSetIndex) {")
	for _, t := range tables {
		out.addf(indent+"case %d: // message set: %s", t.ms.Index, t.ms.Name)
		out.extend(block(t))
		out.add(indent + indent + "break;")
	}
	out.add(indent + "}")
	return out
}

func buildMessageSets(tables []*setTables) []string {
	var out lines
	out.addf("const int MESSAGE_SET_COUNT = %d;", len(tables))
	out.add("CanMessageSet MESSAGE_SETS[MESSAGE_SET_COUNT] = {")
	for _, t := range tables {
		out.addf(indent+"{ %d, %s, %d, %d, %d, %d },", t.ms.Index, cString(t.ms.Name),
			len(t.buses), len(t.messages), len(t.signals), len(t.ms.ActiveCommands()))
	}
	out.add("};")
	return out
}

func buildBuses(tables []*setTables) []string {
	var out lines
	out.addf("const int MAX_CAN_BUS_COUNT = %d;", model.MaxCanBusCount)
	out.add("CanBus CAN_BUSES[][MAX_CAN_BUS_COUNT] = {")
	out.extend(lister(tables, func(t *setTables) []string {
		var block lines
		for _, b := range t.buses {
			speed := 0
			if b.Speed != nil {
				speed = *b.Speed
			}
			block.addf(indent+indent+"{ %d, %s, can%d,", speed, b.Address(), b.Controller)
			block.add(indent + indent + indent + "#ifdef __PIC32__")
			block.addf(indent+indent+indent+"handleCan%dInterrupt,", b.Controller)
			block.add(indent + indent + indent + "#endif // __PIC32__")
			block.add(indent + indent + "},")
		}
		return block
	}))
	out.add("};")
	return out
}

func buildMessages(tables []*setTables, sizes Sizes) []string {
	var out lines
	out.addf("const int MAX_MESSAGE_COUNT = %d;", sizes.Messages)
	out.add("CanMessage CAN_MESSAGES[][MAX_MESSAGE_COUNT] = {")
	out.extend(lister(tables, func(t *setTables) []string {
		var block lines
		for _, m := range t.messages {
			bus := t.ms.Buses[m.BusName]
			block.addf(indent+indent+"{&CAN_BUSES[%d][%d], 0x%x}, // %s",
				t.ms.Index, t.busIndex[bus], m.ID, m.Name)
		}
		return block
	}))
	out.add("};")
	return out
}

func buildSignalStates(tables []*setTables, sizes Sizes) []string {
	var out lines
	out.addf("const int MAX_SIGNAL_STATES = %d;", model.MaxSignalStates)
	out.addf("const int MAX_STATEFUL_SIGNAL_COUNT = %d;", sizes.StatefulSignals)
	out.add("CanSignalState SIGNAL_STATES[][MAX_STATEFUL_SIGNAL_COUNT][MAX_SIGNAL_STATES] = {")
	out.extend(lister(tables, func(t *setTables) []string {
		var block lines
		for _, s := range t.signals {
			if len(s.States) == 0 {
				continue
			}
			var row strings.Builder
			row.WriteString(indent + indent + "{ ")
			for _, st := range s.States {
				fmt.Fprintf(&row, "{%d, %s}, ", st.Value, cString(st.Name))
			}
			row.WriteString("}, // " + s.GenericName)
			block.add(row.String())
		}
		return block
	}))
	out.add("};")
	return out
}

func buildSignals(tables []*setTables, sizes Sizes) []string {
	var out lines
	out.addf("const int MAX_SIGNAL_COUNT = %d;", sizes.Signals)
	out.add("CanSignal SIGNALS[][MAX_SIGNAL_COUNT] = {")
	out.extend(lister(tables, func(t *setTables) []string {
		var block lines
		for _, s := range t.signals {
			block.add(indent + indent + signalEntry(t, s))
		}
		return block
	}))
	out.add("};")
	return out
}

func signalEntry(t *setTables, s *model.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "{&CAN_MESSAGES[%d][%d], %s, %d, %d, %s, %s, %s, %s, %d, %t, false, ",
		t.ms.Index, t.msgIndex[s.Message], cString(s.GenericName), s.BitPosition(), s.Size(),
		cFloat(s.Factor), cFloat(s.Offset), cFloat(s.MinValue), cFloat(s.MaxValue), s.SendFrequency, s.SendSame)
	if idx, ok := t.stateIndex[s]; ok {
		fmt.Fprintf(&b, "SIGNAL_STATES[%d][%d], %d", t.ms.Index, idx, len(s.States))
	} else {
		b.WriteString("NULL, 0")
	}
	fmt.Fprintf(&b, ", %t, %s}, // %s", s.Writable, orNull(s.WriteHandler), s.Name)
	return b.String()
}

func buildLifecycle(tables []*setTables, fn string, names func(*model.MessageSet) []string) []string {
	var out lines
	out.addf("void openxc::signals::%s() {", fn)
	out.extend(switcher(tables, func(t *setTables) []string {
		var block lines
		for _, name := range names(t.ms) {
			block.addf(indent+indent+"%s();", name)
		}
		return block
	}))
	out.add("}")
	return out
}

func buildCommands(tables []*setTables, sizes Sizes) []string {
	var out lines
	out.addf("const int MAX_COMMAND_COUNT = %d;", sizes.Commands)
	out.add("CanCommand COMMANDS[][MAX_COMMAND_COUNT] = {")
	out.extend(lister(tables, func(t *setTables) []string {
		var block lines
		for _, c := range t.ms.ActiveCommands() {
			block.addf(indent+indent+"{ %s, %s },", cString(c.Name), orNull(c.Handler))
		}
		return block
	}))
	out.add("};")
	return out
}

func buildDecoder(tables []*setTables, sizes Sizes) []string {
	var out lines
	out.add("void openxc::signals::decodeCanMessage(Pipeline* pipeline, CanBus* bus, int id, uint64_t data) {")
	out.extend(switcher(tables, func(t *setTables) []string {
		var block lines
		block.add(indent + indent + "switch(bus->address) {")
		for _, b := range t.buses {
			block.addf(indent+indent+"case %s:", b.Address())
			block.add(indent + indent + indent + "switch (id) {")
			for _, m := range b.ActiveMessages() {
				block.addf(indent+indent+indent+"case 0x%x: // %s", m.ID, m.Name)
				block.extend(decodeMessage(t, m))
				block.add(indent + indent + indent + indent + "break;")
			}
			block.add(indent + indent + indent + "}")
			block.add(indent + indent + indent + "break;")
		}
		block.add(indent + indent + "}")
		return block
	}))
	if sizes.Messages == 0 {
		out.add(indent + "openxc::can::read::passthroughMessage(pipeline, id, data);")
	}
	out.add("}")
	return out
}

// decodeMessage hands the frame to the message handler when there is one,
// otherwise translates each active signal in generic name order.
func decodeMessage(t *setTables, m *model.Message) []string {
	pad := strings.Repeat(indent, 4)
	var out lines
	if m.Handler != "" {
		out.addf(pad+"%s(id, data, SIGNALS[%d], getSignalCount(), pipeline);", m.Handler, t.ms.Index)
		return out
	}
	for _, s := range m.ActiveSignals() {
		handler := ""
		if s.Handler != "" {
			handler = "&" + s.Handler + ", "
		}
		out.addf(pad+"can::read::translateSignal(pipeline, &SIGNALS[%d][%d], data, %sSIGNALS[%d], getSignalCount()); // %s",
			t.ms.Index, t.sigIndex[s], handler, t.ms.Index, s.Name)
	}
	return out
}

func buildFilters(tables []*setTables) []string {
	var out lines
	out.add("CanFilter FILTERS[MAX_MESSAGE_COUNT];")
	out.add("")
	out.add("CanFilter* openxc::signals::initializeFilters(uint64_t address, int* count) {")
	out.add(indent + "*count = 0;")
	out.extend(switcher(tables, func(t *setTables) []string {
		var block lines
		block.add(indent + indent + "switch(address) {")
		for _, b := range t.buses {
			msgs := b.ActiveMessages()
			block.addf(indent+indent+"case %s:", b.Address())
			block.addf(indent+indent+indent+"*count = %d;", len(msgs))
			for i, m := range msgs {
				block.addf(indent+indent+indent+"FILTERS[%d] = {%d, 0x%x, 1};", i, i, m.ID)
			}
			block.add(indent + indent + indent + "break;")
		}
		block.add(indent + indent + "}")
		return block
	}))
	out.add(indent + "return FILTERS;")
	out.add("}")
	return out
}

func orNull(name string) string {
	if name == "" {
		return "NULL"
	}
	return name
}

// cString quotes s as a C string literal.
func cString(s string) string {
	return strconv.Quote(s)
}

// cFloat writes the shortest exact decimal form of f, always with a
// fractional part so the literal stays a floating point constant.
func cFloat(f float64) string {
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}
