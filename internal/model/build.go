package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/KevinKickass/cangen/internal/document"
	"github.com/KevinKickass/cangen/internal/report"
)

// PooledMessage is one message definition contributed by a mapping, with its
// bus already defaulted.
type PooledMessage struct {
	ID     string
	Bus    string
	Doc    document.Value
	Source string
}

// Pool collects everything the mappings of a message set contribute.
type Pool struct {
	Messages     []PooledMessage
	Commands     []document.Value
	Initializers []string
	Loopers      []string
	ExtraSources []string
}

type messageKey struct {
	bus string
	id  uint32
}

// Build turns a fully merged message set document and its mapping pool into
// a MessageSet. Problems that only affect one entity go into rep as
// warnings; whole-document problems are left for the validator.
func Build(doc document.Value, pool *Pool, rep *report.Report) *MessageSet {
	if pool == nil {
		pool = &Pool{}
	}

	ms := &MessageSet{
		Name:                 stringField(doc, "name", ""),
		BitNumberingInverted: boolField(doc, "bit_numbering_inverted", true),
		Buses:                BusMap{},
	}

	ms.Initializers = append(stringList(doc, "initializers"), pool.Initializers...)
	ms.Loopers = append(stringList(doc, "loopers"), pool.Loopers...)
	ms.ExtraSources = append(stringList(doc, "extra_sources"), pool.ExtraSources...)

	buildBuses(ms, doc)

	commands := append([]document.Value(nil), pool.Commands...)
	if raw, ok := doc.Get("commands"); ok {
		commands = append(commands, raw.Items()...)
	}
	for _, c := range commands {
		ms.Commands = append(ms.Commands, buildCommand(c))
	}

	merged, order := foldMessages(ms, doc, pool, rep)
	for _, key := range order {
		msg := buildMessage(ms, key, merged[key])
		ms.Bus(key.bus).Messages[key.id] = msg
	}

	return ms
}

func buildBuses(ms *MessageSet, doc document.Value) {
	raw, ok := doc.Get("buses")
	if !ok {
		return
	}
	for _, name := range raw.Keys() {
		b, _ := raw.Get(name)
		bus := &CanBus{
			Name:     name,
			Declared: true,
			Enabled:  true,
			Messages: map[uint32]*Message{},
		}
		if v, ok := b.Get("speed"); ok {
			if f, ok := v.AsFloat(); ok {
				speed := int(math.Round(f))
				bus.Speed = &speed
			}
		}
		if v, ok := b.Get("controller"); ok {
			if c, ok := v.AsInt(); ok {
				bus.Controller = int(c)
			}
		}
		ms.Buses[name] = bus
	}
}

// foldMessages merges every definition of the same (bus, id) pair, pool
// entries first so top-level declarations win. A top-level message without
// a bus joins the single pooled message with its id, if there is one.
func foldMessages(ms *MessageSet, doc document.Value, pool *Pool, rep *report.Report) (map[messageKey]document.Value, []messageKey) {
	merged := map[messageKey]document.Value{}
	var order []messageKey
	byID := map[uint32][]messageKey{}

	add := func(rawID, bus string, def document.Value, source string) {
		id, err := ParseID(rawID)
		if err != nil {
			rep.AddWarning(report.Issue{
				Code:       report.CodeMessageBadID,
				MessageSet: ms.Name,
				Path:       "/messages/" + rawID,
				Message:    fmt.Sprintf("Message id %q is not a number, skipping it", rawID),
				Meta:       map[string]any{"source": source},
			})
			return
		}
		if bus == "" {
			if keys := byID[id]; len(keys) == 1 {
				bus = keys[0].bus
			}
		}

		key := messageKey{bus: bus, id: id}
		if existing, ok := merged[key]; ok {
			merged[key] = document.Merge(existing, def)
			return
		}
		merged[key] = def.Clone()
		order = append(order, key)
		byID[id] = append(byID[id], key)
	}

	for _, pm := range pool.Messages {
		add(pm.ID, pm.Bus, pm.Doc, pm.Source)
	}

	if raw, ok := doc.Get("messages"); ok {
		for _, rawID := range raw.Keys() {
			def, _ := raw.Get(rawID)
			add(rawID, stringField(def, "bus", ""), def, "messages")
		}
	}

	return merged, order
}

func buildMessage(ms *MessageSet, key messageKey, def document.Value) *Message {
	msg := &Message{
		ID:                   key.id,
		Name:                 stringField(def, "name", FormatID(key.id)),
		BusName:              key.bus,
		Handler:              stringField(def, "handler", ""),
		Enabled:              boolField(def, "enabled", true),
		BitNumberingInverted: boolField(def, "bit_numbering_inverted", ms.BitNumberingInverted),
		Signals:              map[string]*Signal{},
	}

	if raw, ok := def.Get("signals"); ok {
		for _, name := range raw.Keys() {
			sd, _ := raw.Get(name)
			sig := buildSignal(name, sd)
			sig.Message = msg
			msg.Signals[name] = sig
		}
	}
	return msg
}

func buildSignal(name string, def document.Value) *Signal {
	sig := &Signal{
		Name:          name,
		GenericName:   stringField(def, "generic_name", name),
		Factor:        floatField(def, "factor", 1),
		Offset:        floatField(def, "offset", 0),
		MinValue:      floatField(def, "min_value", 0),
		MaxValue:      floatField(def, "max_value", 0),
		Handler:       stringField(def, "handler", ""),
		WriteHandler:  stringField(def, "write_handler", ""),
		Writable:      boolField(def, "writable", false),
		Ignore:        boolField(def, "ignore", false),
		Enabled:       boolField(def, "enabled", true),
		SendFrequency: int(intField(def, "send_frequency", 1)),
		SendSame:      boolField(def, "send_same", true),
		States:        buildStates(def),
	}

	if v, ok := def.Get("bit_position"); ok {
		if i, ok := v.AsInt(); ok {
			pos := int(i)
			sig.RawBitPosition = &pos
		}
	}
	if v, ok := def.Get("bit_size"); ok {
		if i, ok := v.AsInt(); ok {
			size := int(i)
			sig.BitSize = &size
		}
	}

	switch {
	case sig.Ignore:
		sig.Handler = IgnoreHandler
	case sig.Handler == "" && len(sig.States) > 0:
		sig.Handler = StateHandler
	}

	return sig
}

// buildStates flattens {name: [values]} into distinct (value, name) pairs
// ordered by value, then name.
func buildStates(def document.Value) []SignalState {
	raw, ok := def.Get("states")
	if !ok || !raw.IsMapping() {
		return nil
	}

	seen := map[SignalState]bool{}
	var states []SignalState
	for _, name := range raw.Keys() {
		values, _ := raw.Get(name)
		for _, v := range values.Items() {
			i, ok := v.AsInt()
			if !ok {
				continue
			}
			st := SignalState{Value: i, Name: name}
			if seen[st] {
				continue
			}
			seen[st] = true
			states = append(states, st)
		}
	}

	sort.Slice(states, func(i, j int) bool {
		if states[i].Value != states[j].Value {
			return states[i].Value < states[j].Value
		}
		return states[i].Name < states[j].Name
	})
	return states
}

func buildCommand(def document.Value) Command {
	return Command{
		Name:    stringField(def, "name", ""),
		Handler: stringField(def, "handler", ""),
		Enabled: boolField(def, "enabled", true),
	}
}

func stringField(v document.Value, key, def string) string {
	f, ok := v.Get(key)
	if !ok {
		return def
	}
	if s, ok := f.AsString(); ok {
		return s
	}
	return def
}

func boolField(v document.Value, key string, def bool) bool {
	f, ok := v.Get(key)
	if !ok {
		return def
	}
	if b, ok := f.AsBool(); ok {
		return b
	}
	return def
}

func floatField(v document.Value, key string, def float64) float64 {
	f, ok := v.Get(key)
	if !ok {
		return def
	}
	if x, ok := f.AsFloat(); ok {
		return x
	}
	return def
}

func intField(v document.Value, key string, def int64) int64 {
	f, ok := v.Get(key)
	if !ok {
		return def
	}
	if x, ok := f.AsInt(); ok {
		return x
	}
	return def
}

func stringList(v document.Value, key string) []string {
	f, ok := v.Get(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range f.Items() {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}
