package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KevinKickass/cangen/internal/document"
	"github.com/KevinKickass/cangen/internal/model"
)

// Format names the on-disk layout of a signal database.
type Format string

const (
	FormatCANoeXML Format = "canoe-xml"
	FormatDBC      Format = "dbc"
)

// Signal is what a database knows about one signal. Bit positions are kept
// exactly as the database numbers them.
type Signal struct {
	Name        string
	BitPosition int
	BitSize     int
	Factor      float64
	Offset      float64
	Minimum     float64
	Maximum     float64
	// States maps a label to the raw values that carry it. Only DBC value
	// tables fill it.
	States map[string][]int64
}

type Message struct {
	ID      uint32
	Name    string
	Signals map[string]*Signal
}

// Database is a read-only index of messages by id.
type Database struct {
	Path     string
	Format   Format
	messages map[uint32]*Message
	// rejected holds signals the reader could not convert, by id and name.
	rejected map[uint32]map[string]string
}

func newDatabase(path string, format Format) *Database {
	return &Database{
		Path:     path,
		Format:   format,
		messages: map[uint32]*Message{},
		rejected: map[uint32]map[string]string{},
	}
}

func (db *Database) reject(id uint32, signal, reason string) {
	if db.rejected[id] == nil {
		db.rejected[id] = map[string]string{}
	}
	db.rejected[id][signal] = reason
}

// Unsupported lists the signals a mapping asks for that the database defines
// in a form it cannot use, as "<id>/<signal>: <reason>".
func (db *Database) Unsupported(messages document.Value) []string {
	var out []string
	for _, rawID := range messages.Keys() {
		id, err := model.ParseID(rawID)
		if err != nil {
			continue
		}
		reasons := db.rejected[id]
		if len(reasons) == 0 {
			continue
		}
		mapped, _ := messages.Get(rawID)
		wanted, _ := mapped.Get("signals")
		for _, name := range wanted.Keys() {
			if reason, ok := reasons[name]; ok {
				out = append(out, fmt.Sprintf("%s/%s: %s", rawID, name, reason))
			}
		}
	}
	return out
}

// add keeps the first definition of an id.
func (db *Database) add(m *Message) {
	if _, ok := db.messages[m.ID]; ok {
		return
	}
	db.messages[m.ID] = m
}

func (db *Database) Lookup(id uint32) (*Message, bool) {
	m, ok := db.messages[id]
	return m, ok
}

func (db *Database) Len() int {
	return len(db.messages)
}

// IDs returns every message id in ascending order.
func (db *Database) IDs() []uint32 {
	ids := make([]uint32, 0, len(db.messages))
	for id := range db.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Open reads a database file, choosing the reader by extension.
func Open(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read database %s: %w", path, err)
	}
	return Parse(path, data)
}

func Parse(path string, data []byte) (*Database, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return parseXML(path, data)
	case ".dbc":
		return parseDBC(path, data)
	default:
		return nil, fmt.Errorf("unsupported database format: %s", path)
	}
}

// Enrich derives message definitions for a mapping's messages. For each id
// in messages only the signals the mapping names are looked up. The result
// has the shape of a "messages" mapping and is meant as the base of a merge
// with the mapping as overlay. Messages without any known signal are left
// out. Ids the database lacks are returned as missing.
func (db *Database) Enrich(messages document.Value) (document.Value, []string) {
	out := document.NewMapping()
	var missing []string

	for _, rawID := range messages.Keys() {
		id, err := model.ParseID(rawID)
		if err != nil {
			continue
		}
		dbMsg, ok := db.Lookup(id)
		if !ok {
			missing = append(missing, rawID)
			continue
		}

		mapped, _ := messages.Get(rawID)
		wanted, _ := mapped.Get("signals")

		signals := document.NewMapping()
		for _, name := range wanted.Keys() {
			sig, ok := dbMsg.Signals[name]
			if !ok {
				continue
			}
			signals.Set(name, signalDocument(name, sig))
		}
		if signals.Len() == 0 {
			continue
		}

		msg := document.NewMapping()
		msg.Set("name", document.String(dbMsg.Name))
		msg.Set("signals", signals)
		out.Set(rawID, msg)
	}

	return out, missing
}

func signalDocument(genericName string, sig *Signal) document.Value {
	d := document.NewMapping()
	d.Set("generic_name", document.String(genericName))
	d.Set("bit_position", document.Number(float64(sig.BitPosition)))
	d.Set("bit_size", document.Number(float64(sig.BitSize)))
	d.Set("factor", document.Number(sig.Factor))
	d.Set("offset", document.Number(sig.Offset))
	d.Set("min_value", document.Number(sig.Minimum))
	d.Set("max_value", document.Number(sig.Maximum))

	if len(sig.States) > 0 {
		states := document.NewMapping()
		for label, values := range sig.States {
			items := make([]document.Value, 0, len(values))
			for _, v := range values {
				items = append(items, document.Number(float64(v)))
			}
			states.Set(label, document.Sequence(items...))
		}
		d.Set("states", states)
	}
	return d
}
