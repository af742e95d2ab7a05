package database

import (
	"fmt"
	"math"
	"sort"

	"go.einride.tech/can/pkg/dbc"
)

func parseDBC(path string, data []byte) (*Database, error) {
	p := dbc.NewParser(path, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("%s is not a valid DBC file: %w", path, err)
	}

	db := newDatabase(path, FormatDBC)
	var tables []*dbc.ValueDescriptionsDef

	for _, def := range p.Defs() {
		switch d := def.(type) {
		case *dbc.MessageDef:
			msg := &Message{
				ID:      d.MessageID.ToCAN(),
				Name:    string(d.Name),
				Signals: make(map[string]*Signal, len(d.Signals)),
			}
			for _, sd := range d.Signals {
				if !sd.IsBigEndian {
					db.reject(msg.ID, string(sd.Name), "little-endian (Intel) byte order is not supported")
					continue
				}
				msg.Signals[string(sd.Name)] = &Signal{
					Name:        string(sd.Name),
					BitPosition: motorolaLSB(int(sd.StartBit), int(sd.Size)),
					BitSize:     int(sd.Size),
					Factor:      sd.Factor,
					Offset:      sd.Offset,
					Minimum:     sd.Minimum,
					Maximum:     sd.Maximum,
				}
			}
			db.add(msg)
		case *dbc.ValueDescriptionsDef:
			tables = append(tables, d)
		}
	}

	// VAL_ lines may come before or after their BO_ block.
	for _, t := range tables {
		msg, ok := db.Lookup(t.MessageID.ToCAN())
		if !ok {
			continue
		}
		sig, ok := msg.Signals[string(t.SignalName)]
		if !ok {
			continue
		}
		for _, vd := range t.ValueDescriptions {
			if vd.Value != math.Trunc(vd.Value) {
				continue
			}
			if sig.States == nil {
				sig.States = map[string][]int64{}
			}
			sig.States[vd.Description] = append(sig.States[vd.Description], int64(vd.Value))
		}
		for _, values := range sig.States {
			sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		}
	}

	return db, nil
}

// motorolaLSB turns a DBC big-endian start bit, which names the field's most
// significant bit, into the position of its least significant bit. Both use
// DBC numbering (bit 0 is the LSB of byte 0), the numbering CANoe exports use
// for Bitposition.
func motorolaLSB(start, size int) int {
	msb := 8*(start/8) + 7 - start%8
	lsb := msb + size - 1
	return 8*(lsb/8) + 7 - lsb%8
}
