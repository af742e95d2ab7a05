package database

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/KevinKickass/cangen/internal/model"
)

// Layout of a Vector CANoe XML export.
type xmlNetwork struct {
	XMLName xml.Name
	Nodes   []xmlNode `xml:"Node"`
}

type xmlNode struct {
	Name       string       `xml:"Name"`
	TxMessages []xmlMessage `xml:"TxMessage"`
}

type xmlMessage struct {
	Name    string      `xml:"Name"`
	ID      string      `xml:"ID"`
	Signals []xmlSignal `xml:"Signal"`
}

type xmlSignal struct {
	Name        string  `xml:"Name"`
	Bitposition int     `xml:"Bitposition"`
	Bitsize     int     `xml:"Bitsize"`
	Factor      float64 `xml:"Factor"`
	Offset      float64 `xml:"Offset"`
	Minimum     float64 `xml:"Minimum"`
	Maximum     float64 `xml:"Maximum"`
}

func parseXML(path string, data []byte) (*Database, error) {
	var network xmlNetwork
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&network); err != nil {
		return nil, fmt.Errorf("%s is not a valid CANoe XML export: %w", path, err)
	}

	db := newDatabase(path, FormatCANoeXML)
	for _, node := range network.Nodes {
		for _, xm := range node.TxMessages {
			id, err := model.ParseID(xm.ID)
			if err != nil {
				return nil, fmt.Errorf("%s: message %q: %w", path, xm.Name, err)
			}

			msg := &Message{
				ID:      id,
				Name:    strings.TrimSpace(xm.Name),
				Signals: make(map[string]*Signal, len(xm.Signals)),
			}
			for _, xs := range xm.Signals {
				name := strings.TrimSpace(xs.Name)
				if _, dup := msg.Signals[name]; dup {
					continue
				}
				msg.Signals[name] = &Signal{
					Name:        name,
					BitPosition: xs.Bitposition,
					BitSize:     xs.Bitsize,
					Factor:      xs.Factor,
					Offset:      xs.Offset,
					Minimum:     xs.Minimum,
					Maximum:     xs.Maximum,
				}
			}
			db.add(msg)
		}
	}

	return db, nil
}
