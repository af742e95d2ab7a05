package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// MaxSignalStates is the number of states one signal may emit.
	MaxSignalStates = 12
	// MaxCanBusCount is the number of CAN controllers on the target.
	MaxCanBusCount = 2

	StateHandler  = "stateHandler"
	IgnoreHandler = "ignoreHandler"
)

// ValidControllers lists the hardware controller slots a bus may use. Bus
// 0x101 is always wired to controller 1 and 0x102 to controller 2.
var ValidControllers = [MaxCanBusCount]int{1, 2}

type MessageSet struct {
	Name                 string    `json:"name" yaml:"name"`
	Index                int       `json:"index" yaml:"index"`
	BitNumberingInverted bool      `json:"bit_numbering_inverted" yaml:"bit_numbering_inverted"`
	Buses                BusMap    `json:"buses" yaml:"buses"`
	Commands             []Command `json:"commands" yaml:"commands"`
	Initializers         []string  `json:"initializers" yaml:"initializers"`
	Loopers              []string  `json:"loopers" yaml:"loopers"`
	ExtraSources         []string  `json:"extra_sources" yaml:"extra_sources"`
}

type BusMap map[string]*CanBus

type CanBus struct {
	Name       string              `json:"name" yaml:"name"`
	Speed      *int                `json:"speed,omitempty" yaml:"speed,omitempty"`
	Controller int                 `json:"controller" yaml:"controller"`
	Declared   bool                `json:"declared" yaml:"declared"`
	Enabled    bool                `json:"enabled" yaml:"enabled"`
	Messages   map[uint32]*Message `json:"messages" yaml:"messages"`
}

type Message struct {
	ID                   uint32             `json:"id" yaml:"id"`
	Name                 string             `json:"name" yaml:"name"`
	BusName              string             `json:"bus" yaml:"bus"`
	Handler              string             `json:"handler,omitempty" yaml:"handler,omitempty"`
	Enabled              bool               `json:"enabled" yaml:"enabled"`
	BitNumberingInverted bool               `json:"bit_numbering_inverted" yaml:"bit_numbering_inverted"`
	Signals              map[string]*Signal `json:"signals" yaml:"signals"`
}

type Signal struct {
	Message        *Message      `json:"-" yaml:"-"`
	Name           string        `json:"name" yaml:"name"`
	GenericName    string        `json:"generic_name" yaml:"generic_name"`
	RawBitPosition *int          `json:"bit_position,omitempty" yaml:"bit_position,omitempty"`
	BitSize        *int          `json:"bit_size,omitempty" yaml:"bit_size,omitempty"`
	Factor         float64       `json:"factor" yaml:"factor"`
	Offset         float64       `json:"offset" yaml:"offset"`
	MinValue       float64       `json:"min_value" yaml:"min_value"`
	MaxValue       float64       `json:"max_value" yaml:"max_value"`
	States         []SignalState `json:"states,omitempty" yaml:"states,omitempty"`
	Handler        string        `json:"handler,omitempty" yaml:"handler,omitempty"`
	WriteHandler   string        `json:"write_handler,omitempty" yaml:"write_handler,omitempty"`
	Writable       bool          `json:"writable" yaml:"writable"`
	Ignore         bool          `json:"ignore" yaml:"ignore"`
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	SendFrequency  int           `json:"send_frequency" yaml:"send_frequency"`
	SendSame       bool          `json:"send_same" yaml:"send_same"`
}

type SignalState struct {
	Value int64  `json:"value" yaml:"value"`
	Name  string `json:"name" yaml:"name"`
}

type Command struct {
	Name    string `json:"name" yaml:"name"`
	Handler string `json:"handler,omitempty" yaml:"handler,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// InvertBitIndex converts a bit position numbered from the most significant
// bit of each byte into the firmware's numbering, for a field of length bits.
func InvertBitIndex(i, length int) int {
	b, r := i/8, i%8
	end := 8*b + (7 - r)
	return end - length + 1
}

// ParseID reads a message id written in decimal or with a 0x prefix.
func ParseID(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return uint32(u), nil
}

// FormatID is the canonical spelling of a message id in documents.
func FormatID(id uint32) string {
	return fmt.Sprintf("0x%x", id)
}

// Address is the bus address literal the firmware switches on.
func (b *CanBus) Address() string {
	return fmt.Sprintf("0x%x", 0x100+b.Controller)
}

// Usable reports whether the bus can be emitted: it is declared, not
// disabled and sits on a supported controller.
func (b *CanBus) Usable() bool {
	if !b.Declared || !b.Enabled {
		return false
	}
	for _, c := range ValidControllers {
		if b.Controller == c {
			return true
		}
	}
	return false
}

// SortedMessages returns every message on the bus ordered by id.
func (b *CanBus) SortedMessages() []*Message {
	out := make([]*Message, 0, len(b.Messages))
	for _, m := range b.Messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveMessages returns the enabled messages of the bus ordered by id.
func (b *CanBus) ActiveMessages() []*Message {
	var out []*Message
	for _, m := range b.SortedMessages() {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// SortedSignals orders signals by generic name, then by key.
func (m *Message) SortedSignals() []*Signal {
	out := make([]*Signal, 0, len(m.Signals))
	for _, s := range m.Signals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GenericName != out[j].GenericName {
			return out[i].GenericName < out[j].GenericName
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Message) ActiveSignals() []*Signal {
	var out []*Signal
	for _, s := range m.SortedSignals() {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}

// BitPosition is the position the firmware reads, inverted when the owning
// message numbers bits the other way round.
func (s *Signal) BitPosition() int {
	if s.RawBitPosition == nil {
		return 0
	}
	if s.Message != nil && s.Message.BitNumberingInverted && s.BitSize != nil {
		return InvertBitIndex(*s.RawBitPosition, *s.BitSize)
	}
	return *s.RawBitPosition
}

func (s *Signal) Size() int {
	if s.BitSize == nil {
		return 0
	}
	return *s.BitSize
}

// Complete reports whether both bit position and bit size are known.
func (s *Signal) Complete() bool {
	return s.RawBitPosition != nil && s.BitSize != nil
}

// Active is the effective enabled flag: the signal and its message are both
// enabled.
func (s *Signal) Active() bool {
	return s.Enabled && s.Message != nil && s.Message.Enabled
}

// Bus returns the named bus, creating an undeclared placeholder for names
// only messages refer to.
func (ms *MessageSet) Bus(name string) *CanBus {
	if b, ok := ms.Buses[name]; ok {
		return b
	}
	b := &CanBus{Name: name, Messages: map[uint32]*Message{}}
	ms.Buses[name] = b
	return b
}

// SortedBuses returns every bus, declared or not, ordered by name.
func (ms *MessageSet) SortedBuses() []*CanBus {
	names := make([]string, 0, len(ms.Buses))
	for name := range ms.Buses {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*CanBus, 0, len(names))
	for _, name := range names {
		out = append(out, ms.Buses[name])
	}
	return out
}

// ValidBuses returns the usable buses ordered by controller.
func (ms *MessageSet) ValidBuses() []*CanBus {
	var out []*CanBus
	for _, b := range ms.SortedBuses() {
		if b.Usable() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Controller < out[j].Controller })
	return out
}

// AllMessages walks the messages of valid buses, enabled or not.
func (ms *MessageSet) AllMessages() []*Message {
	var out []*Message
	for _, b := range ms.ValidBuses() {
		out = append(out, b.SortedMessages()...)
	}
	return out
}

// ActiveMessages is the emission order of messages: by controller, then id.
func (ms *MessageSet) ActiveMessages() []*Message {
	var out []*Message
	for _, b := range ms.ValidBuses() {
		out = append(out, b.ActiveMessages()...)
	}
	return out
}

// ActiveSignals is the emission order of signals: by message, then generic
// name.
func (ms *MessageSet) ActiveSignals() []*Signal {
	var out []*Signal
	for _, m := range ms.ActiveMessages() {
		out = append(out, m.ActiveSignals()...)
	}
	return out
}

func (ms *MessageSet) ActiveCommands() []Command {
	var out []Command
	for _, c := range ms.Commands {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}
