package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes data according to the extension of name: .yaml and .yml
// are YAML, everything else is JSON.
func Parse(name string, data []byte) (Value, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes exactly one JSON value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("unexpected data after top-level value at offset %d", dec.InputOffset())
	}

	return FromInterface(raw), nil
}

// ParseYAML decodes the first YAML document in data. Mapping keys keep their
// source text, so a key written as 0x100 stays "0x100".
func ParseYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, err
	}
	if doc.Kind == 0 {
		return NewMapping(), nil
	}

	var root Value
	var convErr error
	work := []pending[*yaml.Node, Value]{{src: &doc, set: func(c Value) { root = c }}}
	for len(work) > 0 && convErr == nil {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		n := p.src
		for n.Kind == yaml.AliasNode {
			n = n.Alias
		}

		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				p.set(NewMapping())
				continue
			}
			work = append(work, pending[*yaml.Node, Value]{src: n.Content[0], set: p.set})
		case yaml.MappingNode:
			fields := make(map[string]Value, len(n.Content)/2)
			p.set(Value{kind: KindMapping, fields: fields})
			for i := 0; i+1 < len(n.Content); i += 2 {
				key := n.Content[i].Value
				work = append(work, pending[*yaml.Node, Value]{src: n.Content[i+1], set: func(c Value) { fields[key] = c }})
			}
		case yaml.SequenceNode:
			items := make([]Value, len(n.Content))
			p.set(Value{kind: KindSequence, items: items})
			for i, child := range n.Content {
				work = append(work, pending[*yaml.Node, Value]{src: child, set: func(c Value) { items[i] = c }})
			}
		case yaml.ScalarNode:
			var s any
			if err := n.Decode(&s); err != nil {
				convErr = fmt.Errorf("line %d: %w", n.Line, err)
				continue
			}
			p.set(scalarOf(s))
		}
	}
	if convErr != nil {
		return Value{}, convErr
	}

	return root, nil
}
