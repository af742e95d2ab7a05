package codegen

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Section is one named block of output lines.
type Section struct {
	Name  string
	Lines []string
}

// Document is the whole generated source held in memory. Nothing is written
// until Render.
type Document struct {
	Version     string
	Fingerprint string
	Sections    []Section
}

// Section returns the named section, or nil.
func (d *Document) Section(name string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

// Render writes every section in order, one line per line, with a blank
// line between sections.
func (d *Document) Render(w io.Writer) error {
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.Bytes()
}

func (d *Document) String() string {
	return string(d.Bytes())
}

// lines is a small builder for section bodies.
type lines []string

func (l *lines) add(line string) {
	*l = append(*l, line)
}

func (l *lines) addf(format string, args ...any) {
	*l = append(*l, fmt.Sprintf(format, args...))
}

func (l *lines) extend(other []string) {
	*l = append(*l, other...)
}

// splitLines turns a text blob into lines without a trailing empty one.
func splitLines(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
