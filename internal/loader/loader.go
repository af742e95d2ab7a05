package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KevinKickass/cangen/internal/document"
	"go.uber.org/zap"
)

// extensions tried, in order, for a document name given without one.
var extensions = []string{".json", ".yaml", ".yml"}

// NotFoundError is returned when a name matches no file in any search path.
type NotFoundError struct {
	Name        string
	SearchPaths []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s (searched in: %v)", e.Name, e.SearchPaths)
}

// ParseError wraps a decoding or schema failure of one file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s is not a valid document: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CycleError reports a document that is, directly or indirectly, its own
// parent. Chain starts and ends with the same file.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular parent reference: %s", strings.Join(e.Chain, " -> "))
}

// Loader resolves document names against an ordered list of directories.
type Loader struct {
	validator   *Validator
	searchPaths []string
	logger      *zap.Logger
}

func NewLoader(searchPaths []string, logger *zap.Logger) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
		logger:      logger,
	}, nil
}

func (l *Loader) SearchPaths() []string {
	return append([]string(nil), l.searchPaths...)
}

// Find returns the path of the first file matching name. Absolute names are
// used as they are.
func (l *Loader) Find(name string) (string, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		for _, ext := range extensions {
			candidates = append(candidates, name+ext)
		}
	}

	if filepath.IsAbs(name) {
		for _, c := range candidates {
			if isFile(c) {
				return c, nil
			}
		}
		return "", &NotFoundError{Name: name, SearchPaths: l.SearchPaths()}
	}

	for _, searchPath := range l.searchPaths {
		for _, c := range candidates {
			fullPath := filepath.Join(searchPath, c)
			if isFile(fullPath) {
				return fullPath, nil
			}
		}
	}

	return "", &NotFoundError{Name: name, SearchPaths: l.SearchPaths()}
}

// ReadFile finds name and returns its raw bytes.
func (l *Loader) ReadFile(name string) ([]byte, string, error) {
	path, err := l.Find(name)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, path, nil
}

// Load finds and parses name, folds in all of its parents and checks the
// result against the document schema. The returned document has no
// "parents" key and shares no storage with any cached document.
func (l *Loader) Load(name string) (document.Value, error) {
	st := &resolveState{
		l:        l,
		done:     map[string]document.Value{},
		visiting: map[string]bool{},
		stack:    make([]string, 0, 4),
	}

	doc, path, err := st.resolve(name)
	if err != nil {
		return document.Value{}, err
	}

	if err := l.validator.ValidateDocument(doc); err != nil {
		return document.Value{}, &ParseError{Path: path, Err: err}
	}

	l.logger.Debug("Document loaded",
		zap.String("document", name),
		zap.String("path", path))

	return doc.Clone(), nil
}

// read parses a single file without looking at its parents.
func (l *Loader) read(name string) (document.Value, string, error) {
	data, path, err := l.ReadFile(name)
	if err != nil {
		return document.Value{}, "", err
	}

	doc, err := document.Parse(path, data)
	if err != nil {
		return document.Value{}, "", &ParseError{Path: path, Err: err}
	}
	if !doc.IsMapping() {
		return document.Value{}, "", &ParseError{Path: path, Err: fmt.Errorf("top level must be an object, got %s", doc.Kind())}
	}

	return doc, path, nil
}

type resolveState struct {
	l        *Loader
	done     map[string]document.Value
	visiting map[string]bool
	stack    []string
}

func (st *resolveState) resolve(name string) (document.Value, string, error) {
	path, err := st.l.Find(name)
	if err != nil {
		return document.Value{}, "", err
	}

	if doc, ok := st.done[path]; ok {
		return doc, path, nil
	}
	if st.visiting[path] {
		return document.Value{}, "", &CycleError{Chain: st.cyclePath(path)}
	}

	doc, _, err := st.l.read(path)
	if err != nil {
		return document.Value{}, "", err
	}

	parents, err := parentNames(doc)
	if err != nil {
		return document.Value{}, "", &ParseError{Path: path, Err: err}
	}
	doc.Delete("parents")

	st.visiting[path] = true
	st.stack = append(st.stack, path)

	for _, parentName := range parents {
		parent, _, err := st.resolve(parentName)
		if err != nil {
			var cycle *CycleError
			if errors.As(err, &cycle) {
				return document.Value{}, "", err
			}
			return document.Value{}, "", fmt.Errorf("parent of %s: %w", path, err)
		}

		// Merge the document *into* its parent so its own keys win.
		doc = document.Merge(parent, doc)

		st.l.logger.Debug("Parent merged",
			zap.String("document", path),
			zap.String("parent", parentName))
	}

	st.stack = st.stack[:len(st.stack)-1]
	st.visiting[path] = false
	st.done[path] = doc

	return doc, path, nil
}

func (st *resolveState) cyclePath(target string) []string {
	start := -1
	for i := range st.stack {
		if st.stack[i] == target {
			start = i
			break
		}
	}
	if start == -1 {
		return []string{target}
	}

	out := make([]string, 0, len(st.stack)-start+1)
	out = append(out, st.stack[start:]...)
	out = append(out, target)
	return out
}

func parentNames(doc document.Value) ([]string, error) {
	raw, ok := doc.Get("parents")
	if !ok || raw.IsNull() {
		return nil, nil
	}
	if !raw.IsSequence() {
		return nil, fmt.Errorf("parents must be a list of document names, got %s", raw.Kind())
	}

	names := make([]string, 0, raw.Len())
	for i, item := range raw.Items() {
		name, ok := item.AsString()
		if !ok || name == "" {
			return nil, fmt.Errorf("parents[%d] must be a document name", i)
		}
		names = append(names, name)
	}
	return names, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
