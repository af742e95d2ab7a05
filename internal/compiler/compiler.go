package compiler

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/cangen/internal/codegen"
	"github.com/KevinKickass/cangen/internal/document"
	"github.com/KevinKickass/cangen/internal/loader"
	"github.com/KevinKickass/cangen/internal/mapping"
	"github.com/KevinKickass/cangen/internal/model"
	"github.com/KevinKickass/cangen/internal/report"
	"github.com/KevinKickass/cangen/internal/validate"
	"go.uber.org/zap"
)

// ErrInvalid is returned when the collected report holds at least one error.
var ErrInvalid = errors.New("message set configuration is invalid")

// Options configures a Compiler.
type Options struct {
	SearchPaths []string
	Version     string
}

// Compiler runs the whole pipeline: load, resolve mappings, build the model,
// validate and generate.
type Compiler struct {
	loader    *loader.Loader
	resolver  *mapping.Resolver
	generator *codegen.Generator
	logger    *zap.Logger
}

// Result is what a pipeline run produced. Document is nil unless source was
// generated.
type Result struct {
	Sets     []*model.MessageSet
	Report   *report.Report
	Document *codegen.Document
}

func New(opts Options, logger *zap.Logger) (*Compiler, error) {
	l, err := loader.NewLoader(opts.SearchPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}

	return &Compiler{
		loader:    l,
		resolver:  mapping.NewResolver(l, logger),
		generator: codegen.New(opts.Version, l, logger),
		logger:    logger,
	}, nil
}

// Check loads and validates the named message sets without generating
// anything. The result is returned even when err is ErrInvalid so the
// report can be printed.
func (c *Compiler) Check(names []string) (*Result, error) {
	if len(names) == 0 {
		return nil, errors.New("no message sets given")
	}

	res := &Result{Report: report.New()}

	for _, name := range names {
		ms, err := c.loadMessageSet(name, res.Report)
		if err != nil {
			res.Report.Finalize()
			return res, err
		}
		res.Sets = append(res.Sets, ms)
	}

	validate.Sets(res.Sets, res.Report)
	res.Report.Finalize()
	res.Report.Log(c.logger)

	if !res.Report.Valid {
		return res, fmt.Errorf("%w: %d error(s)", ErrInvalid, len(res.Report.Errors))
	}
	return res, nil
}

// CompileMessageSets validates the named message sets and generates source
// for them.
func (c *Compiler) CompileMessageSets(names []string) (*Result, error) {
	res, err := c.Check(names)
	if err != nil {
		return res, err
	}

	doc, err := c.generator.Build(res.Sets)
	if err != nil {
		return res, fmt.Errorf("failed to generate source: %w", err)
	}
	res.Document = doc
	return res, nil
}

// CompileSuperset reads the message set names from a superset document and
// compiles them together.
func (c *Compiler) CompileSuperset(name string) (*Result, error) {
	names, err := c.SupersetNames(name)
	if err != nil {
		return nil, err
	}
	return c.CompileMessageSets(names)
}

// SupersetNames returns the "message_sets" list of a superset document.
func (c *Compiler) SupersetNames(name string) ([]string, error) {
	doc, err := c.loader.Load(name)
	if err != nil {
		return nil, err
	}

	raw, ok := doc.Get("message_sets")
	if !ok || raw.Len() == 0 {
		return nil, fmt.Errorf("superset %s doesn't list any message_sets", name)
	}

	names := make([]string, 0, raw.Len())
	for i, item := range raw.Items() {
		s, ok := item.AsString()
		if !ok || s == "" {
			return nil, fmt.Errorf("superset %s: message_sets[%d] must be a non-empty string", name, i)
		}
		names = append(names, s)
	}

	c.logger.Info("Superset loaded",
		zap.String("document", name),
		zap.Strings("message_sets", names))

	return names, nil
}

// Enrich returns the messages of a mapping filled in from a signal database,
// plus the message ids the database doesn't know.
func (c *Compiler) Enrich(databaseName, mappingName string) (document.Value, []string, error) {
	db, err := c.resolver.Database(databaseName)
	if err != nil {
		return document.Value{}, nil, err
	}

	mdoc, err := c.loader.Load(mappingName)
	if err != nil {
		return document.Value{}, nil, err
	}

	messages, ok := mdoc.Get("messages")
	if !ok || !messages.IsMapping() {
		return document.Value{}, nil, fmt.Errorf("mapping %s doesn't define any messages", mappingName)
	}

	derived, missing := db.Enrich(messages)
	for _, sig := range db.Unsupported(messages) {
		c.logger.Warn("Signal not taken over from database",
			zap.String("signal", sig),
			zap.String("database", databaseName))
	}
	return document.Merge(derived, messages), missing, nil
}

func (c *Compiler) loadMessageSet(name string, rep *report.Report) (*model.MessageSet, error) {
	doc, err := c.loader.Load(name)
	if err != nil {
		rep.AddError(report.Issue{
			Code:       report.CodeLoadFailed,
			MessageSet: name,
			Message:    err.Error(),
		})
		return nil, err
	}

	setName := name
	if n, ok := doc.Get("name"); ok {
		if s, ok := n.AsString(); ok && s != "" {
			setName = s
		}
	}

	pool, err := c.resolver.Resolve(setName, doc, rep)
	if err != nil {
		return nil, fmt.Errorf("message set %s: %w", setName, err)
	}

	ms := model.Build(doc, pool, rep)
	validate.Validate(ms, rep)

	c.logger.Info("Message set loaded",
		zap.String("message_set", ms.Name),
		zap.Int("buses", len(ms.ValidBuses())),
		zap.Int("messages", len(ms.ActiveMessages())),
		zap.Int("signals", len(ms.ActiveSignals())),
		zap.Int("commands", len(ms.ActiveCommands())))

	return ms, nil
}
