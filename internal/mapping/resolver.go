package mapping

import (
	"fmt"

	"github.com/KevinKickass/cangen/internal/database"
	"github.com/KevinKickass/cangen/internal/document"
	"github.com/KevinKickass/cangen/internal/loader"
	"github.com/KevinKickass/cangen/internal/model"
	"github.com/KevinKickass/cangen/internal/report"
	"go.uber.org/zap"
)

// Resolver turns the "mappings" list of a message set into a message pool,
// loading each mapping document and, where one is named, its signal
// database.
type Resolver struct {
	loader    *loader.Loader
	databases map[string]*database.Database
	logger    *zap.Logger
}

func NewResolver(l *loader.Loader, logger *zap.Logger) *Resolver {
	return &Resolver{
		loader:    l,
		databases: map[string]*database.Database{},
		logger:    logger,
	}
}

// Entry is one item of a message set's "mappings" list.
type Entry struct {
	Mapping  string
	Bus      string
	Database string
	Enabled  bool
}

// ParseEntry reads one item of a "mappings" list.
func ParseEntry(v document.Value) (Entry, error) {
	e := Entry{Enabled: true}

	name, ok := v.Get("mapping")
	if !ok {
		return e, fmt.Errorf("mapping is missing the mapping file path")
	}
	if e.Mapping, ok = name.AsString(); !ok || e.Mapping == "" {
		return e, fmt.Errorf("mapping file path must be a non-empty string")
	}
	if b, ok := v.Get("bus"); ok {
		e.Bus, _ = b.AsString()
	}
	if d, ok := v.Get("database"); ok {
		e.Database, _ = d.AsString()
	}
	if en, ok := v.Get("enabled"); ok {
		if b, ok := en.AsBool(); ok {
			e.Enabled = b
		}
	}
	return e, nil
}

// Resolve processes every mapping of doc in list order. A mapping entry
// without a file path, or a mapping or database that cannot be read, is
// fatal; everything else is reported to rep.
func (r *Resolver) Resolve(setName string, doc document.Value, rep *report.Report) (*model.Pool, error) {
	pool := &model.Pool{}

	raw, ok := doc.Get("mappings")
	if !ok {
		return pool, nil
	}

	buses, _ := doc.Get("buses")

	for i, item := range raw.Items() {
		path := fmt.Sprintf("/mappings/%d", i)

		entry, err := ParseEntry(item)
		if err != nil {
			rep.AddError(report.Issue{
				Code:       report.CodeMappingNoFile,
				MessageSet: setName,
				Path:       path,
				Message:    err.Error(),
			})
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}

		if err := r.resolveEntry(setName, path, entry, buses, pool, rep); err != nil {
			return nil, fmt.Errorf("mapping %s: %w", entry.Mapping, err)
		}
	}

	return pool, nil
}

func (r *Resolver) resolveEntry(setName, path string, entry Entry, buses document.Value, pool *model.Pool, rep *report.Report) error {
	r.logger.Debug("Resolving mapping",
		zap.String("mapping", entry.Mapping),
		zap.String("bus", entry.Bus),
		zap.Bool("enabled", entry.Enabled))

	if !entry.Enabled {
		rep.Warnf(report.CodeMappingDisabled, setName, path,
			"Mapping '%s' is disabled", entry.Mapping)
	}

	switch {
	case entry.Bus == "":
		rep.Warnf(report.CodeMappingNoBus, setName, path+"/bus",
			"No default bus associated with '%s' mapping", entry.Mapping)
	case !buses.Has(entry.Bus):
		rep.Warnf(report.CodeMappingUndefBus, setName, path+"/bus",
			"Bus '%s' (from mapping %s) is not defined", entry.Bus, entry.Mapping)
	}

	mdoc, err := r.loader.Load(entry.Mapping)
	if err != nil {
		return err
	}

	if raw, ok := mdoc.Get("commands"); ok {
		for _, c := range raw.Items() {
			c = c.Clone()
			if !entry.Enabled && c.IsMapping() {
				c.Set("enabled", document.Bool(false))
			}
			pool.Commands = append(pool.Commands, c)
		}
	}

	if entry.Enabled {
		pool.Initializers = append(pool.Initializers, stringItems(mdoc, "initializers")...)
		pool.Loopers = append(pool.Loopers, stringItems(mdoc, "loopers")...)
		pool.ExtraSources = append(pool.ExtraSources, stringItems(mdoc, "extra_sources")...)
	}

	messages, ok := mdoc.Get("messages")
	if !ok || !messages.IsMapping() {
		messages = document.NewMapping()
	}
	if messages.Len() == 0 {
		rep.Warnf(report.CodeMappingEmpty, setName, path,
			"Mapping file '%s' doesn't define any messages", entry.Mapping)
	}

	if entry.Database != "" && messages.Len() > 0 {
		db, err := r.openDatabase(entry.Database)
		if err != nil {
			return err
		}
		derived, missing := db.Enrich(messages)
		for _, id := range missing {
			rep.Warnf(report.CodeDatabaseMissingID, setName, path+"/database",
				"Unable to find message ID %s in %s", id, entry.Database)
		}
		for _, sig := range db.Unsupported(messages) {
			rep.Warnf(report.CodeDatabaseUnusable, setName, path+"/database",
				"Signal %s in %s was not taken over", sig, entry.Database)
		}
		messages = document.Merge(derived, messages)
	}

	for _, id := range messages.Keys() {
		def, _ := messages.Get(id)
		if !def.IsMapping() {
			continue
		}
		def = def.Clone()

		bus := entry.Bus
		if b, ok := def.Get("bus"); ok {
			if s, ok := b.AsString(); ok {
				bus = s
			}
		}
		if !entry.Enabled {
			def.Set("enabled", document.Bool(false))
		}

		pool.Messages = append(pool.Messages, model.PooledMessage{
			ID:     id,
			Bus:    bus,
			Doc:    def,
			Source: entry.Mapping,
		})
	}

	r.logger.Info("Mapping resolved",
		zap.String("mapping", entry.Mapping),
		zap.Int("messages", messages.Len()),
		zap.String("database", entry.Database))

	return nil
}

func (r *Resolver) openDatabase(name string) (*database.Database, error) {
	path, err := r.loader.Find(name)
	if err != nil {
		return nil, err
	}
	if db, ok := r.databases[path]; ok {
		return db, nil
	}

	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	r.databases[path] = db

	r.logger.Debug("Database loaded",
		zap.String("path", path),
		zap.String("format", string(db.Format)),
		zap.Int("messages", db.Len()))

	return db, nil
}

// Database opens a signal database through the loader's search paths.
func (r *Resolver) Database(name string) (*database.Database, error) {
	return r.openDatabase(name)
}

func stringItems(v document.Value, key string) []string {
	raw, ok := v.Get(key)
	if !ok {
		return nil
	}
	out := make([]string, 0, raw.Len())
	for _, item := range raw.Items() {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}
