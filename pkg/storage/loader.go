package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ethpandaops/mlbdfs/pkg/observability"
	"github.com/ethpandaops/mlbdfs/pkg/registry"
	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
)

const (
	csvSuffix = ".csv"

	sourceStore = "store"
	sourceCache = "cache"
)

// BodyCache keeps decoded object bodies keyed by object key and ETag
type BodyCache interface {
	GetBody(ctx context.Context, key, etag string) (string, bool, error)
	SetBody(ctx context.Context, key, etag, body string) error
	Invalidate(ctx context.Context, key string) error
}

// Loader reads every raw CSV object into a named table
type Loader struct {
	log      logrus.FieldLogger
	store    ObjectStore
	registry *registry.Registry
	cache    BodyCache
	prefix   string
}

// NewLoader creates a loader. The cache may be nil.
func NewLoader(log logrus.FieldLogger, store ObjectStore, reg *registry.Registry, cache BodyCache, prefix string) *Loader {
	return &Loader{
		log:      log.WithField("component", "loader"),
		store:    store,
		registry: reg,
		cache:    cache,
		prefix:   prefix,
	}
}

// TableName returns the table an object key loads as: its basename without .csv
func TableName(key string) (string, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, csvSuffix) || base == csvSuffix {
		return "", false
	}

	return strings.TrimSuffix(base, csvSuffix), true
}

// Load returns every CSV object under the prefix as a table. When two objects
// share a basename the one listed last wins.
func (l *Loader) Load(ctx context.Context) (map[string]*table.Table, error) {
	objects, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]*table.Table)
	sources := make(map[string]string)

	for _, obj := range objects {
		filename, ok := TableName(obj.Key)
		if !ok {
			continue
		}

		entry, _ := l.registry.Resolve(filename)

		t, err := l.loadObject(ctx, obj, entry)
		if err != nil {
			return nil, err
		}

		if previous, exists := sources[entry.Name]; exists {
			l.log.WithFields(logrus.Fields{
				"table":    entry.Name,
				"replaced": previous,
				"key":      obj.Key,
			}).Warn("Table loaded from more than one object")
		}

		tables[entry.Name] = t
		sources[entry.Name] = obj.Key
	}

	l.log.WithFields(logrus.Fields{
		"tables": len(tables),
		"names":  Names(tables),
	}).Info("Loaded raw tables")

	return tables, nil
}

func (l *Loader) loadObject(ctx context.Context, obj Object, entry registry.Table) (*table.Table, error) {
	body, source, err := l.body(ctx, obj, true)
	if err != nil {
		return nil, err
	}

	raw, err := table.ReadCSV(entry.Name, strings.NewReader(body))
	if err != nil && source == sourceCache {
		// A corrupt cache entry must not fail the run while the object is fine
		l.log.WithError(err).WithField("key", obj.Key).Warn("Cached table is unreadable, reloading from store")
		observability.RecordError("loader", "cache_corrupt")

		if err := l.cache.Invalidate(ctx, obj.Key); err != nil {
			l.log.WithError(err).WithField("key", obj.Key).Warn("Failed to invalidate table cache")
		}

		if body, source, err = l.body(ctx, obj, false); err != nil {
			return nil, err
		}
		raw, err = table.ReadCSV(entry.Name, strings.NewReader(body))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", obj.Key, err)
	}

	t, err := entry.Apply(raw)
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"table":  entry.Name,
		"key":    obj.Key,
		"rows":   t.Len(),
		"source": source,
	}).Debug("Loaded table")

	observability.RecordTableLoaded(entry.Name, source, t.Len())

	return t, nil
}

// body returns the object decoded from Latin-1, from the cache when possible.
// The store's copy is written back to the cache either way.
func (l *Loader) body(ctx context.Context, obj Object, readCache bool) (string, string, error) {
	cacheable := l.cache != nil && obj.ETag != ""

	if cacheable && readCache {
		body, ok, err := l.cache.GetBody(ctx, obj.Key, obj.ETag)
		if err != nil {
			l.log.WithError(err).WithField("key", obj.Key).Warn("Failed to read table cache")
			observability.RecordError("loader", "cache_read")
		} else if ok {
			observability.RecordCacheHit()
			return body, sourceCache, nil
		}

		observability.RecordCacheMiss()
	}

	rc, err := l.store.Get(ctx, obj.Key)
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	decoded, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(rc))
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", obj.Key, err)
	}
	body := string(decoded)

	if cacheable {
		if err := l.cache.SetBody(ctx, obj.Key, obj.ETag, body); err != nil {
			l.log.WithError(err).WithField("key", obj.Key).Warn("Failed to write table cache")
			observability.RecordError("loader", "cache_write")
		}
	}

	return body, sourceStore, nil
}

// Names returns the sorted table names of a loaded snapshot
func Names(tables map[string]*table.Table) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
