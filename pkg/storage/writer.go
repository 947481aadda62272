package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/sirupsen/logrus"
)

// Writer publishes tables as CSV objects keyed by run date
type Writer struct {
	log   logrus.FieldLogger
	store ObjectStore
	keys  *KeyRenderer
}

// NewWriter creates a writer using the configured key template
func NewWriter(log logrus.FieldLogger, store ObjectStore, cfg *Config) (*Writer, error) {
	keys, err := NewKeyRenderer(cfg.KeyTemplate, cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	return &Writer{
		log:   log.WithField("component", "writer"),
		store: store,
		keys:  keys,
	}, nil
}

// Key returns the object key a table is written to on the given date
func (w *Writer) Key(name string, date time.Time) (string, error) {
	return w.keys.Render(name, date)
}

// Write stores the table and returns its key
func (w *Writer) Write(ctx context.Context, t *table.Table, date time.Time) (string, error) {
	key, err := w.Key(t.Name(), date)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", t.Name(), err)
	}

	if err := w.store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", err
	}

	w.log.WithFields(logrus.Fields{
		"table": t.Name(),
		"key":   key,
		"rows":  t.Len(),
	}).Info("Wrote table")

	return key, nil
}
