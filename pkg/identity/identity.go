// Package identity reconciles player identifiers across data sources
package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/sirupsen/logrus"
)

const (
	// LinkTable is the name of the curated cross-reference table
	LinkTable = "player_link"

	// ColumnName is the canonical player name column of the link table
	ColumnName = "dk_name"
	// ColumnMLBID is the MLB advanced media id column
	ColumnMLBID = "mlb_id"
	// ColumnFGID is the FanGraphs id column
	ColumnFGID = "fg_id"

	linkAlias = "link"
)

var (
	// ErrMissingTable is returned when a source table was not loaded
	ErrMissingTable = errors.New("missing source table")
	// ErrUnknownIDColumn is returned when a source declares an id column the link table does not carry
	ErrUnknownIDColumn = errors.New("unknown id column")
)

// Source describes how one table identifies players
type Source struct {
	Table      string
	NameColumn string
	IDColumn   string
	// LastFirst is set when names are written "Last, First"
	LastFirst bool
}

// DefaultSources returns the sources checked against the link table, in
// coalescing priority order: earlier sources win when ids disagree
func DefaultSources() []Source {
	return []Source{
		{Table: "dfs", NameColumn: "name_first_last", IDColumn: ColumnMLBID},
		{Table: "fg_batters", NameColumn: "name", IDColumn: ColumnFGID},
		{Table: "fg_pitchers", NameColumn: "name", IDColumn: ColumnFGID},
		{Table: "statcast_batters", NameColumn: "name", IDColumn: ColumnMLBID, LastFirst: true},
	}
}

// InvertName converts "Last, First" to "First Last". Names without a comma are
// returned trimmed but otherwise unchanged.
func InvertName(name string) string {
	last, first, found := strings.Cut(name, ",")
	if !found {
		return strings.TrimSpace(name)
	}

	last, first = strings.TrimSpace(last), strings.TrimSpace(first)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// Resolver finds players that the link table cannot place
type Resolver struct {
	log     logrus.FieldLogger
	sources []Source
}

// NewResolver creates a resolver over the given sources
func NewResolver(log logrus.FieldLogger, sources []Source) *Resolver {
	return &Resolver{
		log:     log.WithField("component", "identity"),
		sources: sources,
	}
}

// Unlinked returns every player present in a source whose native id has no
// link-table entry, one row per distinct (dk_name, mlb_id, fg_id), sorted by name.
// When two sources give different ids for the same name, the earlier source wins.
func (r *Resolver) Unlinked(tables map[string]*table.Table) (*table.Table, error) {
	links, ok := tables[LinkTable]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, LinkTable)
	}
	if err := links.Require(ColumnName, ColumnMLBID, ColumnFGID); err != nil {
		return nil, err
	}
	qualifiedLinks := links.Qualify(linkAlias)

	var (
		combined *table.Table
		idCols   = map[string][]string{}
	)

	for i, src := range r.sources {
		candidates, err := r.candidates(tables, qualifiedLinks, src)
		if err != nil {
			return nil, err
		}

		// Each source's id column is made unique so coalescing can follow source order
		idCol := fmt.Sprintf("%s_%d", src.IDColumn, i)
		candidates, err = candidates.Rename(map[string]string{src.IDColumn: idCol})
		if err != nil {
			return nil, err
		}
		idCols[src.IDColumn] = append(idCols[src.IDColumn], idCol)

		r.log.WithFields(logrus.Fields{
			"source":   src.Table,
			"unlinked": candidates.Len(),
		}).Debug("Collected unlinked candidates")

		if combined == nil {
			combined = candidates
			continue
		}

		combined, err = combined.OuterJoin(candidates, "name", "_x", "_y")
		if err != nil {
			return nil, err
		}
	}

	if combined == nil {
		return table.New("unlinked", []string{ColumnName, ColumnMLBID, ColumnFGID}, nil)
	}

	combined = combined.Distinct()
	for _, id := range []string{ColumnMLBID, ColumnFGID} {
		cols := idCols[id]
		combined = combined.WithColumn(id, func(row table.RowView) table.Value {
			return coalesce(row, cols)
		})
	}

	sorted, err := combined.SortBy("name")
	if err != nil {
		return nil, err
	}

	out, err := sorted.Select("name", ColumnMLBID, ColumnFGID)
	if err != nil {
		return nil, err
	}

	out, err = out.Rename(map[string]string{"name": ColumnName})
	if err != nil {
		return nil, err
	}

	r.log.WithField("unlinked", out.Len()).Info("Resolved unlinked players")

	return out.WithName("unlinked"), nil
}

func (r *Resolver) candidates(tables map[string]*table.Table, links *table.Table, src Source) (*table.Table, error) {
	if src.IDColumn != ColumnMLBID && src.IDColumn != ColumnFGID {
		return nil, fmt.Errorf("%w: %s for source %s", ErrUnknownIDColumn, src.IDColumn, src.Table)
	}

	data, ok := tables[src.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, src.Table)
	}
	if err := data.Require(src.NameColumn, src.IDColumn); err != nil {
		return nil, err
	}

	joined, err := data.LeftJoin(links, table.On(src.IDColumn, table.Qualified(linkAlias, src.IDColumn)))
	if err != nil {
		return nil, err
	}

	linkName := table.Qualified(linkAlias, ColumnName)
	missing := joined.Filter(func(row table.RowView) bool {
		return row.Get(linkName).IsMissing()
	})

	if src.LastFirst {
		missing = missing.WithColumn(src.NameColumn, func(row table.RowView) table.Value {
			v := row.Get(src.NameColumn)
			if v.IsMissing() {
				return v
			}

			return table.String(InvertName(v.String()))
		})
	}

	out, err := missing.Select(src.NameColumn, src.IDColumn)
	if err != nil {
		return nil, err
	}

	if src.NameColumn != "name" {
		out, err = out.Rename(map[string]string{src.NameColumn: "name"})
		if err != nil {
			return nil, err
		}
	}

	return out.Distinct(), nil
}

func coalesce(row table.RowView, cols []string) table.Value {
	for _, col := range cols {
		if v := row.Get(col); !v.IsMissing() {
			return v
		}
	}

	return table.Null()
}

// Conflict is an id that maps to more than one canonical name
type Conflict struct {
	IDColumn string
	ID       string
	Names    []string
}

// Conflicts reports ids in the link table that resolve to several canonical names
func Conflicts(links *table.Table) ([]Conflict, error) {
	if err := links.Require(ColumnName, ColumnMLBID, ColumnFGID); err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, idCol := range []string{ColumnMLBID, ColumnFGID} {
		names := make(map[string]map[string]struct{})
		for i := 0; i < links.Len(); i++ {
			row := links.Row(i)

			id, ok := row.Get(idCol).Key()
			if !ok {
				continue
			}
			name := row.Get(ColumnName)
			if name.IsMissing() {
				continue
			}

			if names[id] == nil {
				names[id] = make(map[string]struct{})
			}
			names[id][name.String()] = struct{}{}
		}

		for id, set := range names {
			if len(set) < 2 {
				continue
			}

			list := make([]string, 0, len(set))
			for name := range set {
				list = append(list, name)
			}
			sort.Strings(list)

			conflicts = append(conflicts, Conflict{IDColumn: idCol, ID: id, Names: list})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].IDColumn != conflicts[j].IDColumn {
			return conflicts[i].IDColumn < conflicts[j].IDColumn
		}

		return conflicts[i].ID < conflicts[j].ID
	})

	return conflicts, nil
}
