package identity

import (
	"strings"
	"testing"

	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, name string, columns []string, records ...[]string) *table.Table {
	t.Helper()

	tbl, err := table.FromRecords(name, columns, records)
	require.NoError(t, err)

	return tbl
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestInvertName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Trout, Mike", expected: "Mike Trout"},
		{input: "Acuna Jr., Ronald", expected: "Ronald Acuna Jr."},
		{input: "Ohtani,Shohei", expected: "Shohei Ohtani"},
		{input: "  Betts,   Mookie ", expected: "Mookie Betts"},
		{input: "Mookie Betts", expected: "Mookie Betts"},
		{input: "Ichiro,", expected: "Ichiro"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := InvertName(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestInvertName_Property(t *testing.T) {
	for _, name := range []string{"Trout, Mike", "Judge, Aaron", "Alvarez, Yordan", "Soto, Juan"} {
		got := InvertName(name)
		assert.NotContains(t, got, ",")
		assert.Equal(t, 1, strings.Count(got, " "))
	}
}

func fixtureTables(t *testing.T) map[string]*table.Table {
	t.Helper()

	return map[string]*table.Table{
		LinkTable: newTable(t, LinkTable, []string{"dk_name", "mlb_id", "fg_id"},
			[]string{"Mike Trout", "545361", "10155"},
		),
		"dfs": newTable(t, "dfs", []string{"name_first_last", "mlb_id", "team"},
			[]string{"Mike Trout", "545361", "laa"},
			[]string{"New Guy", "999", "nyy"},
			[]string{"New Guy", "999", "nyy"},
			[]string{"Shared Name", "111", "bos"},
		),
		"fg_batters": newTable(t, "fg_batters", []string{"name", "fg_id"},
			[]string{"Mike Trout", "10155"},
			[]string{"New Guy", "fg999"},
		),
		"fg_pitchers": newTable(t, "fg_pitchers", []string{"name", "fg_id"},
			[]string{"Pitcher Person", "fgp1"},
			[]string{"New Guy", "fgALT"},
		),
		"statcast_batters": newTable(t, "statcast_batters", []string{"name", "mlb_id"},
			[]string{"Trout, Mike", "545361"},
			[]string{"Guy, New", "888"},
			[]string{"Stat, Only", "777"},
		),
	}
}

func TestResolver_Unlinked(t *testing.T) {
	resolver := NewResolver(quietLogger(), DefaultSources())

	out, err := resolver.Unlinked(fixtureTables(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"dk_name", "mlb_id", "fg_id"}, out.Columns())

	var got [][]string
	for i := 0; i < out.Len(); i++ {
		row := out.Row(i)
		got = append(got, []string{row.Get("dk_name").String(), row.Get("mlb_id").String(), row.Get("fg_id").String()})
	}

	assert.Equal(t, [][]string{
		{"New Guy", "999", "fg999"},
		{"Only Stat", "777", ""},
		{"Pitcher Person", "", "fgp1"},
		{"Shared Name", "111", ""},
	}, got)
}

func TestResolver_UnlinkedMissingTable(t *testing.T) {
	tables := fixtureTables(t)
	delete(tables, "fg_pitchers")

	_, err := NewResolver(quietLogger(), DefaultSources()).Unlinked(tables)
	require.ErrorIs(t, err, ErrMissingTable)

	tables = fixtureTables(t)
	delete(tables, LinkTable)

	_, err = NewResolver(quietLogger(), DefaultSources()).Unlinked(tables)
	require.ErrorIs(t, err, ErrMissingTable)
}

func TestResolver_UnlinkedUnknownIDColumn(t *testing.T) {
	resolver := NewResolver(quietLogger(), []Source{{Table: "dfs", NameColumn: "name_first_last", IDColumn: "team"}})

	_, err := resolver.Unlinked(fixtureTables(t))
	require.ErrorIs(t, err, ErrUnknownIDColumn)
}

func TestConflicts(t *testing.T) {
	links := newTable(t, LinkTable, []string{"dk_name", "mlb_id", "fg_id"},
		[]string{"A", "1", "f1"},
		[]string{"B", "1.0", "f2"},
		[]string{"C", "2", "f2"},
		[]string{"C", "2", ""},
	)

	conflicts, err := Conflicts(links)
	require.NoError(t, err)

	assert.Equal(t, []Conflict{
		{IDColumn: "fg_id", ID: "f2", Names: []string{"B", "C"}},
		{IDColumn: "mlb_id", ID: "1", Names: []string{"A", "B"}},
	}, conflicts)
}
