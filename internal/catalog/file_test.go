package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createRecordsDB(t *testing.T, dir, name string, records []string) string {
	t.Helper()
	dbPath := filepath.Join(dir, name)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec("CREATE TABLE results (id TEXT PRIMARY KEY, record TEXT NOT NULL)")
	require.NoError(t, err)
	for i, rec := range records {
		_, err = db.Exec("INSERT INTO results (id, record) VALUES (?, ?)", string(rune('a'+i)), rec)
		require.NoError(t, err)
	}
	return dbPath
}

func TestFileSource_Formats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "array.json", `[{"city":"Oslo","temp":3.5},{"city":"Rome","temp":18}]`)
	writeFile(t, dir, "doc.json", `{
		"columns": [{"name":"city","type":"categorical"},{"name":"temp","type":"numerical","dtype":"float64"}],
		"filters": [{"column":"city","filter_type":"multi_select","options":["Oslo","Rome"]}],
		"data": [{"city":"Oslo","temp":3.5}]
	}`)
	writeFile(t, dir, "lines.ndjson", "{\"city\":\"Oslo\",\"temp\":3.5}\n\n{\"city\":\"Rome\",\"temp\":18}\n")
	createRecordsDB(t, dir, "records.db", []string{
		`{"city":"Oslo","temp":3.5}`,
		`{"city":"Rome","temp":18}`,
		`{"city":"Lima","temp":20}`,
	})

	src, err := NewFileSource(dir, "", analyze.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		id       string
		rows     int
		declared bool
	}{
		{"array", 2, false},
		{"doc", 1, true},
		{"lines", 2, false},
		{"records", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := src.Fetch(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, p.DatasetID)
			assert.Len(t, p.Rows, tt.rows)
			assert.Equal(t, "Oslo", p.Rows[0]["city"])
			require.NotEmpty(t, p.Columns)
			if tt.declared {
				assert.Equal(t, "float64", p.Columns[1].DType)
				require.Len(t, p.Filters, 1)
				assert.Equal(t, []any{"Oslo", "Rome"}, p.Filters[0].Options)
			}
		})
	}
}

func TestFileSource_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `[]`)
	writeFile(t, dir, "a.ndjson", ``)
	writeFile(t, dir, "a.json", `[]`)
	writeFile(t, dir, "notes.txt", `ignored`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	src, err := NewFileSource(dir, "", analyze.Config{})
	require.NoError(t, err)

	list, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, filepath.Join(dir, "a.json"), list[0].URL)
	assert.Equal(t, "b", list[1].ID)
}

func TestFileSource_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"data": [`)
	writeFile(t, dir, "badline.ndjson", "{\"a\":1}\n{oops\n")

	src, err := NewFileSource(dir, "", analyze.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = src.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{"", "../etc/passwd", ".hidden", "a/b"} {
		_, err = src.Fetch(ctx, id)
		assert.Error(t, err, id)
	}

	_, err = src.Fetch(ctx, "bad")
	assert.Error(t, err)

	_, err = src.Fetch(ctx, "badline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")

	_, err = NewFileSource(filepath.Join(dir, "bad.json"), "", analyze.Config{})
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "world-gdp.json", `{"result":{"items":[{"v":1},{"v":2}]}}`)

	p, err := ReadFile(context.Background(), path, "$.result.items[*]", analyze.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "world-gdp", p.DatasetID)
	assert.Equal(t, []api.Row{{"v": int64(1)}, {"v": int64(2)}}, p.Rows)
}

func TestStreamRecords(t *testing.T) {
	dir := t.TempDir()
	dbPath := createRecordsDB(t, dir, "r.db", []string{`{"n":1}`, `[1,2]`, `"plain"`})

	var ids []string
	var got []any
	err := StreamRecords(context.Background(), dbPath, func(id string, rec any) error {
		ids = append(ids, id)
		got = append(got, rec)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, map[string]any{"n": int64(1)}, got[0])
	assert.Equal(t, "plain", got[2])

	_, err = LoadRecords(context.Background(), filepath.Join(dir, "absent.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := createRecordsDB(t, dir, "bad.db", []string{`{not json`})
	_, err = LoadRecords(context.Background(), bad)
	assert.Error(t, err)
}
