package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/ohler55/ojg/oj"
)

// Extensions recognized by FileSource, in lookup order.
var fileExtensions = []string{".json", ".ndjson", ".jsonl", ".db"}

// FileSource serves datasets from files named <id>.json, <id>.ndjson,
// <id>.jsonl or <id>.db in one directory.
//
// A .json file is either a bare array of rows or a catalog-style document
// that the rows selector applies to. .ndjson/.jsonl files hold one row per
// line. A .db file is a SQLite database with a results(id, record) table of
// JSON records.
type FileSource struct {
	dir string
	ex  *extractor
}

// NewFileSource returns a source reading from dir.
func NewFileSource(dir, rowsSelector string, analysis analyze.Config) (*FileSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset dir %s: not a directory", dir)
	}
	ex, err := newExtractor(rowsSelector, analysis)
	if err != nil {
		return nil, err
	}
	return &FileSource{dir: dir, ex: ex}, nil
}

// List returns one record per dataset file, sorted by id.
func (s *FileSource) List(_ context.Context) ([]api.Dataset, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []api.Dataset
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(fileExtensions, ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, api.Dataset{ID: id, Name: id, Provider: "file", URL: filepath.Join(s.dir, e.Name())})
	}
	slices.SortFunc(out, func(a, b api.Dataset) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Fetch implements the lifecycle controller's Source.
func (s *FileSource) Fetch(ctx context.Context, id string) (*api.DatasetPayload, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("invalid dataset id %q", id)
	}
	for _, ext := range fileExtensions {
		path := filepath.Join(s.dir, id+ext)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		root, err := readDocument(ctx, path)
		if err != nil {
			return nil, err
		}
		return s.ex.payload(id, root)
	}
	return nil, fmt.Errorf("%s in %s: %w", id, s.dir, ErrNotFound)
}

// ReadFile loads a single dataset file. The dataset id is the file name
// without its extension.
func ReadFile(ctx context.Context, path, rowsSelector string, analysis analyze.Config) (*api.DatasetPayload, error) {
	ex, err := newExtractor(rowsSelector, analysis)
	if err != nil {
		return nil, err
	}
	root, err := readDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	return ex.payload(strings.TrimSuffix(base, filepath.Ext(base)), root)
}

// readDocument decodes path into a JSON-shaped value. Row-per-record formats
// and bare arrays come back as {"data": [...]} so the default selector finds
// them.
func readDocument(ctx context.Context, path string) (any, error) {
	switch filepath.Ext(path) {
	case ".ndjson", ".jsonl":
		records, err := readLines(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": records}, nil
	case ".db":
		records, err := LoadRecords(ctx, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": records}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if arr, ok := root.([]any); ok {
		return map[string]any{"data": arr}, nil
	}
	return root, nil
}

func readLines(path string) ([]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() // safe to ignore

	var records []any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := oj.ParseString(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}
