package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// LocalStore is a sqlite-backed advisory snapshot used when no MCP endpoint
// is configured: hardening guides and technique notes ingested from plain
// text files, ranked by keyword overlap at query time.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore opens (creating if needed) the snapshot database at path.
func OpenLocalStore(path string) (*LocalStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			content TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}

	return &LocalStore{db: db}, nil
}

// Ingest loads every .txt and .md file under dir as one document per file.
// Re-ingesting a source replaces its previous content.
func (s *LocalStore) Ingest(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read advisory directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".txt" && ext != ".md" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return count, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		if _, err := s.db.Exec(`DELETE FROM documents WHERE source = ?`, entry.Name()); err != nil {
			return count, fmt.Errorf("failed to replace document: %w", err)
		}
		if _, err := s.db.Exec(`INSERT INTO documents (source, content) VALUES (?, ?)`,
			entry.Name(), string(data)); err != nil {
			return count, fmt.Errorf("failed to store document: %w", err)
		}
		count++
	}
	return count, nil
}

// Search ranks stored documents by query-token overlap and returns the topK
// best excerpts. No matches yields an empty slice, not an error.
func (s *LocalStore) Search(ctx context.Context, query string, topK int) ([]Excerpt, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, content FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	type scored struct {
		text  string
		score int
	}
	var candidates []scored

	for rows.Next() {
		var source, content string
		if err := rows.Scan(&source, &content); err != nil {
			continue
		}

		lower := strings.ToLower(content)
		score := 0
		for _, term := range terms {
			score += strings.Count(lower, term)
		}
		if score > 0 {
			candidates = append(candidates, scored{text: content, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	excerpts := make([]Excerpt, 0, len(candidates))
	for _, c := range candidates {
		excerpts = append(excerpts, Excerpt{Text: c.text})
	}
	return excerpts, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?'\"()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}
