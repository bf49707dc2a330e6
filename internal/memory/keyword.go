package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	_ "modernc.org/sqlite"
)

// DefaultSnippetRadius is how many runes of context surround a keyword hit.
const DefaultSnippetRadius = 100

// KeywordMatch is one keyword hit inside a stored run.
type KeywordMatch struct {
	Path          string `json:"path"`
	Snippet       string `json:"snippet"`
	MatchPosition int    `json:"match_position"`
}

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var (
	driverOnce sync.Once
	driverName string
	driverErr  error
)

func instrumentedDriver() (string, error) {
	driverOnce.Do(func() {
		driverName, driverErr = otelsql.Register(
			"sqlite",
			otelsql.TraceQueryWithoutArgs(),
			otelsql.TraceRowsClose(),
			otelsql.TraceRowsAffected(),
			otelsql.WithSystem(semconv.DBSystemSqlite),
		)
	})
	return driverName, driverErr
}

// keywordIndex keeps case-folded chunk texts in an in-memory SQLite table.
// Rows are tagged with a generation so a new version of a run can be
// written before the old one is retired.
type keywordIndex struct {
	db *sql.DB
}

func openKeywordIndex() (*keywordIndex, error) {
	driver, err := instrumentedDriver()
	if err != nil {
		return nil, fmt.Errorf("memory: register sqlite driver: %w", err)
	}

	db, err := openDB(driver, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("memory: open keyword index: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			reference_id TEXT    NOT NULL,
			generation   INTEGER NOT NULL,
			idx          INTEGER NOT NULL,
			path         TEXT    NOT NULL,
			folded       TEXT    NOT NULL,
			PRIMARY KEY (reference_id, generation, idx)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: keyword schema: %w", err)
	}

	if err := otelsql.RecordStats(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: keyword index stats: %w", err)
	}

	return &keywordIndex{db: db}, nil
}

func (k *keywordIndex) insert(ctx context.Context, ref string, gen int64, chunks []Chunk) error {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (reference_id, generation, idx, path, folded) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, ref, gen, i, c.Path, fold(c.Text)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (k *keywordIndex) remove(ctx context.Context, ref string, gen int64) error {
	_, err := k.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE reference_id = ? AND generation = ?`, ref, gen)
	return err
}

// candidates returns the indices of chunks whose folded text contains
// foldedQuery, in chunk order. limit < 0 means no limit.
func (k *keywordIndex) candidates(ctx context.Context, ref string, gen int64, foldedQuery string, limit int) ([]int, error) {
	rows, err := k.db.QueryContext(ctx, `
		SELECT idx FROM chunks
		WHERE reference_id = ? AND generation = ? AND instr(folded, ?) > 0
		ORDER BY idx
		LIMIT ?`, ref, gen, foldedQuery, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (k *keywordIndex) close() error {
	return k.db.Close()
}

// ─── Matching ───────────────────────────────────────────────────────────────

// fold lower-cases s rune by rune, so rune offsets into the result are rune
// offsets into s.
func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// matchRune returns the rune offset of the first case-insensitive
// occurrence of foldedQuery in text, or -1.
func matchRune(text, foldedQuery string) int {
	folded := fold(text)
	i := strings.Index(folded, foldedQuery)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(folded[:i])
}

// snippet cuts radius runes of context either side of the match at pos,
// marking truncated ends with "...".
func snippet(text string, pos, matchLen, radius int) string {
	runes := []rune(text)
	start := max(0, pos-radius)
	end := min(len(runes), pos+matchLen+radius)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

// scanChunks is the in-process fallback for the SQLite lookup.
func scanChunks(chunks []Chunk, foldedQuery string, limit int) []int {
	var out []int
	for i, c := range chunks {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if strings.Contains(fold(c.Text), foldedQuery) {
			out = append(out, i)
		}
	}
	return out
}
