// Package index persists the accounts declared across ledger documents in a
// SQLite database so completion can offer accounts from files that are not open.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

// MemoryPath opens a private in-memory index.
const MemoryPath = ":memory:"

// DefaultLimit caps the names returned by Accounts.
const DefaultLimit = 200

// Account is one account declaration found in a document.
type Account struct {
	Name     string
	Document string
	// Opened and Closed are the directive dates, empty when absent.
	Opened string
	Closed string
}

// Index is a SQLite-backed account index. It is safe for concurrent use.
type Index struct {
	db    *sql.DB
	limit int
}

// Open opens or creates the index at path, creating parent directories.
func Open(path string) (*Index, error) {
	if path == "" {
		return nil, errors.New("index path required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open account index: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	ix := &Index{db: db, limit: DefaultLimit}
	if err := ix.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init account index %s: %w", path, err)
	}
	return ix, nil
}

func (ix *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		document TEXT NOT NULL,
		name TEXT NOT NULL,
		opened TEXT,
		closed TEXT,
		PRIMARY KEY(document, name)
	);
	CREATE INDEX IF NOT EXISTS accounts_name ON accounts(name);
	`
	_, err := ix.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// ReplaceDocument replaces every account recorded for document.
func (ix *Index) ReplaceDocument(ctx context.Context, document string, accounts []Account) (err error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM accounts WHERE document = ?`, document); err != nil {
		return fmt.Errorf("clear accounts of %s: %w", document, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO accounts (document, name, opened, closed) VALUES (?, ?, ?, ?)
	ON CONFLICT(document, name) DO UPDATE SET
		opened=COALESCE(NULLIF(excluded.opened, ''), accounts.opened),
		closed=COALESCE(NULLIF(excluded.closed, ''), accounts.closed)
	`)
	if err != nil {
		return fmt.Errorf("prepare account insert: %w", err)
	}
	defer stmt.Close()
	for _, a := range accounts {
		if _, err = stmt.ExecContext(ctx, document, a.Name, a.Opened, a.Closed); err != nil {
			return fmt.Errorf("insert account %s: %w", a.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit index update: %w", err)
	}
	return nil
}

// RemoveDocument drops every account recorded for document.
func (ix *Index) RemoveDocument(ctx context.Context, document string) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM accounts WHERE document = ?`, document); err != nil {
		return fmt.Errorf("remove accounts of %s: %w", document, err)
	}
	return nil
}

// Accounts returns distinct account names starting with prefix, ignoring
// ASCII case, sorted.
func (ix *Index) Accounts(ctx context.Context, prefix string) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM accounts WHERE name LIKE ? ESCAPE '\' ORDER BY name LIMIT ?`,
		escapeLike(prefix)+"%", ix.limit)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Lookup returns the declarations of name across documents.
func (ix *Index) Lookup(ctx context.Context, name string) ([]Account, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT document, name, COALESCE(opened, ''), COALESCE(closed, '') FROM accounts WHERE name = ? ORDER BY document`, name)
	if err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", name, err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Document, &a.Name, &a.Opened, &a.Closed); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Declared reports whether any indexed document opens name.
func (ix *Index) Declared(ctx context.Context, name string) (bool, error) {
	var n int
	err := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE name = ? AND COALESCE(opened, '') != ''`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check account %s: %w", name, err)
	}
	return n > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Extract returns the accounts opened or closed by top-level directives of
// tree, in first-seen order. Degraded trees yield nothing.
func Extract(tree *syntax.Tree, src []byte, document string) []Account {
	if tree == nil || tree.Degraded || tree.Length() != len(src) {
		return nil
	}
	var out []Account
	seen := map[string]int{}
	top := tree.TopNode()
	for i := range top.ChildCount() {
		entry := top.Child(i)
		kind := entry.Type().Name
		if kind != "open" && kind != "close" {
			continue
		}
		var date, account string
		for j := range entry.ChildCount() {
			c := entry.Child(j)
			switch {
			case c.Type().Name == "date" && date == "":
				date = string(src[c.From:c.To])
			case c.Type().Name == "account" && account == "" && c.To > c.From:
				account = string(src[c.From:c.To])
			}
		}
		if account == "" {
			continue
		}
		idx, ok := seen[account]
		if !ok {
			idx = len(out)
			seen[account] = idx
			out = append(out, Account{Name: account, Document: document})
		}
		if kind == "open" {
			out[idx].Opened = date
		} else {
			out[idx].Closed = date
		}
	}
	return out
}
