// Package index stores listings in SQLite with an FTS5 full-text index
// and serves ranked, filtered, paginated searches over them. It is the
// concrete Fetcher behind both the HTTP API and the CLI.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dalili-app/dalili/pkg/query"
)

// DefaultPageSize is used when a query does not specify a page size.
const DefaultPageSize = 20

// Store persists listings and implements Fetcher over them.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-opened dalili database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put stores a single listing, replacing any previous version.
func (s *Store) Put(ctx context.Context, l Listing) error {
	return s.PutBatch(ctx, []Listing{l})
}

// PutBatch stores listings transactionally, keeping the FTS index in sync.
func (s *Store) PutBatch(ctx context.Context, listings []Listing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback transaction: %v\n", err)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO listings
			(id, title, slug, description, image, price, category, sub_type, area_id, rating, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			fmt.Printf("Warning: failed to close statement: %v\n", err)
		}
	}()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO listings_fts (rowid, title, description)
		VALUES ((SELECT rowid FROM listings WHERE id = ?), ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing FTS statement: %w", err)
	}
	defer func() {
		if err := ftsStmt.Close(); err != nil {
			fmt.Printf("Warning: failed to close FTS statement: %v\n", err)
		}
	}()

	for _, l := range listings {
		attrs := l.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrsJSON, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("marshaling attributes for listing %s: %w", l.ID, err)
		}

		var rating any
		if l.Rating != nil {
			rating = *l.Rating
		}

		if _, err := stmt.ExecContext(ctx,
			l.ID, l.Title, l.Slug, l.Description, l.Image, l.Price,
			l.Category, l.SubType, l.AreaID, rating, string(attrsJSON), l.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting listing %s: %w", l.ID, err)
		}

		if _, err := ftsStmt.ExecContext(ctx, l.ID, l.Title, l.Description); err != nil {
			return fmt.Errorf("inserting listing %s into FTS: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Get fetches a single listing by id.
func (s *Store) Get(ctx context.Context, id string) (*Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, slug, description, image, price, category, sub_type, area_id, rating, attributes, created_at
		FROM listings WHERE id = ?
	`, id)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying listing %s: %w", id, err)
	}
	return l, nil
}

// Search implements Fetcher. The free text is matched against the FTS
// index; all other constraints become SQL predicates. Results are ordered
// strictly by the requested sort key so keyset cursors stay stable.
func (s *Store) Search(ctx context.Context, q query.Query, sort query.Sort, cursor *query.Cursor) (*Page, error) {
	text := q.EffectiveText()

	var conditions []string
	var args []any

	if q.Category != "" && q.Category != "all" {
		conditions = append(conditions, "l.category = ?")
		args = append(args, q.Category)
	}
	if q.SubTypeValue != "" {
		conditions = append(conditions, "l.sub_type = ?")
		args = append(args, q.SubTypeValue)
	}
	if q.AreaID != "" {
		conditions = append(conditions, "l.area_id = ?")
		args = append(args, q.AreaID)
	}
	if q.MinPrice != nil {
		conditions = append(conditions, "l.price >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		conditions = append(conditions, "l.price <= ?")
		args = append(args, *q.MaxPrice)
	}

	total, err := s.countMatches(ctx, text, conditions, args)
	if err != nil {
		return nil, err
	}

	// Filter conditions are shared with the count query; the cursor
	// predicate applies only to the page itself.
	// The predicate is composite to mirror the ORDER BY tiebreaker,
	// otherwise listings sharing the boundary item's sort key would be
	// skipped on the next page.
	pageConditions := conditions
	pageArgs := args
	if cursor != nil && cursor.Sort == sort {
		switch sort {
		case query.SortRecent:
			if ts, err := time.Parse(time.RFC3339Nano, cursor.Key); err == nil {
				pageConditions = append(pageConditions, "(l.created_at, l.id) < (?, ?)")
				pageArgs = append(pageArgs, ts, cursor.ID)
			}
		case query.SortName:
			pageConditions = append(pageConditions, "(l.title, l.id) > (?, ?)")
			pageArgs = append(pageArgs, cursor.Key, cursor.ID)
		}
	}

	orderBy := "l.created_at DESC, l.id DESC"
	if sort == query.SortName {
		orderBy = "l.title ASC, l.id ASC"
	}

	limit := q.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var sqlQuery string
	if text != "" {
		sqlQuery = `
			SELECT l.id, l.title, l.slug, l.description, l.image, l.price, l.category, l.sub_type, l.area_id, l.rating, l.attributes, l.created_at
			FROM listings l
			JOIN listings_fts fts ON l.rowid = fts.rowid
			WHERE listings_fts MATCH ?` + andClause(pageConditions) + `
			ORDER BY ` + orderBy + `
			LIMIT ?`
		pageArgs = append([]any{ftsQuery(text)}, pageArgs...)
	} else {
		sqlQuery = `
			SELECT l.id, l.title, l.slug, l.description, l.image, l.price, l.category, l.sub_type, l.area_id, l.rating, l.attributes, l.created_at
			FROM listings l` + whereClause(pageConditions) + `
			ORDER BY ` + orderBy + `
			LIMIT ?`
	}
	pageArgs = append(pageArgs, limit)

	// Offset pagination for the page-numbered query-string contract;
	// cursor pagination takes precedence when a cursor is supplied.
	if cursor == nil && q.Page > 1 {
		sqlQuery += " OFFSET ?"
		pageArgs = append(pageArgs, (q.Page-1)*limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying listings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	var items []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		items = append(items, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Page{Items: items, Total: total}, nil
}

func (s *Store) countMatches(ctx context.Context, text string, conditions []string, args []any) (int, error) {
	var sqlQuery string
	countArgs := args
	if text != "" {
		sqlQuery = `
			SELECT COUNT(*)
			FROM listings l
			JOIN listings_fts fts ON l.rowid = fts.rowid
			WHERE listings_fts MATCH ?` + andClause(conditions)
		countArgs = append([]any{ftsQuery(text)}, args...)
	} else {
		sqlQuery = `SELECT COUNT(*) FROM listings l` + whereClause(conditions)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, sqlQuery, countArgs...).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting listings: %w", err)
	}
	return total, nil
}

// GetStats returns aggregate information about the index.
func (s *Store) GetStats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&total); err != nil {
		return nil, fmt.Errorf("counting listings: %w", err)
	}
	stats["total_listings"] = total

	rows, err := s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM listings GROUP BY category ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("counting listings per category: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	perCategory := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		perCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["listings_per_category"] = perCategory

	var oldest, newest sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM listings").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("getting listing date range: %w", err)
	}
	if oldest.Valid {
		stats["oldest_listing"] = oldest.String
	}
	if newest.Valid {
		stats["newest_listing"] = newest.String
	}

	return stats, nil
}

// Maintenance passthroughs.

func (s *Store) Optimize() error {
	_, err := s.db.Exec("PRAGMA optimize")
	return err
}

func (s *Store) Analyze() error {
	_, err := s.db.Exec("ANALYZE")
	return err
}

func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

func (s *Store) WALCheckpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (*Listing, error) {
	var l Listing
	var image sql.NullString
	var rating sql.NullFloat64
	var attrsJSON string

	err := row.Scan(&l.ID, &l.Title, &l.Slug, &l.Description, &image, &l.Price,
		&l.Category, &l.SubType, &l.AreaID, &rating, &attrsJSON, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	if image.Valid {
		l.Image = image.String
	}
	if rating.Valid {
		r := rating.Float64
		l.Rating = &r
	}
	if err := json.Unmarshal([]byte(attrsJSON), &l.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshaling attributes for listing %s: %w", l.ID, err)
	}

	return &l, nil
}

func andClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " AND " + strings.Join(conditions, " AND ")
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// ftsQuery wraps the user's text as a quoted FTS5 string with a prefix
// match on the final token, so partial words while typing still match.
func ftsQuery(text string) string {
	escaped := strings.ReplaceAll(text, `"`, `""`)
	return `"` + escaped + `"*`
}
