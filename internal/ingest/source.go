package ingest

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/meridianml/feature-store/internal/domain"
)

// Row is one entity's record in the upstream snapshot: an entity identifier
// plus a fixed set of named columns
type Row struct {
	EntityID string
	Columns  map[string]any
}

// Source provides a read-only snapshot of the upstream analytical store
type Source interface {
	// Snapshot returns all rows. An unreachable or failing source returns
	// domain.ErrUpstreamUnavailable; the pipeline then aborts before any writes.
	Snapshot(ctx context.Context) ([]Row, error)
}

// SQLSource reads the snapshot by running a configured query against the
// upstream warehouse database
type SQLSource struct {
	db           *gorm.DB
	query        string
	entityColumn string
}

// NewSQLSource creates a source over an opened upstream database. query is
// the snapshot query; entityColumn names the column carrying the entity id.
func NewSQLSource(db *gorm.DB, query, entityColumn string) *SQLSource {
	return &SQLSource{db: db, query: query, entityColumn: entityColumn}
}

// Snapshot executes the configured query and materializes the result set
func (s *SQLSource) Snapshot(ctx context.Context) ([]Row, error) {
	rows, err := s.db.WithContext(ctx).Raw(s.query).Rows()
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %s", domain.ErrUpstreamUnavailable, err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: reading columns: %s", domain.ErrUpstreamUnavailable, err.Error())
	}

	var result []Row
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %s", domain.ErrUpstreamUnavailable, err.Error())
		}

		row := Row{Columns: make(map[string]any, len(columns))}
		for i, name := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if name == s.entityColumn {
				row.EntityID = stringifyEntityID(v)
				continue
			}
			row.Columns[name] = v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %s", domain.ErrUpstreamUnavailable, err.Error())
	}

	return result, nil
}

func stringifyEntityID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		// Integer-valued floats are common when drivers widen numeric columns
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}
