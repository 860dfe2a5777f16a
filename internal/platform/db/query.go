package db

import (
	"fmt"
	"strings"
)

// SearchQuery builds the WHERE clause shared by a search and its count. The
// tenant filter is always the first predicate.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery starts a query over table scoped to tenantID. Deleted rows
// are excluded unless includeDeleted is set.
func NewSearchQuery(table, cols, tenantID string, includeDeleted bool) *SearchQuery {
	q := &SearchQuery{table: table, cols: cols, idx: 1}
	q.Add(fmt.Sprintf("tenant_id = $%d", q.idx), tenantID)
	if !includeDeleted {
		q.where += " AND deleted_at IS NULL"
	}
	return q
}

// NewSharedSearchQuery is NewSearchQuery for tables whose rows flagged by
// sharedColumn are visible to every tenant.
func NewSharedSearchQuery(table, cols, tenantID, sharedColumn string, includeDeleted bool) *SearchQuery {
	q := &SearchQuery{table: table, cols: cols, idx: 1}
	q.Add(fmt.Sprintf("(tenant_id = $%d OR %s)", q.idx, sharedColumn), tenantID)
	if !includeDeleted {
		q.where += " AND deleted_at IS NULL"
	}
	return q
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	if q.where == "" {
		q.where = " WHERE " + clause
	} else {
		q.where += " AND " + clause
	}
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddEq adds column = value.
func (q *SearchQuery) AddEq(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// AddTerm adds a case-insensitive substring match over any of columns.
// A blank term adds nothing.
func (q *SearchQuery) AddTerm(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(term)+"%")
}

// AddRange adds column >= from and column < to for the bounds that are set.
func (q *SearchQuery) AddRange(column string, from, to interface{}) {
	if from != nil {
		q.Add(fmt.Sprintf("%s >= $%d", column, q.idx), from)
	}
	if to != nil {
		q.Add(fmt.Sprintf("%s < $%d", column, q.idx), to)
	}
}

// ApplySort orders by the column registered for sortKey, or defaultOrder
// when the key is empty or unknown.
func (q *SearchQuery) ApplySort(sortKey string, desc bool, defaultOrder string, columns map[string]string) {
	col, ok := columns[sortKey]
	if !ok {
		q.orderBy = defaultOrder
		return
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q.orderBy = col + " " + dir + ", id ASC"
}

func (q *SearchQuery) OrderBy(orderBy string) { q.orderBy = orderBy }

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.where)
}

func (q *SearchQuery) CountArgs() []interface{} { return q.args }

// DataSQL returns the data query with ORDER BY and paging. A non-positive
// take means no LIMIT.
func (q *SearchQuery) DataSQL(skip, take int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if take > 0 {
		sql += fmt.Sprintf(" LIMIT $%d", q.idx)
	}
	sql += fmt.Sprintf(" OFFSET $%d", q.paramAfterLimit(take))
	return sql
}

func (q *SearchQuery) paramAfterLimit(take int) int {
	if take > 0 {
		return q.idx + 1
	}
	return q.idx
}

// DataArgs returns the arguments matching DataSQL.
func (q *SearchQuery) DataArgs(skip, take int) []interface{} {
	if skip < 0 {
		skip = 0
	}
	out := make([]interface{}, len(q.args), len(q.args)+2)
	copy(out, q.args)
	if take > 0 {
		out = append(out, take)
	}
	return append(out, skip)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
