package postgres

import (
	"fmt"
	"strings"

	"github.com/poiesic/embatch/core"
)

// buildFetchQuery returns the keyset pagination query for one collection.
// Ids are compared as text so the same query shape serves every id type.
func buildFetchQuery(spec core.CollectionSpec) string {
	return fmt.Sprintf(
		"SELECT %s::text, %s FROM %s WHERE %s IS NULL AND %s::text > $1 ORDER BY %s::text LIMIT $2",
		spec.IDColumn, spec.TextExpression, spec.Table,
		spec.EmbeddingColumn, spec.IDColumn, spec.IDColumn,
	)
}

// buildCountQuery returns the pending-count query for one collection.
func buildCountQuery(spec core.CollectionSpec) string {
	return fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE %s IS NULL",
		spec.Table, spec.EmbeddingColumn,
	)
}

// buildBulkUpdate returns one UPDATE … FROM (VALUES …) statement and its
// arguments for a page of updates. The shape is
//
//	UPDATE <table> AS t SET <col> = v.embedding::vector
//	FROM (VALUES ($1::text, $2::text), …) AS v(id, embedding)
//	WHERE t.<id>::text = v.id
//
// so the whole page lands in a single statement.
func buildBulkUpdate(spec core.CollectionSpec, page []core.EmbeddingUpdate) (string, []any) {
	var values strings.Builder
	args := make([]any, 0, len(page)*2)
	for i, u := range page {
		if i > 0 {
			values.WriteString(", ")
		}
		fmt.Fprintf(&values, "($%d::text, $%d::text)", len(args)+1, len(args)+2)
		args = append(args, u.Identity, VectorString(u.Vector))
	}

	query := fmt.Sprintf(
		"UPDATE %s AS t SET %s = v.embedding::vector FROM (VALUES %s) AS v(id, embedding) WHERE t.%s::text = v.id",
		spec.Table, spec.EmbeddingColumn, values.String(), spec.IDColumn,
	)
	return query, args
}
