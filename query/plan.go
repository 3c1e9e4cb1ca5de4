// Package query implements the fluent query builder, its typed result
// mapper, and the transaction scope every ORM and dynamic-CRUD operation
// ultimately runs through.
package query

// whereCond is one bound equality/comparison condition in a Plan.
type whereCond struct {
	column string
	op     string // "=", "!=", ">", "<", ">=", "<=", "IN", "IS NULL", "IS NOT NULL", "RAW"
	value  interface{}
	raw    string // used only when op == "RAW"
}

type orderSpec struct {
	column string
	desc   bool
}

type joinClause struct {
	kind  string // "INNER", "LEFT"
	table string
	on    string
}

// Plan is the accumulated, not-yet-executed description of one query. A
// Builder mutates its own Plan as fluent calls chain; Plan itself holds no
// behavior.
type Plan struct {
	table   string
	columns []string
	wheres  []whereCond
	orders  []orderSpec
	joins   []joinClause
	groupBy []string
	having  []whereCond
	limit   *int
	offset  *int
}
