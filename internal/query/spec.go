package query

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order sorts results by one column. An empty Direction sorts descending.
type Order struct {
	Column    string
	Direction Direction
}

// Ascending reports whether the order is ascending.
func (o Order) Ascending() bool {
	return o.Direction == Asc
}

// Spec declares a read against one collection.
type Spec struct {
	Table      string
	Columns    []string
	Predicates []Predicate
	Order      *Order
	PageSize   int
	Page       int
}

// Where returns a copy of s with predicates appended.
func (s Spec) Where(preds ...Predicate) Spec {
	out := s
	out.Predicates = append(append([]Predicate(nil), s.Predicates...), preds...)
	return out
}

// OrderBy returns a copy of s sorted by column.
func (s Spec) OrderBy(column string, dir Direction) Spec {
	out := s
	out.Order = &Order{Column: column, Direction: dir}
	return out
}

// Paginate returns a copy of s restricted to one page.
func (s Spec) Paginate(pageSize, page int) Spec {
	out := s
	out.PageSize = pageSize
	out.Page = page
	return out
}
