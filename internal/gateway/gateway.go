package gateway

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type RangeOp string

const (
	OpGte RangeOp = "gte"
	OpGt  RangeOp = "gt"
	OpLte RangeOp = "lte"
	OpLt  RangeOp = "lt"
)

var rangeOperators = map[RangeOp]string{
	OpGte: ">=",
	OpGt:  ">",
	OpLte: "<=",
	OpLt:  "<",
}

// TextFilter matches rows whose value in any of Columns contains Term, ignoring case.
type TextFilter struct {
	Columns []string
	Term    string
}

type Range struct {
	Column string
	Op     RangeOp
	Value  any
}

type Order struct {
	Column string
	Desc   bool
}

// Query describes a read. A slice value in Equals is matched with IN.
// RangeStart and RangeEnd are inclusive row offsets; a negative RangeEnd means unbounded.
type Query struct {
	Collection string
	Equals     map[string]any
	Text       *TextFilter
	Ranges     []Range
	OrderBy    []Order
	RangeStart int
	RangeEnd   int
	Single     bool
}

// Unbounded returns a query over the whole collection.
func Unbounded(collection string) Query {
	return Query{Collection: collection, RangeEnd: -1}
}

type MutationOp string

const (
	Insert MutationOp = "insert"
	Update MutationOp = "update"
	Delete MutationOp = "delete"
	Upsert MutationOp = "upsert"
)

// Mutation describes a write. Payload is the row (or slice of rows) for insert and upsert
// and the row type for delete. Values holds the columns to set on update and upsert.
type Mutation struct {
	Op              MutationOp
	Collection      string
	Payload         any
	Where           map[string]any
	Values          map[string]any
	ConflictColumns []string
	// RequireMatch turns a write that touched no rows into a not-found failure.
	RequireMatch bool
}

type MutationResult struct {
	RowsAffected int64
}

// Gateway is the only path from the service to the record store.
type Gateway interface {
	Query(ctx context.Context, q Query, dest any) error
	Count(ctx context.Context, q Query) (int64, error)
	Mutate(ctx context.Context, m Mutation) (MutationResult, error)
}

type gormGateway struct {
	db *gorm.DB
}

func NewGateway(db *gorm.DB) Gateway {
	return &gormGateway{db: db}
}

// Migrate creates or updates every table the service owns.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(entity.All()...)
}

func (g *gormGateway) Query(ctx context.Context, q Query, dest any) error {
	tx, err := g.filtered(ctx, q)
	if err != nil {
		return err
	}

	for _, o := range q.OrderBy {
		if !identifierPattern.MatchString(o.Column) {
			return invalidColumn("query", q.Collection, o.Column)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}

	if q.Single {
		return classify("query", q.Collection, tx.Take(dest).Error)
	}

	if q.RangeStart > 0 {
		tx = tx.Offset(q.RangeStart)
	}
	if q.RangeEnd >= 0 {
		if q.RangeEnd < q.RangeStart {
			return apperror.NewStoreError(apperror.KindValidation, "query", q.Collection,
				fmt.Errorf("range end %d before start %d", q.RangeEnd, q.RangeStart))
		}
		tx = tx.Limit(q.RangeEnd - q.RangeStart + 1)
	}

	return classify("query", q.Collection, tx.Find(dest).Error)
}

func (g *gormGateway) Count(ctx context.Context, q Query) (int64, error) {
	tx, err := g.filtered(ctx, q)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, classify("count", q.Collection, err)
	}
	return n, nil
}

func (g *gormGateway) Mutate(ctx context.Context, m Mutation) (MutationResult, error) {
	op := string(m.Op)
	if !identifierPattern.MatchString(m.Collection) {
		return MutationResult{}, invalidColumn(op, m.Collection, m.Collection)
	}

	tx := g.db.WithContext(ctx).Table(m.Collection)

	switch m.Op {
	case Insert:
		if m.Payload == nil {
			return MutationResult{}, missing(op, m.Collection, "payload")
		}
		tx = tx.Create(m.Payload)

	case Upsert:
		if m.Payload == nil {
			return MutationResult{}, missing(op, m.Collection, "payload")
		}
		conflict := clause.OnConflict{}
		for _, col := range m.ConflictColumns {
			if !identifierPattern.MatchString(col) {
				return MutationResult{}, invalidColumn(op, m.Collection, col)
			}
			conflict.Columns = append(conflict.Columns, clause.Column{Name: col})
		}
		if len(m.Values) == 0 {
			conflict.UpdateAll = true
		} else {
			if err := checkColumns(op, m.Collection, m.Values); err != nil {
				return MutationResult{}, err
			}
			conflict.DoUpdates = clause.Assignments(m.Values)
		}
		tx = tx.Clauses(conflict).Create(m.Payload)

	case Update:
		if len(m.Where) == 0 {
			return MutationResult{}, missing(op, m.Collection, "where")
		}
		if len(m.Values) == 0 {
			return MutationResult{}, missing(op, m.Collection, "values")
		}
		if err := checkColumns(op, m.Collection, m.Values); err != nil {
			return MutationResult{}, err
		}
		scoped, err := applyEquals(tx, op, m.Collection, m.Where)
		if err != nil {
			return MutationResult{}, err
		}
		tx = scoped.Updates(m.Values)

	case Delete:
		if len(m.Where) == 0 {
			return MutationResult{}, missing(op, m.Collection, "where")
		}
		if m.Payload == nil {
			return MutationResult{}, missing(op, m.Collection, "payload")
		}
		scoped, err := applyEquals(tx, op, m.Collection, m.Where)
		if err != nil {
			return MutationResult{}, err
		}
		tx = scoped.Delete(m.Payload)

	default:
		return MutationResult{}, apperror.NewStoreError(apperror.KindValidation, op, m.Collection,
			fmt.Errorf("unknown mutation %q", m.Op))
	}

	if err := tx.Error; err != nil {
		return MutationResult{}, classify(op, m.Collection, err)
	}
	if m.RequireMatch && tx.RowsAffected == 0 {
		return MutationResult{}, apperror.NewStoreError(apperror.KindNotFound, op, m.Collection, gorm.ErrRecordNotFound)
	}
	return MutationResult{RowsAffected: tx.RowsAffected}, nil
}

func (g *gormGateway) filtered(ctx context.Context, q Query) (*gorm.DB, error) {
	if !identifierPattern.MatchString(q.Collection) {
		return nil, invalidColumn("query", q.Collection, q.Collection)
	}

	tx, err := applyEquals(g.db.WithContext(ctx).Table(q.Collection), "query", q.Collection, q.Equals)
	if err != nil {
		return nil, err
	}

	if q.Text != nil && strings.TrimSpace(q.Text.Term) != "" {
		if len(q.Text.Columns) == 0 {
			return nil, missing("query", q.Collection, "text columns")
		}
		pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(q.Text.Term))) + "%"
		parts := make([]string, 0, len(q.Text.Columns))
		args := make([]any, 0, len(q.Text.Columns))
		for _, col := range q.Text.Columns {
			if !identifierPattern.MatchString(col) {
				return nil, invalidColumn("query", q.Collection, col)
			}
			parts = append(parts, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col))
			args = append(args, pattern)
		}
		tx = tx.Where("("+strings.Join(parts, " OR ")+")", args...)
	}

	for _, r := range q.Ranges {
		if !identifierPattern.MatchString(r.Column) {
			return nil, invalidColumn("query", q.Collection, r.Column)
		}
		sqlOp, ok := rangeOperators[r.Op]
		if !ok {
			return nil, apperror.NewStoreError(apperror.KindValidation, "query", q.Collection,
				fmt.Errorf("unknown range operator %q", r.Op))
		}
		tx = tx.Where(fmt.Sprintf("%s %s ?", r.Column, sqlOp), r.Value)
	}

	return tx, nil
}

// applyEquals adds one condition per column, in column order so generated SQL is stable.
func applyEquals(tx *gorm.DB, op, collection string, equals map[string]any) (*gorm.DB, error) {
	cols := make([]string, 0, len(equals))
	for col := range equals {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		if !identifierPattern.MatchString(col) {
			return nil, invalidColumn(op, collection, col)
		}
		v := equals[col]
		if isList(v) {
			tx = tx.Where(fmt.Sprintf("%s IN ?", col), v)
			continue
		}
		tx = tx.Where(fmt.Sprintf("%s = ?", col), v)
	}
	return tx, nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Slice
}

func checkColumns(op, collection string, values map[string]any) error {
	for col := range values {
		if !identifierPattern.MatchString(col) {
			return invalidColumn(op, collection, col)
		}
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func invalidColumn(op, collection, col string) error {
	return apperror.NewStoreError(apperror.KindValidation, op, collection, fmt.Errorf("invalid identifier %q", col))
}

func missing(op, collection, what string) error {
	return apperror.NewStoreError(apperror.KindValidation, op, collection, errors.New("missing "+what))
}
