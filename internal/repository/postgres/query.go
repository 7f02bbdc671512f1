package postgres

import (
	"fmt"
	"strings"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/pkg/pagination"
)

// conflictMessage is returned when a version-guarded update matches no row.
const conflictMessage = "was modified concurrently, please retry"

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conditions []string
	args       []any
}

// add appends a condition whose single placeholder is written as %d.
func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(format, len(w.args)))
}

// eq adds "column = $n" when value is non-empty.
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = $%d", value)
	}
}

// status applies the listing status rule: empty means NORMAL, ALL means any.
func (w *where) status(value string) {
	switch value {
	case repository.StatusAll:
	case "":
		w.add("status = $%d", domain.StatusNormal)
	default:
		w.add("status = $%d", value)
	}
}

// search adds a case-insensitive substring match on content.
func (w *where) search(term string) {
	if term != "" {
		w.add(`content ILIKE $%d ESCAPE '\'`, "%"+escapeLike(term)+"%")
	}
}

func (w *where) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

// window renders LIMIT/OFFSET for the optional pagination window.
func (w *where) window(win pagination.Window) string {
	var b strings.Builder
	if win.Limit != nil {
		w.args = append(w.args, *win.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	if off := win.Offset(); off > 0 {
		w.args = append(w.args, off)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE metacharacters so term matches literally.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func reviewOrder(orderBy string) string {
	switch orderBy {
	case repository.OrderNew:
		return "ORDER BY created_at DESC, id ASC"
	case repository.OrderUseful:
		return "ORDER BY cardinality(upvote) DESC, created_at DESC, id ASC"
	default:
		return "ORDER BY quality DESC, cardinality(upvote) DESC, created_at DESC, id ASC"
	}
}

func commentOrder(orderBy string) string {
	switch orderBy {
	case repository.OrderNew:
		return "ORDER BY created_at DESC, id ASC"
	default:
		return "ORDER BY cardinality(upvote) DESC, created_at DESC, id ASC"
	}
}
