// Package query holds the pagination, search and division-scoping contract
// shared by the user, mail and template listings.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Page is a validated page request. Construct via NewPage or ParsePage.
type Page struct {
	Number  int
	PerPage int
}

// NewPage validates page >= 1 and 1 <= perPage <= MaxPerPage.
func NewPage(number, perPage int) (Page, error) {
	if number < 1 {
		return Page{}, dErrors.New(dErrors.CodeValidation, "page must be greater than 0").WithField("page")
	}
	if perPage < 1 || perPage > MaxPerPage {
		return Page{}, dErrors.Newf(dErrors.CodeValidation, "per_page must be between 1 and %d", MaxPerPage).WithField("per_page")
	}
	return Page{Number: number, PerPage: perPage}, nil
}

// ParsePage reads optional "page" and "per_page" query values.
func ParsePage(pageRaw, perPageRaw string) (Page, error) {
	number, perPage := 1, DefaultPerPage
	if s := strings.TrimSpace(pageRaw); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Page{}, dErrors.New(dErrors.CodeValidation, "page must be an integer").WithField("page")
		}
		number = n
	}
	if s := strings.TrimSpace(perPageRaw); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Page{}, dErrors.New(dErrors.CodeValidation, "per_page must be an integer").WithField("per_page")
		}
		perPage = n
	}
	return NewPage(number, perPage)
}

// Offset is the number of records skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// Limit is an alias of PerPage for store code.
func (p Page) Limit() int {
	return p.PerPage
}

// Pagination is the metadata returned with every listing.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// TotalPages is ceil(total / perPage).
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// PaginationFor builds the metadata for a page over total matching records.
func PaginationFor(p Page, total int) Pagination {
	return Pagination{
		Total:      total,
		Page:       p.Number,
		PerPage:    p.PerPage,
		TotalPages: TotalPages(total, p.PerPage),
	}
}

// Result is one page of items with its metadata.
type Result[T any] struct {
	Items      []T
	Pagination Pagination
}

// Slice pages an already ordered in-memory slice. A page beyond the end yields
// no items while Total still reflects len(all).
func Slice[T any](all []T, p Page) Result[T] {
	start := min(p.Offset(), len(all))
	end := min(start+p.PerPage, len(all))
	items := make([]T, end-start)
	copy(items, all[start:end])
	return Result[T]{Items: items, Pagination: PaginationFor(p, len(all))}
}

// Filter narrows a listing. Zero fields do not filter.
type Filter struct {
	Search   string
	Start    *time.Time
	End      *time.Time
	Division domain.Division
}

// InRange reports whether t falls within the inclusive [Start, End] bounds.
func (f Filter) InRange(t time.Time) bool {
	if f.Start != nil && t.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.After(*f.End) {
		return false
	}
	return true
}

// InScope reports whether a record of division d is visible under f.
func (f Filter) InScope(d domain.Division) bool {
	return f.Division.IsNone() || f.Division == d
}

const dateLayout = "2006-01-02"

// ParseDateRange reads optional "start_date"/"end_date" (YYYY-MM-DD) values.
// The end bound is extended to the last instant of its day.
func ParseDateRange(startRaw, endRaw string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if s := strings.TrimSpace(startRaw); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "start_date must be YYYY-MM-DD").WithField("start_date")
		}
		start = &t
	}
	if s := strings.TrimSpace(endRaw); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "end_date must be YYYY-MM-DD").WithField("end_date")
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		end = &t
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "start_date must not be after end_date").WithField("start_date")
	}
	return start, end, nil
}

// LikePattern escapes s for use as an ILIKE substring pattern.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// Where accumulates SQL predicates with positional arguments.
type Where struct {
	clauses []string
	args    []any
}

// Arg registers v and returns its placeholder.
func (w *Where) Arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// Add appends a predicate built with placeholders from Arg.
func (w *Where) Add(clause string) {
	w.clauses = append(w.clauses, clause)
}

// SearchAny adds "(c1 ILIKE $n OR c2 ILIKE $n ...)" when term is non-empty.
func (w *Where) SearchAny(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	ph := w.Arg(LikePattern(term))
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("COALESCE(%s, '') ILIKE %s", c, ph)
	}
	w.Add("(" + strings.Join(parts, " OR ") + ")")
}

// SQL renders " WHERE ..." or "" when no predicate was added.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the accumulated arguments.
func (w *Where) Args() []any {
	return w.args
}
