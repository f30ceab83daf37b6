// Package paginate splits ordered listings into fixed-size numbered pages.
package paginate

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// DefaultPerPage is the page size of every post listing.
const DefaultPerPage = 10

// Page is one page of a listing. Number is 1-based.
type Page[T any] struct {
	Items    []T
	Number   int
	NumPages int
	Count    int
	PerPage  int
}

// Window is the slice of a listing a store has to fetch for a page.
type Window struct {
	Number int
	Limit  int
	Offset int
}

// NumPages returns how many pages count items span. An empty listing
// still has one (empty) page.
func NumPages(count, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if count <= 0 {
		return 1
	}
	return (count + perPage - 1) / perPage
}

// ParseNumber reads a raw page query value. Surrounding spaces are ignored
// and anything that is not an integer is page 1.
func ParseNumber(raw string) int {
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	return number
}

// Resolve turns the raw page query value into a page number that exists:
// a missing or non-numeric value gives the first page, anything out of
// range gives the last page.
func Resolve(raw string, count, perPage int) Window {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	last := NumPages(count, perPage)

	number := ParseNumber(raw)
	if number < 1 || number > last {
		number = last
	}

	return Window{Number: number, Limit: perPage, Offset: (number - 1) * perPage}
}

// New assembles the page for window w out of the fetched items.
func New[T any](items []T, w Window, count int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:    items,
		Number:   w.Number,
		NumPages: NumPages(count, w.Limit),
		Count:    count,
		PerPage:  w.Limit,
	}
}

// Map converts the items of p while keeping its position.
func Map[T, U any](p *Page[T], fn func(T) U) *Page[U] {
	out := lo.Map(p.Items, func(item T, _ int) U { return fn(item) })
	return &Page[U]{Items: out, Number: p.Number, NumPages: p.NumPages, Count: p.Count, PerPage: p.PerPage}
}

func (p *Page[T]) HasNext() bool     { return p.Number < p.NumPages }
func (p *Page[T]) HasPrevious() bool { return p.Number > 1 }
func (p *Page[T]) HasOther() bool    { return p.HasNext() || p.HasPrevious() }

func (p *Page[T]) NextNumber() int     { return p.Number + 1 }
func (p *Page[T]) PreviousNumber() int { return p.Number - 1 }

// StartIndex is the 1-based position of the first item, 0 on an empty page.
func (p *Page[T]) StartIndex() int {
	if p.Count == 0 {
		return 0
	}
	return (p.Number-1)*p.PerPage + 1
}

// EndIndex is the 1-based position of the last item on the page.
func (p *Page[T]) EndIndex() int {
	if p.Count == 0 {
		return 0
	}
	return p.StartIndex() + len(p.Items) - 1
}

// Numbers lists every page number, for rendering a page bar.
func (p *Page[T]) Numbers() []int {
	return lo.RangeFrom(1, p.NumPages)
}
