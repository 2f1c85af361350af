package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Limits bounds the page size a request may ask for.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits applies when no configured limits are given.
var DefaultLimits = Limits{Default: DefaultLimit, Max: MaxLimit}

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit and offset query parameters, clamped to l.
func FromContext(c echo.Context, l Limits) Params {
	return Parse(c.QueryParam("limit"), c.QueryParam("offset"), l)
}

// Parse clamps raw limit and offset values. Invalid values fall back to the
// defaults rather than failing the request.
func Parse(rawLimit, rawOffset string, l Limits) Params {
	if l.Default <= 0 {
		l.Default = DefaultLimit
	}
	if l.Max <= 0 {
		l.Max = MaxLimit
	}

	limit, _ := strconv.Atoi(rawLimit)
	if limit <= 0 {
		limit = l.Default
	}
	if limit > l.Max {
		limit = l.Max
	}

	offset, _ := strconv.Atoi(rawOffset)
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response. Total is omitted for listings
// that are not counted.
type Response struct {
	Data    interface{} `json:"data"`
	Total   *int        `json:"total,omitempty"`
	Count   int         `json:"count"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// NewResponse builds a response for a counted listing.
func NewResponse(data interface{}, count, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   &total,
		Count:   count,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// NewWindowResponse builds a response for an uncounted listing. hasMore is
// usually found by fetching one row beyond the limit.
func NewWindowResponse(data interface{}, count int, p Params, hasMore bool) *Response {
	return &Response{
		Data:    data,
		Count:   count,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: hasMore,
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}
