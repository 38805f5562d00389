package model

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Journal listings are paged. A request without a limit gets
// DefaultPageSize rows and none gets more than MaxPageSize.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Envelope wraps every admin API body. An ok envelope carries Data and, for
// listings, Page; an error envelope carries only Error.
type Envelope struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Page      *Page     `json:"pagination,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// OK builds a success envelope.
func OK(reqID string, data any, page *Page) Envelope {
	return Envelope{Status: "ok", RequestID: reqID, Timestamp: time.Now().UTC(), Data: data, Page: page}
}

// Failed builds an error envelope.
func Failed(reqID string, err *APIError) Envelope {
	return Envelope{Status: "error", RequestID: reqID, Timestamp: time.Now().UTC(), Error: err}
}

// Page describes where a listing sits in the full result set. NextOffset is
// set only when more rows follow.
type Page struct {
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// ListOptions selects one page of runs or steps.
type ListOptions struct {
	Limit  int
	Offset int
	Status string // run state for runs, step status name for steps
}

// ParseListOptions reads ?limit, ?offset and the filter parameter named
// filter from q. Malformed numbers are a VALIDATION_ERROR.
func ParseListOptions(q url.Values, filter string) (ListOptions, *APIError) {
	var opts ListOptions
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, &APIError{Code: ErrValidation, Message: fmt.Sprintf("%s must be a non-negative integer", p.name)}
		}
		*p.dst = n
	}
	opts.Status = q.Get(filter)
	opts.Clamp()
	return opts, nil
}

// Clamp fills in the default page size and bounds limit and offset.
func (o *ListOptions) Clamp() {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Page describes the page o selects out of total rows.
func (o ListOptions) Page(total int) *Page {
	pg := &Page{Total: total, Limit: o.Limit, Offset: o.Offset}
	if next := o.Offset + o.Limit; next < total {
		pg.HasMore = true
		pg.NextOffset = &next
	}
	return pg
}
