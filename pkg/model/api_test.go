package model

import (
	"net/url"
	"testing"
)

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"zero value", ListOptions{}, DefaultPageSize, 0},
		{"negative limit", ListOptions{Limit: -5}, DefaultPageSize, 0},
		{"over max", ListOptions{Limit: 2000}, MaxPageSize, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"valid", ListOptions{Limit: 50, Offset: 10}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
		})
	}
}

func TestParseListOptions(t *testing.T) {
	tests := []struct {
		query   string
		want    ListOptions
		wantErr bool
	}{
		{"", ListOptions{Limit: DefaultPageSize}, false},
		{"limit=5&offset=10&status=error", ListOptions{Limit: 5, Offset: 10, Status: "error"}, false},
		{"limit=0", ListOptions{Limit: DefaultPageSize}, false},
		{"limit=9999", ListOptions{Limit: MaxPageSize}, false},
		{"state=FAILED", ListOptions{Limit: DefaultPageSize}, false},
		{"limit=-1", ListOptions{}, true},
		{"offset=x", ListOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, apiErr := ParseListOptions(q, "status")
			if (apiErr != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", apiErr, tt.wantErr)
			}
			if apiErr != nil {
				if apiErr.Code != ErrValidation {
					t.Errorf("code = %s, want %s", apiErr.Code, ErrValidation)
				}
				return
			}
			if got != tt.want {
				t.Errorf("opts = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestListOptions_Page(t *testing.T) {
	tests := []struct {
		name     string
		opts     ListOptions
		total    int
		wantMore bool
		wantNext int
	}{
		{"empty", ListOptions{Limit: 10}, 0, false, 0},
		{"single page", ListOptions{Limit: 10}, 10, false, 0},
		{"first of two", ListOptions{Limit: 10}, 11, true, 10},
		{"middle", ListOptions{Limit: 1, Offset: 1}, 3, true, 2},
		{"past the end", ListOptions{Limit: 5, Offset: 20}, 3, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg := tt.opts.Page(tt.total)
			if pg.Total != tt.total || pg.Limit != tt.opts.Limit || pg.Offset != tt.opts.Offset {
				t.Errorf("page = %+v", pg)
			}
			if pg.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", pg.HasMore, tt.wantMore)
			}
			switch {
			case tt.wantMore && (pg.NextOffset == nil || *pg.NextOffset != tt.wantNext):
				t.Errorf("NextOffset = %v, want %d", pg.NextOffset, tt.wantNext)
			case !tt.wantMore && pg.NextOffset != nil:
				t.Errorf("NextOffset = %d on the last page", *pg.NextOffset)
			}
		})
	}
}

func TestEnvelopes(t *testing.T) {
	ok := OK("req_1", []int{}, &Page{Total: 0})
	if ok.Status != "ok" || ok.Error != nil || ok.Page == nil || ok.Timestamp.IsZero() {
		t.Errorf("OK = %+v", ok)
	}
	bad := Failed("req_2", NewNotFoundError("run", "x"))
	if bad.Status != "error" || bad.Data != nil || bad.Error.Code != ErrNotFound {
		t.Errorf("Failed = %+v", bad)
	}
}
