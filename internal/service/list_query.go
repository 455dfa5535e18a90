package service

import (
	"strconv"
	"strings"

	"casedesk/internal/model"
)

// ListQuery is the parsed form of a notification listing request.
type ListQuery struct {
	// Unread filters by read state when set: true returns only unread records.
	Unread *bool
	Type   *model.Category
	Limit  int
	Skip   int
}

// ParseListQuery turns raw request values into a ListQuery. Listing is best
// effort: absent or malformed values fall back to defaults instead of failing.
func ParseListQuery(unread, typ, limit, skip string) ListQuery {
	q := ListQuery{
		Limit: model.DefaultPageLimit,
		Skip:  0,
	}

	switch strings.ToLower(strings.TrimSpace(unread)) {
	case "true", "1":
		q.Unread = model.Bool(true)
	case "false", "0":
		q.Unread = model.Bool(false)
	}

	// An unknown type still filters, so it matches nothing.
	if t := strings.TrimSpace(typ); t != "" {
		c, _ := model.ParseCategory(t)
		q.Type = &c
	}

	if n, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && n > 0 {
		q.Limit = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(skip)); err == nil && n >= 0 {
		q.Skip = n
	}
	return q
}

func (q ListQuery) filter() model.Filter {
	var f model.Filter
	if q.Unread != nil {
		f.IsRead = model.Bool(!*q.Unread)
	}
	if q.Type != nil {
		c := *q.Type
		f.Category = &c
	}
	return f
}

// normalize applies defaults and caps the limit at maxPageSize.
func (q ListQuery) normalize(maxPageSize int) ListQuery {
	if q.Limit <= 0 {
		q.Limit = model.DefaultPageLimit
	}
	if maxPageSize > 0 && q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	return q
}
