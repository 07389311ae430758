package journal

import (
	"strings"
	"time"
)

// SortOrder defines how records are ordered when listing the journal.
type SortOrder int

const (
	// SortNewestFirst orders records by UpdatedAt descending.
	SortNewestFirst SortOrder = iota
	// SortOldestFirst orders records by UpdatedAt ascending.
	SortOldestFirst
)

// ListOptions controls which records List returns.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Command    string
	Network    string
	UpdatedGTE int64
	Order      SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	if opts.Order != SortOldestFirst {
		opts.Order = SortNewestFirst
	}
	opts.Command = strings.TrimSpace(opts.Command)
	opts.Network = strings.TrimSpace(opts.Network)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses keeps only records in one of the given statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

func WithCommand(command string) ListOption {
	return func(opts *ListOptions) { opts.Command = command }
}

func WithNetwork(network string) ListOption {
	return func(opts *ListOptions) { opts.Network = network }
}

// WithUpdatedSince keeps records updated at or after ts.
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UpdatedGTE = 0
			return
		}
		opts.UpdatedGTE = ts.Unix()
	}
}

func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// BuildListOptions applies option functions on top of defaults.
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func (opts ListOptions) matches(record *Record) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if record.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Command != "" && record.Command != opts.Command {
		return false
	}
	if opts.Network != "" && record.Network != opts.Network {
		return false
	}
	if opts.UpdatedGTE > 0 && record.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	return true
}
