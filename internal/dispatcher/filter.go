package dispatcher

import "strings"

// Filter selects the event types a handler receives.
type Filter interface {
	Match(eventType string) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(eventType string) bool

func (f FilterFunc) Match(eventType string) bool { return f(eventType) }

// All matches every event type.
var All Filter = FilterFunc(func(string) bool { return true })

// Types matches exactly the listed event types.
func Types(types ...string) Filter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return FilterFunc(func(eventType string) bool {
		_, ok := set[eventType]
		return ok
	})
}

// Prefix matches event types starting with prefix, e.g. "commerce.".
func Prefix(prefix string) Filter {
	return FilterFunc(func(eventType string) bool {
		return strings.HasPrefix(eventType, prefix)
	})
}
