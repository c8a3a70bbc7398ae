package exam

import "fmt"

// Filter selects a subset of question indices.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterAnswered   Filter = "answered"
	FilterUnanswered Filter = "unanswered"
	FilterFlagged    Filter = "flagged"
	FilterImportant  Filter = "important"
)

// ParseFilter maps a query value to a Filter. Empty means all.
func ParseFilter(v string) (Filter, error) {
	switch f := Filter(v); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterAnswered, FilterUnanswered, FilterFlagged, FilterImportant:
		return f, nil
	default:
		return "", fmt.Errorf("exam: unknown filter %q", v)
	}
}

// matches reports whether index i satisfies f. Caller holds s.mu.
func (s *Session) matches(f Filter, i int) bool {
	switch f {
	case FilterAnswered:
		return s.answers[i] != NoAnswer
	case FilterUnanswered:
		return s.answers[i] == NoAnswer
	case FilterFlagged:
		_, ok := s.flagged[i]
		return ok
	case FilterImportant:
		_, ok := s.important[i]
		return ok
	default:
		return true
	}
}
