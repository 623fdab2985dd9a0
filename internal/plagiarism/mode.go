package plagiarism

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMode = errors.New("unknown comparison mode")

// ComparisonMode selects which pairs a batch compares
type ComparisonMode int

const (
	// OneToMany compares one target file against every other file
	OneToMany ComparisonMode = iota
	// GroupSelfCheck compares every unordered pair of files
	GroupSelfCheck
)

func (m ComparisonMode) String() string {
	switch m {
	case OneToMany:
		return "one_to_many"
	case GroupSelfCheck:
		return "group_self_check"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Code returns the numeric code remote backends use for the mode
func (m ComparisonMode) Code() int {
	if m == OneToMany {
		return 0
	}
	return 1
}

// ParseMode accepts the mode names and the legacy numeric codes 0 and 1.
// An empty string selects the group self-check.
func ParseMode(s string) (ComparisonMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "group", "group_self_check", "1":
		return GroupSelfCheck, nil
	case "one_to_many", "one-to-many", "target", "0":
		return OneToMany, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}
