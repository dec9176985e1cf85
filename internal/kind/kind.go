package kind

import (
	"fmt"
	"strings"
)

// Kind identifies one presence stream. The set is fixed at compile time and
// its declaration order is the rotation priority.
type Kind uint8

const (
	Steps Kind = iota
	Water
	Sleep
)

var all = []Kind{Steps, Water, Sleep}

var names = map[Kind]string{
	Steps: "steps",
	Water: "water",
	Sleep: "sleep",
}

// All returns every kind in priority order.
func All() []Kind {
	out := make([]Kind, len(all))
	copy(out, all)

	return out
}

// String returns the lower case name, which is also the API path segment.
func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Noun is used in human readable status lines ("Unable to fetch steps").
func (k Kind) Noun() string {
	switch k {
	case Water:
		return "water intake"
	case Sleep:
		return "sleep"
	default:
		return k.String()
	}
}

func (k Kind) Valid() bool {
	_, ok := names[k]
	return ok
}

func Parse(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, n := range names {
		if n == s {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown metric kind %q", s)
}
