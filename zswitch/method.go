package zswitch

import (
	"strings"

	"github.com/pkg/errors"
)

// Method selects how a batch of trigger heights is reduced to one value.
type Method int

const (
	MethodMedian Method = iota
	MethodAverage
	MethodTrimmed
)

func (m Method) String() string {
	switch m {
	case MethodAverage:
		return "average"
	case MethodTrimmed:
		return "trimmed"
	}
	return "median"
}

// ParseMethod parses a method name, accepting the synonyms avg, mean,
// trim and trimmed_mean.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "median":
		return MethodMedian, nil
	case "average", "avg", "mean":
		return MethodAverage, nil
	case "trimmed", "trim", "trimmed_mean":
		return MethodTrimmed, nil
	}
	return MethodMedian, errors.Wrapf(ErrInvalidMethod, "%q", s)
}

// NormalizeMethod is the lenient form of ParseMethod: unrecognized input
// falls back to median.
func NormalizeMethod(s string) Method {
	m, err := ParseMethod(s)
	if err != nil {
		return MethodMedian
	}
	return m
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
