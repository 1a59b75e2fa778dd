package options

import (
	"fmt"
	"math"
)

// Unbounded is the maximum argument count of options that take any number of values
const Unbounded = math.MaxInt

// Rule declares whether an option is required and how many values it takes
type Rule struct {
	Name     string
	Optional bool
	Min      int
	Max      int
}

// RuleError reports a Set that violates a Rule
type RuleError struct {
	Name    string
	Missing bool // Required option not given; otherwise the count was out of range
	Count   int
}

func (e *RuleError) Error() string {
	if e.Missing {
		return fmt.Sprintf("-%s option not provided", e.Name)
	}
	return fmt.Sprintf("-%s option has wrong number of arguments", e.Name)
}

// Validate looks up the option named by rule and enforces its presence and
// argument count. It returns the values and whether the option was given.
func (s *Set) Validate(rule Rule) ([]Value, bool, error) {
	values, ok := s.Get(rule.Name)
	if !ok {
		if !rule.Optional {
			return nil, false, &RuleError{Name: rule.Name, Missing: true}
		}
		return nil, false, nil
	}
	if len(values) < rule.Min || len(values) > rule.Max {
		return values, true, &RuleError{Name: rule.Name, Count: len(values)}
	}
	return values, true, nil
}
