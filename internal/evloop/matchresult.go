package evloop

import "fmt"

// MatchResult represents the result matching a rule against an event.
type MatchResult uint8

const (
	MatchResultUndefined MatchResult = iota
	RuleMismatch
	Match
)

var matchResultString = [...]string{
	MatchResultUndefined: "undefined",
	RuleMismatch:         "condition mismatch",
	Match:                "rule matches",
}

func (m MatchResult) String() string {
	// it can not be <0 because it's type is uint8
	if int(m) > len(matchResultString)-1 {
		return fmt.Sprintf("unsupported MatchResult value: %d", m)
	}

	return matchResultString[m]
}
