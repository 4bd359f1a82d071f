package evloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/simplesurance/depflow/internal/cfg"
	"github.com/simplesurance/depflow/internal/provider"
	"github.com/simplesurance/depflow/internal/stringutils"
)

// Rule defines the condition that a build notification must fulfill to be
// applied to its subscription.
type Rule struct {
	name        string
	filterQuery *gojq.Query
}

func NewRule(name, jqQuery string) (*Rule, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("rule %s: parsing filter_query failed: %w", name, err)
	}

	return &Rule{
		name:        name,
		filterQuery: query,
	}, nil
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errors []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errors
		}

		if err, isErr := res.(error); isErr {
			errors = append(errors, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}

// Match returns Match if the filter-query of the rule evaluates to true for
// the JSON representation of the event.
func (r *Rule) Match(ctx context.Context, event *provider.Event) (MatchResult, error) {
	var evUn any

	if len(event.JSON) == 0 {
		return MatchResultUndefined, errors.New("json field of event is empty")
	}

	err := json.Unmarshal(event.JSON, &evUn)
	if err != nil {
		return MatchResultUndefined, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errors := goJQIterToSlice(r.filterQuery.RunWithContext(ctx, evUn))
	if len(errors) != 0 {
		return MatchResultUndefined, fmt.Errorf("json query returned errors, query: %q, errors: %s", r.filterQuery.String(), errString(errors))
	}

	if len(result) == 0 {
		return MatchResultUndefined, fmt.Errorf("json query returned 0 results, expected 1, query: %q", r.filterQuery.String())
	}

	if len(result) > 1 {
		return MatchResultUndefined, fmt.Errorf("json query returned multiple results, expected 1, query: %q, result: '%+v'", r.filterQuery.String(), result)
	}

	switch val := result[0].(type) {
	case bool:
		if val {
			return Match, nil
		}

		return RuleMismatch, nil

	default:
		return MatchResultUndefined, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result, result, r.filterQuery.String(),
		)
	}
}

func (r *Rule) String() string {
	return r.name
}

func (r *Rule) DetailedString() string {
	return fmt.Sprintf("Name: %s\nFilterQuery: %s\n", r.name, r.filterQuery)
}

// Rules is a set of rules, an event matches it if it matches one of the
// rules. An empty set matches every event.
type Rules []*Rule

// RulesFromCfg instantiates Rules from the rule configuration.
func RulesFromCfg(config *cfg.Config) (Rules, error) {
	result := make([]*Rule, 0, len(config.Rules))
	names := map[string]struct{}{}

	for _, cfgRule := range config.Rules {
		if cfgRule.Name == "" {
			return nil, errors.New("rule: missing field: 'name'")
		}

		if _, exists := names[cfgRule.Name]; exists {
			return nil, fmt.Errorf("rule %s: name is not unique", cfgRule.Name)
		}
		names[cfgRule.Name] = struct{}{}

		if cfgRule.FilterQuery == "" {
			return nil, fmt.Errorf("rule %s: missing field: 'filter_query'", cfgRule.Name)
		}

		rule, err := NewRule(cfgRule.Name, cfgRule.FilterQuery)
		if err != nil {
			return nil, err
		}

		result = append(result, rule)
	}

	return result, nil
}

func (rr Rules) String() string {
	var result strings.Builder

	for i, r := range rr {
		result.WriteString(stringutils.IndentString(r.DetailedString(), "  "))
		if i < len(rr)-1 {
			result.WriteRune('\n')
		}
	}

	return result.String()
}
