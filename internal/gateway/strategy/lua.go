package strategy

import (
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/louisbranch/cachegate/internal/gateway/errors"
	"github.com/louisbranch/cachegate/internal/gateway/version"
)

// LoadRules reads a routing rule file: a Lua script returning an array of
// {match=..., strategy=..., partition=...} tables. The match field is
// "exact:<path>", "prefix:<path>", "suffix:<suffix>", "accept:<media type>",
// or empty to match everything.
func LoadRules(path string) ([]Rule, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, "load rules file", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, "run rules file", err)
	}

	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		return nil, errors.E(errors.KindInvalidInput, "rules file must return a table")
	}

	length := state.RawLength(-1)
	rules := make([]Rule, 0, length)
	for i := 1; i <= length; i++ {
		state.RawGetInt(-1, i)
		rule, err := ruleFromTable(state, -1, i)
		state.Pop(1)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	state.Pop(1)
	return rules, nil
}

func ruleFromTable(state *lua.State, index, position int) (Rule, error) {
	if state.TypeOf(index) != lua.TypeTable {
		return Rule{}, errors.E(errors.KindInvalidInput, fmt.Sprintf("rule %d must be a table", position))
	}

	match := stringField(state, index, "match")
	strategyName := stringField(state, index, "strategy")
	partition := stringField(state, index, "partition")

	parsed, err := Parse(strategyName)
	if err != nil {
		return Rule{}, errors.Wrap(errors.KindInvalidInput, fmt.Sprintf("rule %d", position), err)
	}
	if !isLogicalPartition(partition) {
		return Rule{}, errors.E(errors.KindInvalidInput, fmt.Sprintf("rule %d: unknown partition %q", position, partition))
	}

	rule := Rule{Strategy: parsed, Partition: partition}
	if match == "" {
		return rule, nil
	}

	kind, value, found := strings.Cut(match, ":")
	if !found || value == "" {
		return Rule{}, errors.E(errors.KindInvalidInput, fmt.Sprintf("rule %d: malformed match %q", position, match))
	}
	switch kind {
	case "exact":
		rule.Exact = value
	case "prefix":
		rule.Prefix = value
	case "suffix":
		rule.Suffix = value
	case "accept":
		rule.Accept = value
	default:
		return Rule{}, errors.E(errors.KindInvalidInput, fmt.Sprintf("rule %d: unknown match kind %q", position, kind))
	}
	return rule, nil
}

func stringField(state *lua.State, index int, name string) string {
	index = state.AbsIndex(index)
	state.Field(index, name)
	value, _ := state.ToString(-1)
	state.Pop(1)
	return strings.TrimSpace(value)
}

func isLogicalPartition(name string) bool {
	for _, logical := range version.Logicals() {
		if name == logical {
			return true
		}
	}
	return false
}
