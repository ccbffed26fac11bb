// Package combatevent turns scheduler lifecycle notifications into combat
// flags and fans them out to presentation listeners on a single loop.
package combatevent

import (
	"fmt"
	"strings"
)

// Flag is a semantic combat event derived from a group id.
type Flag string

const (
	FlagWindup       Flag = "windup"
	FlagRunup        Flag = "runup"
	FlagImpact       Flag = "impact"
	FlagRunback      Flag = "runback"
	FlagActionCancel Flag = "action_cancel"
)

func (f Flag) String() string { return string(f) }

// groupFlags 按组 id 匹配的标志，action_cancel 只由取消产生
var groupFlags = []Flag{FlagWindup, FlagRunup, FlagImpact, FlagRunback}

// 组 id 的常见写法
var flagAliases = map[string]Flag{
	"wind_up":  FlagWindup,
	"run_up":   FlagRunup,
	"run_back": FlagRunback,
}

// MatchGroup maps a group id to its flag. The id matches when it equals the
// flag name or starts with it followed by '/', ':' or '-'.
func MatchGroup(groupID string) (Flag, bool) {
	id := strings.ToLower(strings.TrimSpace(groupID))
	if id == "" {
		return "", false
	}
	for _, f := range groupFlags {
		if matchName(id, string(f)) {
			return f, true
		}
	}
	for alias, f := range flagAliases {
		if matchName(id, alias) {
			return f, true
		}
	}
	return "", false
}

func matchName(id, name string) bool {
	if id == name {
		return true
	}
	if len(id) <= len(name) || !strings.HasPrefix(id, name) {
		return false
	}
	switch id[len(name)] {
	case '/', ':', '-':
		return true
	}
	return false
}

// ParseFlag parses a flag name, accepting the group aliases.
func ParseFlag(s string) (Flag, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	if id == string(FlagActionCancel) {
		return FlagActionCancel, nil
	}
	for _, f := range groupFlags {
		if id == string(f) {
			return f, nil
		}
	}
	if f, ok := flagAliases[id]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown combat flag %q", s)
}
