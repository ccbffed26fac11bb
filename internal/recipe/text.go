// Package recipe parses the recipe text format and loads recipe catalogs.
//
// Text format, one step:
//
//	executor[:binding](key=value,...)
//
// Steps are pipe-separated. Reserved keys id, binding, conflict and delay
// (seconds or Go duration) configure the step itself; every other key is an
// executor parameter.
package recipe

import (
	"strings"

	"go.uber.org/zap"

	"yqhp/combat-engine/internal/executor"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// Parser parses the recipe text format. Malformed parameters are reported
// through the logger and ignored.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a parser. A nil logger uses the package logger.
func NewParser(l *zap.Logger) *Parser {
	if l == nil {
		l = logger.Named("recipe")
	}
	return &Parser{logger: l}
}

// ParseStep parses a single step.
func ParseStep(text string) (types.Step, error) {
	return NewParser(nil).ParseStep(text)
}

// ParseSteps parses a pipe-separated step list.
func ParseSteps(text string) ([]types.Step, error) {
	return NewParser(nil).ParseSteps(text)
}

// FormatSteps renders steps in the text format.
func FormatSteps(steps []types.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}

// ParseSteps parses a pipe-separated step list. Empty segments are skipped.
func (p *Parser) ParseSteps(text string) ([]types.Step, error) {
	var steps []types.Step
	for _, segment := range splitTopLevel(text, '|') {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		step, err := p.ParseStep(segment)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ParseStep parses executor[:binding](key=value,...).
func (p *Parser) ParseStep(text string) (types.Step, error) {
	raw := text
	text = strings.TrimSpace(text)

	head, args := text, ""
	if open := strings.IndexByte(text, '('); open >= 0 {
		head = text[:open]
		args = text[open+1:]
		if end := strings.LastIndexByte(args, ')'); end >= 0 {
			if rest := strings.TrimSpace(args[end+1:]); rest != "" {
				p.logger.Warn("trailing text after step arguments ignored",
					zap.String("step", raw), zap.String("trailing", rest))
			}
			args = args[:end]
		} else {
			p.logger.Warn("unterminated step arguments", zap.String("step", raw))
		}
	}

	executorID, bindingID := head, ""
	if colon := strings.IndexByte(head, ':'); colon >= 0 {
		executorID, bindingID = head[:colon], head[colon+1:]
	}
	executorID = strings.TrimSpace(executorID)
	if executorID == "" {
		return types.Step{}, &ParseError{Input: raw, Msg: "invalid step", Cause: ErrEmptyStep}
	}

	opts := []types.StepOption{}
	if b := strings.TrimSpace(bindingID); b != "" {
		opts = append(opts, types.WithBinding(b))
	}
	params := make(map[string]string)

	for _, pair := range strings.Split(args, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 || strings.TrimSpace(pair[:eq]) == "" {
			p.logger.Warn("malformed step parameter ignored",
				zap.String("step", raw), zap.String("pair", pair))
			continue
		}
		key := strings.TrimSpace(pair[:eq])
		value := strings.TrimSpace(pair[eq+1:])

		switch strings.ToLower(key) {
		case "id":
			opts = append(opts, types.WithStepID(value))
		case "binding":
			opts = append(opts, types.WithBinding(value))
		case "conflict":
			policy, ok := types.ParseConflictPolicy(value)
			if !ok {
				p.logger.Warn("unknown conflict policy, using wait",
					zap.String("step", raw), zap.String("conflict", value))
			}
			opts = append(opts, types.WithConflict(policy))
		case "delay":
			d := executor.ParseDuration(value, -1)
			if d < 0 {
				p.logger.Warn("malformed delay ignored",
					zap.String("step", raw), zap.String("delay", value))
				continue
			}
			opts = append(opts, types.WithDelay(d))
		default:
			params[key] = value
		}
	}
	if len(params) > 0 {
		opts = append(opts, types.WithParams(params))
	}

	return types.NewStep(executorID, opts...)
}

// splitTopLevel splits on sep outside parentheses.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
