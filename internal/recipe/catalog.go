package recipe

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"yqhp/combat-engine/internal/executor"
	"yqhp/combat-engine/pkg/types"
)

// Catalog 按 id 管理配方，后注册的同 id 配方覆盖先前的。
type Catalog struct {
	mu      sync.RWMutex
	recipes map[string]*types.Recipe
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{recipes: make(map[string]*types.Recipe)}
}

// Register adds a recipe and returns the one it replaced, if any.
func (c *Catalog) Register(r *types.Recipe) *types.Recipe {
	if r == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.recipes[r.ID()]
	c.recipes[r.ID()] = r
	return prev
}

// Remove deletes a recipe.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.recipes[id]
	delete(c.recipes, id)
	return ok
}

// Get looks up a recipe by id.
func (c *Catalog) Get(id string) (*types.Recipe, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.recipes[id]
	return r, ok
}

// IDs returns the sorted recipe ids.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := maputil.Keys(c.recipes)
	sort.Strings(ids)
	return ids
}

// Len returns the number of recipes.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.recipes)
}

// File is the YAML document of a recipe catalog.
type File struct {
	Recipes []RecipeSpec `yaml:"recipes"`
}

// RecipeSpec is one recipe in a catalog file.
type RecipeSpec struct {
	ID     string      `yaml:"id"`
	Groups []GroupSpec `yaml:"groups"`
}

// GroupSpec is one step group in a catalog file.
type GroupSpec struct {
	ID      string     `yaml:"id"`
	Mode    string     `yaml:"mode,omitempty"`
	Join    string     `yaml:"join,omitempty"`
	Timeout string     `yaml:"timeout,omitempty"`
	Steps   []StepSpec `yaml:"steps"`
}

// StepSpec is a step written either as a text-format string or as a map.
type StepSpec struct {
	Text     string            `yaml:"-"`
	Executor string            `yaml:"executor,omitempty"`
	Binding  string            `yaml:"binding,omitempty"`
	ID       string            `yaml:"id,omitempty"`
	Conflict string            `yaml:"conflict,omitempty"`
	Delay    string            `yaml:"delay,omitempty"`
	Params   map[string]string `yaml:"params,omitempty"`
}

type stepFields StepSpec

// UnmarshalYAML accepts a scalar (text format) or a mapping.
func (s *StepSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = StepSpec{Text: node.Value}
		return nil
	}
	var fields stepFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	*s = StepSpec(fields)
	return nil
}

// MarshalYAML writes text-format steps as plain strings.
func (s StepSpec) MarshalYAML() (any, error) {
	if s.Text != "" {
		return s.Text, nil
	}
	return stepFields(s), nil
}

// Loader builds catalogs from YAML.
type Loader struct {
	parser *Parser
	logger *zap.Logger
}

// NewLoader creates a loader. A nil logger uses the package logger.
func NewLoader(l *zap.Logger) *Loader {
	p := NewParser(l)
	return &Loader{parser: p, logger: p.logger}
}

// LoadFile reads a catalog file.
func (l *Loader) LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	c, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	l.logger.Debug("catalog loaded", zap.String("path", path), zap.Int("recipes", c.Len()))
	return c, nil
}

// Parse builds a catalog from YAML bytes.
func (l *Loader) Parse(data []byte) (*Catalog, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ParseError{Msg: "invalid catalog yaml", Cause: err}
	}
	c := NewCatalog()
	for _, spec := range file.Recipes {
		r, err := l.Build(spec)
		if err != nil {
			return nil, err
		}
		if prev := c.Register(r); prev != nil {
			l.logger.Warn("duplicate recipe id, last one wins", zap.String("recipe_id", r.ID()))
		}
	}
	return c, nil
}

// Build converts a recipe spec into a recipe.
func (l *Loader) Build(spec RecipeSpec) (*types.Recipe, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, &ParseError{Msg: "recipe id is empty", Input: spec.ID}
	}
	groups := make([]types.StepGroup, 0, len(spec.Groups))
	for i, gs := range spec.Groups {
		g, err := l.buildGroup(spec.ID, i, gs)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return types.NewRecipe(spec.ID, groups...), nil
}

func (l *Loader) buildGroup(recipeID string, index int, gs GroupSpec) (types.StepGroup, error) {
	id := gs.ID
	if id == "" {
		id = fmt.Sprintf("group-%d", index)
	}

	var steps []types.Step
	for _, ss := range gs.Steps {
		built, err := l.buildSteps(ss)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) && pe.Source == "" {
				pe.Source = recipeID + "/" + id
			}
			return types.StepGroup{}, err
		}
		steps = append(steps, built...)
	}

	var opts []types.GroupOption
	switch strings.ToLower(strings.TrimSpace(gs.Join)) {
	case "", string(types.JoinAll):
	case string(types.JoinAny):
		opts = append(opts, types.WithJoin(types.JoinAny))
	default:
		l.logger.Warn("unknown join policy, using all",
			zap.String("recipe_id", recipeID), zap.String("group_id", id), zap.String("join", gs.Join))
	}
	if gs.Timeout != "" {
		if d := executor.ParseDuration(gs.Timeout, -1); d > 0 {
			opts = append(opts, types.WithTimeout(d))
		} else {
			l.logger.Warn("invalid group timeout ignored",
				zap.String("recipe_id", recipeID), zap.String("group_id", id), zap.String("timeout", gs.Timeout))
		}
	}

	mode := types.ExecutionMode(strings.ToLower(strings.TrimSpace(gs.Mode)))
	switch mode {
	case "", types.ExecutionSequential, types.ExecutionParallel:
	default:
		l.logger.Warn("unknown execution mode, using sequential",
			zap.String("recipe_id", recipeID), zap.String("group_id", id), zap.String("mode", gs.Mode))
		mode = types.ExecutionSequential
	}

	g, err := types.NewStepGroup(id, mode, steps, opts...)
	if err != nil {
		return types.StepGroup{}, &ParseError{Source: recipeID, Input: id, Msg: "invalid group", Cause: err}
	}
	return g, nil
}

// buildSteps 文本形式允许一个条目包含多个以 | 分隔的步骤
func (l *Loader) buildSteps(ss StepSpec) ([]types.Step, error) {
	if ss.Text != "" {
		return l.parser.ParseSteps(ss.Text)
	}

	opts := []types.StepOption{types.WithParams(ss.Params)}
	if ss.ID != "" {
		opts = append(opts, types.WithStepID(ss.ID))
	}
	if ss.Binding != "" {
		opts = append(opts, types.WithBinding(ss.Binding))
	}
	if ss.Conflict != "" {
		policy, ok := types.ParseConflictPolicy(ss.Conflict)
		if !ok {
			l.logger.Warn("unknown conflict policy, using wait",
				zap.String("executor_id", ss.Executor), zap.String("conflict", ss.Conflict))
		}
		opts = append(opts, types.WithConflict(policy))
	}
	if ss.Delay != "" {
		opts = append(opts, types.WithDelay(executor.ParseDuration(ss.Delay, 0)))
	}
	step, err := types.NewStep(ss.Executor, opts...)
	if err != nil {
		return nil, &ParseError{Input: ss.Executor, Msg: "invalid step", Cause: err}
	}
	return []types.Step{step}, nil
}

// Specs converts the catalog back to its file form, steps in text format.
func (c *Catalog) Specs() File {
	var file File
	for _, id := range c.IDs() {
		r, _ := c.Get(id)
		spec := RecipeSpec{ID: r.ID()}
		for _, g := range r.Groups() {
			gs := GroupSpec{ID: g.ID(), Mode: string(g.Mode())}
			if g.Mode() == types.ExecutionParallel {
				gs.Join = string(g.Join())
			}
			if g.Timeout() > 0 {
				gs.Timeout = g.Timeout().String()
			}
			gs.Steps = slice.Map(g.Steps(), func(_ int, s types.Step) StepSpec {
				return StepSpec{Text: s.String()}
			})
			spec.Groups = append(spec.Groups, gs)
		}
		file.Recipes = append(file.Recipes, spec)
	}
	return file
}

// Marshal renders the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c.Specs())
}
