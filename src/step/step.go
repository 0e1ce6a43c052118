// Package step defines build steps and runs them under supervision.
//
// A step declares its supervision defaults and implements one attempt of
// work. Execute wraps that in the full lifecycle: setup, supervised
// attempts, per-attempt reporting and history, and a final summary.
package step

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sofmeright/stagehand/src/config"
	"github.com/sofmeright/stagehand/src/supervisor"
)

// Supervision defaults shared by steps that do not override them.
const (
	DefaultTimeout         = 10 * time.Minute
	DefaultNoOutputTimeout = 5 * time.Minute
)

// Defaults are a step's built-in supervision settings.
type Defaults struct {
	Attempts        int
	Timeout         time.Duration
	NoOutputTimeout time.Duration
}

// Step is the interface every build step implements.
type Step interface {
	Name() string
	Description() string
	Defaults() Defaults
	// Setup runs once before the first attempt. Its errors are
	// configuration errors and are never retried.
	Setup(ctx context.Context, env *Env) error
	// Run performs one attempt. Anything it needs clean must be recreated
	// here, since a previous attempt may have left partial output.
	Run(ctx context.Context, env *Env, a *supervisor.Attempt) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Step{}
)

// Register adds a step constructor to the global registry.
// Called from init() in each step file.
func Register(name string, constructor func() Step) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("step: duplicate step registration: %s", name))
	}
	registry[name] = constructor
}

// Get returns a new instance of the named step.
func Get(name string) (Step, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("step: unknown step: %s", name)
	}
	return ctor(), nil
}

// All returns sorted names of all registered steps.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSpec layers configuration over the step's defaults. Later layers
// win field by field; unset fields fall through.
func ResolveSpec(s Step, layers ...config.StepConfig) supervisor.Spec {
	d := s.Defaults()
	spec := supervisor.Spec{
		Name:            s.Name(),
		Attempts:        d.Attempts,
		Timeout:         d.Timeout,
		NoOutputTimeout: d.NoOutputTimeout,
	}
	if spec.Attempts == 0 {
		spec.Attempts = 1
	}
	for _, l := range layers {
		if l.Attempts != nil {
			spec.Attempts = *l.Attempts
		}
		if l.Timeout != nil {
			spec.Timeout = l.Timeout.D()
		}
		if l.NoOutputTimeout != nil {
			spec.NoOutputTimeout = l.NoOutputTimeout.D()
		}
	}
	return spec
}
