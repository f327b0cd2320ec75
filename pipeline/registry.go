package pipeline

import (
	"sort"
	"sync"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/sample"
)

// Role is the position a stage may occupy in a pipeline.
type Role int

const (
	// RoleSource produces samples without consuming any; must be position 0.
	RoleSource Role = iota
	// RoleFilter consumes and produces samples; all interior positions.
	RoleFilter
	// RoleSink consumes samples without producing any; must be the last position.
	RoleSink
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "Source"
	case RoleFilter:
		return "Filter"
	case RoleSink:
		return "Sink"
	default:
		return "Unknown"
	}
}

// Stage is the result of constructing one pipeline entry. Exactly one of
// Samples (Source/Filter) or Runnable (Sink) is populated, matching Role.
type Stage struct {
	Role     Role
	Samples  *Pipeline[sample.Sample]
	Runnable *Runnable
}

// BuildFunc constructs a Stage from its decoded parameters. upstream is nil
// for a Source. log is a component logger already tagged with the stage's
// module name.
type BuildFunc func(params map[string]interface{}, ctx *Context, log *logger.Logger, upstream *Pipeline[sample.Sample]) (*Stage, error)

// ModuleDef is a registered stage constructor paired with the role it must
// occupy, used by the config schema composer to enforce the positional role
// rule (position 0 is Source, last is Sink, interior are Filter).
type ModuleDef struct {
	Role Role
	// Params is a zero-value pointer to the struct the module's Build
	// function decodes its parameters into, or nil for a module that takes
	// none. The config package reflects over its `yaml` and `validate`
	// struct tags to derive the module's accepted and required keys; it is
	// never called or dereferenced.
	Params interface{}
	Build  BuildFunc
}

// Registry is a name→constructor lookup for pipeline stage modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]ModuleDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]ModuleDef)}
}

// Register adds a module constructor under name.
func (r *Registry) Register(name string, def ModuleDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = def
}

// Get retrieves a module constructor by name.
func (r *Registry) Get(name string) (ModuleDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.modules[name]
	return def, ok
}

// List returns the sorted names of every registered module.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry that every filters/sources/sinks
// package entry registers itself into via an init() function, the same
// plugin-registry idiom the standard library uses for database/sql drivers.
var Default = NewRegistry()

// Register adds a module constructor to the Default registry.
func Register(name string, def ModuleDef) {
	Default.Register(name, def)
}
