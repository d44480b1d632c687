// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pilot

import (
	"fmt"
	"sync"
)

// builtinPlugin is the synthetic owner recorded for the three built-in
// readiness strategies, so that a third-party plugin can never collide
// with (or shadow) them.
type builtinPlugin struct{ tag string }

func (b builtinPlugin) Name() string                                    { return b.tag }
func (b builtinPlugin) Hooks() map[string]map[HookKind][]HookFunc       { return nil }
func (b builtinPlugin) Strategies() map[string]Strategy                 { return nil }
func (b builtinPlugin) StatsHandlers() map[string]StatsHandlerFunc      { return nil }

var builtins = builtinPlugin{tag: "<builtin>"}

// Registry is the Plugin Registry: it maps string names, supplied by
// the manifest, to the hook groups, readiness strategies, and stats
// handlers contributed by registered plugins. It is stateless once
// every plugin has registered -- resolution is pure lookup, never I/O.
type Registry struct {
	mu sync.Mutex

	hookOwners map[string]Plugin
	hooks      map[string]map[HookKind][]HookFunc

	strategyOwners map[string]Plugin
	strategies     map[string]Strategy

	statsOwners map[string]Plugin
	stats       map[string]StatsHandlerFunc
}

// NewRegistry builds a Registry with the three built-in readiness
// strategies (tcp, file, pipe) already registered.
func NewRegistry() *Registry {
	r := &Registry{
		hookOwners:     map[string]Plugin{},
		hooks:          map[string]map[HookKind][]HookFunc{},
		strategyOwners: map[string]Plugin{},
		strategies:     map[string]Strategy{},
		statsOwners:    map[string]Plugin{},
		stats:          map[string]StatsHandlerFunc{},
	}
	r.strategyOwners["tcp"] = builtins
	r.strategies["tcp"] = tcpStrategy{}
	r.strategyOwners["file"] = builtins
	r.strategies["file"] = fileStrategy{}
	r.strategyOwners["pipe"] = builtins
	r.strategies["pipe"] = pipeStrategy{}
	return r
}

// Register pulls plugin's declared hooks/strategies/handlers into the
// registry. Re-registering the identical plugin value is a no-op and
// succeeds; registering a different plugin under a name already owned
// by someone else fails with ErrDuplicateRegistration.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range p.Hooks() {
		if owner, ok := r.hookOwners[name]; ok && owner != p {
			return fmt.Errorf("%w: hook group %q already registered by %q", ErrDuplicateRegistration, name, owner.Name())
		}
	}
	for name := range p.Strategies() {
		if owner, ok := r.strategyOwners[name]; ok && owner != p {
			return fmt.Errorf("%w: strategy %q already registered by %q", ErrDuplicateRegistration, name, owner.Name())
		}
	}
	for name := range p.StatsHandlers() {
		if owner, ok := r.statsOwners[name]; ok && owner != p {
			return fmt.Errorf("%w: stats handler %q already registered by %q", ErrDuplicateRegistration, name, owner.Name())
		}
	}

	for name, kinds := range p.Hooks() {
		r.hookOwners[name] = p
		r.hooks[name] = kinds
	}
	for name, s := range p.Strategies() {
		r.strategyOwners[name] = p
		r.strategies[name] = s
	}
	for name, h := range p.StatsHandlers() {
		r.statsOwners[name] = p
		r.stats[name] = h
	}
	return nil
}

func (r *Registry) hasHookGroup(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hooks[name]
	return ok
}

// resolveHooks returns every callable of the given kind contributed by
// the named hook group, in registration order. An unknown group
// resolves to ErrUnknownCapability.
func (r *Registry) resolveHooks(name string, kind HookKind) ([]HookFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds, ok := r.hooks[name]
	if !ok {
		return nil, fmt.Errorf("%w: hook group %q", ErrUnknownCapability, name)
	}
	return kinds[kind], nil
}

// resolveStrategy looks up a readiness strategy by name.
func (r *Registry) resolveStrategy(name string) (Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: strategy %q", ErrUnknownCapability, name)
	}
	return s, nil
}

// resolveStats looks up a stats handler by name.
func (r *Registry) resolveStats(name string) (StatsHandlerFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.stats[name]
	if !ok {
		return nil, fmt.Errorf("%w: stats handler %q", ErrUnknownCapability, name)
	}
	return h, nil
}
