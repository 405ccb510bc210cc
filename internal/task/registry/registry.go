// Package registry stores compiled rules by name for the evaluation loop.
//
// Writers (the public scheduler API and running tasks) and the once-a-second
// reader never block each other for long: the reader takes a copy of the
// current entries and evaluates outside the lock.
package registry

import (
	"sort"
	"sync"

	"cronpump/internal/task/rule"
)

type Registry struct {
	mu      sync.RWMutex
	entries map[string]*rule.Compiled
}

func New() *Registry {
	return &Registry{entries: make(map[string]*rule.Compiled)}
}

// Add compiles and inserts r. It returns false when the name is taken, r is
// inactive, or r does not compile.
func (g *Registry) Add(r *rule.Rule) bool {
	if r == nil || !r.Active() {
		return false
	}
	c, err := r.Compile()
	if err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[c.Name()]; ok {
		return false
	}
	g.entries[c.Name()] = c
	return true
}

// Update recompiles r and swaps it in under its name, inserting it when
// absent. An inactive rule is removed instead.
func (g *Registry) Update(r *rule.Rule) error {
	if r == nil {
		return nil
	}
	c, err := r.Compile()
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !c.Active() {
		delete(g.entries, c.Name())
		return nil
	}
	g.entries[c.Name()] = c
	return nil
}

// Delete removes the named entry and returns the rule it held.
func (g *Registry) Delete(name string) (*rule.Rule, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.entries[name]
	if !ok {
		return nil, false
	}
	delete(g.entries, name)
	return c.Rule(), true
}

// RemoveIfSame deletes c only while it is still the current entry for its
// name, so an expiry sweep never discards a newer replacement.
func (g *Registry) RemoveIfSame(c *rule.Compiled) bool {
	if c == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.entries[c.Name()]; ok && cur == c {
		delete(g.entries, c.Name())
		return true
	}
	return false
}

func (g *Registry) Get(name string) (*rule.Compiled, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.entries[name]
	return c, ok
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Names returns the registered names in sorted order.
func (g *Registry) Names() []string {
	g.mu.RLock()
	out := make([]string, 0, len(g.entries))
	for name := range g.entries {
		out = append(out, name)
	}
	g.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot copies the current entries, ordered by name.
func (g *Registry) Snapshot() []*rule.Compiled {
	g.mu.RLock()
	out := make([]*rule.Compiled, 0, len(g.entries))
	for _, c := range g.entries {
		out = append(out, c)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
