// Package singleflight collapses concurrent identical work into one shared
// execution. Used by the token store so N callers finding a stale token share
// a single refresh exchange.
package singleflight

import "sync"

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val interface{}
	err error
}

// New creates an empty Group.
func New() *Group {
	return &Group{m: make(map[string]*call)}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Duplicate callers wait for the original and receive the same results.
// The key is released as soon as the call completes, so a subsequent caller
// triggers fresh work.
func (g *Group) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()

	c.wg.Done()
	return c.val, c.err
}

// Forget removes key from the group, letting the next caller start fresh work
// even while a previous call is still in flight.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
