package state

import "sync"

// Generations hands out per-screen request tokens. A result is applied only
// while the token it was started with is still current.
type Generations struct {
	mu   sync.Mutex
	gens map[string]uint64
}

// NewGenerations creates an empty token table.
func NewGenerations() *Generations {
	return &Generations{gens: make(map[string]uint64)}
}

// Current returns the live token for screen.
func (g *Generations) Current(screen string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[screen]
}

// Bump invalidates every outstanding token for screen.
func (g *Generations) Bump(screen string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[screen]++
	return g.gens[screen]
}

// IsCurrent reports whether token is still live for screen.
func (g *Generations) IsCurrent(screen string, token uint64) bool {
	return g.Current(screen) == token
}
