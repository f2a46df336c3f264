package testutil

import (
	"fmt"
	"sync"
)

// SequentialNonces generates prefix-1, prefix-2, ... so that entry ids in a
// test are byte-identical across runs.
//
// Thread-safety: safe for concurrent use.
type SequentialNonces struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialNonces creates a generator. An empty prefix means "nonce".
func NewSequentialNonces(prefix string) *SequentialNonces {
	if prefix == "" {
		prefix = "nonce"
	}
	return &SequentialNonces{prefix: prefix}
}

// Generate returns the next nonce.
func (g *SequentialNonces) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
