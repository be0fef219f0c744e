package journal

import (
	"sort"
	"sync"

	"tradejournal/internal/models"
)

// scopeLocks hands out one mutex per (broker, ticker) scope.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[models.Scope]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[models.Scope]*sync.Mutex)}
}

func (l *scopeLocks) get(scope models.Scope) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[scope]
	if !ok {
		m = &sync.Mutex{}
		l.locks[scope] = m
	}
	return m
}

// lock acquires every distinct scope in a fixed order and returns the
// matching unlock function.
func (l *scopeLocks) lock(scopes ...models.Scope) func() {
	uniq := make([]models.Scope, 0, len(scopes))
	seen := make(map[models.Scope]bool, len(scopes))
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].String() < uniq[j].String() })

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, s := range uniq {
		m := l.get(s)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
