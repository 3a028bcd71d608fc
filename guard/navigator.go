package guard

import "sync"

// Navigator is the page the controller guards. Navigate replaces the current
// location.
type Navigator interface {
	Path() string
	Navigate(path string)
}

// HistoryNavigator is an in-memory Navigator that records every location it
// visited. It backs headless shells and the CLI route checker.
type HistoryNavigator struct {
	mu      sync.Mutex
	current string
	history []string
}

func NewHistoryNavigator(start string) *HistoryNavigator {
	start = NormalizePath(start)
	return &HistoryNavigator{current: start, history: []string{start}}
}

func (n *HistoryNavigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *HistoryNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = NormalizePath(path)
	n.history = append(n.history, n.current)
}

// History returns every visited path, oldest first.
func (n *HistoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}
