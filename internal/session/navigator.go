package session

import "sync"

// PathNavigator es un Navigator en memoria para CLIs y tests.
type PathNavigator struct {
	mu       sync.Mutex
	path     string
	replaced []string
	onChange func(string)
}

func NewPathNavigator(initial string, onChange func(string)) *PathNavigator {
	if initial == "" {
		initial = "/"
	}
	return &PathNavigator{path: initial, onChange: onChange}
}

func (n *PathNavigator) Replace(path string) {
	n.mu.Lock()
	n.path = path
	n.replaced = append(n.replaced, path)
	fn := n.onChange
	n.mu.Unlock()
	if fn != nil {
		fn(path)
	}
}

func (n *PathNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Go cambia de pagina por accion del usuario (no es un replace).
func (n *PathNavigator) Go(path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
}

// Replaced devuelve los replace realizados, en orden.
func (n *PathNavigator) Replaced() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.replaced...)
}
