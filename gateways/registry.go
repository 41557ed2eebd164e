package gateways

import "fmt"

// Registry manages a collection of gateway clients for lookup by name.
type Registry struct {
	clients map[string]Client
	order   []string
}

// NewRegistry creates a new empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client to the registry. Registering the same name twice
// replaces the earlier client but keeps its position.
func (r *Registry) Register(c Client) {
	if _, ok := r.clients[c.Name()]; !ok {
		r.order = append(r.order, c.Name())
	}
	r.clients[c.Name()] = c
}

// Get returns a client by name and whether it was found.
func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// MustGet returns a client by name or panics if not found.
func (r *Registry) MustGet(name string) Client {
	c, ok := r.clients[name]
	if !ok {
		panic(fmt.Sprintf("gateway not found: %s", name))
	}
	return c
}

// List returns the names of all registered clients in registration order.
func (r *Registry) List() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns every registered client in registration order.
func (r *Registry) All() []Client {
	clients := make([]Client, 0, len(r.order))
	for _, name := range r.order {
		clients = append(clients, r.clients[name])
	}
	return clients
}

// Len returns the number of registered clients.
func (r *Registry) Len() int { return len(r.clients) }
