package inventory

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Repository for tests. Every call is recorded and
// any method can be scripted to fail.
type Mock struct {
	mu       sync.Mutex
	products map[string]Product
	nextID   int

	// Calls records method names in invocation order.
	Calls []string

	// Errors maps a method name ("Create", "AdjustQuantity", ...) to an
	// error that method should return.
	Errors map[string]error
}

// NewMock returns a Mock pre-seeded with the given products. Products
// without an ID get one assigned.
func NewMock(seed ...Product) *Mock {
	m := &Mock{
		products: make(map[string]Product),
		Errors:   make(map[string]error),
	}
	for _, p := range seed {
		if p.ID == "" {
			m.nextID++
			p.ID = fmt.Sprintf("p%d", m.nextID)
		}
		m.products[p.ID] = p
	}
	return m
}

func (m *Mock) record(method string) error {
	m.Calls = append(m.Calls, method)
	return m.Errors[method]
}

// CallCount returns how many times method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and scripted errors.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.Errors = make(map[string]error)
}

// FindByName implements Repository with the same exact-else-fuzzy
// contract as JSONStore.
func (m *Mock) FindByName(ctx context.Context, name string) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FindByName"); err != nil {
		return nil, err
	}

	want := Normalize(name)
	var out []Product
	for _, p := range m.products {
		if Normalize(p.Name) == want {
			return []Product{p}, nil
		}
		if Similarity(name, p.Name) >= SimilarityFloor {
			out = append(out, p)
		}
	}
	sortByName(out)
	return out, nil
}

// Get implements Repository.
func (m *Mock) Get(ctx context.Context, id string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Get"); err != nil {
		return Product{}, err
	}
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// Create implements Repository.
func (m *Mock) Create(ctx context.Context, p Product) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Create"); err != nil {
		return Product{}, err
	}
	m.nextID++
	p.ID = fmt.Sprintf("p%d", m.nextID)
	m.products[p.ID] = p
	return p, nil
}

// AdjustQuantity implements Repository.
func (m *Mock) AdjustQuantity(ctx context.Context, id string, delta float64) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AdjustQuantity"); err != nil {
		return Product{}, err
	}
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.Quantity += delta
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	m.products[id] = p
	return p, nil
}

// SetPrice implements Repository.
func (m *Mock) SetPrice(ctx context.Context, id string, price float64) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SetPrice"); err != nil {
		return Product{}, err
	}
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.UnitPrice = &price
	m.products[id] = p
	return p, nil
}

// List implements Repository.
func (m *Mock) List(ctx context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("List"); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sortByName(out)
	return out, nil
}

func sortByName(ps []Product) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Name < ps[j-1].Name; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

var _ Repository = (*Mock)(nil)
