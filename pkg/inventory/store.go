package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lflachs/cocorico-voice/internal/log"
)

// JSONStore is a file-backed Repository. Products live in memory behind a
// mutex and every mutation is flushed to a pretty-printed JSON file, so
// the inventory survives restarts and stays hand-editable.
type JSONStore struct {
	mu       sync.RWMutex
	path     string
	products map[string]Product
}

// storeFile is the on-disk shape.
type storeFile struct {
	Products []Product `json:"products"`
}

// NewJSONStore opens (or creates) the store at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:     path,
		products: make(map[string]Product),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	log.Component("inventory").Debug("store opened", "path", path, "products", len(s.products))
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inventory: read store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("inventory: parse store: %w", err)
	}
	for _, p := range file.Products {
		s.products[p.ID] = p
	}
	return nil
}

// save writes the current products to disk. Caller must hold mu.
func (s *JSONStore) save() error {
	file := storeFile{Products: make([]Product, 0, len(s.products))}
	for _, p := range s.products {
		file.Products = append(file.Products, p)
	}
	sort.Slice(file.Products, func(i, j int) bool {
		return file.Products[i].Name < file.Products[j].Name
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("inventory: marshal store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("inventory: create store dir: %w", err)
	}

	// Write-then-rename keeps the store readable if we crash mid-write.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("inventory: write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("inventory: replace store: %w", err)
	}
	return nil
}

// FindByName implements Repository. See Repository for the matching
// contract.
func (s *JSONStore) FindByName(ctx context.Context, name string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := Normalize(name)
	type scored struct {
		product Product
		score   float64
	}
	var candidates []scored
	for _, p := range s.products {
		if Normalize(p.Name) == want {
			return []Product{p}, nil
		}
		if score := Similarity(name, p.Name); score >= SimilarityFloor {
			candidates = append(candidates, scored{p, score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].product.Name < candidates[j].product.Name
	})

	out := make([]Product, len(candidates))
	for i, c := range candidates {
		out[i] = c.product
	}
	return out, nil
}

// Get implements Repository.
func (s *JSONStore) Get(ctx context.Context, id string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// Create implements Repository. The product's ID is assigned here.
func (s *JSONStore) Create(ctx context.Context, p Product) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	want := Normalize(p.Name)
	for _, existing := range s.products {
		if Normalize(existing.Name) == want {
			return Product{}, ErrDuplicate
		}
	}

	p.ID = uuid.NewString()
	s.products[p.ID] = p
	if err := s.save(); err != nil {
		delete(s.products, p.ID)
		return Product{}, err
	}
	log.Component("inventory").Info("product created", "id", p.ID, "name", p.Name)
	return p, nil
}

// AdjustQuantity implements Repository.
func (s *JSONStore) AdjustQuantity(ctx context.Context, id string, delta float64) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}

	prev := p
	p.Quantity += delta
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	s.products[id] = p
	if err := s.save(); err != nil {
		s.products[id] = prev
		return Product{}, err
	}
	log.Component("inventory").Info("quantity adjusted",
		"id", id, "name", p.Name, "delta", delta, "quantity", p.Quantity)
	return p, nil
}

// SetPrice implements Repository.
func (s *JSONStore) SetPrice(ctx context.Context, id string, price float64) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}

	prev := p
	p.UnitPrice = &price
	s.products[id] = p
	if err := s.save(); err != nil {
		s.products[id] = prev
		return Product{}, err
	}
	log.Component("inventory").Info("price set", "id", id, "name", p.Name, "price", price)
	return p, nil
}

// List implements Repository. Products are sorted by name.
func (s *JSONStore) List(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ Repository = (*JSONStore)(nil)
