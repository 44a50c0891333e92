// Package inventory provides the product repository the voice engine
// mutates. The conversation core only depends on the Repository interface;
// the wrapping application supplies its own implementation over the real
// database.
package inventory

import (
	"context"
	"errors"
)

// Sentinel errors for repository operations.
var (
	// ErrNotFound is returned when no product has the requested id.
	ErrNotFound = errors.New("inventory: product not found")

	// ErrDuplicate is returned when creating a product whose name already
	// exists exactly.
	ErrDuplicate = errors.New("inventory: product already exists")
)

// Product is one inventory entry.
type Product struct {
	// ID uniquely identifies the product.
	ID string `json:"id"`

	// Name is the display name ("Gala apple").
	Name string `json:"name"`

	// Quantity is the amount on hand, in Unit.
	Quantity float64 `json:"quantity"`

	// Unit is the measurement unit ("kg", "l", "piece").
	Unit string `json:"unit"`

	// UnitPrice is the purchase price per unit; nil when unknown.
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

// Repository is the product data collaborator consumed by the dialog
// engine. Implementations must be safe for concurrent use.
type Repository interface {
	// FindByName returns candidate products resembling the spoken name,
	// best match first. An exact (case/diacritic-insensitive) match is
	// returned alone; otherwise fuzzy candidates above the similarity
	// floor are returned. An empty slice means no match, not an error.
	FindByName(ctx context.Context, name string) ([]Product, error)

	// Get returns the product with the given id.
	Get(ctx context.Context, id string) (Product, error)

	// Create adds a new product and returns it with its assigned id.
	Create(ctx context.Context, p Product) (Product, error)

	// AdjustQuantity adds delta (possibly negative) to a product's
	// quantity and returns the updated product.
	AdjustQuantity(ctx context.Context, id string, delta float64) (Product, error)

	// SetPrice sets a product's unit price.
	SetPrice(ctx context.Context, id string, price float64) (Product, error)

	// List returns all products.
	List(ctx context.Context) ([]Product, error)
}
