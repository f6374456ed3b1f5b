// Package storefront reads the product catalog of a hosted storefront through
// its GraphQL API and creates checkout carts.
package storefront

import "context"

// Edge wraps a single node of a GraphQL connection.
type Edge[T any] struct {
	Node T `json:"node"`
}

// Connection is a relay-style list. A missing edges field decodes to an
// empty connection.
type Connection[T any] struct {
	Edges []Edge[T] `json:"edges"`
}

// Nodes returns the nodes of c in order.
func (c Connection[T]) Nodes() []T {
	out := make([]T, 0, len(c.Edges))
	for _, e := range c.Edges {
		out = append(out, e.Node)
	}
	return out
}

// Money is a decimal amount as the storefront serializes it.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// Image is a hosted image reference.
type Image struct {
	URL     string  `json:"url"`
	AltText *string `json:"altText,omitempty"`
}

// MediaSource is one encoding of a hosted video.
type MediaSource struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Format   string `json:"format"`
}

// Media is a product image, video or external video. Which fields are set
// depends on MediaContentType.
type Media struct {
	ID               string        `json:"id,omitempty"`
	MediaContentType string        `json:"mediaContentType"`
	PreviewImage     *Image        `json:"previewImage,omitempty"`
	Image            *Image        `json:"image,omitempty"`
	Sources          []MediaSource `json:"sources,omitempty"`
	EmbeddedURL      string        `json:"embeddedUrl,omitempty"`
}

// SelectedOption is one option value chosen by a variant.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is a purchasable variant of a product.
type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            Money            `json:"price"`
	AvailableForSale bool             `json:"availableForSale"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

// ProductOption lists the values of one product option such as size.
type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// PriceRange holds the lowest variant price.
type PriceRange struct {
	MinVariantPrice Money `json:"minVariantPrice"`
}

// Product is a catalog product. Summary projections leave Description and
// Options empty and carry at most one media item and variant.
type Product struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Handle           string              `json:"handle"`
	AvailableForSale bool                `json:"availableForSale"`
	PriceRange       PriceRange          `json:"priceRange"`
	Media            Connection[Media]   `json:"media"`
	Variants         Connection[Variant] `json:"variants"`
	Options          []ProductOption     `json:"options,omitempty"`
}

// Collection is a named group of products addressed by handle.
type Collection struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Handle      string              `json:"handle"`
	Description string              `json:"description"`
	Image       *Image              `json:"image,omitempty"`
	Products    Connection[Product] `json:"products"`
}

// CategoryCount is the outcome of counting one collection. A handle that
// does not exist is not a failure: Found is false, Title is empty and Count
// is 0. Err is set only when the request itself failed.
type CategoryCount struct {
	Handle     string   `json:"handle"`
	Title      string   `json:"title,omitempty"`
	Found      bool     `json:"found"`
	Count      int      `json:"count"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Err        error    `json:"-"`
	Error      string   `json:"error,omitempty"`
}

// CartLine is one line of a checkout cart.
type CartLine struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// Checkout is a created cart and the URL a shopper completes it at.
type Checkout struct {
	CartID        string `json:"cart_id"`
	CheckoutURL   string `json:"checkout_url"`
	TotalQuantity int    `json:"total_quantity"`
	Total         Money  `json:"total"`
}

// CatalogManager defines the catalog read operations and checkout creation.
type CatalogManager interface {
	Collections(ctx context.Context, first int) ([]Collection, error)
	Products(ctx context.Context, first int, search string, full bool) ([]Product, error)
	ProductByHandle(ctx context.Context, handle string) (*Product, error)
	CollectionByHandle(ctx context.Context, handle string, first int) (*Collection, error)
	CountCategory(ctx context.Context, handle string, first int) CategoryCount
	CountCategories(ctx context.Context, handles []string, first, limit int) []CategoryCount
	CollectionCounts(ctx context.Context, first, sample, limit int) ([]CategoryCount, error)
	CreateCheckout(ctx context.Context, lines []CartLine) (*Checkout, error)
}
