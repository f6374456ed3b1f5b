package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/graphql"
	"github.com/jamesprial/storefront-mcp/internal/safety"
)

// MaxPageSize is the largest page the storefront API accepts for first.
const MaxPageSize = 250

// Compile-time interface check.
var _ CatalogManager = (*GraphQLCatalogManager)(nil)

// GraphQLCatalogManager implements CatalogManager using a GraphQL client.
type GraphQLCatalogManager struct {
	client      graphql.Client
	filter      *safety.Filter
	logger      *zap.Logger
	concurrency int
}

// ManagerOption configures a GraphQLCatalogManager.
type ManagerOption func(*GraphQLCatalogManager)

// WithFilter restricts which collection handles may be read.
func WithFilter(f *safety.Filter) ManagerOption {
	return func(m *GraphQLCatalogManager) { m.filter = f }
}

// WithLogger sets the logger used for per-handle failures.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *GraphQLCatalogManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithConcurrency sets the default in-flight limit used by CollectionCounts
// when the caller passes none.
func WithConcurrency(n int) ManagerOption {
	return func(m *GraphQLCatalogManager) { m.concurrency = n }
}

// NewGraphQLCatalogManager returns a GraphQLCatalogManager backed by the
// provided GraphQL client.
func NewGraphQLCatalogManager(client graphql.Client, opts ...ManagerOption) *GraphQLCatalogManager {
	if client == nil {
		panic("graphql client must not be nil")
	}
	m := &GraphQLCatalogManager{client: client, logger: zap.NewNop(), concurrency: 1}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func validateFirst(first int) error {
	if first < 1 || first > MaxPageSize {
		return fmt.Errorf("first must be between 1 and %d, got %d", MaxPageSize, first)
	}
	return nil
}

func validateHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return errors.New("handle is required")
	}
	return nil
}

type collectionsResponse struct {
	Collections Connection[Collection] `json:"collections"`
}

// Collections lists up to first collections. Handles rejected by the filter
// are left out of the result.
func (m *GraphQLCatalogManager) Collections(ctx context.Context, first int) ([]Collection, error) {
	if err := validateFirst(first); err != nil {
		return nil, fmt.Errorf("storefront collections: %w", err)
	}

	resp, err := graphql.Do[collectionsResponse](ctx, m.client, collectionsQuery, map[string]any{"first": first}).Get()
	if err != nil {
		return nil, fmt.Errorf("storefront collections: %w", err)
	}

	all := resp.Collections.Nodes()
	out := all[:0]
	for _, c := range all {
		if m.filter.IsAllowed(c.Handle) {
			out = append(out, c)
		}
	}
	return out, nil
}

type productsResponse struct {
	Products Connection[Product] `json:"products"`
}

// Products lists up to first products matching the optional search string,
// using the full projection when full is set and the summary one otherwise.
func (m *GraphQLCatalogManager) Products(ctx context.Context, first int, search string, full bool) ([]Product, error) {
	if err := validateFirst(first); err != nil {
		return nil, fmt.Errorf("storefront products: %w", err)
	}

	vars := map[string]any{"first": first}
	if search != "" {
		vars["query"] = search
	}
	query := productsSummaryQuery
	if full {
		query = productsQuery
	}

	resp, err := graphql.Do[productsResponse](ctx, m.client, query, vars).Get()
	if err != nil {
		return nil, fmt.Errorf("storefront products: %w", err)
	}
	return resp.Products.Nodes(), nil
}

type productByHandleResponse struct {
	ProductByHandle *Product `json:"productByHandle"`
}

// ProductByHandle returns the full product for handle, or nil when no such
// product exists.
func (m *GraphQLCatalogManager) ProductByHandle(ctx context.Context, handle string) (*Product, error) {
	if err := validateHandle(handle); err != nil {
		return nil, fmt.Errorf("storefront product: %w", err)
	}

	resp, err := graphql.Do[productByHandleResponse](ctx, m.client, productByHandleQuery, map[string]any{"handle": handle}).Get()
	if err != nil {
		return nil, fmt.Errorf("storefront product %q: %w", handle, err)
	}
	return resp.ProductByHandle, nil
}

type collectionResponse struct {
	Collection *Collection `json:"collection"`
}

// CollectionByHandle returns the collection with up to first summary
// products, or nil when no such collection exists.
func (m *GraphQLCatalogManager) CollectionByHandle(ctx context.Context, handle string, first int) (*Collection, error) {
	if err := validateHandle(handle); err != nil {
		return nil, fmt.Errorf("storefront collection: %w", err)
	}
	if err := validateFirst(first); err != nil {
		return nil, fmt.Errorf("storefront collection %q: %w", handle, err)
	}
	if err := m.filter.Check(handle); err != nil {
		return nil, fmt.Errorf("storefront collection: %w", err)
	}

	resp, err := graphql.Do[collectionResponse](ctx, m.client, productsByCollectionQuery, map[string]any{
		"handle": handle,
		"first":  first,
	}).Get()
	if err != nil {
		return nil, fmt.Errorf("storefront collection %q: %w", handle, err)
	}
	return resp.Collection, nil
}

type countNode struct {
	ID string `json:"id"`
}

type countResponse struct {
	Collection *struct {
		Title    string                `json:"title"`
		Products Connection[countNode] `json:"products"`
	} `json:"collection"`
}

// CountCategory reports the title of the collection at handle and how many
// product ids a page of size first returned. When the storefront answers
// with an errors payload the failure is logged with the handle and no data
// is read.
func (m *GraphQLCatalogManager) CountCategory(ctx context.Context, handle string, first int) CategoryCount {
	cc := CategoryCount{Handle: handle}

	fail := func(err error) CategoryCount {
		cc.Err = err
		cc.Error = apiclient.Describe(err, nil)
		return cc
	}

	if err := validateHandle(handle); err != nil {
		return fail(err)
	}
	if err := validateFirst(first); err != nil {
		return fail(err)
	}
	if err := m.filter.Check(handle); err != nil {
		return fail(err)
	}

	resp, err := graphql.Do[countResponse](ctx, m.client, collectionCountQuery, map[string]any{
		"handle": handle,
		"first":  first,
	}).Get()
	if err != nil {
		fault := apiclient.AsFault(err)
		if fault.Kind == apiclient.KindLogical {
			m.logger.Warn("collection count returned errors",
				zap.String("handle", handle),
				zap.Strings("errors", fault.ErrorMessages()),
			)
		} else {
			m.logger.Warn("collection count failed",
				zap.String("handle", handle),
				zap.Stringer("kind", fault.Kind),
				zap.Error(err),
			)
		}
		return fail(err)
	}

	if resp.Collection == nil {
		return cc
	}
	cc.Found = true
	cc.Title = resp.Collection.Title
	for _, n := range resp.Collection.Products.Nodes() {
		cc.ProductIDs = append(cc.ProductIDs, n.ID)
	}
	cc.Count = len(cc.ProductIDs)
	return cc
}

// CountCategories counts every handle and returns the results in input
// order. At most limit requests are in flight at once; a limit below 2
// counts the handles strictly one after another. A failure for one handle
// does not stop the others.
func (m *GraphQLCatalogManager) CountCategories(ctx context.Context, handles []string, first, limit int) []CategoryCount {
	results := make([]CategoryCount, len(handles))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, h := range handles {
		g.Go(func() error {
			results[i] = m.CountCategory(ctx, h, first)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// CollectionCounts lists up to first collections and counts a page of size
// sample for each of them with at most limit lookups in flight. A limit
// below 1 uses the manager's configured concurrency.
func (m *GraphQLCatalogManager) CollectionCounts(ctx context.Context, first, sample, limit int) ([]CategoryCount, error) {
	cols, err := m.Collections(ctx, first)
	if err != nil {
		return nil, err
	}

	handles := make([]string, len(cols))
	for i, c := range cols {
		handles[i] = c.Handle
	}
	if limit < 1 {
		limit = m.concurrency
	}
	counts := m.CountCategories(ctx, handles, sample, limit)
	for i := range counts {
		if counts[i].Title == "" {
			counts[i].Title = cols[i].Title
		}
	}
	return counts, nil
}

type cartCreateResponse struct {
	CartCreate struct {
		Cart *struct {
			ID            string `json:"id"`
			CheckoutURL   string `json:"checkoutUrl"`
			TotalQuantity int    `json:"totalQuantity"`
			Cost          struct {
				TotalAmount Money `json:"totalAmount"`
			} `json:"cost"`
		} `json:"cart"`
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
		} `json:"userErrors"`
	} `json:"cartCreate"`
}

// CreateCheckout creates a cart holding lines and returns its checkout URL
// tagged with the online store sales channel. User errors reported by the
// mutation are returned as a logical fault.
func (m *GraphQLCatalogManager) CreateCheckout(ctx context.Context, lines []CartLine) (*Checkout, error) {
	if len(lines) == 0 {
		return nil, errors.New("storefront checkout: at least one line is required")
	}
	for i, l := range lines {
		if l.MerchandiseID == "" {
			return nil, fmt.Errorf("storefront checkout: line %d: merchandise id is required", i)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("storefront checkout: line %d: quantity must be positive", i)
		}
	}

	resp, err := graphql.Do[cartCreateResponse](ctx, m.client, cartCreateMutation, map[string]any{
		"input": map[string]any{"lines": lines},
	}).Get()
	if err != nil {
		return nil, fmt.Errorf("storefront checkout: %w", err)
	}

	if ue := resp.CartCreate.UserErrors; len(ue) > 0 {
		fault := &apiclient.Fault{Kind: apiclient.KindLogical, Errors: make([]apiclient.UpstreamError, len(ue))}
		for i, e := range ue {
			path := make([]any, len(e.Field))
			for j, f := range e.Field {
				path[j] = f
			}
			fault.Errors[i] = apiclient.UpstreamError{Message: e.Message, Path: path}
		}
		return nil, fmt.Errorf("storefront checkout: %w", fault)
	}

	cart := resp.CartCreate.Cart
	if cart == nil || cart.CheckoutURL == "" {
		return nil, fmt.Errorf("storefront checkout: %w", &apiclient.Fault{
			Kind:   apiclient.KindLogical,
			Detail: "no checkout URL returned",
		})
	}

	u, err := url.Parse(cart.CheckoutURL)
	if err != nil {
		return nil, fmt.Errorf("storefront checkout: %w", &apiclient.Fault{Kind: apiclient.KindDecode, Detail: "invalid checkout URL", Err: err})
	}
	q := u.Query()
	q.Set("channel", "online_store")
	u.RawQuery = q.Encode()

	return &Checkout{
		CartID:        cart.ID,
		CheckoutURL:   u.String(),
		TotalQuantity: cart.TotalQuantity,
		Total:         cart.Cost.TotalAmount,
	}, nil
}
