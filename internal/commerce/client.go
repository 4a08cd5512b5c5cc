// Package commerce – Client
//
// This file implements the typed operations over the Commerce Backend. Every
// operation obtains a valid bearer token first, passes the shared outbound
// rate limiter, and maps the backend's JSON into the flat domain records.
// Operations never retry on their own; a non-2xx answer surfaces as
// *BackendError and the caller decides what to do with it.
//
// The cart reference used on the wire is the customer id: the backend creates
// a cart implicitly on the first mutation against that reference, which keeps
// the one-cart-per-customer invariant without any bookkeeping here.
//
// Observability: all public methods are OpenTelemetry-instrumented; outbound
// calls are counted and timed per operation in Prometheus.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/seliverstovmd/go-storefront-bot/internal/config"
	"github.com/seliverstovmd/go-storefront-bot/internal/domain"
)

// maxErrorBodyBytes caps how much of a response body is kept for error
// reporting and token decoding.
const maxErrorBodyBytes = 4 << 10

// Client is the authenticated commerce backend client. It is safe for
// concurrent use; the credential cache and the image cache serialize their
// own mutations.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *tokenSource
	limiter *rate.Limiter
	images  *imageCache

	// emails collapses concurrent find-or-create calls for the same address
	// so one process never double-creates a customer.
	emails singleflight.Group

	log zerolog.Logger
}

// New constructs a Client from the store configuration. Downloaded product
// photography is cached permanently under imageDir.
func New(cfg config.StoreConfig, imageDir string) *Client {
	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    hc,
		tokens:  newTokenSource(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, hc),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		images:  newImageCache(imageDir, hc),
		log:     log.With().Str("component", "commerce").Logger(),
	}
}

// ListProducts returns the full catalog as flat product records.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	ctx, span := c.startSpan(ctx, "ListProducts")
	defer span.End()

	var out listEnvelope[rawProduct]
	if err := c.do(ctx, "list_products", http.MethodGet, "/catalog/products", nil, &out); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(out.Data))
	for _, rp := range out.Data {
		products = append(products, rp.toProduct())
	}
	return products, nil
}

// GetProduct returns one catalog record by id.
func (c *Client) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	ctx, span := c.startSpan(ctx, "GetProduct", attribute.String("product.id", productID))
	defer span.End()

	var out envelope[rawProduct]
	if err := c.do(ctx, "get_product", http.MethodGet, "/catalog/products/"+productID, nil, &out); err != nil {
		return domain.Product{}, err
	}
	return out.Data.toProduct(), nil
}

// ResolveImagePath returns a local filesystem path for the given backend
// image id, downloading the file on first use. The cache is permanent and
// keyed by image id: a backend-side replacement under the same id is never
// observed. Accepted staleness trade-off for product photography.
func (c *Client) ResolveImagePath(ctx context.Context, imageID string) (string, error) {
	ctx, span := c.startSpan(ctx, "ResolveImagePath", attribute.String("image.id", imageID))
	defer span.End()

	return c.images.Resolve(ctx, imageID, func(ctx context.Context) (string, error) {
		var out envelope[rawFile]
		if err := c.do(ctx, "get_file", http.MethodGet, "/files/"+imageID, nil, &out); err != nil {
			return "", err
		}
		return out.Data.Link.Href, nil
	})
}

// AddToCart posts quantity units of a product to the customer's cart. The
// line item payload (name, sku, description, price) is re-derived from the
// product record fetched here, never from caller-supplied values; the server
// price is copied into the line at add time, so later product-price changes
// do not touch existing lines.
func (c *Client) AddToCart(ctx context.Context, customerID, productID string, quantity int) error {
	ctx, span := c.startSpan(ctx, "AddToCart",
		attribute.String("customer.id", customerID),
		attribute.String("product.id", productID),
		attribute.Int("quantity", quantity),
	)
	defer span.End()

	p, err := c.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	body := envelope[customLineItem]{Data: customLineItem{
		Type:        "custom_item",
		Name:        p.Name,
		SKU:         p.SKU,
		Description: p.Description,
		Quantity:    quantity,
		Price:       rawAmount{Amount: p.Price},
	}}
	if err := c.do(ctx, "add_to_cart", http.MethodPost, "/carts/"+customerID+"/items", body, nil); err != nil {
		return err
	}

	c.log.Debug().
		Str("customer_id", customerID).
		Str("product_id", productID).
		Int("quantity", quantity).
		Int("unit_price", p.Price).
		Msg("line item added")
	return nil
}

// RemoveFromCart deletes one line from the customer's cart.
func (c *Client) RemoveFromCart(ctx context.Context, customerID, lineID string) error {
	ctx, span := c.startSpan(ctx, "RemoveFromCart",
		attribute.String("customer.id", customerID),
		attribute.String("line.id", lineID),
	)
	defer span.End()

	return c.do(ctx, "remove_from_cart", http.MethodDelete, "/carts/"+customerID+"/items/"+lineID, nil, nil)
}

// ClearCart deletes every line currently in the cart, one call per line.
// The sequence is not atomic: a failure partway leaves the already-deleted
// lines gone, and the next GetCart re-syncs the view from the backend.
func (c *Client) ClearCart(ctx context.Context, customerID string) error {
	ctx, span := c.startSpan(ctx, "ClearCart", attribute.String("customer.id", customerID))
	defer span.End()

	cart, err := c.GetCart(ctx, customerID)
	if err != nil {
		return err
	}
	for _, line := range cart.Lines {
		if err := c.RemoveFromCart(ctx, customerID, line.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetCart returns the customer's current cart with its displayed total.
func (c *Client) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	ctx, span := c.startSpan(ctx, "GetCart", attribute.String("customer.id", customerID))
	defer span.End()

	var out rawCartItems
	if err := c.do(ctx, "get_cart", http.MethodGet, "/carts/"+customerID+"/items", nil, &out); err != nil {
		return domain.Cart{}, err
	}
	return out.toCart(customerID), nil
}

// FindOrCreateCustomer looks a customer up by exact email and creates one
// when the lookup comes back empty, returning the customer id either way.
// Calls for the same address are collapsed onto one flight, so concurrent
// first-contact events inside this process cannot both miss the lookup.
func (c *Client) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	ctx, span := c.startSpan(ctx, "FindOrCreateCustomer")
	defer span.End()

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)

	v, err, _ := c.emails.Do(strings.ToLower(email), func() (interface{}, error) {
		var list listEnvelope[rawCustomer]
		filter := url.QueryEscape("eq(email," + email + ")")
		if err := c.do(ctx, "find_customer", http.MethodGet, "/customers?filter="+filter, nil, &list); err != nil {
			return "", err
		}
		for _, rc := range list.Data {
			if strings.EqualFold(rc.Email, email) {
				return rc.ID, nil
			}
		}

		var created envelope[rawCustomer]
		body := envelope[customerPayload]{Data: customerPayload{Type: "customer", Email: email, Name: name}}
		if err := c.do(ctx, "create_customer", http.MethodPost, "/customers", body, &created); err != nil {
			return "", err
		}
		c.log.Info().Str("customer_id", created.Data.ID).Msg("customer created")
		return created.Data.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// AssociateCartWithCustomer links the customer's cart to the customer record.
func (c *Client) AssociateCartWithCustomer(ctx context.Context, customerID string) error {
	ctx, span := c.startSpan(ctx, "AssociateCartWithCustomer", attribute.String("customer.id", customerID))
	defer span.End()

	body := listEnvelope[cartAssociation]{Data: []cartAssociation{{Type: "customer", ID: customerID}}}
	return c.do(ctx, "associate_cart", http.MethodPost, "/carts/"+customerID+"/relationships/customers", body, nil)
}

// UpdateCustomerEmail replaces the customer's email address.
func (c *Client) UpdateCustomerEmail(ctx context.Context, customerID, email string) error {
	ctx, span := c.startSpan(ctx, "UpdateCustomerEmail", attribute.String("customer.id", customerID))
	defer span.End()

	body := envelope[customerPayload]{Data: customerPayload{Type: "customer", Email: strings.TrimSpace(email)}}
	return c.do(ctx, "update_customer", http.MethodPut, "/customers/"+customerID, body, nil)
}

// GetCustomerEmail returns the customer's stored email address.
func (c *Client) GetCustomerEmail(ctx context.Context, customerID string) (string, error) {
	cust, err := c.getCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	return cust.Email, nil
}

// GetCustomerName returns the customer's stored display name.
func (c *Client) GetCustomerName(ctx context.Context, customerID string) (string, error) {
	cust, err := c.getCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	return cust.Name, nil
}

func (c *Client) getCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	ctx, span := c.startSpan(ctx, "getCustomer", attribute.String("customer.id", customerID))
	defer span.End()

	var out envelope[rawCustomer]
	if err := c.do(ctx, "get_customer", http.MethodGet, "/customers/"+customerID, nil, &out); err != nil {
		return domain.Customer{}, err
	}
	return out.Data.toCustomer(), nil
}

// Checkout submits the customer's cart. Billing and shipping carry only the
// customer's name; the remaining address fields are sent blank, matching the
// store's relaxed checkout requirements. A backend that enforces full
// addresses rejects this with a BackendError.
func (c *Client) Checkout(ctx context.Context, customerID string) error {
	ctx, span := c.startSpan(ctx, "Checkout", attribute.String("customer.id", customerID))
	defer span.End()

	name, err := c.GetCustomerName(ctx, customerID)
	if err != nil {
		return err
	}

	addr := checkoutAddress{FirstName: name}
	body := envelope[checkoutPayload]{Data: checkoutPayload{
		Customer:        rawRef{ID: customerID},
		BillingAddress:  addr,
		ShippingAddress: addr,
	}}
	if err := c.do(ctx, "checkout", http.MethodPost, "/carts/"+customerID+"/checkout", body, nil); err != nil {
		return err
	}

	c.log.Info().Str("customer_id", customerID).Msg("checkout submitted")
	return nil
}

// do performs one authenticated backend call: rate limit, token, request,
// status check, optional decode. Non-2xx responses become *BackendError with
// a truncated body copy.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	auth, err := c.tokens.Authorization(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	backendLat.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		backendReqs.WithLabelValues(op, "error").Inc()
		return err
	}
	defer resp.Body.Close()
	backendReqs.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &BackendError{Status: resp.StatusCode, Body: string(b)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return nil
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("commerce/Client").Start(ctx, name, trace.WithAttributes(attrs...))
}
