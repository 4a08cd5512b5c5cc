// Package commerce – wire types and mapping
//
// This file isolates the backend's JSON shapes from the rest of the core.
// Every raw resource (product, cart item, customer, file) has its envelope
// type here plus a mapping step into the flat records of the domain package,
// so JSON-shape drift stays confined to this translation layer.
package commerce

import "github.com/seliverstovmd/go-storefront-bot/internal/domain"

// envelope wraps single-resource responses ({"data": {...}}).
type envelope[T any] struct {
	Data T `json:"data"`
}

// listEnvelope wraps collection responses ({"data": [...]}).
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// rawProduct is a catalog record as served by the backend: identity at the
// top level, everything else nested under attributes and relationships.
type rawProduct struct {
	ID         string `json:"id"`
	Attributes struct {
		Name        string               `json:"name"`
		SKU         string               `json:"sku"`
		Description string               `json:"description"`
		Price       map[string]rawAmount `json:"price"` // keyed by currency code
	} `json:"attributes"`
	Relationships struct {
		MainImage struct {
			Data *rawRef `json:"data"`
		} `json:"main_image"`
	} `json:"relationships"`
}

type rawAmount struct {
	Amount int `json:"amount"`
}

type rawRef struct {
	ID string `json:"id"`
}

// toProduct flattens a raw catalog record. The price is taken from the USD
// entry when present, otherwise from whichever single entry the backend sent.
func (p rawProduct) toProduct() domain.Product {
	amount := 0
	if v, ok := p.Attributes.Price["USD"]; ok {
		amount = v.Amount
	} else {
		for _, v := range p.Attributes.Price {
			amount = v.Amount
			break
		}
	}

	imageID := ""
	if p.Relationships.MainImage.Data != nil {
		imageID = p.Relationships.MainImage.Data.ID
	}

	return domain.Product{
		ID:          p.ID,
		Name:        p.Attributes.Name,
		SKU:         p.Attributes.SKU,
		Description: p.Attributes.Description,
		Price:       amount,
		MainImageID: imageID,
	}
}

// rawCartItems is the cart-items listing: line records plus the cart-level
// display price in the meta block.
type rawCartItems struct {
	Data []rawCartLine `json:"data"`
	Meta struct {
		DisplayPrice struct {
			WithTax rawAmount `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

type rawCartLine struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
	Value    rawAmount `json:"value"`
}

// toCart flattens the cart-items listing for one customer.
func (c rawCartItems) toCart(customerID string) domain.Cart {
	lines := make([]domain.CartLine, 0, len(c.Data))
	for _, it := range c.Data {
		lines = append(lines, domain.CartLine{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Amount:   it.Value.Amount,
		})
	}
	return domain.Cart{
		CustomerID: customerID,
		Total:      c.Meta.DisplayPrice.WithTax.Amount,
		Lines:      lines,
	}
}

// rawCustomer is a customer record; the backend keeps these flat already.
type rawCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (c rawCustomer) toCustomer() domain.Customer {
	return domain.Customer{ID: c.ID, Email: c.Email, Name: c.Name}
}

// rawFile carries the signed download link for a stored file.
type rawFile struct {
	Link struct {
		Href string `json:"href"`
	} `json:"link"`
}

// ---- request payloads ----

// customLineItem is the add-to-cart payload. All pricing fields are derived
// server-side from the product record at add time, never from the caller.
type customLineItem struct {
	Type        string    `json:"type"` // always "custom_item"
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	Price       rawAmount `json:"price"`
}

// customerPayload creates or updates a customer record. Name is omitted on
// email-only updates.
type customerPayload struct {
	Type  string `json:"type"` // always "customer"
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// cartAssociation links a cart to its owning customer.
type cartAssociation struct {
	Type string `json:"type"` // always "customer"
	ID   string `json:"id"`
}

// checkoutPayload submits a cart for checkout. The address blocks carry only
// the customer's name; the remaining fields are intentionally blank and are
// serialized as empty strings. Backends that enforce full addresses will
// reject this — a contract with the current store configuration, not a
// guarantee of this client.
type checkoutPayload struct {
	Customer        rawRef          `json:"customer"`
	BillingAddress  checkoutAddress `json:"billing_address"`
	ShippingAddress checkoutAddress `json:"shipping_address"`
}

type checkoutAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Line1     string `json:"line_1"`
	Region    string `json:"region"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}
