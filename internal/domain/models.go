// Package domain defines the typed records the storefront core operates on:
// catalog products, carts and their line items, customers, and the per-chat
// conversation session. Product, Cart and Customer are read-only projections
// of backend resources produced by the commerce client's mapping layer; the
// Session is the only record the core persists itself (mapped with GORM).
package domain

import "time"

// State is the conversation state tag stored on a Session. Exactly one state
// is current per session at any time.
type State string

const (
	// StateMenu is the initial state: the user is looking at the product menu.
	StateMenu State = "menu"

	// StateProductDetail means a product card with quantity options is shown.
	StateProductDetail State = "product_detail"

	// StateAwaitingQuantity is a legacy tag written by an earlier revision of
	// the bot for the same screen as StateProductDetail. Sessions carrying it
	// are handled exactly like StateProductDetail.
	StateAwaitingQuantity State = "awaiting_quantity"

	// StateCartView means the cart contents screen is shown.
	StateCartView State = "cart_view"

	// StateAwaitingEmail means the bot asked for an invoice email and the next
	// text message is treated as the answer.
	StateAwaitingEmail State = "awaiting_email"
)

// Valid reports whether s is one of the known conversation states.
func (s State) Valid() bool {
	switch s {
	case StateMenu, StateProductDetail, StateAwaitingQuantity, StateCartView, StateAwaitingEmail:
		return true
	}
	return false
}

// Product is the flat projection of a backend catalog record. Price is in
// minor currency units. MainImageID refers to a backend file resource and may
// be empty when the product carries no photography.
type Product struct {
	ID          string
	Name        string
	SKU         string
	Description string
	Price       int
	MainImageID string
}

// CartLine is one line item inside a remote cart. Amount is the line total in
// minor units as priced at the time the line was added (the backend keeps the
// denormalized copy, not the live product price).
type CartLine struct {
	ID       string
	Name     string
	Quantity int
	Amount   int
}

// Cart is the current remote cart of one customer: the displayed total (minor
// units, tax included) and the lines in backend order.
type Cart struct {
	CustomerID string
	Total      int
	Lines      []CartLine
}

// Empty reports whether the cart should render as empty. The backend exposes
// no explicit empty flag, so a zero total is the signal.
func (c Cart) Empty() bool { return c.Total == 0 }

// Customer is the flat projection of a backend customer record.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// Session is the durable per-chat record: the chat identity, the current
// conversation state, and the backend identities the chat has accumulated.
//
// Fields:
//   - ChatID: stable chat identity, primary key.
//   - State: current conversation state tag.
//   - CustomerID: backend customer id, nil until the first cart action.
//   - PendingAmount: cart total captured when an email prompt was issued,
//     nil outside the awaiting-email exchange.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Session struct {
	ChatID        string  `json:"chat_id"        gorm:"type:varchar(64);primaryKey"`
	State         State   `json:"state"          gorm:"type:varchar(32);not null;default:'menu'"`
	CustomerID    *string `json:"customer_id,omitempty"    gorm:"type:char(36)"`
	PendingAmount *int    `json:"pending_amount,omitempty"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }
