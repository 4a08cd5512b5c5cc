// Package bot – Controller
//
// The Controller is the conversation state machine. Given an inbound event
// and the chat's current session it decides which commerce calls to make, in
// what order, and which state to enter next. A transition returns its screen
// and next state explicitly; handlers never call each other, which keeps the
// machine testable without a live transport.
//
// Error policy: the Controller is the recovery boundary. Any error raised
// inside a transition is logged with full context and answered with the
// error screen; the session keeps its pre-transition content with the state
// tag reset to the menu. The backend may be ahead of the session after a
// failed multi-step transition — the next cart fetch re-syncs the view from
// the backend's authoritative state.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/seliverstovmd/go-storefront-bot/internal/domain"
	"github.com/seliverstovmd/go-storefront-bot/internal/session"
)

// Commerce is the backend contract required by the Controller. The concrete
// implementation lives in the commerce package.
type Commerce interface {
	// ListProducts returns the catalog for the menu screen.
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// GetProduct returns one product for the detail screen.
	GetProduct(ctx context.Context, productID string) (domain.Product, error)

	// ResolveImagePath returns a local path for a product image.
	ResolveImagePath(ctx context.Context, imageID string) (string, error)

	// AddToCart puts quantity units of a product into the customer's cart.
	AddToCart(ctx context.Context, customerID, productID string, quantity int) error

	// RemoveFromCart deletes one cart line.
	RemoveFromCart(ctx context.Context, customerID, lineID string) error

	// ClearCart empties the customer's cart line by line.
	ClearCart(ctx context.Context, customerID string) error

	// GetCart returns the customer's cart with its displayed total.
	GetCart(ctx context.Context, customerID string) (domain.Cart, error)

	// FindOrCreateCustomer resolves an email to a customer id, creating the
	// record when the lookup misses.
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)

	// AssociateCartWithCustomer links the implicit cart to its customer.
	AssociateCartWithCustomer(ctx context.Context, customerID string) error

	// UpdateCustomerEmail replaces the stored email address.
	UpdateCustomerEmail(ctx context.Context, customerID, email string) error

	// GetCustomerEmail returns the stored email address.
	GetCustomerEmail(ctx context.Context, customerID string) (string, error)

	// Checkout submits the customer's cart.
	Checkout(ctx context.Context, customerID string) error
}

// Config carries the conversation-level settings of the Controller.
type Config struct {
	// StaticDir holds the logo/cart images referenced by screens.
	StaticDir string

	// CurrencySymbol prefixes rendered amounts.
	CurrencySymbol string

	// PlaceholderEmailDomain is the domain of derived customer emails for
	// chats that never provided a real address.
	PlaceholderEmailDomain string
}

// Controller drives one conversation per call. It holds no per-chat state
// itself; everything lives in the session store.
type Controller struct {
	commerce Commerce
	sessions session.Store
	screens  *screens
	domain   string
	log      zerolog.Logger
}

// NewController wires the state machine to its collaborators.
func NewController(commerce Commerce, sessions session.Store, cfg Config) *Controller {
	return &Controller{
		commerce: commerce,
		sessions: sessions,
		screens:  newScreens(cfg.StaticDir, cfg.CurrencySymbol),
		domain:   cfg.PlaceholderEmailDomain,
		log:      log.With().Str("component", "controller").Logger(),
	}
}

// Handle processes one inbound event to completion and returns the screen to
// render. It never returns an error: failures are logged and mapped to the
// error screen, with the session reset to the menu state.
func (c *Controller) Handle(ctx context.Context, ev Event) Screen {
	ctx, span := otel.Tracer("bot/Controller").Start(ctx, "Handle",
		trace.WithAttributes(attribute.String("chat.id", ev.ChatID)),
	)
	defer span.End()

	sess, err := c.sessions.Get(ctx, ev.ChatID)
	if err != nil {
		c.log.Error().Err(err).Str("chat_id", ev.ChatID).Msg("session load failed")
		return c.screens.Error(ev.DisplayName)
	}

	act := parseAction(ev)
	eventsTotal.WithLabelValues(string(sess.State), act.kind.String()).Inc()

	screen, next, err := c.transition(ctx, &sess, ev, act)
	if err != nil {
		transitionErrors.Inc()
		c.log.Error().
			Err(err).
			Str("chat_id", ev.ChatID).
			Str("state", string(sess.State)).
			Str("action", act.kind.String()).
			Msg("transition failed")

		// Keep the pre-transition session content, only reset the state tag.
		reset, rerr := c.sessions.Get(ctx, ev.ChatID)
		if rerr == nil {
			reset.State = domain.StateMenu
			if perr := c.sessions.Put(ctx, reset); perr != nil {
				c.log.Error().Err(perr).Str("chat_id", ev.ChatID).Msg("session reset failed")
			}
		}
		return c.screens.Error(ev.DisplayName)
	}

	sess.State = next
	if err := c.sessions.Put(ctx, sess); err != nil {
		c.log.Error().Err(err).Str("chat_id", ev.ChatID).Msg("session save failed")
		return c.screens.Error(ev.DisplayName)
	}
	return screen
}

// transition runs one step of the state machine. It may mutate sess (customer
// id, pending amount) but never its state tag; the next state is the second
// return value and is applied only after the whole step succeeded.
func (c *Controller) transition(ctx context.Context, sess *domain.Session, ev Event, act action) (Screen, domain.State, error) {
	// Navigation is recognized from every state.
	switch act.kind {
	case actionStart:
		return c.showMenu(ctx, ev.DisplayName, true)
	case actionMenu:
		return c.showMenu(ctx, ev.DisplayName, false)
	case actionViewCart:
		return c.showCart(ctx, sess)
	}

	switch sess.State {
	case domain.StateMenu:
		if act.kind == actionSelectProduct {
			return c.showProduct(ctx, act.productID)
		}

	case domain.StateProductDetail, domain.StateAwaitingQuantity:
		if act.kind == actionPickQuantity {
			return c.addToCart(ctx, sess, ev, act)
		}

	case domain.StateCartView:
		switch act.kind {
		case actionRemoveLine:
			if sess.CustomerID != nil {
				if err := c.commerce.RemoveFromCart(ctx, *sess.CustomerID, act.lineID); err != nil {
					return Screen{}, "", err
				}
			}
			return c.showCart(ctx, sess)
		case actionPay:
			return c.startPayment(ctx, sess, ev, act)
		}

	case domain.StateAwaitingEmail:
		if act.kind == actionText && strings.Contains(act.text, "@") {
			return c.placeOrderWithEmail(ctx, sess, act.text)
		}
	}

	// Every {state, event} pair without a transition above lands here.
	return c.screens.Fallback(ev.DisplayName), domain.StateMenu, nil
}

// showMenu fetches the catalog and renders the assortment.
func (c *Controller) showMenu(ctx context.Context, displayName string, greet bool) (Screen, domain.State, error) {
	products, err := c.commerce.ListProducts(ctx)
	if err != nil {
		return Screen{}, "", err
	}
	return c.screens.Menu(displayName, products, greet), domain.StateMenu, nil
}

// showProduct fetches one product and its image and renders the detail card.
func (c *Controller) showProduct(ctx context.Context, productID string) (Screen, domain.State, error) {
	p, err := c.commerce.GetProduct(ctx, productID)
	if err != nil {
		return Screen{}, "", err
	}

	imagePath := ""
	if p.MainImageID != "" {
		imagePath, err = c.commerce.ResolveImagePath(ctx, p.MainImageID)
		if err != nil {
			return Screen{}, "", err
		}
	}
	return c.screens.ProductDetail(p, imagePath), domain.StateProductDetail, nil
}

// showCart renders the cart. A chat that never touched the cart has no
// customer yet; that renders as an empty cart without a backend call.
func (c *Controller) showCart(ctx context.Context, sess *domain.Session) (Screen, domain.State, error) {
	if sess.CustomerID == nil {
		return c.screens.Cart(domain.Cart{}), domain.StateCartView, nil
	}
	cart, err := c.commerce.GetCart(ctx, *sess.CustomerID)
	if err != nil {
		return Screen{}, "", err
	}
	return c.screens.Cart(cart), domain.StateCartView, nil
}

// addToCart makes sure the chat has a customer, posts the line item, and
// confirms. The call order inside the step is strict: resolve customer,
// then add.
func (c *Controller) addToCart(ctx context.Context, sess *domain.Session, ev Event, act action) (Screen, domain.State, error) {
	customerID, err := c.ensureCustomer(ctx, sess, ev)
	if err != nil {
		return Screen{}, "", err
	}
	if err := c.commerce.AddToCart(ctx, customerID, act.productID, act.quantity); err != nil {
		return Screen{}, "", err
	}
	return c.screens.Added(), domain.StateCartView, nil
}

// startPayment branches on whether a real email is known. The derived
// placeholder address embeds the chat id, so an address containing it means
// "no known email" and the user gets prompted; otherwise checkout runs
// directly.
func (c *Controller) startPayment(ctx context.Context, sess *domain.Session, ev Event, act action) (Screen, domain.State, error) {
	if sess.CustomerID == nil {
		return c.screens.Cart(domain.Cart{}), domain.StateCartView, nil
	}

	email, err := c.commerce.GetCustomerEmail(ctx, *sess.CustomerID)
	if err != nil {
		return Screen{}, "", err
	}
	if strings.Contains(email, ev.ChatID) {
		sess.PendingAmount = &act.amount
		return c.screens.EmailPrompt(act.amount), domain.StateAwaitingEmail, nil
	}
	return c.placeOrder(ctx, sess)
}

// placeOrderWithEmail stores the provided address first, then places the
// order. The address is submitted literally; a malformed-but-matching one
// fails at the backend and surfaces like any other backend error.
func (c *Controller) placeOrderWithEmail(ctx context.Context, sess *domain.Session, email string) (Screen, domain.State, error) {
	if sess.CustomerID == nil {
		return c.screens.Cart(domain.Cart{}), domain.StateCartView, nil
	}
	if err := c.commerce.UpdateCustomerEmail(ctx, *sess.CustomerID, email); err != nil {
		return Screen{}, "", err
	}
	return c.placeOrder(ctx, sess)
}

// placeOrder checks out, clears the cart, and confirms with the invoice
// email. The sequence is not transactional; see the package error policy.
func (c *Controller) placeOrder(ctx context.Context, sess *domain.Session) (Screen, domain.State, error) {
	customerID := *sess.CustomerID
	if err := c.commerce.Checkout(ctx, customerID); err != nil {
		return Screen{}, "", err
	}
	if err := c.commerce.ClearCart(ctx, customerID); err != nil {
		return Screen{}, "", err
	}
	email, err := c.commerce.GetCustomerEmail(ctx, customerID)
	if err != nil {
		return Screen{}, "", err
	}

	sess.PendingAmount = nil
	ordersPlaced.Inc()
	c.log.Info().Str("customer_id", customerID).Msg("order placed")
	return c.screens.OrderPlaced(email), domain.StateCartView, nil
}

// ensureCustomer resolves the chat's customer id, creating the backend
// record on the first cart action with an identity derived from the chat:
// "<chatID>@<placeholder domain>" and "<display name> (<chatID>)".
func (c *Controller) ensureCustomer(ctx context.Context, sess *domain.Session, ev Event) (string, error) {
	if sess.CustomerID != nil {
		return *sess.CustomerID, nil
	}

	email := fmt.Sprintf("%s@%s", ev.ChatID, c.domain)
	name := ev.ChatID
	if ev.DisplayName != "" {
		name = fmt.Sprintf("%s (%s)", ev.DisplayName, ev.ChatID)
	}

	customerID, err := c.commerce.FindOrCreateCustomer(ctx, email, name)
	if err != nil {
		return "", err
	}
	if err := c.commerce.AssociateCartWithCustomer(ctx, customerID); err != nil {
		return "", err
	}

	sess.CustomerID = &customerID
	return customerID, nil
}
