// Package bot – screens
//
// A Screen is the transport-neutral description of what the user should see
// next: an image reference, a caption, and the selectable options with their
// action tokens. How a transport lays the options out (keyboard rows, list
// entries) is its own concern.
package bot

import (
	"fmt"
	"path/filepath"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/seliverstovmd/go-storefront-bot/internal/domain"
)

// Option is one selectable entry on a screen. Payload is the opaque action
// token echoed back by the transport when the user picks the option.
type Option struct {
	Label   string
	Payload string
}

// Screen is the descriptor handed to the transport for rendering.
type Screen struct {
	Image   string
	Caption string
	Options []Option
}

// quantityChoices are the purchase quantities offered on a product card.
var quantityChoices = [...]int{1, 5, 10}

// screens builds Screen values. Amounts arrive in minor currency units and
// are shown as whole major units with digit grouping.
type screens struct {
	staticDir string
	symbol    string
	printer   *message.Printer
}

func newScreens(staticDir, currencySymbol string) *screens {
	return &screens{
		staticDir: staticDir,
		symbol:    currencySymbol,
		printer:   message.NewPrinter(language.English),
	}
}

// money renders a minor-unit amount as a grouped major-unit figure.
func (s *screens) money(minor int) string {
	return s.symbol + s.printer.Sprintf("%d", minor/100)
}

func (s *screens) logo() string { return filepath.Join(s.staticDir, "logo.png") }
func (s *screens) cart() string { return filepath.Join(s.staticDir, "cart.png") }

// navOptions are the standard menu/cart navigation entries.
func (s *screens) navOptions() []Option {
	return []Option{
		{Label: "To menu", Payload: payloadMenu},
		{Label: "View cart", Payload: payloadCart},
	}
}

// Menu lists the assortment. greet switches between the first-contact
// greeting and the regular menu caption.
func (s *screens) Menu(displayName string, products []domain.Product, greet bool) Screen {
	caption := "Have a look at the assortment:"
	if name := displayName; name != "" {
		if greet {
			caption = fmt.Sprintf("Hello %s, welcome to the store!\n\nHave a look at the assortment:", name)
		} else {
			caption = fmt.Sprintf("%s, have a look at the assortment:", name)
		}
	}

	opts := make([]Option, 0, len(products)+1)
	for _, p := range products {
		opts = append(opts, Option{Label: p.Name, Payload: payloadProduct(p.ID)})
	}
	opts = append(opts, Option{Label: "View cart", Payload: payloadCart})

	return Screen{Image: s.logo(), Caption: caption, Options: opts}
}

// ProductDetail shows one product card with quantity choices.
func (s *screens) ProductDetail(p domain.Product, imagePath string) Screen {
	if imagePath == "" {
		imagePath = s.logo()
	}
	caption := fmt.Sprintf("%s — %s per unit\n\n%s", p.Name, s.money(p.Price), p.Description)

	opts := make([]Option, 0, len(quantityChoices)+2)
	for _, q := range quantityChoices {
		opts = append(opts, Option{
			Label:   fmt.Sprintf("%d", q),
			Payload: payloadQuantity(p.ID, q),
		})
	}
	opts = append(opts, s.navOptions()...)

	return Screen{Image: imagePath, Caption: caption, Options: opts}
}

// Added confirms a line item went into the cart.
func (s *screens) Added() Screen {
	return Screen{
		Image:   s.cart(),
		Caption: "Added to your cart.",
		Options: s.navOptions(),
	}
}

// Cart shows the cart contents. A zero total renders as empty and carries no
// pay option.
func (s *screens) Cart(cart domain.Cart) Screen {
	if cart.Empty() {
		return Screen{
			Image:   s.cart(),
			Caption: "Your cart is empty.",
			Options: []Option{{Label: "To menu", Payload: payloadMenu}},
		}
	}

	caption := "In your cart:\n"
	opts := make([]Option, 0, len(cart.Lines)+2)
	for _, line := range cart.Lines {
		caption += fmt.Sprintf("%s ×%d — %s\n", line.Name, line.Quantity, s.money(line.Amount))
		opts = append(opts, Option{Label: "Remove " + line.Name, Payload: payloadRemove(line.ID)})
	}
	caption += fmt.Sprintf("\nCart total — %s", s.money(cart.Total))

	opts = append(opts, Option{Label: "To menu", Payload: payloadMenu})
	opts = append(opts, Option{
		Label:   fmt.Sprintf("Pay %s", s.money(cart.Total)),
		Payload: payloadPay(cart.Total),
	})

	return Screen{Image: s.cart(), Caption: caption, Options: opts}
}

// EmailPrompt asks for an invoice email for the given cart amount.
func (s *screens) EmailPrompt(amount int) Screen {
	return Screen{
		Image: s.cart(),
		Caption: fmt.Sprintf(
			"We don't have your email yet.\nReply with your email address and we will send you an invoice for %s.",
			s.money(amount),
		),
		Options: s.navOptions(),
	}
}

// OrderPlaced confirms checkout and names the invoice email.
func (s *screens) OrderPlaced(email string) Screen {
	return Screen{
		Image:   s.cart(),
		Caption: fmt.Sprintf("An invoice will arrive at %s during the day.\n\nYour cart is empty.", email),
		Options: []Option{{Label: "To menu", Payload: payloadMenu}},
	}
}

// Fallback answers input the state machine has no transition for. It makes
// no backend call: the user gets pointed back at the menu instead.
func (s *screens) Fallback(displayName string) Screen {
	caption := "Sorry, I didn't understand that — the buttons work best."
	if displayName != "" {
		caption = fmt.Sprintf("%s, I didn't understand that — the buttons work best.", displayName)
	}
	return Screen{Image: s.logo(), Caption: caption, Options: s.navOptions()}
}

// Error is shown when processing an event failed. Like Fallback it stays off
// the backend, since the failure may well have come from there.
func (s *screens) Error(displayName string) Screen {
	caption := "Something went wrong while processing your message. We are on it."
	if displayName != "" {
		caption = fmt.Sprintf("Something went wrong while processing your message, %s. We are on it.", displayName)
	}
	return Screen{Image: s.logo(), Caption: caption, Options: s.navOptions()}
}
