// Package bot implements the conversation core: the per-chat state machine
// that maps inbound chat events to commerce calls (controller.go), the screen
// descriptors it emits (screens.go), and the per-chat dispatcher that feeds
// it (dispatcher.go).
//
// This file defines inbound events and the decoding of opaque action tokens.
// Options rendered on a screen carry a token; when the user picks one, the
// transport echoes the token back verbatim. Tokens are small JSON objects
// (product/quantity/remove/pay) or the literal navigation strings "menu" and
// "cart" — the encoding the first revision of the bot shipped with, kept so
// in-flight tokens survive a deploy.
package bot

import (
	"encoding/json"
	"strings"
)

// Event is one inbound chat event: a text message or a picked option.
// Payload is the opaque action token; Text is set for plain messages.
type Event struct {
	ChatID      string
	DisplayName string
	Text        string
	Payload     string
}

// actionKind enumerates what an inbound event asks for.
type actionKind int

const (
	actionNone actionKind = iota
	actionStart
	actionMenu
	actionViewCart
	actionSelectProduct
	actionPickQuantity
	actionRemoveLine
	actionPay
	actionText
)

// String returns the metrics label for the action.
func (k actionKind) String() string {
	switch k {
	case actionStart:
		return "start"
	case actionMenu:
		return "menu"
	case actionViewCart:
		return "view_cart"
	case actionSelectProduct:
		return "select_product"
	case actionPickQuantity:
		return "pick_quantity"
	case actionRemoveLine:
		return "remove_line"
	case actionPay:
		return "pay"
	case actionText:
		return "text"
	default:
		return "none"
	}
}

// action is a decoded event.
type action struct {
	kind      actionKind
	productID string
	quantity  int
	lineID    string
	amount    int
	text      string
}

// callbackToken is the JSON shape of non-navigation action tokens.
type callbackToken struct {
	ID         string `json:"id,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
	Delete     bool   `json:"delete,omitempty"`
	Payment    bool   `json:"payment,omitempty"`
	CartAmount int    `json:"cart_amount,omitempty"`
}

// parseAction decodes an event into an action. Anything that does not decode
// cleanly comes back as actionNone and falls through to the fallback screen.
func parseAction(ev Event) action {
	if p := strings.TrimSpace(ev.Payload); p != "" {
		switch p {
		case "menu":
			return action{kind: actionMenu}
		case "cart":
			return action{kind: actionViewCart}
		}

		var tok callbackToken
		if err := json.Unmarshal([]byte(p), &tok); err != nil {
			return action{kind: actionNone}
		}
		switch {
		case tok.Delete && tok.ID != "":
			return action{kind: actionRemoveLine, lineID: tok.ID}
		case tok.Payment:
			return action{kind: actionPay, amount: tok.CartAmount}
		case tok.ID != "" && tok.Quantity > 0:
			return action{kind: actionPickQuantity, productID: tok.ID, quantity: tok.Quantity}
		case tok.ID != "":
			return action{kind: actionSelectProduct, productID: tok.ID}
		}
		return action{kind: actionNone}
	}

	if t := strings.TrimSpace(ev.Text); t != "" {
		if t == "/start" {
			return action{kind: actionStart}
		}
		return action{kind: actionText, text: t}
	}

	return action{kind: actionNone}
}

// ---- token builders used by screens ----

const (
	payloadMenu = "menu"
	payloadCart = "cart"
)

func payloadProduct(productID string) string {
	return mustToken(callbackToken{ID: productID})
}

func payloadQuantity(productID string, quantity int) string {
	return mustToken(callbackToken{ID: productID, Quantity: quantity})
}

func payloadRemove(lineID string) string {
	return mustToken(callbackToken{ID: lineID, Delete: true})
}

func payloadPay(amount int) string {
	return mustToken(callbackToken{Payment: true, CartAmount: amount})
}

func mustToken(tok callbackToken) string {
	b, err := json.Marshal(tok)
	if err != nil {
		// callbackToken has no unmarshalable fields; this cannot happen.
		panic(err)
	}
	return string(b)
}
