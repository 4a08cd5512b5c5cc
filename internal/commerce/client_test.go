package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seliverstovmd/go-storefront-bot/internal/config"
)

// newTestClient builds a Client against an httptest server. The server always
// answers the token endpoint; everything else goes to handle.
func newTestClient(t *testing.T, handle http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			json.NewEncoder(w).Encode(tokenResponse{
				AccessToken: "tok-test",
				TokenType:   "Bearer",
				Expires:     time.Now().Add(time.Hour).Unix(),
			})
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-test" {
			t.Errorf("Authorization = %q; want %q", got, "Bearer tok-test")
		}
		handle(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(config.StoreConfig{
		BaseURL:      srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		HTTPTimeout:  5 * time.Second,
		RPS:          1000,
		Burst:        1000,
	}, t.TempDir())
	return c, srv
}

func productJSON(id, name string, priceUSD int, imageID string) string {
	img := "null"
	if imageID != "" {
		img = fmt.Sprintf(`{"id":%q}`, imageID)
	}
	return fmt.Sprintf(`{
		"id": %q,
		"attributes": {
			"name": %q,
			"sku": "sku-%s",
			"description": "desc",
			"price": {"USD": {"amount": %d}, "EUR": {"amount": 1}}
		},
		"relationships": {"main_image": {"data": %s}}
	}`, id, name, id, priceUSD, img)
}

func TestListProducts_MapsCatalog(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog/products" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprintf(w, `{"data":[%s,%s]}`,
			productJSON("p1", "Salmon", 12000, "img-1"),
			productJSON("p2", "Trout", 9000, ""),
		)
	})

	products, err := c.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("len = %d; want 2", len(products))
	}
	p := products[0]
	if p.ID != "p1" || p.Name != "Salmon" || p.SKU != "sku-p1" || p.Price != 12000 || p.MainImageID != "img-1" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if products[1].MainImageID != "" {
		t.Fatalf("product without image got MainImageID %q", products[1].MainImageID)
	}
}

func TestGetProduct_NonUSDFallback(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{
			"id": "p9",
			"attributes": {"name": "Eel", "sku": "s", "description": "d",
				"price": {"GBP": {"amount": 7700}}},
			"relationships": {"main_image": {"data": null}}
		}}`)
	})

	p, err := c.GetProduct(context.Background(), "p9")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Price != 7700 {
		t.Fatalf("price = %d; want 7700 (single non-USD entry)", p.Price)
	}
}

func TestAddToCart_DerivesLineFromCurrentProduct(t *testing.T) {
	var posted customLineItem
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/catalog/products/p1":
			fmt.Fprintf(w, `{"data":%s}`, productJSON("p1", "Salmon", 12000, ""))
		case r.Method == http.MethodPost && r.URL.Path == "/carts/cust-1/items":
			var env envelope[customLineItem]
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				t.Errorf("decode line item: %v", err)
			}
			posted = env.Data
			fmt.Fprint(w, `{"data":[]}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	if err := c.AddToCart(context.Background(), "cust-1", "p1", 5); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if posted.Type != "custom_item" {
		t.Fatalf("type = %q; want custom_item", posted.Type)
	}
	if posted.Name != "Salmon" || posted.SKU != "sku-p1" || posted.Quantity != 5 {
		t.Fatalf("unexpected line item: %+v", posted)
	}
	// The unit price is copied from the product record fetched in this call,
	// never from anything the caller supplied.
	if posted.Price.Amount != 12000 {
		t.Fatalf("price = %d; want 12000", posted.Price.Amount)
	}
}

func TestAddThenGetCart_TotalFixedAtAddTime(t *testing.T) {
	type storedLine struct {
		id     string
		name   string
		qty    int
		amount int
	}
	var mu sync.Mutex
	price := 12000
	var lines []storedLine

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/catalog/products/p1":
			mu.Lock()
			current := price
			mu.Unlock()
			fmt.Fprintf(w, `{"data":%s}`, productJSON("p1", "Salmon", current, ""))
		case r.Method == http.MethodPost && r.URL.Path == "/carts/cust-1/items":
			var env envelope[customLineItem]
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				t.Errorf("decode line item: %v", err)
			}
			mu.Lock()
			lines = append(lines, storedLine{
				id:     fmt.Sprintf("l%d", len(lines)+1),
				name:   env.Data.Name,
				qty:    env.Data.Quantity,
				amount: env.Data.Price.Amount * env.Data.Quantity,
			})
			mu.Unlock()
			fmt.Fprint(w, `{"data":[]}`)
		case r.Method == http.MethodGet && r.URL.Path == "/carts/cust-1/items":
			mu.Lock()
			total := 0
			body := ""
			for i, l := range lines {
				if i > 0 {
					body += ","
				}
				body += fmt.Sprintf(`{"id":%q,"name":%q,"quantity":%d,"value":{"amount":%d}}`,
					l.id, l.name, l.qty, l.amount)
				total += l.amount
			}
			mu.Unlock()
			fmt.Fprintf(w, `{"data":[%s],"meta":{"display_price":{"with_tax":{"amount":%d}}}}`, body, total)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	if err := c.AddToCart(context.Background(), "cust-1", "p1", 5); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	// A catalog price change after the add must not touch the existing line:
	// the backend keeps the denormalized copy written at add time.
	mu.Lock()
	price = 99000
	mu.Unlock()

	cart, err := c.GetCart(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.Total != 60000 {
		t.Fatalf("total = %d; want 60000 (5 x 12000 at add time)", cart.Total)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Amount != 60000 || cart.Lines[0].Quantity != 5 {
		t.Fatalf("unexpected lines: %+v", cart.Lines)
	}
}

func TestGetCart_MapsLinesAndTotal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/carts/cust-1/items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"data": [
				{"id": "l1", "name": "Salmon", "quantity": 5, "value": {"amount": 60000}},
				{"id": "l2", "name": "Trout", "quantity": 1, "value": {"amount": 9000}}
			],
			"meta": {"display_price": {"with_tax": {"amount": 69000}}}
		}`)
	})

	cart, err := c.GetCart(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.CustomerID != "cust-1" || cart.Total != 69000 || len(cart.Lines) != 2 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
	if cart.Lines[0].ID != "l1" || cart.Lines[0].Amount != 60000 || cart.Lines[0].Quantity != 5 {
		t.Fatalf("unexpected line: %+v", cart.Lines[0])
	}
	if cart.Empty() {
		t.Fatal("cart with total should not be empty")
	}
}

func TestGetCart_ZeroTotalIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[],"meta":{"display_price":{"with_tax":{"amount":0}}}}`)
	})

	cart, err := c.GetCart(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !cart.Empty() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestClearCart_DeletesEveryLine(t *testing.T) {
	var deleted []string
	var mu sync.Mutex
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/carts/cust-1/items":
			fmt.Fprint(w, `{
				"data": [
					{"id": "l1", "name": "a", "quantity": 1, "value": {"amount": 100}},
					{"id": "l2", "name": "b", "quantity": 1, "value": {"amount": 200}}
				],
				"meta": {"display_price": {"with_tax": {"amount": 300}}}
			}`)
		case r.Method == http.MethodDelete:
			mu.Lock()
			deleted = append(deleted, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	if err := c.ClearCart(context.Background(), "cust-1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	want := []string{"/carts/cust-1/items/l1", "/carts/cust-1/items/l2"}
	if len(deleted) != len(want) {
		t.Fatalf("deletes = %v; want %v", deleted, want)
	}
	for i := range want {
		if deleted[i] != want[i] {
			t.Fatalf("deletes = %v; want %v", deleted, want)
		}
	}
}

func TestClearCart_StopsOnFirstFailure(t *testing.T) {
	var deletes int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{
				"data": [
					{"id": "l1", "name": "a", "quantity": 1, "value": {"amount": 100}},
					{"id": "l2", "name": "b", "quantity": 1, "value": {"amount": 200}}
				],
				"meta": {"display_price": {"with_tax": {"amount": 300}}}
			}`)
		case r.Method == http.MethodDelete:
			atomic.AddInt32(&deletes, 1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`boom`))
		}
	})

	err := c.ClearCart(context.Background(), "cust-1")
	if err == nil {
		t.Fatal("expected error from failing delete")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Status != http.StatusInternalServerError {
		t.Fatalf("error = %v; want *BackendError 500", err)
	}
	if n := atomic.LoadInt32(&deletes); n != 1 {
		t.Fatalf("deletes attempted = %d; want 1 (abort on first failure)", n)
	}
}

func TestFindOrCreateCustomer_ExistingMatchSkipsCreate(t *testing.T) {
	var creates int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			if filter := r.URL.Query().Get("filter"); filter != "eq(email,user@example.com)" {
				t.Errorf("filter = %q", filter)
			}
			fmt.Fprint(w, `{"data":[{"id":"cust-7","email":"User@Example.com","name":"U"}]}`)
		case r.Method == http.MethodPost:
			atomic.AddInt32(&creates, 1)
			fmt.Fprint(w, `{"data":{"id":"cust-new"}}`)
		}
	})

	id, err := c.FindOrCreateCustomer(context.Background(), "user@example.com", "U")
	if err != nil {
		t.Fatalf("FindOrCreateCustomer: %v", err)
	}
	// Case-insensitive email comparison.
	if id != "cust-7" {
		t.Fatalf("id = %q; want cust-7", id)
	}
	if atomic.LoadInt32(&creates) != 0 {
		t.Fatal("create called despite matching lookup")
	}
}

func TestFindOrCreateCustomer_MissCreates(t *testing.T) {
	var posted customerPayload
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			fmt.Fprint(w, `{"data":[]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			var env envelope[customerPayload]
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				t.Errorf("decode customer: %v", err)
			}
			posted = env.Data
			fmt.Fprint(w, `{"data":{"id":"cust-new","email":"a@b.c","name":"N"}}`)
		}
	})

	id, err := c.FindOrCreateCustomer(context.Background(), "a@b.c", "N")
	if err != nil {
		t.Fatalf("FindOrCreateCustomer: %v", err)
	}
	if id != "cust-new" {
		t.Fatalf("id = %q; want cust-new", id)
	}
	if posted.Type != "customer" || posted.Email != "a@b.c" || posted.Name != "N" {
		t.Fatalf("unexpected create payload: %+v", posted)
	}
}

func TestFindOrCreateCustomer_ConcurrentSameEmailOneCreate(t *testing.T) {
	var lookups, creates int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			atomic.AddInt32(&lookups, 1)
			time.Sleep(20 * time.Millisecond) // widen the race window
			fmt.Fprint(w, `{"data":[]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			atomic.AddInt32(&creates, 1)
			fmt.Fprint(w, `{"data":{"id":"cust-new"}}`)
		}
	})

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = c.FindOrCreateCustomer(context.Background(), "Race@example.com", "R")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != "cust-new" {
			t.Fatalf("caller %d: id = %q", i, ids[i])
		}
	}
	if n := atomic.LoadInt32(&creates); n != 1 {
		t.Fatalf("creates = %d; want 1", n)
	}
}

func TestCheckout_AddressCarriesNameOnly(t *testing.T) {
	var posted checkoutPayload
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers/cust-1":
			fmt.Fprint(w, `{"data":{"id":"cust-1","email":"a@b.c","name":"Alex"}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/carts/cust-1/checkout":
			var env envelope[checkoutPayload]
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				t.Errorf("decode checkout: %v", err)
			}
			posted = env.Data
			fmt.Fprint(w, `{"data":{}}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	if err := c.Checkout(context.Background(), "cust-1"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if posted.Customer.ID != "cust-1" {
		t.Fatalf("customer id = %q", posted.Customer.ID)
	}
	for _, addr := range []checkoutAddress{posted.BillingAddress, posted.ShippingAddress} {
		if addr.FirstName != "Alex" {
			t.Fatalf("first_name = %q; want Alex", addr.FirstName)
		}
		if addr.LastName != "" || addr.Line1 != "" || addr.Region != "" || addr.Postcode != "" || addr.Country != "" {
			t.Fatalf("expected blank address fields, got %+v", addr)
		}
	}
}

func TestUpdateCustomerEmail_PutsTrimmedAddress(t *testing.T) {
	var posted customerPayload
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/customers/cust-1" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var env envelope[customerPayload]
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode: %v", err)
		}
		posted = env.Data
		fmt.Fprint(w, `{"data":{}}`)
	})

	if err := c.UpdateCustomerEmail(context.Background(), "cust-1", "  new@addr.io "); err != nil {
		t.Fatalf("UpdateCustomerEmail: %v", err)
	}
	if posted.Email != "new@addr.io" {
		t.Fatalf("email = %q; want trimmed", posted.Email)
	}
	if posted.Name != "" {
		t.Fatalf("email-only update must omit name, got %q", posted.Name)
	}
}

func TestDo_Non2xxBecomesBackendError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"title":"not found"}]}`))
	})

	_, err := c.GetProduct(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error type = %T; want *BackendError", err)
	}
	if be.Status != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", be.Status)
	}
	if be.Body == "" {
		t.Fatal("expected body copy in BackendError")
	}
}
