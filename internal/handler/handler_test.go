package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/veldmart/checkout/internal/domain/cart"
	"github.com/veldmart/checkout/internal/domain/ledger"
	"github.com/veldmart/checkout/internal/domain/order"
	"github.com/veldmart/checkout/internal/domain/payment"
	"github.com/veldmart/checkout/internal/gateway"
)

// fakeOrders is an in-memory order.Repository good enough for HTTP-level
// tests: idempotency by session key, CAS on status, recorded ledger events.
type fakeOrders struct {
	orders    map[string]*order.Order
	bySession map[string]string
	events    []ledger.Event

	failCreate    error
	listCalls     int
	snapshotCalls int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		orders:    make(map[string]*order.Order),
		bySession: make(map[string]string),
	}
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order, sessionKey string) (*order.CreateResult, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	if id, ok := f.bySession[sessionKey]; ok {
		return &order.CreateResult{Order: f.orders[id], Created: false}, nil
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	f.orders[o.ID] = o
	f.bySession[sessionKey] = o.ID
	return &order.CreateResult{Order: o, Created: true}, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) List(_ context.Context, filter order.ListFilter) ([]order.Order, error) {
	f.listCalls++
	var out []order.Order
	for _, o := range f.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	o, ok := f.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	switch {
	case !from.Realized() && to.Realized():
		f.events = append(f.events, ledger.Event{
			OrderID: id, Type: ledger.EventSale, Amount: o.Total, CreatedAt: time.Now().UTC(),
		})
	case from.Realized() && to == order.StatusCancelled:
		f.events = append(f.events, ledger.Event{
			OrderID: id, Type: ledger.EventCancellation, Amount: o.Total, CreatedAt: time.Now().UTC(),
		})
	}
	return nil
}

func (f *fakeOrders) MarkPaymentFailed(_ context.Context, id string, at time.Time) error {
	o, ok := f.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentFailedAt = &at
	return nil
}

func (f *fakeOrders) LedgerSnapshot(context.Context) (decimal.Decimal, []order.Order, error) {
	f.snapshotCalls++
	total := decimal.Zero
	var orders []order.Order
	for _, o := range f.orders {
		if o.Status.Realized() {
			total = total.Add(o.Total)
		}
		orders = append(orders, *o)
	}
	return total, orders, nil
}

func (f *fakeOrders) ExpireStalePending(context.Context, time.Time) ([]string, error) {
	panic("unexpected ExpireStalePending")
}

type fakeEvents struct{ repo *fakeOrders }

func (f *fakeEvents) List(context.Context) ([]ledger.Event, error) {
	return f.repo.events, nil
}

type fakeCart struct {
	items []cart.Item
	addr  string
}

func (f *fakeCart) Snapshot(context.Context, string) ([]cart.Item, error) {
	return f.items, nil
}

func (f *fakeCart) ResolveAddress(context.Context, string) (string, error) {
	if f.addr == "" {
		return "", cart.ErrNoAddress
	}
	return f.addr, nil
}

type recordingNotifier struct {
	updates [][2]string
}

func (n *recordingNotifier) Notify(orderID, status string) {
	n.updates = append(n.updates, [2]string{orderID, status})
}

type fixture struct {
	repo     *fakeOrders
	cart     *fakeCart
	gateway  *gateway.Client
	notifier *recordingNotifier
	mux      *http.ServeMux
}

const testSecret = "test-secret"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeOrders()
	c := &fakeCart{
		items: []cart.Item{
			{ProductID: "sku-espresso", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
			{ProductID: "sku-grinder", UnitPrice: decimal.RequireFromString("89.00"), Quantity: 1},
		},
		addr: "12 Baker St, Springfield",
	}

	// Intent creation is stubbed at the HTTP layer; signature verification is
	// the real HMAC implementation.
	processor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_test"}`))
	}))
	t.Cleanup(processor.Close)

	gw := gateway.NewClient(gateway.Config{BaseURL: processor.URL, Secret: testSecret})
	builder := order.NewService(repo, "USD")
	coordinator := payment.NewCoordinator(c, c, builder, repo, gw)
	notifier := &recordingNotifier{}

	h := NewHandler(coordinator, repo, &fakeEvents{repo: repo}, notifier)
	mux := http.NewServeMux()
	h.Register(mux)

	return &fixture{repo: repo, cart: c, gateway: gw, notifier: notifier, mux: mux}
}

func (f *fixture) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// checkout drives a full checkout and returns the created order id.
func (f *fixture) checkout(t *testing.T, method, sessionKey string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/checkout",
		`{"customer_id":"cust-1","payment_method":"`+method+`"}`,
		map[string]string{sessionKeyHeader: sessionKey},
	)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)["order"].(map[string]any)["id"].(string)
}
