package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldmart/checkout/internal/domain/ledger"
	"github.com/veldmart/checkout/internal/domain/order"
)

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")

	w := f.do(t, http.MethodGet, "/api/orders/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "114.00", body["total"])
	assert.Equal(t, "12 Baker St, Springfield", body["shipping_address"])
}

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "order not found")
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	f.checkout(t, "cod", "sess-1")
	f.checkout(t, "cod", "sess-2")

	w := f.do(t, http.MethodGet, "/api/orders", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 2)
}

func TestListOrdersStatusFilter(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")
	f.checkout(t, "cod", "sess-2")
	require.NoError(t, f.repo.UpdateStatus(t.Context(), id, order.StatusPendingPayment, order.StatusPaid))

	w := f.do(t, http.MethodGet, "/api/orders?status=paid", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	list := decodeList(t, w)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders?status=refunded", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateOrderStatusForward(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")

	w := f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status":"paid"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "paid", decodeBody(t, w)["status"])

	require.Len(t, f.notifier.updates, 1)
	assert.Equal(t, [2]string{id, "paid"}, f.notifier.updates[0])
	require.Len(t, f.repo.events, 1)
	assert.Equal(t, ledger.EventSale, f.repo.events[0].Type)
}

func TestUpdateOrderStatusBackwardRejected(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")
	require.NoError(t, f.repo.UpdateStatus(t.Context(), id, order.StatusPendingPayment, order.StatusShipped))

	w := f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status":"paid"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	o, err := f.repo.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status, "rejected move must not change status")
}

func TestUpdateOrderStatusCancelRealizedRecordsCancellation(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")
	require.NoError(t, f.repo.UpdateStatus(t.Context(), id, order.StatusPendingPayment, order.StatusPaid))

	w := f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status":"cancelled"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.repo.events, 2)
	assert.Equal(t, ledger.EventCancellation, f.repo.events[1].Type)
}

func TestUpdateOrderStatusCancelPendingRecordsNothing(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")

	w := f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status":"cancelled"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, f.repo.events,
		"cancelling an uncounted order must not touch the ledger")
}

func TestUpdateOrderStatusTerminal(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")
	require.NoError(t, f.repo.UpdateStatus(t.Context(), id, order.StatusPendingPayment, order.StatusDelivered))

	for _, target := range []string{"cancelled", "paid", "shipped"} {
		w := f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status":"`+target+`"}`, nil)
		assert.Equal(t, http.StatusConflict, w.Code, "delivered -> %s", target)
	}
}

func TestUpdateOrderStatusValidation(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t, "cod", "sess-1")

	w := f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status":"broken"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/orders/"+id+"/status", `{"status"`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders/ghost/status", `{"status":"paid"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
