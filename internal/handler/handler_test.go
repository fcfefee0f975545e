package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/laundry-system/internal/middleware"
	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/mmeshcher/laundry-system/internal/repository"
	"github.com/mmeshcher/laundry-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	outletsResp []model.Outlet
	outletsErr  error

	createAddressID  int64
	createAddressErr error

	addressesResp []model.CustomerAddress
	addressesErr  error

	createOrderResp     *model.Order
	createOrderDistance float64
	createOrderErr      error

	orderResp *model.Order
	orderErr  error

	ordersResp []model.Order
	ordersErr  error

	cancelResp *model.Order
	cancelErr  error

	receiveResp *model.Order
	receiveErr  error

	setItemsErr error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) ListOutlets(ctx context.Context) ([]model.Outlet, error) {
	return s.outletsResp, s.outletsErr
}

func (s *stubService) CreateAddress(ctx context.Context, a model.CustomerAddress) (int64, error) {
	return s.createAddressID, s.createAddressErr
}

func (s *stubService) GetAddressesByUser(ctx context.Context, userID int64) ([]model.CustomerAddress, error) {
	return s.addressesResp, s.addressesErr
}

func (s *stubService) CreatePickupOrder(ctx context.Context, userID, addressID int64) (*model.Order, float64, error) {
	return s.createOrderResp, s.createOrderDistance, s.createOrderErr
}

func (s *stubService) GetOrderByID(ctx context.Context, orderID, userID int64) (*model.Order, error) {
	return s.orderResp, s.orderErr
}

func (s *stubService) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) CancelOrder(ctx context.Context, userID, orderID int64, reason string) (*model.Order, error) {
	return s.cancelResp, s.cancelErr
}

func (s *stubService) AcknowledgeReceipt(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	return s.receiveResp, s.receiveErr
}

func (s *stubService) SetOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error {
	return s.setItemsErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

// authedRequest подписывает запрос cookie пользователя 1.
func authedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no auth cookie set")
	}
	req.AddCookie(cookies[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{registerUserID: 42}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "pass"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCreateOrder_NoServiceableOutlet(t *testing.T) {
	svc := &stubService{createOrderErr: service.ErrNoServiceableOutlet}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createOrderRequest{AddressID: 5})
	req := authedRequest(t, h, http.MethodPost, "/api/user/orders", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateOrder_Success(t *testing.T) {
	svc := &stubService{
		createOrderResp: &model.Order{
			ID:         100,
			UserID:     1,
			Status:     model.OrderStatusWaitingPickupDriver,
			OutletID:   2,
			OutletName: "Central",
			AddressID:  5,
		},
		createOrderDistance: 1.25,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createOrderRequest{AddressID: 5})
	req := authedRequest(t, h, http.MethodPost, "/api/user/orders", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp createOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(model.OrderStatusWaitingPickupDriver) {
		t.Fatalf("status = %s, want %s", resp.Status, model.OrderStatusWaitingPickupDriver)
	}
	if resp.Description == "" {
		t.Fatalf("description must not be empty")
	}
	if resp.DistanceKm != 1.25 {
		t.Fatalf("distance = %v, want 1.25", resp.DistanceKm)
	}
	if !resp.Actions.Cancellable {
		t.Fatalf("a freshly created order must be cancellable")
	}
}

func TestCancelOrder_IllegalTransition(t *testing.T) {
	svc := &stubService{cancelErr: repository.ErrIllegalTransition}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(cancelOrderRequest{Reason: "too slow"})
	req := authedRequest(t, h, http.MethodPost, "/api/user/orders/100/cancel", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCancelOrder_EmptyReason(t *testing.T) {
	svc := &stubService{cancelErr: service.ErrEmptyCancelReason}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(cancelOrderRequest{})
	req := authedRequest(t, h, http.MethodPost, "/api/user/orders/100/cancel", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestReceiveOrder_Success(t *testing.T) {
	svc := &stubService{
		receiveResp: &model.Order{
			ID:     100,
			UserID: 1,
			Status: model.OrderStatusCompleted,
			IsPaid: true,
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodPost, "/api/user/orders/100/receive", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp orderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(model.OrderStatusCompleted) {
		t.Fatalf("status = %s, want %s", resp.Status, model.OrderStatusCompleted)
	}
	if resp.Actions.Cancellable || resp.Actions.Payable || resp.Actions.Completable {
		t.Fatalf("completed order must offer no actions, got %+v", resp.Actions)
	}
}

func TestGetOrders_Empty(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/user/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestGetOrders_Unauthorized(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestGetOutlets_OmitsUnsetCoordinates(t *testing.T) {
	svc := &stubService{
		outletsResp: []model.Outlet{
			{ID: 1, Name: "Central", Location: &model.GeoPoint{Lat: -6.21, Lon: 106.82}},
			{ID: 2, Name: "No coords"},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/outlets", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp []outletResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("outlets = %d, want 2", len(resp))
	}
	if resp[0].Lat == nil || resp[1].Lat != nil {
		t.Fatalf("coordinate presence lost in response: %+v", resp)
	}
}

func TestSetOrderItems_InvalidItem(t *testing.T) {
	svc := &stubService{setItemsErr: service.ErrInvalidOrderItem}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(orderItemsRequest{Items: []orderItemResponse{{Name: "", Quantity: 0}}})
	req := authedRequest(t, h, http.MethodPost, "/api/outlet/orders/100/items", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestSetOrderItems_NotFound(t *testing.T) {
	svc := &stubService{setItemsErr: repository.ErrOrderNotFound}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(orderItemsRequest{Items: []orderItemResponse{{Name: "shirt", Quantity: 3}}})
	req := authedRequest(t, h, http.MethodPost, "/api/outlet/orders/100/items", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}
