// Package handler содержит HTTP-обработчики API сервиса прачечной.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/laundry-system/internal/dispatch"
	"github.com/mmeshcher/laundry-system/internal/lifecycle"
	"github.com/mmeshcher/laundry-system/internal/middleware"
	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/mmeshcher/laundry-system/internal/repository"
	"github.com/mmeshcher/laundry-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	ListOutlets(ctx context.Context) ([]model.Outlet, error)
	CreateAddress(ctx context.Context, a model.CustomerAddress) (int64, error)
	GetAddressesByUser(ctx context.Context, userID int64) ([]model.CustomerAddress, error)
	CreatePickupOrder(ctx context.Context, userID, addressID int64) (*model.Order, float64, error)
	GetOrderByID(ctx context.Context, orderID, userID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	CancelOrder(ctx context.Context, userID, orderID int64, reason string) (*model.Order, error)
	AcknowledgeReceipt(ctx context.Context, userID, orderID int64) (*model.Order, error)
	SetOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error
}

// Handler реализует HTTP-обработчики API сервиса прачечной.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type outletResponse struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// GetOutlets возвращает каталог точек обслуживания.
func (h *Handler) GetOutlets(w http.ResponseWriter, r *http.Request) {
	outlets, err := h.service.ListOutlets(r.Context())
	if err != nil {
		h.logger.Error("get outlets error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]outletResponse, 0, len(outlets))
	for _, o := range outlets {
		or := outletResponse{
			ID:      o.ID,
			Name:    o.Name,
			Address: o.Address,
		}
		if o.Location != nil {
			lat, lon := o.Location.Lat, o.Location.Lon
			or.Lat, or.Lon = &lat, &lon
		}
		resp = append(resp, or)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type addressRequest struct {
	Street   string  `json:"street"`
	Province string  `json:"province"`
	Regency  string  `json:"regency"`
	District string  `json:"district"`
	Village  string  `json:"village"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

type addressResponse struct {
	ID       int64   `json:"id"`
	Street   string  `json:"street"`
	Province string  `json:"province"`
	Regency  string  `json:"regency"`
	District string  `json:"district"`
	Village  string  `json:"village"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// CreateAddress сохраняет адрес текущего пользователя.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateAddress(r.Context(), model.CustomerAddress{
		UserID:   userID,
		Street:   req.Street,
		Province: req.Province,
		Regency:  req.Regency,
		District: req.District,
		Village:  req.Village,
		Location: model.GeoPoint{Lat: req.Lat, Lon: req.Lon},
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidLocation) {
			http.Error(w, "address coordinates are missing or out of range", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create address error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

// GetAddresses возвращает список адресов текущего пользователя.
func (h *Handler) GetAddresses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	addresses, err := h.service.GetAddressesByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get addresses error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(addresses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]addressResponse, 0, len(addresses))
	for _, a := range addresses {
		resp = append(resp, addressResponse{
			ID:       a.ID,
			Street:   a.Street,
			Province: a.Province,
			Regency:  a.Regency,
			District: a.District,
			Village:  a.Village,
			Lat:      a.Location.Lat,
			Lon:      a.Location.Lon,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type orderItemResponse struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type orderResponse struct {
	ID           int64               `json:"id"`
	Status       string              `json:"status"`
	Description  string              `json:"description"`
	IsPaid       bool                `json:"is_paid"`
	OutletID     int64               `json:"outlet_id"`
	OutletName   string              `json:"outlet_name"`
	AddressID    int64               `json:"address_id"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	Items        []orderItemResponse `json:"items,omitempty"`
	Actions      lifecycle.Actions   `json:"actions"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

func newOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{Name: it.Name, Quantity: it.Quantity})
	}

	return orderResponse{
		ID:           o.ID,
		Status:       string(o.Status),
		Description:  lifecycle.Describe(o.Status),
		IsPaid:       o.IsPaid,
		OutletID:     o.OutletID,
		OutletName:   o.OutletName,
		AddressID:    o.AddressID,
		CancelReason: o.CancelReason,
		Items:        items,
		Actions:      lifecycle.ActionsFor(*o),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    o.UpdatedAt.Format(time.RFC3339),
	}
}

type createOrderRequest struct {
	AddressID int64 `json:"address_id"`
}

type createOrderResponse struct {
	orderResponse
	DistanceKm float64 `json:"distance_km"`
}

// CreateOrder создаёт заказ на забор белья с ближайшей точкой обслуживания.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, distanceKm, err := h.service.CreatePickupOrder(r.Context(), userID, req.AddressID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAddressNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, dispatch.ErrInvalidLocation):
			http.Error(w, "address coordinates are missing or out of range", http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrNoServiceableOutlet):
			http.Error(w, "no outlets near your address, try another address or pick an outlet manually", http.StatusUnprocessableEntity)
		default:
			h.logger.Error("create order error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createOrderResponse{
		orderResponse: newOrderResponse(order),
		DistanceKm:    distanceKm,
	})
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetOrder возвращает один заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrderByID(r.Context(), orderID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newOrderResponse(order)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder отменяет заказ по запросу клиента.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CancelOrder(r.Context(), userID, orderID, req.Reason)
	if err != nil {
		h.writeTransitionError(w, err, orderID, "cancel order error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newOrderResponse(order)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// ReceiveOrder подтверждает получение заказа клиентом.
func (h *Handler) ReceiveOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.AcknowledgeReceipt(r.Context(), userID, orderID)
	if err != nil {
		h.writeTransitionError(w, err, orderID, "receive order error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newOrderResponse(order)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type orderItemsRequest struct {
	Items []orderItemResponse `json:"items"`
}

// SetOrderItems принимает позиции заказа от точки обслуживания после приёмки белья.
func (h *Handler) SetOrderItems(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.OrderItem{Name: it.Name, Quantity: it.Quantity})
	}

	if err := h.service.SetOrderItems(r.Context(), orderID, items); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		if errors.Is(err, service.ErrInvalidOrderItem) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("set order items error", zap.Error(err), zap.Int64("orderID", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// writeTransitionError переводит ошибки клиентских переходов в HTTP-статусы.
// Отклонённый переход — сигнал клиенту обновить снимок заказа, а не повторять запрос.
func (h *Handler) writeTransitionError(w http.ResponseWriter, err error, orderID int64, logMsg string) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrEmptyCancelReason):
		http.Error(w, "cancellation reason is required", http.StatusBadRequest)
	case errors.Is(err, repository.ErrIllegalTransition):
		http.Error(w, "order status does not permit this action, refresh and try again", http.StatusConflict)
	default:
		h.logger.Error(logMsg, zap.Error(err), zap.Int64("orderID", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func orderIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
}
