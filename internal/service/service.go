// Package service реализует бизнес-логику сервиса прачечной.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/laundry-system/internal/dispatch"
	"github.com/mmeshcher/laundry-system/internal/lifecycle"
	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/mmeshcher/laundry-system/internal/payment"
	"github.com/mmeshcher/laundry-system/internal/repository"
)

// ErrNoServiceableOutlet возвращается, если в радиусе обслуживания нет ни одной точки.
var (
	ErrNoServiceableOutlet = errors.New("no serviceable outlet in range")
	// ErrEmptyCancelReason возвращается при отмене заказа без указания причины.
	ErrEmptyCancelReason = errors.New("cancellation reason is required")
	// ErrInvalidOrderItem возвращается для позиции заказа без названия или с неположительным количеством.
	ErrInvalidOrderItem = errors.New("invalid order item")
	// ErrUnknownStatus возвращается, если снимок заказа содержит статус вне
	// перечисления. Такой снимок — нарушение протокола, а не состояние заказа.
	ErrUnknownStatus = errors.New("unknown order status")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	ListOutlets(ctx context.Context) ([]model.Outlet, error)
	CreateAddress(ctx context.Context, a model.CustomerAddress) (int64, error)
	GetAddressByID(ctx context.Context, id, userID int64) (*model.CustomerAddress, error)
	GetAddressesByUser(ctx context.Context, userID int64) ([]model.CustomerAddress, error)
	CreateOrder(ctx context.Context, userID, addressID, outletID int64) (*model.Order, error)
	GetOrderByID(ctx context.Context, orderID, userID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	UpdateOrderStatusGuarded(ctx context.Context, orderID, userID int64, from []model.OrderStatus, to model.OrderStatus, reason string) error
	ReplaceOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error
	GetUnpaidOrders(ctx context.Context, limit int) ([]repository.UnpaidOrder, error)
	MarkOrderPaid(ctx context.Context, orderID int64) error
}

// Service содержит бизнес-логику сервиса прачечной.
type Service struct {
	repo             Repository
	paymentClient    *payment.Client
	dispatchRadiusKm float64
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом платёжной системы.
func NewService(repo Repository, paymentClient *payment.Client, dispatchRadiusKm float64) *Service {
	if dispatchRadiusKm <= 0 {
		dispatchRadiusKm = dispatch.DefaultMaxDistanceKm
	}
	return &Service{
		repo:             repo,
		paymentClient:    paymentClient,
		dispatchRadiusKm: dispatchRadiusKm,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// ListOutlets возвращает каталог точек обслуживания.
func (s *Service) ListOutlets(ctx context.Context) ([]model.Outlet, error) {
	return s.repo.ListOutlets(ctx)
}

// CreateAddress сохраняет адрес клиента. Координаты обязательны:
// нулевая точка считается незаданной и отклоняется.
func (s *Service) CreateAddress(ctx context.Context, a model.CustomerAddress) (int64, error) {
	if !a.Location.Valid() || (a.Location.Lat == 0 && a.Location.Lon == 0) {
		return 0, dispatch.ErrInvalidLocation
	}
	return s.repo.CreateAddress(ctx, a)
}

// GetAddressesByUser возвращает список адресов клиента.
func (s *Service) GetAddressesByUser(ctx context.Context, userID int64) ([]model.CustomerAddress, error) {
	return s.repo.GetAddressesByUser(ctx, userID)
}

// CreatePickupOrder подбирает ближайшую точку обслуживания для адреса клиента
// и создаёт заказ на забор белья. Если в радиусе обслуживания нет ни одной
// точки, заказ не создаётся.
func (s *Service) CreatePickupOrder(ctx context.Context, userID, addressID int64) (*model.Order, float64, error) {
	addr, err := s.repo.GetAddressByID(ctx, addressID, userID)
	if err != nil {
		return nil, 0, err
	}

	outlets, err := s.repo.ListOutlets(ctx)
	if err != nil {
		return nil, 0, err
	}

	match, found, err := dispatch.FindNearest(addr.Location, outlets, s.dispatchRadiusKm)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, ErrNoServiceableOutlet
	}

	order, err := s.repo.CreateOrder(ctx, userID, addr.ID, match.Outlet.ID)
	if err != nil {
		return nil, 0, err
	}

	return order, match.DistanceKm, nil
}

// GetOrderByID возвращает заказ клиента.
func (s *Service) GetOrderByID(ctx context.Context, orderID, userID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !lifecycle.IsKnown(order.Status) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, order.Status)
	}

	return order, nil
}

// GetOrdersByUser возвращает список заказов клиента.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	orders, err := s.repo.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		if !lifecycle.IsKnown(o.Status) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, o.Status)
		}
	}

	return orders, nil
}

// CancelOrder отменяет заказ по запросу клиента. Требуется непустая причина.
// Локальная проверка по снимку отсекает заведомо недопустимые переходы;
// условное обновление в репозитории остаётся авторитетной проверкой.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64, reason string) (*model.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyCancelReason
	}

	order, err := s.repo.GetOrderByID(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !lifecycle.IsCancellable(*order) {
		return nil, repository.ErrIllegalTransition
	}

	err = s.repo.UpdateOrderStatusGuarded(ctx, orderID, userID,
		lifecycle.CancellableStatuses(), model.OrderStatusCancelledByCustomer, reason)
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrderByID(ctx, orderID, userID)
}

// AcknowledgeReceipt подтверждает получение заказа клиентом и завершает его.
func (s *Service) AcknowledgeReceipt(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !lifecycle.IsCompletable(*order) {
		return nil, repository.ErrIllegalTransition
	}

	err = s.repo.UpdateOrderStatusGuarded(ctx, orderID, userID,
		[]model.OrderStatus{model.OrderStatusReceivedByCustomer}, model.OrderStatusCompleted, "")
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrderByID(ctx, orderID, userID)
}

// SetOrderItems заменяет позиции заказа после приёмки белья в точке.
func (s *Service) SetOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 {
			return fmt.Errorf("%w: %q x %d", ErrInvalidOrderItem, it.Name, it.Quantity)
		}
	}
	return s.repo.ReplaceOrderItems(ctx, orderID, items)
}

// StartPaymentUpdates запускает фоновый процесс обновления признака оплаты
// из платёжной системы.
func (s *Service) StartPaymentUpdates(ctx context.Context) {
	if s.paymentClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processPaymentBatch(ctx)
			}
		}
	}()
}

func (s *Service) processPaymentBatch(ctx context.Context) {
	orders, err := s.repo.GetUnpaidOrders(ctx, 100)
	if err != nil {
		return
	}

	for _, o := range orders {
		// Партия могла устареть между выборкой и опросом.
		if lifecycle.IsTerminal(o.Status) {
			continue
		}

		resp, statusCode, retryAfter, err := s.paymentClient.GetOrderPayment(ctx, o.ID)
		if err != nil {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if resp == nil {
			continue
		}

		if resp.Status == payment.StatusPaid {
			_ = s.repo.MarkOrderPaid(ctx, o.ID)
		}
	}
}
