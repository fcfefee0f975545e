// Package model содержит доменные сущности сервиса прачечной.
package model

import "time"

// User представляет зарегистрированного клиента прачечной.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// GeoPoint описывает географическую точку в градусах (WGS84).
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Valid проверяет, что координаты лежат в допустимых диапазонах.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	// Этап забора белья у клиента.
	OrderStatusWaitingPickupDriver OrderStatus = "WAITING_FOR_PICKUP_DRIVER"
	OrderStatusOnTheWayToOutlet    OrderStatus = "ON_THE_WAY_TO_OUTLET"
	OrderStatusArrivedAtOutlet     OrderStatus = "ARRIVED_AT_OUTLET"

	// Этап обработки в точке обслуживания.
	OrderStatusReadyForWashing  OrderStatus = "READY_FOR_WASHING"
	OrderStatusBeingWashed      OrderStatus = "BEING_WASHED"
	OrderStatusWashingCompleted OrderStatus = "WASHING_COMPLETED"
	OrderStatusBeingIroned      OrderStatus = "BEING_IRONED"
	OrderStatusIroningCompleted OrderStatus = "IRONING_COMPLETED"
	OrderStatusBeingPacked      OrderStatus = "BEING_PACKED"

	// Ожидание оплаты.
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"

	// Этап доставки клиенту.
	OrderStatusReadyForDelivery      OrderStatus = "READY_FOR_DELIVERY"
	OrderStatusWaitingDeliveryDriver OrderStatus = "WAITING_FOR_DELIVERY_DRIVER"
	OrderStatusOnTheWayToCustomer    OrderStatus = "ON_THE_WAY_TO_CUSTOMER"
	OrderStatusReceivedByCustomer    OrderStatus = "RECEIVED_BY_CUSTOMER"

	// Терминальные статусы: переходов из них не существует.
	OrderStatusCompleted           OrderStatus = "COMPLETED"
	OrderStatusCancelledByCustomer OrderStatus = "CANCELLED_BY_CUSTOMER"
	OrderStatusCancelledByOutlet   OrderStatus = "CANCELLED_BY_OUTLET"
)

// Outlet описывает точку обслуживания прачечной.
// Location равен nil, если координаты точки не заданы; такие точки
// исключаются из подбора ближайшей.
type Outlet struct {
	ID       int64
	Name     string
	Address  string
	Location *GeoPoint
}

// CustomerAddress описывает адрес клиента. Координаты обязательны при
// создании; административные поля используются только для отображения.
type CustomerAddress struct {
	ID       int64
	UserID   int64
	Street   string
	Province string
	Regency  string
	District string
	Village  string
	Location GeoPoint
}

// OrderItem описывает позицию заказа; заполняется точкой после приёмки белья.
type OrderItem struct {
	Name     string
	Quantity int
}

// Order описывает заказ на стирку.
type Order struct {
	ID           int64
	UserID       int64
	Status       OrderStatus
	IsPaid       bool
	OutletID     int64
	OutletName   string
	AddressID    int64
	CancelReason string
	Items        []OrderItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
