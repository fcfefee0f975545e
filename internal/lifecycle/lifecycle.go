// Package lifecycle определяет правила жизненного цикла заказа:
// какие переходы доступны клиенту и как описывается текущий статус.
// Все предикаты вычисляются из актуального снимка заказа; пакет не
// хранит состояния.
package lifecycle

import "github.com/mmeshcher/laundry-system/internal/model"

// cancellable перечисляет статусы, из которых клиент может отменить заказ.
var cancellable = map[model.OrderStatus]bool{
	model.OrderStatusWaitingPickupDriver:   true,
	model.OrderStatusWaitingDeliveryDriver: true,
	model.OrderStatusReadyForWashing:       true,
	model.OrderStatusAwaitingPayment:       true,
}

// terminal перечисляет статусы, из которых переходов не существует.
var terminal = map[model.OrderStatus]bool{
	model.OrderStatusCompleted:           true,
	model.OrderStatusCancelledByCustomer: true,
	model.OrderStatusCancelledByOutlet:   true,
}

// descriptions задаёт тотальное отображение статуса в пояснение для клиента.
var descriptions = map[model.OrderStatus]string{
	model.OrderStatusWaitingPickupDriver:   "We're assigning a driver to pick up your laundry",
	model.OrderStatusOnTheWayToOutlet:      "Your laundry is on its way to the outlet",
	model.OrderStatusArrivedAtOutlet:       "Your laundry has arrived at the outlet and is being checked in",
	model.OrderStatusReadyForWashing:       "Your laundry is queued for washing",
	model.OrderStatusBeingWashed:           "Your laundry is being washed",
	model.OrderStatusWashingCompleted:      "Washing is done, ironing is up next",
	model.OrderStatusBeingIroned:           "Your laundry is being ironed",
	model.OrderStatusIroningCompleted:      "Ironing is done, packing is up next",
	model.OrderStatusBeingPacked:           "Your laundry is being packed",
	model.OrderStatusAwaitingPayment:       "Your laundry is ready, please complete the payment",
	model.OrderStatusReadyForDelivery:      "Your laundry is packed and ready for delivery",
	model.OrderStatusWaitingDeliveryDriver: "We're assigning a driver to deliver your laundry",
	model.OrderStatusOnTheWayToCustomer:    "Your laundry is on its way to you",
	model.OrderStatusReceivedByCustomer:    "You've received your laundry, please confirm to complete the order",
	model.OrderStatusCompleted:             "The order is completed, thank you",
	model.OrderStatusCancelledByCustomer:   "The order was cancelled at your request",
	model.OrderStatusCancelledByOutlet:     "The order was cancelled by the outlet",
}

// Actions описывает действия, доступные клиенту для текущего снимка заказа.
type Actions struct {
	Cancellable bool `json:"cancellable"`
	Payable     bool `json:"payable"`
	Completable bool `json:"completable"`
}

// IsKnown проверяет принадлежность значения к перечислению статусов.
// Любое другое значение в снимке заказа означает нарушение протокола.
func IsKnown(s model.OrderStatus) bool {
	_, ok := descriptions[s]
	return ok
}

// IsTerminal сообщает, является ли статус терминальным.
func IsTerminal(s model.OrderStatus) bool {
	return terminal[s]
}

// IsCancellable сообщает, может ли клиент отменить заказ в текущем статусе.
func IsCancellable(o model.Order) bool {
	return cancellable[o.Status]
}

// IsPayable сообщает, уместно ли предлагать оплату заказа.
func IsPayable(o model.Order) bool {
	if o.IsPaid {
		return false
	}
	return o.Status != model.OrderStatusCancelledByCustomer &&
		o.Status != model.OrderStatusCancelledByOutlet
}

// IsCompletable сообщает, может ли клиент подтвердить получение заказа.
func IsCompletable(o model.Order) bool {
	return o.Status == model.OrderStatusReceivedByCustomer
}

// ActionsFor возвращает набор доступных действий для снимка заказа.
func ActionsFor(o model.Order) Actions {
	return Actions{
		Cancellable: IsCancellable(o),
		Payable:     IsPayable(o),
		Completable: IsCompletable(o),
	}
}

// Describe возвращает пояснение текущего статуса для клиента.
// Отображение тотально: для любого известного статуса строка непустая.
func Describe(s model.OrderStatus) string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return "The order status is being updated, please refresh"
}

// CancellableStatuses возвращает статусы, из которых разрешена отмена.
// Используется репозиторием для условного обновления.
func CancellableStatuses() []model.OrderStatus {
	res := make([]model.OrderStatus, 0, len(cancellable))
	for s := range cancellable {
		res = append(res, s)
	}
	return res
}
