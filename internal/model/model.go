// Package model содержит доменные сущности аналитического сервиса.
package model

import "time"

// User представляет покупателя магазина.
type User struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}

// UserAddress описывает адрес доставки покупателя. District может отсутствовать.
type UserAddress struct {
	ID       int64
	UserID   int64
	City     string
	District string
}

// Product описывает товар каталога. Цена хранится в целых копейках.
type Product struct {
	ID         int64
	Name       string
	PriceCents int64
	Stock      int
	Category   string
	Active     bool
	CreatedAt  time.Time
}

// Order описывает заказ покупателя. Сумма хранится в целых копейках.
type Order struct {
	ID         int64
	Number     string
	UserID     int64
	TotalCents int64
	Status     string
	CreatedAt  time.Time
}

// OrderItem описывает позицию заказа.
type OrderItem struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	Quantity        int
	UnitPriceCents  int64
	TotalPriceCents int64
}

// InsightCategory определяет тип рекомендации.
type InsightCategory string

const (
	CategoryMarketing InsightCategory = "marketing"
	CategoryPricing   InsightCategory = "pricing"
	CategorySourcing  InsightCategory = "sourcing"
	CategoryOffer     InsightCategory = "offer"
)

// InsightPriority определяет приоритет рекомендации.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

// Insight — рекомендация для продавца, построенная по агрегированным данным.
// Значение вычисляется на каждый запрос и нигде не сохраняется.
type Insight struct {
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Category InsightCategory `json:"category"`
	Priority InsightPriority `json:"priority"`
}

// StockAction определяет рекомендуемое действие по складскому остатку.
type StockAction string

const (
	ActionOrderNow StockAction = "Order Now"
	ActionMonitor  StockAction = "Monitor"
	ActionExcess   StockAction = "Excess"
)

// DaysLeftUnknown — значение прогноза, когда скорость продаж нулевая
// и срок исчерпания остатка определить нельзя.
const DaysLeftUnknown = -1

// StockAlert — предупреждение о скором исчерпании остатка товара.
type StockAlert struct {
	ProductID    int64       `json:"product_id"`
	ProductName  string      `json:"product_name"`
	CurrentStock int         `json:"current_stock"`
	DaysLeft     int         `json:"predicted_stock_out_days"`
	Action       StockAction `json:"action_required"`
}

// DeadStockReport — отчёт о товаре без продаж за контрольное окно.
type DeadStockReport struct {
	ProductID         int64  `json:"product_id"`
	ProductName       string `json:"product_name"`
	DaysSinceLastSale int    `json:"days_since_last_sale"`
	Suggestion        string `json:"suggestion"`
}
