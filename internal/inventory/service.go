// Package inventory реализует складскую аналитику: прогноз исчерпания
// остатков и поиск неликвидов.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/msafonov/merchant-insights/internal/model"
	"github.com/msafonov/merchant-insights/internal/repository"
)

// Repository описывает контракт доступа к агрегатам склада.
type Repository interface {
	ProductSales(ctx context.Context, since time.Time) ([]repository.ProductStockRow, error)
	DeadStock(ctx context.Context, since time.Time, limit int) ([]repository.DeadStockRow, error)
}

// Thresholds — настраиваемые пороги складских детекторов.
type Thresholds struct {
	// VelocityWindowDays — окно расчёта скорости продаж.
	VelocityWindowDays int
	// AlertDays — прогноз в днях, при котором создаётся предупреждение.
	AlertDays int
	// UrgentDays — прогноз в днях, при котором требуется немедленный дозаказ.
	UrgentDays int
	// LowStockFloor — остаток, ниже которого товар без продаж считается
	// требующим дозаказа.
	LowStockFloor int
	// DeadStockWindowDays — окно без продаж для признания товара неликвидом.
	DeadStockWindowDays int
	// DeadStockLimit — максимум записей в отчёте о неликвидах.
	DeadStockLimit int
}

// DefaultThresholds возвращает пороги, используемые в продакшене.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VelocityWindowDays:  14,
		AlertDays:           7,
		UrgentDays:          3,
		LowStockFloor:       5,
		DeadStockWindowDays: 30,
		DeadStockLimit:      10,
	}
}

// Service вычисляет складские предупреждения. Не имеет состояния.
type Service struct {
	repo Repository
	th   Thresholds
	now  func() time.Time
}

// NewService создаёт сервис складской аналитики.
func NewService(repo Repository, th Thresholds) *Service {
	return &Service{
		repo: repo,
		th:   th,
		now:  time.Now,
	}
}

// StockOutForecast прогнозирует исчерпание остатков по скорости продаж
// за контрольное окно. Товары без продаж получают предупреждение только
// при остатке не выше LowStockFloor, прогноз по ним неопределён.
func (s *Service) StockOutForecast(ctx context.Context) ([]model.StockAlert, error) {
	window := s.th.VelocityWindowDays
	since := s.now().Add(-time.Duration(window) * 24 * time.Hour)

	rows, err := s.repo.ProductSales(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("product sales: %w", err)
	}

	var alerts []model.StockAlert
	for _, p := range rows {
		velocity := 0.0
		if p.TotalSold > 0 {
			velocity = float64(p.TotalSold) / float64(window)
		}

		if velocity > 0 {
			daysLeft := int(float64(p.Stock) / velocity)
			if daysLeft <= s.th.AlertDays {
				action := model.ActionMonitor
				if daysLeft <= s.th.UrgentDays {
					action = model.ActionOrderNow
				}
				alerts = append(alerts, model.StockAlert{
					ProductID:    p.ProductID,
					ProductName:  p.ProductName,
					CurrentStock: p.Stock,
					DaysLeft:     daysLeft,
					Action:       action,
				})
			}
		} else if p.Stock <= s.th.LowStockFloor {
			alerts = append(alerts, model.StockAlert{
				ProductID:    p.ProductID,
				ProductName:  p.ProductName,
				CurrentStock: p.Stock,
				DaysLeft:     model.DaysLeftUnknown,
				Action:       model.ActionOrderNow,
			})
		}
	}

	return alerts, nil
}

// DeadStockReports возвращает товары с положительным остатком без единой
// продажи за контрольное окно. Давность последней продажи указывается равной
// окну: это нижняя оценка, реальная дата продажи внутри окна отсутствует.
func (s *Service) DeadStockReports(ctx context.Context) ([]model.DeadStockReport, error) {
	since := s.now().Add(-time.Duration(s.th.DeadStockWindowDays) * 24 * time.Hour)

	rows, err := s.repo.DeadStock(ctx, since, s.th.DeadStockLimit)
	if err != nil {
		return nil, fmt.Errorf("dead stock: %w", err)
	}

	var reports []model.DeadStockReport
	for _, d := range rows {
		reports = append(reports, model.DeadStockReport{
			ProductID:         d.ProductID,
			ProductName:       d.ProductName,
			DaysSinceLastSale: s.th.DeadStockWindowDays,
			Suggestion:        "Run a clearance sale or highlight the product on social media.",
		})
	}

	return reports, nil
}

// Summary — сводка складской аналитики.
type Summary struct {
	LowStockItems  []model.StockAlert      `json:"low_stock_items"`
	DeadStockItems []model.DeadStockReport `json:"dead_stock_items"`
	GeneratedAt    time.Time               `json:"generated_at"`
}

// Summary собирает прогноз исчерпания и отчёт о неликвидах в одну сводку.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	lowStock, err := s.StockOutForecast(ctx)
	if err != nil {
		return nil, err
	}

	deadStock, err := s.DeadStockReports(ctx)
	if err != nil {
		return nil, err
	}

	return &Summary{
		LowStockItems:  lowStock,
		DeadStockItems: deadStock,
		GeneratedAt:    s.now(),
	}, nil
}
