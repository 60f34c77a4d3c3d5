// Package insight реализует аналитические детекторы рекомендаций для продавца.
package insight

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/msafonov/merchant-insights/internal/model"
	"github.com/msafonov/merchant-insights/internal/repository"
)

// Repository описывает контракт доступа к агрегатам, используемый детекторами.
type Repository interface {
	DemandRows(ctx context.Context, since time.Time) ([]repository.DemandRow, error)
	TopProductSales(ctx context.Context, since time.Time, limit int) ([]repository.ProductSalesRow, error)
	ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error)
	LapsedLoyalUsers(ctx context.Context, excludeIDs []int64, minOrders, limit int) ([]repository.LapsedUserRow, error)
}

// Thresholds — настраиваемые пороги детекторов.
type Thresholds struct {
	// GrowthRatio — минимальный рост спроса для маркетингового сигнала.
	GrowthRatio float64
	// NewDemandMin — минимальное число продаж, при котором спрос с нуля
	// считается значимым.
	NewDemandMin int
	// DemandWindowDays — глубина сравнения спроса; окно делится пополам
	// на «свежую» и «предыдущую» половины.
	DemandWindowDays int
	// PricingWindowDays — окно подсчёта продаж для ценового сигнала.
	PricingWindowDays int
	// PricingTopLimit — сколько самых продаваемых товаров рассматривается.
	PricingTopLimit int
	// PricingMinSales — число продаж за окно, строго выше которого товар
	// получает ценовой сигнал.
	PricingMinSales int
	// ChurnWindowDays — окно активности покупателя.
	ChurnWindowDays int
	// LoyalMinOrders — минимальное число заказов за всё время, чтобы
	// покупатель считался лояльным.
	LoyalMinOrders int
	// OffersLimit — максимум персональных предложений за один проход.
	OffersLimit int
}

// DefaultThresholds возвращает пороги, используемые в продакшене.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GrowthRatio:       1.5,
		NewDemandMin:      2,
		DemandWindowDays:  6,
		PricingWindowDays: 7,
		PricingTopLimit:   5,
		PricingMinSales:   10,
		ChurnWindowDays:   30,
		LoyalMinOrders:    2,
		OffersLimit:       5,
	}
}

// Engine вычисляет рекомендации по агрегированным данным магазина.
// Детекторы не имеют состояния и безопасны для параллельного вызова.
type Engine struct {
	repo   Repository
	logger *zap.Logger
	th     Thresholds
	now    func() time.Time
}

// NewEngine создаёт движок рекомендаций с указанными порогами.
func NewEngine(repo Repository, logger *zap.Logger, th Thresholds) *Engine {
	return &Engine{
		repo:   repo,
		logger: logger,
		th:     th,
		now:    time.Now,
	}
}

type demandKey struct {
	district string
	product  string
}

// AdTargetInsights сравнивает спрос по парам (район, товар) за свежую
// половину окна с предыдущей половиной и выдаёт маркетинговые сигналы роста.
func (e *Engine) AdTargetInsights(ctx context.Context) ([]model.Insight, error) {
	now := e.now()
	half := time.Duration(e.th.DemandWindowDays/2) * 24 * time.Hour
	recentFrom := now.Add(-half)
	prevFrom := now.Add(-2 * half)

	rows, err := e.repo.DemandRows(ctx, prevFrom)
	if err != nil {
		return nil, fmt.Errorf("demand rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Корзины не пересекаются и вместе покрывают всё окно:
	// свежая — [recentFrom, now), предыдущая — [prevFrom, recentFrom).
	recent := make(map[demandKey]int)
	prev := make(map[demandKey]int)
	for _, r := range rows {
		k := demandKey{district: r.District, product: r.ProductName}
		if !r.CreatedAt.Before(recentFrom) {
			recent[k] += r.Quantity
		} else {
			prev[k] += r.Quantity
		}
	}

	keys := make([]demandKey, 0, len(recent))
	for k := range recent {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].district != keys[j].district {
			return keys[i].district < keys[j].district
		}
		return keys[i].product < keys[j].product
	})

	var insights []model.Insight
	for _, k := range keys {
		recentQ := recent[k]
		prevQ := prev[k]

		growth := 0.0
		switch {
		case prevQ > 0:
			growth = float64(recentQ) / float64(prevQ)
		case recentQ >= e.th.NewDemandMin:
			// Спрос появился с нуля: настоящего отношения нет, поэтому
			// за «кратность роста» принимается само число продаж.
			// Приближение, а не честная метрика.
			growth = float64(recentQ)
		}

		if growth >= e.th.GrowthRatio {
			insights = append(insights, model.Insight{
				Title: "Smart Ad Target",
				Message: fmt.Sprintf(
					"Demand for %s in %s grew %dx over the last %d days. Focus your ads on %s to secure the sales.",
					k.product, k.district, int(growth), e.th.DemandWindowDays/2, k.district,
				),
				Category: model.CategoryMarketing,
				Priority: model.PriorityHigh,
			})
		}
	}

	return insights, nil
}

// PricingSignals находит товары с высоким недельным спросом и предлагает
// поднять цену.
func (e *Engine) PricingSignals(ctx context.Context) ([]model.Insight, error) {
	since := e.now().Add(-time.Duration(e.th.PricingWindowDays) * 24 * time.Hour)

	top, err := e.repo.TopProductSales(ctx, since, e.th.PricingTopLimit)
	if err != nil {
		return nil, fmt.Errorf("top product sales: %w", err)
	}

	var insights []model.Insight
	for _, p := range top {
		if p.TotalSold > e.th.PricingMinSales {
			insights = append(insights, model.Insight{
				Title: "Dynamic Pricing Signal",
				Message: fmt.Sprintf(
					"Demand for %s is high right now (%d sold this week). You can raise the price and still keep selling.",
					p.ProductName, p.TotalSold,
				),
				Category: model.CategoryPricing,
				Priority: model.PriorityMedium,
			})
		}
	}

	return insights, nil
}

// SourcingGuide возвращает статическую подсказку по закупкам.
//
// Заглушка до подключения внешнего источника трендов: данных под ней нет,
// она всегда выдаётся ровно один раз.
// TODO: заменить на расчёт по ленте трендов, когда появится интеграция.
func (e *Engine) SourcingGuide() []model.Insight {
	return []model.Insight{
		{
			Title:    "Winning Product Finder",
			Message:  "Light-colored linen fabric is expected to peak in demand over the next 15 days. Stocking it now keeps your money out of unsold inventory.",
			Category: model.CategorySourcing,
			Priority: model.PriorityHigh,
		},
	}
}

// OfferResult — результат детектора удержания. Degraded выставляется, когда
// вместо расчёта по данным возвращён общий запасной вариант из-за ошибки
// нижележащего запроса.
type OfferResult struct {
	Insights []model.Insight
	Degraded bool
}

// PersonalizedOffers находит лояльных покупателей без заказов за контрольное
// окно и формирует персональные предложения. Детектор никогда не возвращает
// ошибку вызывающему: любая неудача деградирует до общего предложения.
func (e *Engine) PersonalizedOffers(ctx context.Context) OfferResult {
	offers, err := e.lapsedLoyalOffers(ctx)
	if err != nil {
		e.logger.Warn("churn detection degraded to fallback offer", zap.Error(err))
		return OfferResult{Insights: []model.Insight{genericOffer()}, Degraded: true}
	}

	if len(offers) == 0 {
		return OfferResult{Insights: []model.Insight{genericOffer()}}
	}

	return OfferResult{Insights: offers}
}

func (e *Engine) lapsedLoyalOffers(ctx context.Context) ([]model.Insight, error) {
	since := e.now().Add(-time.Duration(e.th.ChurnWindowDays) * 24 * time.Hour)

	activeIDs, err := e.repo.ActiveUserIDs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("active user ids: %w", err)
	}

	lapsed, err := e.repo.LapsedLoyalUsers(ctx, activeIDs, e.th.LoyalMinOrders, e.th.OffersLimit)
	if err != nil {
		return nil, fmt.Errorf("lapsed loyal users: %w", err)
	}

	var insights []model.Insight
	for _, u := range lapsed {
		insights = append(insights, model.Insight{
			Title: "Retention Offer",
			Message: fmt.Sprintf(
				"Your loyal customer %s (%d orders total) has not ordered in the last %d days. Send them the COMEBACK20 coupon to win them back.",
				u.Name, u.OrderCount, e.th.ChurnWindowDays,
			),
			Category: model.CategoryOffer,
			Priority: model.PriorityMedium,
		})
	}

	return insights, nil
}

func genericOffer() model.Insight {
	return model.Insight{
		Title:    "Loyalty Offer",
		Message:  "A 5% discount coupon LOYAL5 has been generated for your loyal customers. Send it out in a re-targeting email.",
		Category: model.CategoryOffer,
		Priority: model.PriorityLow,
	}
}

// AllInsights собирает единую ленту рекомендаций. Порядок фиксирован:
// маркетинг, цены, закупки, удержание — маркетинговые сигналы показываются первыми.
func (e *Engine) AllInsights(ctx context.Context) ([]model.Insight, error) {
	demand, err := e.AdTargetInsights(ctx)
	if err != nil {
		return nil, err
	}

	pricing, err := e.PricingSignals(ctx)
	if err != nil {
		return nil, err
	}

	all := make([]model.Insight, 0, len(demand)+len(pricing)+2)
	all = append(all, demand...)
	all = append(all, pricing...)
	all = append(all, e.SourcingGuide()...)
	all = append(all, e.PersonalizedOffers(ctx).Insights...)

	return all, nil
}
