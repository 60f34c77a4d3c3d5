// Package advisor отвечает на свободные вопросы продавца через внешнюю
// генеративную модель, подкладывая ей сжатую сводку по бизнесу.
package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/msafonov/merchant-insights/internal/cache"
	"github.com/msafonov/merchant-insights/internal/repository"
)

// Repository описывает контракт доступа к агрегатам для бизнес-сводки.
type Repository interface {
	CountOrders(ctx context.Context) (int64, error)
	SumRevenueCents(ctx context.Context) (int64, error)
	TopDistricts(ctx context.Context, limit int) ([]repository.DistrictStatRow, error)
	TopProducts(ctx context.Context, limit int) ([]repository.ProductStatRow, error)
}

// Generator описывает внешнюю text-in/text-out способность.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	contextCacheKey = "advisor:context"
	answerKeyPrefix = "advisor:ask:"

	contextTTL = 15 * time.Minute
	answerTTL  = time.Hour

	// topLimit ограничивает сводку: текст уходит в промпт внешней модели,
	// его размер должен оставаться небольшим.
	topLimit = 3
)

const (
	msgNotConfigured = "Sorry, the AI advisor is not available right now. Please check your API key."
	msgGenerateError = "Sorry, the AI advisor could not process your question right now. Please try again later."
)

const promptTemplate = `You are an AI Merchant Advisor. Your job is to analyze a shop's data and give the merchant practical advice. Answer politely and professionally.
Below is a snapshot from the shop's current database. Base your answer on it:
%s

Merchant's question: %s

Back your advice with the data (for example: "Your sales are strong in the Rangpur district, focus there").`

// Service строит бизнес-сводку и маршрутизирует вопросы к генеративной модели.
// Сводка и ответы кэшируются; сбои внешней модели никогда не доходят до
// вызывающего — вместо них возвращается фиксированный текст.
type Service struct {
	repo   Repository
	gen    Generator
	cache  *cache.Cache
	logger *zap.Logger
}

// NewService создаёт сервис советника. gen может быть nil, если внешняя
// модель не сконфигурирована.
func NewService(repo Repository, gen Generator, c *cache.Cache, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		gen:    gen,
		cache:  c,
		logger: logger,
	}
}

// BusinessContext возвращает сжатую сводку по бизнесу: общее число заказов,
// выручку, лучшие районы и товары. Сводка кэшируется на 15 минут;
// force принудительно пересчитывает её.
func (s *Service) BusinessContext(ctx context.Context, force bool) (string, error) {
	if !force {
		if v, ok := s.cache.Get(contextCacheKey); ok {
			if digest, ok := v.(string); ok {
				return digest, nil
			}
		}
	}

	totalOrders, err := s.repo.CountOrders(ctx)
	if err != nil {
		return "", fmt.Errorf("count orders: %w", err)
	}

	revenueCents, err := s.repo.SumRevenueCents(ctx)
	if err != nil {
		return "", fmt.Errorf("sum revenue: %w", err)
	}

	districts, err := s.repo.TopDistricts(ctx, topLimit)
	if err != nil {
		return "", fmt.Errorf("top districts: %w", err)
	}

	products, err := s.repo.TopProducts(ctx, topLimit)
	if err != nil {
		return "", fmt.Errorf("top products: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "orders=%d revenue=%.2f\n", totalOrders, float64(revenueCents)/100)

	b.WriteString("top districts: ")
	for i, d := range districts {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d orders, %.2f)", d.District, d.OrderCount, float64(d.RevenueCents)/100)
	}
	b.WriteString("\n")

	b.WriteString("top products: ")
	for i, p := range products {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d pcs)", p.Name, p.QuantitySold)
	}

	digest := b.String()
	s.cache.Set(contextCacheKey, digest, contextTTL)

	return digest, nil
}

// Ask отвечает на вопрос продавца. Вопрос нормализуется и служит ключом кэша:
// повторный вопрос в течение часа возвращает сохранённый ответ без обращения
// к модели. Любой сбой превращается в фиксированный текст, а не в ошибку.
func (s *Service) Ask(ctx context.Context, query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	key := answerKeyPrefix + normalized

	if v, ok := s.cache.Get(key); ok {
		if answer, ok := v.(string); ok {
			return answer
		}
	}

	if s.gen == nil {
		return msgNotConfigured
	}

	digest, err := s.BusinessContext(ctx, false)
	if err != nil {
		s.logger.Error("build business context", zap.Error(err))
		return msgGenerateError
	}

	prompt := fmt.Sprintf(promptTemplate, digest, query)

	answer, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		// Ответ-заглушка не кэшируется, чтобы временный сбой модели
		// не застревал в кэше на час.
		s.logger.Error("advisor generate", zap.Error(err))
		return msgGenerateError
	}

	s.cache.Set(key, answer, answerTTL)

	return answer
}
