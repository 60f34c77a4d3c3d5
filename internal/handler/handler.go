// Package handler содержит HTTP-обработчики API аналитического сервиса.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/msafonov/merchant-insights/internal/inventory"
	"github.com/msafonov/merchant-insights/internal/middleware"
	"github.com/msafonov/merchant-insights/internal/model"
)

// InsightService определяет контракт движка рекомендаций.
type InsightService interface {
	AllInsights(ctx context.Context) ([]model.Insight, error)
	AdTargetInsights(ctx context.Context) ([]model.Insight, error)
	PricingSignals(ctx context.Context) ([]model.Insight, error)
}

// InventoryService определяет контракт складской аналитики.
type InventoryService interface {
	StockOutForecast(ctx context.Context) ([]model.StockAlert, error)
	DeadStockReports(ctx context.Context) ([]model.DeadStockReport, error)
	Summary(ctx context.Context) (*inventory.Summary, error)
}

// AdvisorService определяет контракт советника.
type AdvisorService interface {
	Ask(ctx context.Context, query string) string
}

// Handler реализует HTTP-обработчики API аналитического сервиса.
type Handler struct {
	insights  InsightService
	inventory InventoryService
	advisor   AdvisorService
	logger    *zap.Logger
	metrics   *middleware.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(insights InsightService, inv InventoryService, adv AdvisorService, logger *zap.Logger, m *middleware.Metrics) *Handler {
	return &Handler{
		insights:  insights,
		inventory: inv,
		advisor:   adv,
		logger:    logger,
		metrics:   m,
	}
}

type insightsResponse struct {
	Insights    []model.Insight `json:"insights"`
	GeneratedAt string          `json:"generated_at"`
}

// GetInsights возвращает единую ленту рекомендаций.
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.insights.AllInsights(r.Context())
	if err != nil {
		h.logger.Error("get insights error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, insightsResponse{
		Insights:    insights,
		GeneratedAt: time.Now().Format(time.RFC3339),
	})
}

// GetMarketingInsights возвращает маркетинговые сигналы роста спроса.
func (h *Handler) GetMarketingInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.insights.AdTargetInsights(r.Context())
	if err != nil {
		h.logger.Error("get marketing insights error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if insights == nil {
		insights = []model.Insight{}
	}
	h.writeJSON(w, insights)
}

// GetPricingSignals возвращает ценовые сигналы.
func (h *Handler) GetPricingSignals(w http.ResponseWriter, r *http.Request) {
	insights, err := h.insights.PricingSignals(r.Context())
	if err != nil {
		h.logger.Error("get pricing signals error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if insights == nil {
		insights = []model.Insight{}
	}
	h.writeJSON(w, insights)
}

// GetInventorySummary возвращает сводку складской аналитики.
func (h *Handler) GetInventorySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.inventory.Summary(r.Context())
	if err != nil {
		h.logger.Error("get inventory summary error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, summary)
}

// GetLowStock возвращает прогноз исчерпания остатков.
func (h *Handler) GetLowStock(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.inventory.StockOutForecast(r.Context())
	if err != nil {
		h.logger.Error("get low stock error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if alerts == nil {
		alerts = []model.StockAlert{}
	}
	h.writeJSON(w, alerts)
}

// GetDeadStock возвращает отчёт о неликвидах.
func (h *Handler) GetDeadStock(w http.ResponseWriter, r *http.Request) {
	reports, err := h.inventory.DeadStockReports(r.Context())
	if err != nil {
		h.logger.Error("get dead stock error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if reports == nil {
		reports = []model.DeadStockReport{}
	}
	h.writeJSON(w, reports)
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	Answer      string `json:"answer"`
	GeneratedAt string `json:"generated_at"`
}

// AskAdvisor отвечает на свободный вопрос продавца.
func (h *Handler) AskAdvisor(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	answer := h.advisor.Ask(r.Context(), req.Query)

	h.writeJSON(w, askResponse{
		Answer:      answer,
		GeneratedAt: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
