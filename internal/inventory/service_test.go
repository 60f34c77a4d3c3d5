package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/msafonov/merchant-insights/internal/model"
	"github.com/msafonov/merchant-insights/internal/repository"
)

type stubRepo struct {
	sales    []repository.ProductStockRow
	salesErr error

	dead    []repository.DeadStockRow
	deadErr error

	gotDeadLimit int
}

func (s *stubRepo) ProductSales(ctx context.Context, since time.Time) ([]repository.ProductStockRow, error) {
	return s.sales, s.salesErr
}

func (s *stubRepo) DeadStock(ctx context.Context, since time.Time, limit int) ([]repository.DeadStockRow, error) {
	s.gotDeadLimit = limit
	return s.dead, s.deadErr
}

func newTestService(repo Repository) *Service {
	s := NewService(repo, DefaultThresholds())
	s.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestStockOutForecast(t *testing.T) {
	tests := []struct {
		name       string
		sold14d    int
		stock      int
		wantAlert  bool
		wantDays   int
		wantAction model.StockAction
	}{
		{name: "velocity 1, week of stock", sold14d: 14, stock: 7, wantAlert: true, wantDays: 7, wantAction: model.ActionMonitor},
		{name: "velocity 1, urgent", sold14d: 14, stock: 3, wantAlert: true, wantDays: 3, wantAction: model.ActionOrderNow},
		{name: "velocity 1, plenty of stock", sold14d: 14, stock: 21, wantAlert: false},
		{name: "no sales, low stock", sold14d: 0, stock: 5, wantAlert: true, wantDays: model.DaysLeftUnknown, wantAction: model.ActionOrderNow},
		{name: "no sales, stock above floor", sold14d: 0, stock: 6, wantAlert: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{sales: []repository.ProductStockRow{
				{ProductID: 1, ProductName: "Panjabi", Stock: tt.stock, TotalSold: tt.sold14d},
			}}
			svc := newTestService(repo)

			alerts, err := svc.StockOutForecast(context.Background())
			if err != nil {
				t.Fatalf("StockOutForecast error: %v", err)
			}

			if !tt.wantAlert {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}

			if len(alerts) != 1 {
				t.Fatalf("expected 1 alert, got %d", len(alerts))
			}
			if alerts[0].DaysLeft != tt.wantDays {
				t.Fatalf("DaysLeft = %d, want %d", alerts[0].DaysLeft, tt.wantDays)
			}
			if alerts[0].Action != tt.wantAction {
				t.Fatalf("Action = %s, want %s", alerts[0].Action, tt.wantAction)
			}
		})
	}
}

func TestDeadStockReports(t *testing.T) {
	repo := &stubRepo{dead: []repository.DeadStockRow{
		{ProductID: 3, ProductName: "Lungi", Stock: 12},
	}}
	svc := newTestService(repo)

	reports, err := svc.DeadStockReports(context.Background())
	if err != nil {
		t.Fatalf("DeadStockReports error: %v", err)
	}

	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	// Давность фиксирована размером окна: внутри окна продаж не было,
	// измерять не от чего.
	if reports[0].DaysSinceLastSale != 30 {
		t.Fatalf("DaysSinceLastSale = %d, want 30", reports[0].DaysSinceLastSale)
	}
	if reports[0].Suggestion == "" {
		t.Fatalf("expected non-empty suggestion")
	}

	if repo.gotDeadLimit != 10 {
		t.Fatalf("dead stock limit = %d, want 10", repo.gotDeadLimit)
	}
}

func TestSummary(t *testing.T) {
	repo := &stubRepo{
		sales: []repository.ProductStockRow{
			{ProductID: 1, ProductName: "Panjabi", Stock: 2, TotalSold: 14},
		},
		dead: []repository.DeadStockRow{
			{ProductID: 3, ProductName: "Lungi", Stock: 12},
		},
	}
	svc := newTestService(repo)

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}

	if len(summary.LowStockItems) != 1 || len(summary.DeadStockItems) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.GeneratedAt.IsZero() {
		t.Fatalf("expected generated_at to be set")
	}
}

func TestSummary_PropagatesError(t *testing.T) {
	repo := &stubRepo{salesErr: errors.New("query failed")}
	svc := newTestService(repo)

	if _, err := svc.Summary(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
