package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/msafonov/merchant-insights/internal/cache"
	"github.com/msafonov/merchant-insights/internal/repository"
)

type stubRepo struct {
	countCalls int

	orders       int64
	revenueCents int64
	districts    []repository.DistrictStatRow
	products     []repository.ProductStatRow
	err          error
}

func (s *stubRepo) CountOrders(ctx context.Context) (int64, error) {
	s.countCalls++
	return s.orders, s.err
}

func (s *stubRepo) SumRevenueCents(ctx context.Context) (int64, error) {
	return s.revenueCents, s.err
}

func (s *stubRepo) TopDistricts(ctx context.Context, limit int) ([]repository.DistrictStatRow, error) {
	return s.districts, s.err
}

func (s *stubRepo) TopProducts(ctx context.Context, limit int) ([]repository.ProductStatRow, error) {
	return s.products, s.err
}

type stubGenerator struct {
	calls   int
	prompts []string

	answer string
	err    error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		orders:       120,
		revenueCents: 4550050,
		districts: []repository.DistrictStatRow{
			{District: "Dhaka", OrderCount: 80, RevenueCents: 3000000},
			{District: "Rangpur", OrderCount: 40, RevenueCents: 1550050},
		},
		products: []repository.ProductStatRow{
			{Name: "Panjabi", QuantitySold: 200},
		},
	}
}

func TestBusinessContext_Digest(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, cache.New(), zap.NewNop())

	digest, err := svc.BusinessContext(context.Background(), false)
	if err != nil {
		t.Fatalf("BusinessContext error: %v", err)
	}

	for _, want := range []string{
		"orders=120",
		"revenue=45500.50",
		"Dhaka (80 orders, 30000.00)",
		"Panjabi (200 pcs)",
	} {
		if !strings.Contains(digest, want) {
			t.Fatalf("digest %q does not contain %q", digest, want)
		}
	}
}

func TestBusinessContext_Cached(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, cache.New(), zap.NewNop())

	if _, err := svc.BusinessContext(context.Background(), false); err != nil {
		t.Fatalf("BusinessContext error: %v", err)
	}
	if _, err := svc.BusinessContext(context.Background(), false); err != nil {
		t.Fatalf("BusinessContext error: %v", err)
	}

	if repo.countCalls != 1 {
		t.Fatalf("expected digest to be served from cache, repo calls = %d", repo.countCalls)
	}

	// force пересчитывает сводку даже при живом кэше.
	if _, err := svc.BusinessContext(context.Background(), true); err != nil {
		t.Fatalf("BusinessContext error: %v", err)
	}
	if repo.countCalls != 2 {
		t.Fatalf("expected force to recompute, repo calls = %d", repo.countCalls)
	}
}

func TestAsk_NormalizedQuestionHitsCache(t *testing.T) {
	repo := newStubRepo()
	gen := &stubGenerator{answer: "Focus on Dhaka."}
	svc := NewService(repo, gen, cache.New(), zap.NewNop())

	first := svc.Ask(context.Background(), "Which district sells best?")
	second := svc.Ask(context.Background(), "  which DISTRICT sells best? ")

	if first != "Focus on Dhaka." || second != first {
		t.Fatalf("answers differ: %q vs %q", first, second)
	}
	if gen.calls != 1 {
		t.Fatalf("expected second call to hit the cache, generator calls = %d", gen.calls)
	}
}

func TestAsk_PromptEmbedsDigestAndQuery(t *testing.T) {
	repo := newStubRepo()
	gen := &stubGenerator{answer: "ok"}
	svc := NewService(repo, gen, cache.New(), zap.NewNop())

	svc.Ask(context.Background(), "Should I stock more Panjabi?")

	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "orders=120") {
		t.Fatalf("prompt does not embed the digest: %q", prompt)
	}
	if !strings.Contains(prompt, "Should I stock more Panjabi?") {
		t.Fatalf("prompt does not embed the question: %q", prompt)
	}
}

func TestAsk_NotConfigured(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, cache.New(), zap.NewNop())

	answer := svc.Ask(context.Background(), "anything")
	if answer != msgNotConfigured {
		t.Fatalf("answer = %q, want not-configured message", answer)
	}
}

func TestAsk_GeneratorFailureNotCached(t *testing.T) {
	repo := newStubRepo()
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	svc := NewService(repo, gen, cache.New(), zap.NewNop())

	answer := svc.Ask(context.Background(), "anything")
	if answer != msgGenerateError {
		t.Fatalf("answer = %q, want generate-error message", answer)
	}

	// Сбой не кэшируется: повторный вопрос снова идёт к модели.
	svc.Ask(context.Background(), "anything")
	if gen.calls != 2 {
		t.Fatalf("expected failed answer not to be cached, generator calls = %d", gen.calls)
	}
}

func TestAsk_RepositoryFailure(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	gen := &stubGenerator{answer: "unused"}
	svc := NewService(repo, gen, cache.New(), zap.NewNop())

	answer := svc.Ask(context.Background(), "anything")
	if answer != msgGenerateError {
		t.Fatalf("answer = %q, want generate-error message", answer)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called without a digest")
	}
}
