package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/biodoia/vettriage/pkg/models"
	"github.com/biodoia/vettriage/pkg/resilience"
)

// mockVision implementa VisionProvider per i test
type mockVision struct {
	name string
	err  error
}

func (m *mockVision) Name() string { return m.name }

func (m *mockVision) Analyze(ctx context.Context, image ImageInput, promptHint string) ([]models.Finding, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.Finding{{Label: "erythema", Confidence: 0.8}}, nil
}

// mockText implementa TextProvider per i test
type mockText struct {
	name string
	err  error
}

func (m *mockText) Name() string { return m.name }

func (m *mockText) Generate(ctx context.Context, prompt string) ([]models.DiagnosisCandidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.DiagnosisCandidate{{Condition: "dermatitis", Confidence: 0.7}}, nil
}

func testConfig(id string, priority int) ProviderConfig {
	return ProviderConfig{
		ID:       id,
		Kind:     "openrouter",
		Model:    "test-model",
		Priority: priority,
		Timeout:  5 * time.Second,
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(testConfig("p1", 1), CapabilityVision, &mockVision{name: "p1"}, nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if registry.Count(CapabilityVision) != 1 {
		t.Errorf("Expected 1 provider, got %d", registry.Count(CapabilityVision))
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()

	registry.Register(testConfig("p1", 1), CapabilityVision, &mockVision{name: "p1"}, nil)
	err := registry.Register(testConfig("p1", 2), CapabilityVision, &mockVision{name: "p1"}, nil)

	if !errors.Is(err, ErrProviderAlreadyExists) {
		t.Errorf("Expected ErrProviderAlreadyExists, got %v", err)
	}
}

func TestRegistry_RegisterMissingImplementation(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(testConfig("p1", 1), CapabilityVision, nil, &mockText{name: "p1"})
	if !errors.Is(err, ErrMissingImplementation) {
		t.Errorf("Expected ErrMissingImplementation, got %v", err)
	}
}

func TestRegistry_CandidatesPriorityOrder(t *testing.T) {
	registry := NewRegistry()

	// Registrati fuori ordine: l'iterazione deve seguire il priority rank
	registry.Register(testConfig("third", 3), CapabilityTextGeneration, nil, &mockText{name: "third"})
	registry.Register(testConfig("first", 1), CapabilityTextGeneration, nil, &mockText{name: "first"})
	registry.Register(testConfig("second", 2), CapabilityTextGeneration, nil, &mockText{name: "second"})

	candidates := registry.Candidates(CapabilityTextGeneration)
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(candidates))
	}

	want := []string{"first", "second", "third"}
	for i, c := range candidates {
		if c.Config.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], c.Config.ID)
		}
	}
}

func TestRegistry_MarkUnavailable(t *testing.T) {
	registry := NewRegistry()

	registry.Register(testConfig("p1", 1), CapabilityVision, &mockVision{name: "p1"}, nil)
	registry.Register(testConfig("p2", 2), CapabilityVision, &mockVision{name: "p2"}, nil)

	registry.MarkUnavailable("p1", CapabilityVision, time.Now().Add(time.Hour))

	candidates := registry.Candidates(CapabilityVision)
	if len(candidates) != 1 || candidates[0].Config.ID != "p2" {
		t.Errorf("Expected only p2 available, got %d candidates", len(candidates))
	}

	// AllCandidates include anche gli esclusi
	if got := len(registry.AllCandidates(CapabilityVision)); got != 2 {
		t.Errorf("Expected 2 total candidates, got %d", got)
	}
}

func TestRegistry_MarkUnavailableExpires(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testConfig("p1", 1), CapabilityVision, &mockVision{name: "p1"}, nil)

	registry.MarkUnavailable("p1", CapabilityVision, time.Now().Add(10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	if len(registry.Candidates(CapabilityVision)) != 1 {
		t.Error("Expired exclusion should make the provider available again")
	}
}

func TestRegistry_ExclusionScopedToCapability(t *testing.T) {
	registry := NewRegistry()

	cfg := testConfig("dual", 1)
	registry.Register(cfg, CapabilityVision, &mockVision{name: "dual"}, nil)
	registry.Register(cfg, CapabilityTextGeneration, nil, &mockText{name: "dual"})

	registry.MarkUnavailable("dual", CapabilityVision, time.Now().Add(time.Hour))

	if len(registry.Candidates(CapabilityVision)) != 0 {
		t.Error("Vision capability should be excluded")
	}
	if len(registry.Candidates(CapabilityTextGeneration)) != 1 {
		t.Error("Text capability must not be affected by vision exclusion")
	}
}

func TestRegistry_RepeatedFailuresOpenBreaker(t *testing.T) {
	registry := NewRegistryWithBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		OpenFor:          time.Minute,
	})
	registry.Register(testConfig("flaky", 1), CapabilityVision, &mockVision{name: "flaky"}, nil)

	registry.RecordFailure("flaky", CapabilityVision)
	if len(registry.Candidates(CapabilityVision)) != 1 {
		t.Error("One failure should not exclude the provider")
	}

	registry.RecordFailure("flaky", CapabilityVision)
	if len(registry.Candidates(CapabilityVision)) != 0 {
		t.Error("Reaching the failure threshold should exclude the provider")
	}
}

func TestRegistry_ConcurrentMarkUnavailable(t *testing.T) {
	registry := NewRegistry()
	registry.Register(testConfig("p1", 1), CapabilityVision, &mockVision{name: "p1"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.MarkUnavailable("p1", CapabilityVision, time.Now().Add(time.Hour))
			registry.Candidates(CapabilityVision)
			registry.RecordFailure("p1", CapabilityVision)
		}()
	}
	wg.Wait()

	if len(registry.Candidates(CapabilityVision)) != 0 {
		t.Error("Provider should remain excluded after concurrent writers")
	}
}
