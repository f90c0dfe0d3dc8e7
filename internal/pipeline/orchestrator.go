package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/cache"
	"github.com/biodoia/vettriage/pkg/metrics"
	"github.com/biodoia/vettriage/pkg/models"
)

var (
	// ErrImageRequired immagine mancante con modalità vision-less disabilitata
	ErrImageRequired = errors.New("clinical image required")

	// ErrInvalidCase dati del caso insufficienti per avviare una run
	ErrInvalidCase = errors.New("invalid case info")
)

// OrchestratorConfig configurazione dell'orchestratore
type OrchestratorConfig struct {
	// AllowVisionless consente run senza immagine, saltando il vision step
	AllowVisionless bool
	RunTimeout      time.Duration
	CacheTTL        time.Duration
}

// DefaultOrchestratorConfig restituisce una configurazione di default
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		AllowVisionless: true,
		RunTimeout:      3 * time.Minute,
		CacheTTL:        30 * time.Minute,
	}
}

// Orchestrator guida una run di triage attraverso la macchina a stati.
// Stateless tra run: tutto lo stato vive nel CaseContext.
type Orchestrator struct {
	vision    *VisionStep
	knowledge *KnowledgeStep
	diagnosis *DiagnosisStep

	reportCache cache.Cache
	metrics     *metrics.Metrics
	cfg         OrchestratorConfig
}

// NewOrchestrator crea un nuovo orchestratore. reportCache e m possono
// essere nil: cache e metriche sono facoltative.
func NewOrchestrator(vision *VisionStep, knowledge *KnowledgeStep, diagnosis *DiagnosisStep, reportCache cache.Cache, m *metrics.Metrics, cfg OrchestratorConfig) *Orchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultOrchestratorConfig().RunTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultOrchestratorConfig().CacheTTL
	}
	return &Orchestrator{
		vision:      vision,
		knowledge:   knowledge,
		diagnosis:   diagnosis,
		reportCache: reportCache,
		metrics:     m,
		cfg:         cfg,
	}
}

// Run esegue una run completa di triage e restituisce il referto.
// L'errore è non-nil solo per input invalidi: i fallimenti dei provider
// producono un referto con status "failed" e dettaglio dei fallimenti.
func (o *Orchestrator) Run(ctx context.Context, caseInfo models.CaseInfo, image *providers.ImageInput) (*Report, error) {
	if caseInfo.Species == "" {
		return nil, fmt.Errorf("%w: species is required", ErrInvalidCase)
	}
	if caseInfo.Urgency != "" && !caseInfo.Urgency.Valid() {
		return nil, fmt.Errorf("%w: unknown urgency %q", ErrInvalidCase, caseInfo.Urgency)
	}
	if image == nil && !o.cfg.AllowVisionless {
		return nil, ErrImageRequired
	}

	key := reportKey(caseInfo, image)
	if cached := o.lookupCache(ctx, key); cached != nil {
		return cached, nil
	}

	deadline := time.Now().Add(o.runTimeoutFor(caseInfo.Urgency))

	c := &CaseContext{
		RunID:       uuid.New().String(),
		State:       StateInit,
		Case:        caseInfo,
		Image:       image,
		StepTimings: make(map[State]time.Duration),
		StartedAt:   time.Now(),
	}

	log.Info().
		Str("run_id", c.RunID).
		Str("species", caseInfo.Species).
		Str("urgency", string(caseInfo.Urgency)).
		Bool("has_image", image != nil).
		Msg("Triage run started")

	o.execute(ctx, c, deadline)

	report := buildReport(c)
	o.recordRun(report)

	if report.Status == "completed" {
		o.storeCache(ctx, key, report)
	}

	log.Info().
		Str("run_id", c.RunID).
		Str("status", report.Status).
		Bool("degraded", report.Degraded).
		Dur("duration", time.Since(c.StartedAt)).
		Msg("Triage run finished")

	return report, nil
}

// runTimeoutFor restringe il timeout complessivo per i casi urgenti,
// che privilegiano una risposta rapida a una ricerca esaustiva
func (o *Orchestrator) runTimeoutFor(u models.Urgency) time.Duration {
	if u == models.UrgencyUrgent {
		return o.cfg.RunTimeout / 2
	}
	return o.cfg.RunTimeout
}

// execute fa avanzare la macchina a stati fino a DONE o ERROR.
// Il timeout di run viene verificato solo tra uno step e il successivo:
// una chiamata provider in corso non viene mai interrotta a metà.
func (o *Orchestrator) execute(ctx context.Context, c *CaseContext, deadline time.Time) {
	if c.Image != nil {
		o.transition(c, StateVision)
		o.runVision(ctx, c)
		if c.State == StateError {
			return
		}
		if o.checkDeadline(ctx, c, StateVision, deadline) {
			return
		}
	} else {
		c.markDegraded("no-image")
	}

	o.transition(c, StateKnowledge)
	o.runKnowledge(ctx, c)

	if o.checkDeadline(ctx, c, StateKnowledge, deadline) {
		return
	}

	o.transition(c, StateDiagnosis)
	o.runDiagnosis(ctx, c)
	if c.State == StateError {
		return
	}

	o.transition(c, StateDone)
}

// checkDeadline controlla scadenza della run e cancellazione del chiamante
// tra uno step e l'altro. step è lo step appena concluso.
func (o *Orchestrator) checkDeadline(ctx context.Context, c *CaseContext, step State, deadline time.Time) bool {
	if ctx.Err() == nil && time.Now().Before(deadline) {
		return false
	}

	reason := "run timeout exceeded"
	if err := ctx.Err(); err != nil {
		reason = err.Error()
	}

	log.Warn().
		Str("run_id", c.RunID).
		Str("after_step", string(step)).
		Msg("Run aborted between steps")

	o.fail(c, step, []providers.Failure{{Kind: providers.FailureTimeout, Reason: reason}})
	return true
}

// transition applica una transizione di stato, verificandone la validità
func (o *Orchestrator) transition(c *CaseContext, to State) {
	if !canTransition(c.State, to) {
		log.Error().
			Str("run_id", c.RunID).
			Str("from", string(c.State)).
			Str("to", string(to)).
			Msg("Invalid state transition")
		c.FailedStep = c.State
		c.State = StateError
		return
	}
	c.State = to
}

// fail porta la run nello stato assorbente ERROR
func (o *Orchestrator) fail(c *CaseContext, step State, failures []providers.Failure) {
	c.FailedStep = step
	c.Failures = append(c.Failures, failures...)
	c.State = StateError
}

func (o *Orchestrator) runVision(ctx context.Context, c *CaseContext) {
	start := time.Now()
	findings, providerID, failures, err := o.vision.Run(ctx, *c.Image, c.Case.Complaint)
	c.StepTimings[StateVision] = time.Since(start)
	o.observeStep(StateVision, c.StepTimings[StateVision])

	o.countProviderCalls(providers.CapabilityVision, providerID, failures)
	if err != nil {
		o.countFailures(StateVision, failures)
		if !o.cfg.AllowVisionless {
			o.fail(c, StateVision, failures)
			return
		}
		// Tolleranza vision-less: la run prosegue senza osservazioni
		c.Failures = append(c.Failures, failures...)
		c.markDegraded("vision:" + visionFailureReason(failures))
		log.Warn().
			Str("run_id", c.RunID).
			Int("candidates_failed", len(failures)).
			Msg("Vision step failed, continuing without findings")
		return
	}

	c.Findings = findings
	c.VisionProvider = providerID
	if len(failures) > 0 {
		// Audit del fallback: i candidati falliti restano nel referto
		c.Failures = append(c.Failures, failures...)
		o.countFallbacks(providers.CapabilityVision, len(failures))
	}
}

func (o *Orchestrator) runKnowledge(ctx context.Context, c *CaseContext) {
	start := time.Now()
	passages, failedSources := o.knowledge.Run(ctx, c.Case, c.Findings)
	c.StepTimings[StateKnowledge] = time.Since(start)
	o.observeStep(StateKnowledge, c.StepTimings[StateKnowledge])

	c.Passages = passages
	for _, src := range failedSources {
		c.markDegraded("retrieval:" + src)
	}
	if o.metrics != nil {
		o.metrics.RetrievalResults.Observe(float64(len(passages)))
	}
}

func (o *Orchestrator) runDiagnosis(ctx context.Context, c *CaseContext) {
	start := time.Now()
	candidates, providerID, failures, err := o.diagnosis.Run(ctx, c.Case, c.Findings, c.Passages)
	c.StepTimings[StateDiagnosis] = time.Since(start)
	o.observeStep(StateDiagnosis, c.StepTimings[StateDiagnosis])

	o.countProviderCalls(providers.CapabilityTextGeneration, providerID, failures)
	if err != nil {
		o.countFailures(StateDiagnosis, failures)
		o.fail(c, StateDiagnosis, failures)
		return
	}

	c.Candidates = candidates
	c.DiagnosisProvider = providerID
	if len(failures) > 0 {
		c.Failures = append(c.Failures, failures...)
		o.countFallbacks(providers.CapabilityTextGeneration, len(failures))
	}
}

// visionFailureReason sintetizza il motivo della degradazione vision-less
func visionFailureReason(failures []providers.Failure) string {
	if len(failures) == 0 {
		return "no-candidates"
	}
	return string(failures[len(failures)-1].Kind)
}

// reportKey deriva la chiave di cache dal caso e, se presente, dall'immagine
func reportKey(caseInfo models.CaseInfo, image *providers.ImageInput) string {
	key := "report:" + caseInfo.Signature()
	if image != nil {
		sum := sha256.Sum256(image.Data)
		key += ":" + hex.EncodeToString(sum[:])[:16]
	}
	return key
}

func (o *Orchestrator) lookupCache(ctx context.Context, key string) *Report {
	if o.reportCache == nil {
		return nil
	}

	data, err := o.reportCache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Report cache lookup failed")
		}
		o.countCache("miss")
		return nil
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		log.Warn().Err(err).Msg("Corrupt cached report, ignoring")
		o.reportCache.Delete(ctx, key)
		o.countCache("miss")
		return nil
	}

	o.countCache("hit")
	report.Cached = true

	log.Info().
		Str("run_id", report.RunID).
		Msg("Report served from cache")

	return &report
}

func (o *Orchestrator) storeCache(ctx context.Context, key string, report *Report) {
	if o.reportCache == nil {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := o.reportCache.Set(ctx, key, data, o.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache report")
	}
}

func (o *Orchestrator) observeStep(step State, d time.Duration) {
	if o.metrics != nil {
		o.metrics.StepDuration.WithLabelValues(string(step)).Observe(float64(d.Milliseconds()))
	}
}

func (o *Orchestrator) countFailures(step State, failures []providers.Failure) {
	if o.metrics == nil {
		return
	}
	if len(failures) == 0 {
		o.metrics.StepFailures.WithLabelValues(string(step), "no-candidates").Inc()
		return
	}
	for _, f := range failures {
		o.metrics.StepFailures.WithLabelValues(string(step), string(f.Kind)).Inc()
	}
}

// countProviderCalls registra una chiamata per ogni candidato fallito e,
// se presente, quella del candidato che ha risposto
func (o *Orchestrator) countProviderCalls(capability providers.Capability, providerID string, failures []providers.Failure) {
	if o.metrics == nil {
		return
	}
	for _, f := range failures {
		o.metrics.ProviderCalls.WithLabelValues(f.Provider, string(capability), string(f.Kind)).Inc()
	}
	if providerID != "" {
		o.metrics.ProviderCalls.WithLabelValues(providerID, string(capability), "success").Inc()
	}
}

func (o *Orchestrator) countFallbacks(capability providers.Capability, n int) {
	if o.metrics != nil {
		o.metrics.ProviderFallback.WithLabelValues(string(capability)).Add(float64(n))
	}
}

func (o *Orchestrator) countCache(outcome string) {
	if o.metrics != nil {
		o.metrics.CacheHits.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) recordRun(report *Report) {
	if o.metrics != nil {
		o.metrics.RunsTotal.WithLabelValues(report.Status).Inc()
	}
}
