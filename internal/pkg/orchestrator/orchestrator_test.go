package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/unplab/unp_core/internal/pkg/cache"
	"github.com/unplab/unp_core/internal/pkg/config"
	"github.com/unplab/unp_core/internal/pkg/geom"
	"github.com/unplab/unp_core/internal/pkg/msg"
	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/simulator"
	"github.com/unplab/unp_core/internal/pkg/topology"
)

// fakeEngine is a scriptable simulator for lifecycle tests.
type fakeEngine struct {
	mode          simulator.Mode
	unavailable   bool
	validateErr   error
	buildErr      error
	runErr        error
	buildWarnings []string
	runDelay      time.Duration

	validateCalls int32
	buildCalls    int32
	runCalls      int32
}

func (f *fakeEngine) Mode() simulator.Mode { return f.mode }
func (f *fakeEngine) Available() bool      { return !f.unavailable }

func (f *fakeEngine) Validate(s scenario.Scenario) error {
	atomic.AddInt32(&f.validateCalls, 1)
	return f.validateErr
}

func (f *fakeEngine) BuildNetwork(ctx context.Context, s scenario.Scenario) (simulator.NetworkModel, error) {
	atomic.AddInt32(&f.buildCalls, 1)
	if f.buildErr != nil {
		return simulator.NetworkModel{}, f.buildErr
	}
	return simulator.NetworkModel{Type: s.Type, Warnings: f.buildWarnings}, nil
}

func (f *fakeEngine) Run(ctx context.Context, m simulator.NetworkModel) (simulator.EngineResult, error) {
	atomic.AddInt32(&f.runCalls, 1)
	if f.runDelay > 0 {
		time.Sleep(f.runDelay)
	}
	if f.runErr != nil {
		return simulator.EngineResult{}, f.runErr
	}
	return simulator.EngineResult{Indicators: map[string]float64{"engine": modeIndicator(f.mode)}}, nil
}

func (f *fakeEngine) ExtractIndicators(r simulator.EngineResult) map[string]float64 {
	return r.Indicators
}

func modeIndicator(m simulator.Mode) float64 {
	if m == simulator.Real {
		return 1
	}
	return 2
}

func testScenario(name string) scenario.Scenario {
	return scenario.Scenario{
		Name: name,
		Type: scenario.DistrictHeating,
		Buildings: []scenario.Building{
			{ID: "b1", Geometry: []geom.Point{{X: 30, Y: 5}}, HeatingLoadKW: 10},
		},
		Plant: geom.Point{X: 0, Y: 0},
		Streets: []topology.StreetSegment{
			{ID: "s1", Points: []geom.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}},
		},
	}
}

func realEnabledConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.UseRealSimulation = true
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg config.Config, real, fallback simulator.Simulator) *Orchestrator {
	t.Helper()
	o, err := New(cfg, cache.New(cache.NewMemStore(64), time.Minute), real, fallback)
	assert.NilError(t, err)
	return o
}

func TestNewRequiresPlaceholderAndCache(t *testing.T) {
	_, err := New(config.Default(), cache.New(cache.NewMemStore(4), time.Minute), nil, nil)
	assert.ErrorContains(t, err, "placeholder")

	_, err = New(config.Default(), nil, nil, &fakeEngine{mode: simulator.Placeholder})
	assert.ErrorContains(t, err, "cache")
}

func TestRunScenarioPlaceholderOnly(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true, // no real engine exists, placeholder still serves
	})
	assert.NilError(t, err)
	assert.Assert(t, res.Success)
	assert.Equal(t, res.Mode, simulator.Placeholder)
	assert.Equal(t, res.Metadata["fallback_used"], "false")
	assert.Assert(t, res.ExecutionTimeS >= 0)
	assert.Assert(t, res.Fingerprint != "")
}

func TestRunScenarioSelectsRealEngine(t *testing.T) {
	real := &fakeEngine{mode: simulator.Real}
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
	})
	assert.NilError(t, err)
	assert.Equal(t, res.Mode, simulator.Real)
	assert.Equal(t, res.Indicators["engine"], 1.0)
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(0))
}

func TestRunScenarioMasterFlagGatesRealEngine(t *testing.T) {
	real := &fakeEngine{mode: simulator.Real}
	ph := &fakeEngine{mode: simulator.Placeholder}
	// scenario asks for real, process config says no
	o := newTestOrchestrator(t, config.Default(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
	})
	assert.NilError(t, err)
	assert.Equal(t, res.Mode, simulator.Placeholder)
	assert.Equal(t, atomic.LoadInt32(&real.runCalls), int32(0))
}

func TestRunScenarioUnavailableRealFallsToPlaceholder(t *testing.T) {
	real := &fakeEngine{mode: simulator.Real, unavailable: true}
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
	})
	assert.NilError(t, err)
	assert.Equal(t, res.Mode, simulator.Placeholder)
}

func TestRunScenarioFallbackOnConvergenceFailure(t *testing.T) {
	real := &fakeEngine{mode: simulator.Real, runErr: simulator.ConvergenceError{Reason: "diverged"}}
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
		"fallback_on_error":   true,
	})
	assert.NilError(t, err)
	assert.Assert(t, res.Success)
	assert.Equal(t, res.Mode, simulator.Placeholder)
	assert.Equal(t, res.Metadata["fallback_used"], "true")
	assert.Equal(t, len(res.Warnings), 1)
	assert.Assert(t, strings.Contains(res.Warnings[0], "placeholder engine used"),
		"warning: %s", res.Warnings[0])
	assert.Equal(t, atomic.LoadInt32(&real.runCalls), int32(1))
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(1))
}

func TestRunScenarioFallbackOnBuildFailure(t *testing.T) {
	real := &fakeEngine{
		mode:     simulator.Real,
		buildErr: simulator.NetworkCreationError{Reason: "mesher rejected the geometry"},
	}
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
		"fallback_on_error":   true,
	})
	assert.NilError(t, err)
	assert.Assert(t, res.Success)
	assert.Equal(t, res.Mode, simulator.Placeholder)
	assert.Equal(t, res.Metadata["fallback_used"], "true")
}

func TestRunScenarioNoFallbackWhenDisabled(t *testing.T) {
	real := &fakeEngine{mode: simulator.Real, runErr: simulator.RuntimeError{Reason: "engine crashed"}}
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
		"fallback_on_error":   false,
	})
	assert.Assert(t, err != nil)
	assert.Assert(t, !res.Success)
	assert.Assert(t, strings.HasPrefix(res.Error, "run:"), "error: %s", res.Error)
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(0))
}

func TestRunScenarioValidationNeverFallsBack(t *testing.T) {
	real := &fakeEngine{
		mode:        simulator.Real,
		validateErr: simulator.ValidationError{Reason: "plant outside service area"},
	}
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
		"fallback_on_error":   true,
	})
	assert.Assert(t, err != nil)
	assert.Assert(t, !res.Success)
	assert.Assert(t, strings.HasPrefix(res.Error, "validate:"), "error: %s", res.Error)
	assert.Equal(t, res.Metadata["fallback_used"], "false")
	assert.Equal(t, atomic.LoadInt32(&ph.validateCalls), int32(0))
}

func TestRunScenarioFallbackHappensAtMostOnce(t *testing.T) {
	real := &fakeEngine{mode: simulator.Real, runErr: simulator.RuntimeError{Reason: "engine crashed"}}
	// the fallback engine fails too; the run must not loop
	ph := &fakeEngine{mode: simulator.Placeholder, runErr: simulator.RuntimeError{Reason: "estimator bug"}}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
		"fallback_on_error":   true,
	})
	assert.Assert(t, err != nil)
	assert.Assert(t, !res.Success)
	assert.Equal(t, atomic.LoadInt32(&real.runCalls), int32(1))
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(1))
}

func TestRunScenarioIdempotentViaCache(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	first, err := o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.NilError(t, err)

	second, err := o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.NilError(t, err)

	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(1))
	assert.Equal(t, atomic.LoadInt32(&ph.buildCalls), int32(1))
	assert.DeepEqual(t, first.Indicators, second.Indicators)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestRunScenarioFallbackDoesNotDuplicateBuildWarnings(t *testing.T) {
	unreachable := "building b9 unreachable: disconnected from plant over the street graph"
	real := &fakeEngine{
		mode:          simulator.Real,
		buildWarnings: []string{unreachable},
		runErr:        simulator.ConvergenceError{Reason: "diverged"},
	}
	ph := &fakeEngine{mode: simulator.Placeholder, buildWarnings: []string{unreachable}}
	o := newTestOrchestrator(t, realEnabledConfig(), real, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"use_real_simulation": true,
		"fallback_on_error":   true,
	})
	assert.NilError(t, err)
	assert.Assert(t, res.Success)

	// one build warning and one fallback notice, nothing repeated
	assert.Equal(t, len(res.Warnings), 2)
	seen := 0
	for _, w := range res.Warnings {
		if w == unreachable {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("build warning appeared %d times after fallback, want 1: %v", seen, res.Warnings)
	}
}

func TestRunScenarioStreetChangeRecomputes(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	first, err := o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.NilError(t, err)

	// identical buildings, plant and params over a rerouted street
	detour := testScenario("s1")
	detour.Streets[0].Points = []geom.Point{{X: 0, Y: 0}, {X: 50, Y: 300}, {X: 100, Y: 0}}
	second, err := o.RunScenario(context.Background(), detour, nil)
	assert.NilError(t, err)

	assert.Assert(t, first.Fingerprint != second.Fingerprint,
		"street geometry change must change the fingerprint")
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(2))
}

func TestConcurrentRunsPublishOneResult(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder, runDelay: 100 * time.Millisecond}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	sub, err := o.Subscribe(o.PID(), msg.Result)
	assert.NilError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.RunScenario(context.Background(), testScenario("s1"), nil); err != nil {
				t.Errorf("concurrent run FAILED: %v", err)
			}
		}()
	}
	wg.Wait()

	// the owning computation publishes once; waiters must not re-publish
	assert.Equal(t, len(sub), 1)
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(1))
}

func TestPublishConfigBroadcastsSnapshot(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	cfg := config.Default()
	o := newTestOrchestrator(t, cfg, nil, ph)

	sub, err := o.Subscribe(o.PID(), msg.Config)
	assert.NilError(t, err)

	o.PublishConfig()
	select {
	case m := <-sub:
		snapshot, ok := m.Payload().(config.Config)
		assert.Assert(t, ok)
		assert.Equal(t, snapshot.HTTP.Addr, cfg.HTTP.Addr)
	case <-time.After(time.Second):
		t.Fatal("no config snapshot published")
	}
}

func TestRunScenarioFailuresAreRetried(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder, runErr: simulator.RuntimeError{Reason: "estimator bug"}}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	_, err := o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.Assert(t, err != nil)

	// a failed run is not cached, the next call tries again
	_, err = o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.Assert(t, err != nil)
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(2))
}

func TestRunScenarioRejectsUnknownOverride(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), map[string]interface{}{
		"supply_temp": 90.0,
	})
	assert.Assert(t, err != nil)
	assert.Assert(t, !res.Success)
	assert.Assert(t, strings.HasPrefix(res.Error, "resolve_parameters:"), "error: %s", res.Error)
	assert.Equal(t, atomic.LoadInt32(&ph.runCalls), int32(0))
}

func TestRunScenarioPublishesResult(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	sub, err := o.Subscribe(o.PID(), msg.Result)
	assert.NilError(t, err)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.NilError(t, err)

	select {
	case m := <-sub:
		published, ok := m.Payload().(simulator.Result)
		assert.Assert(t, ok)
		assert.Equal(t, published.Fingerprint, res.Fingerprint)
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}
}

func TestRunScenarioMetadata(t *testing.T) {
	ph := &fakeEngine{mode: simulator.Placeholder}
	o := newTestOrchestrator(t, config.Default(), nil, ph)

	res, err := o.RunScenario(context.Background(), testScenario("s1"), nil)
	assert.NilError(t, err)

	assert.Equal(t, res.Metadata["buildings_total"], "1")
	assert.Assert(t, strings.Contains(res.Metadata["stages"], "select_simulator"))
	assert.Assert(t, strings.Contains(res.Metadata["stages"], "extract_indicators"))
}
