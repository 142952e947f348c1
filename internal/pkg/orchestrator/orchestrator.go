// Package orchestrator drives scenario runs through the simulator capability
// lifecycle: select an engine, validate, build the network, run, extract
// indicators. It owns fallback policy and consults the result cache before
// computing anything.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/unplab/unp_core/internal/pkg/cache"
	"github.com/unplab/unp_core/internal/pkg/config"
	"github.com/unplab/unp_core/internal/pkg/msg"
	"github.com/unplab/unp_core/internal/pkg/scenario"
	"github.com/unplab/unp_core/internal/pkg/simulator"
)

// Orchestrator runs scenarios. Safe for concurrent callers; each run builds
// its own topology and model, the only shared state is the cache.
type Orchestrator struct {
	pid         uuid.UUID
	publisher   *msg.PubSub
	cfg         config.Config
	cache       *cache.Cache
	real        simulator.Simulator
	placeholder simulator.Simulator
}

// New returns an orchestrator. real may be nil when no physics backend is
// configured; placeholder is required.
func New(cfg config.Config, c *cache.Cache, real, placeholder simulator.Simulator) (*Orchestrator, error) {
	if placeholder == nil {
		return nil, errors.New("orchestrator: placeholder engine is required")
	}
	if c == nil {
		return nil, errors.New("orchestrator: cache is required")
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		pid:         pid,
		publisher:   msg.NewPublisher(pid),
		cfg:         cfg,
		cache:       c,
		real:        real,
		placeholder: placeholder,
	}, nil
}

// PID returns the orchestrator's PID.
func (o *Orchestrator) PID() uuid.UUID { return o.pid }

// Subscribe attaches a consumer to the orchestrator's message stream.
func (o *Orchestrator) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return o.publisher.Subscribe(pid, topic)
}

// Unsubscribe detaches a consumer.
func (o *Orchestrator) Unsubscribe(pid uuid.UUID) {
	o.publisher.Unsubscribe(pid)
}

// Cache exposes the result cache for read-only lookups.
func (o *Orchestrator) Cache() *cache.Cache { return o.cache }

// PublishConfig broadcasts the process configuration snapshot to Config
// subscribers. Called at startup and after any datastream attaches.
func (o *Orchestrator) PublishConfig() {
	o.publisher.Publish(msg.Config, o.cfg)
}

// RunScenario resolves the scenario's parameters, consults the cache and on
// a miss drives the full engine lifecycle. The returned result is immutable;
// cached copies must not be modified by callers.
func (o *Orchestrator) RunScenario(ctx context.Context, s scenario.Scenario, overrides map[string]interface{}) (simulator.Result, error) {
	params, err := scenario.ResolveParams(o.cfg.Defaults, overrides)
	if err != nil {
		res := simulator.Result{
			Success:  false,
			Scenario: s.Name,
			Type:     s.Type,
			Error:    fmt.Sprintf("resolve_parameters: %v", err),
			Warnings: []string{},
		}
		return res, err
	}
	s.Params = params
	fp := s.Fingerprint()

	ttl := time.Duration(params.CacheTTLS) * time.Second
	res, hit, err := o.cache.GetOrCompute(ctx, fp, ttl, func(cctx context.Context) (simulator.Result, error) {
		r := o.execute(cctx, s, fp)
		// publish from the owning computation only, so concurrent callers
		// sharing one flight produce one message, not one each
		o.publisher.Publish(msg.Result, r)
		return r, nil
	})
	if err != nil {
		return simulator.Result{}, err
	}
	if hit {
		log.Printf("[Orchestrator] cache hit for scenario %q (%.12s)", s.Name, fp)
		return res, nil
	}
	if !res.Success {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// execute walks the state machine for one scenario run.
func (o *Orchestrator) execute(ctx context.Context, s scenario.Scenario, fp string) simulator.Result {
	log.Printf("[Orchestrator] running scenario %q type=%s", s.Name, s.Type)
	o.publisher.Publish(msg.Status, fmt.Sprintf("run started: %s", s.Name))

	f := &frame{
		scn:         s,
		fp:          fp,
		cfg:         o.cfg,
		real:        o.real,
		placeholder: o.placeholder,
	}

	var st stage = selectStage{}
	for st != nil {
		start := time.Now()
		next, err := st.step(ctx, f)
		f.elapsed += time.Since(start)
		f.traversed = append(f.traversed, st.name())
		if err != nil {
			f.failStage = st.name()
			f.failErr = err
			return o.failed(f)
		}
		st = next
	}
	return o.succeeded(f)
}

func (o *Orchestrator) succeeded(f *frame) simulator.Result {
	res := simulator.Result{
		Success:        true,
		Scenario:       f.scn.Name,
		Type:           f.scn.Type,
		Mode:           f.sim.Mode(),
		Fingerprint:    f.fp,
		Indicators:     f.indicators,
		Metadata:       o.metadata(f),
		Warnings:       f.allWarnings(),
		ExecutionTimeS: f.elapsed.Seconds(),
	}
	log.Printf("[Orchestrator] scenario %q succeeded mode=%s in %.3fs", f.scn.Name, res.Mode, res.ExecutionTimeS)
	return res
}

func (o *Orchestrator) failed(f *frame) simulator.Result {
	mode := simulator.Mode("")
	if f.sim != nil {
		mode = f.sim.Mode()
	}
	res := simulator.Result{
		Success:        false,
		Scenario:       f.scn.Name,
		Type:           f.scn.Type,
		Mode:           mode,
		Fingerprint:    f.fp,
		Metadata:       o.metadata(f),
		Error:          fmt.Sprintf("%s: %v", f.failStage, f.failErr),
		Warnings:       f.allWarnings(),
		ExecutionTimeS: f.elapsed.Seconds(),
	}
	log.Printf("[Orchestrator] scenario %q failed at %s: %v", f.scn.Name, f.failStage, f.failErr)
	return res
}

func (o *Orchestrator) metadata(f *frame) map[string]string {
	md := map[string]string{
		"buildings_total": strconv.Itoa(len(f.scn.Buildings)),
		"stages":          fmt.Sprintf("%v", f.traversed),
		"fallback_used":   strconv.FormatBool(f.fellBack),
	}
	if f.modelBuilt {
		md["buildings_connected"] = strconv.Itoa(len(f.model.Plan.Routes))
		md["buildings_unreachable"] = strconv.Itoa(len(f.model.Plan.Unreached))
		md["graph_nodes"] = strconv.Itoa(f.model.NodeCount)
		md["graph_edges"] = strconv.Itoa(f.model.EdgeCount)
	}
	return md
}
