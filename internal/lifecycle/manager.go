// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/worker/v4"

	"github.com/lingframe/lingframe/core/access"
	"github.com/lingframe/lingframe/core/events"
	"github.com/lingframe/lingframe/core/invocation"
	"github.com/lingframe/lingframe/core/module"
	"github.com/lingframe/lingframe/internal/boundary"
	"github.com/lingframe/lingframe/internal/hub"
	"github.com/lingframe/lingframe/internal/invoker"
	"github.com/lingframe/lingframe/internal/routing"
)

var logger = loggo.GetLogger("lingframe.lifecycle")

// threadsProperty names the definition property through which a
// module requests its worker pool size.
const threadsProperty = "lingframe.threads"

// artifactProperty names the definition property locating the
// module's artifact; the entry point stands in when unset.
const artifactProperty = "lingframe.artifact"

// GovernanceEngine is the manager's view of the governance engine.
type GovernanceEngine interface {
	Annotate(*invocation.Context, module.GovernancePolicy)
	CheckInvocation(*invocation.Context) error
	IsAllowed(moduleID, capability string, required access.Access) bool
	RemoveModule(moduleID string)
}

// Router is the manager's view of the traffic router.
type Router interface {
	Route(moduleID string, candidates []routing.Candidate, labels map[string]string) routing.Candidate
	SetCanary(moduleID, version string, percent int) error
	ClearCanary(moduleID string)
}

// Invoker is the manager's view of the invocation pipeline.
type Invoker interface {
	Invoke(target invoker.Target, serviceID, method string, args []interface{}, ictx *invocation.Context) (interface{}, error)
}

// ManagerConfig holds the dependencies and limits of a Manager.
type ManagerConfig struct {
	Factory    ContainerFactory
	Pipeline   Invoker
	Governance GovernanceEngine
	Router     Router
	Hub        *hub.Hub
	Clock      clock.Clock

	// Shared is the process-wide registry of cross-module API types,
	// preloaded before any module is installed.
	Shared *boundary.Registry

	// ThreadBudget is the process-wide total of worker threads
	// available to module instances. PerInstanceCap bounds a single
	// instance's request; DefaultThreads applies when a definition
	// does not request a size.
	ThreadBudget   int
	PerInstanceCap int
	DefaultThreads int

	// DrainTimeout bounds how long an uninstall waits for in-flight
	// calls before giving up.
	DrainTimeout time.Duration

	// LeakCheckDelay is how long after boundary close to probe for a
	// pinned boundary.
	LeakCheckDelay time.Duration
}

// Validate ensures that the config values are valid.
func (c ManagerConfig) Validate() error {
	if c.Factory == nil {
		return errors.NotValidf("nil Factory")
	}
	if c.Pipeline == nil {
		return errors.NotValidf("nil Pipeline")
	}
	if c.Governance == nil {
		return errors.NotValidf("nil Governance")
	}
	if c.Router == nil {
		return errors.NotValidf("nil Router")
	}
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Shared == nil {
		return errors.NotValidf("nil Shared registry")
	}
	if c.ThreadBudget < 1 {
		return errors.NotValidf("ThreadBudget %d", c.ThreadBudget)
	}
	if c.PerInstanceCap < 1 || c.PerInstanceCap > c.ThreadBudget {
		return errors.NotValidf("PerInstanceCap %d", c.PerInstanceCap)
	}
	if c.DefaultThreads < 1 || c.DefaultThreads > c.PerInstanceCap {
		return errors.NotValidf("DefaultThreads %d", c.DefaultThreads)
	}
	if c.DrainTimeout <= 0 {
		return errors.NotValidf("non-positive DrainTimeout")
	}
	if c.LeakCheckDelay <= 0 {
		return errors.NotValidf("non-positive LeakCheckDelay")
	}
	return nil
}

// Manager hosts the module instances of the process and orchestrates
// their lifecycles. It is constructed once at startup with an
// explicit configuration; there is no ambient global state.
type Manager struct {
	cfg ManagerConfig
	reg *registry

	mu          sync.Mutex
	threadsUsed int
	leakWorkers []worker.Worker
	shutdown    bool
}

// NewManager returns a manager with no modules installed.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Manager{
		cfg: cfg,
		reg: newRegistry(),
	}, nil
}

// threadRequest resolves the worker pool size a definition asks for.
func (m *Manager) threadRequest(def module.Definition) (int, error) {
	raw := def.Property(threadsProperty, "")
	if raw == "" {
		return m.cfg.DefaultThreads, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NotValidf("thread request %q for module %q", raw, def.ID)
	}
	if n < 1 || n > m.cfg.PerInstanceCap {
		return 0, errors.NotValidf("thread request %d for module %q outside [1, %d]",
			n, def.ID, m.cfg.PerInstanceCap)
	}
	return n, nil
}

// Install validates a definition and brings up a loaded (not yet
// started) instance for it: a fresh isolation boundary plus a
// container created through the factory SPI. A failed container
// creation leaves the instance in the error state for later
// uninstall.
func (m *Manager) Install(def module.Definition) (*Instance, error) {
	if err := def.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	def = def.Copy()
	for _, existing := range m.reg.list(def.ID) {
		if existing.Version() == def.Version {
			return nil, errors.AlreadyExistsf("module %q version %q", def.ID, def.Version)
		}
	}
	b, err := boundary.New(boundary.Config{
		ModuleID: def.ID,
		Version:  def.Version,
		Shared:   m.cfg.Shared,
		Clock:    m.cfg.Clock,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	inst := newInstance(def, b)
	m.reg.add(inst)
	if err := inst.setState(module.Loading); err != nil {
		return nil, errors.Trace(err)
	}
	artifact := def.Property(artifactProperty, def.EntryPoint)
	container, err := m.cfg.Factory.Create(def.ID, artifact, b)
	if err != nil {
		inst.forceError()
		return nil, errors.Annotatef(err, "loading module %q version %q", def.ID, def.Version)
	}
	inst.mu.Lock()
	inst.container = container
	inst.mu.Unlock()
	if err := inst.setState(module.Loaded); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("installed module %q version %q", def.ID, def.Version)
	return inst, nil
}

// Start activates the module's loaded instance. The instance's thread
// allocation is charged against the process budget first; a request
// that does not fit is denied and the instance stays loaded. A failed
// container start moves the instance to the error state and is
// reported to the caller; it is never retried here.
func (m *Manager) Start(id string) error {
	inst := m.findByState(id, module.Loaded)
	if inst == nil {
		return errors.NotFoundf("loaded instance of module %q", id)
	}
	req, err := m.threadRequest(inst.def)
	if err != nil {
		return errors.Trace(err)
	}
	m.mu.Lock()
	if m.threadsUsed+req > m.cfg.ThreadBudget {
		remaining := m.cfg.ThreadBudget - m.threadsUsed
		m.mu.Unlock()
		return errors.QuotaLimitExceededf(
			"module %q requested %d threads but only %d of %d remain",
			id, req, remaining, m.cfg.ThreadBudget)
	}
	m.threadsUsed += req
	m.mu.Unlock()
	inst.mu.Lock()
	inst.threads = req
	container := inst.container
	inst.mu.Unlock()

	if err := inst.setState(module.Starting); err != nil {
		m.releaseThreads(inst)
		return errors.Trace(err)
	}
	if err := container.Start(); err != nil {
		inst.forceError()
		m.releaseThreads(inst)
		return errors.Annotatef(err, "starting module %q version %q", id, inst.Version())
	}
	if err := inst.setState(module.Active); err != nil {
		return errors.Trace(err)
	}
	m.reg.indexServices(id, container.Services())
	m.cfg.Hub.Publish(events.InstanceReadyTopic, events.InstanceReady{
		ModuleID: id,
		Version:  inst.Version(),
		Instance: inst,
	})
	logger.Infof("module %q version %q active with %d threads", id, inst.Version(), req)
	return nil
}

// Stop deactivates the module's active instance. Container stop
// failures are logged, not returned: the instance is coming down
// regardless.
func (m *Manager) Stop(id string) error {
	inst := m.findByState(id, module.Active)
	if inst == nil {
		return errors.NotFoundf("active instance of module %q", id)
	}
	return errors.Trace(m.stopInstance(inst))
}

func (m *Manager) stopInstance(inst *Instance) error {
	if err := inst.setState(module.Stopping); err != nil {
		return errors.Trace(err)
	}
	inst.mu.Lock()
	container := inst.container
	inst.mu.Unlock()
	if container != nil {
		if err := container.Stop(); err != nil {
			logger.Warningf("stopping module %q version %q: %v", inst.ID(), inst.Version(), err)
		}
	}
	if err := inst.setState(module.Unloaded); err != nil {
		return errors.Trace(err)
	}
	if m.findByState(inst.ID(), module.Active) == nil {
		m.reg.unindexServices(inst.ID())
	}
	return nil
}

// Upgrade installs a second instance of the module alongside the
// running one. The existing instance stays active; traffic is split
// between them by the router once the caller starts the new instance
// and configures a canary. FinishUpgrade retires the old instance
// when the migration is complete.
func (m *Manager) Upgrade(id string, newDef module.Definition) (*Instance, error) {
	if err := newDef.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if newDef.ID != id {
		return nil, errors.NotValidf("upgrade of module %q with definition for %q", id, newDef.ID)
	}
	if m.findByState(id, module.Active) == nil {
		return nil, errors.NotFoundf("active instance of module %q", id)
	}
	m.cfg.Hub.Publish(events.InstanceUpgradingTopic, events.InstanceUpgrading{
		ModuleID:   id,
		NewVersion: newDef.Version,
	})
	inst, err := m.Install(newDef)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return inst, nil
}

// SetCanary adjusts the module's canary traffic split.
func (m *Manager) SetCanary(id, version string, percent int) error {
	return errors.Trace(m.cfg.Router.SetCanary(id, version, percent))
}

// FinishUpgrade completes a migration: the newest instance must be
// active; every older instance is stopped, drained and destroyed, the
// new instance becomes the stable candidate and the canary
// configuration is cleared.
func (m *Manager) FinishUpgrade(id string) error {
	cands := m.reg.list(id)
	if len(cands) < 2 {
		return errors.NotFoundf("upgrade in progress for module %q", id)
	}
	newest := cands[len(cands)-1]
	if newest.State() != module.Active {
		return errors.NotValidf("finishing upgrade of module %q with %s instance %q",
			id, newest.State(), newest.Version())
	}
	for _, old := range cands[:len(cands)-1] {
		if err := m.quiesceInstance(old); err != nil {
			return errors.Trace(err)
		}
		if err := m.retireInstance(old); err != nil {
			return errors.Trace(err)
		}
	}
	m.reg.promote(newest)
	m.reg.indexServices(id, newest.container.Services())
	m.cfg.Router.ClearCanary(id)
	logger.Infof("module %q upgraded to version %q", id, newest.Version())
	return nil
}

// Uninstall removes every instance of the module: stop if active,
// wait (bounded) for in-flight calls to drain, close the boundary,
// schedule the leak check, return the thread allocation and drop the
// module's grants. Destroying a boundary with calls inside it is
// forbidden; on drain timeout the error is returned and the module is
// left for a later retry.
func (m *Manager) Uninstall(id string) error {
	cands := m.reg.list(id)
	if len(cands) == 0 {
		return errors.NotFoundf("module %q", id)
	}
	for _, inst := range cands {
		if err := m.quiesceInstance(inst); err != nil {
			return errors.Trace(err)
		}
		if err := m.retireInstance(inst); err != nil {
			return errors.Trace(err)
		}
	}
	m.cfg.Governance.RemoveModule(id)
	m.cfg.Router.ClearCanary(id)
	logger.Infof("uninstalled module %q", id)
	return nil
}

// quiesceInstance brings an instance to a state from which
// uninstalled is reachable: active instances are stopped, loaded but
// never-started ones are unloaded directly.
func (m *Manager) quiesceInstance(inst *Instance) error {
	switch inst.State() {
	case module.Active:
		return errors.Trace(m.stopInstance(inst))
	case module.Loaded:
		return errors.Trace(inst.setState(module.Unloaded))
	}
	return nil
}

// retireInstance tears one instance down. The instance must be in a
// state from which uninstalled is reachable (unloaded or error).
func (m *Manager) retireInstance(inst *Instance) error {
	m.cfg.Hub.Publish(events.InstanceDyingTopic, events.InstanceDying{
		ModuleID: inst.ID(),
		Version:  inst.Version(),
	})
	if err := inst.boundary.Close(m.cfg.DrainTimeout); err != nil {
		return errors.Annotatef(err, "closing boundary of module %q version %q", inst.ID(), inst.Version())
	}
	if err := inst.setState(module.Uninstalled); err != nil {
		return errors.Trace(err)
	}
	m.releaseThreads(inst)
	m.reg.remove(inst)
	m.scheduleLeakCheck(inst)
	m.cfg.Hub.Publish(events.InstanceDestroyedTopic, events.InstanceDestroyed{
		ModuleID: inst.ID(),
		Version:  inst.Version(),
	})
	return nil
}

func (m *Manager) releaseThreads(inst *Instance) {
	inst.mu.Lock()
	n := inst.threads
	inst.threads = 0
	inst.mu.Unlock()
	if n == 0 {
		return
	}
	m.mu.Lock()
	m.threadsUsed -= n
	m.mu.Unlock()
}

// ThreadsInUse returns the portion of the process thread budget
// currently allocated to instances.
func (m *Manager) ThreadsInUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threadsUsed
}

// scheduleLeakCheck sets up the delayed reachability probe for a
// closed boundary. Failures here never reach the uninstall path.
func (m *Manager) scheduleLeakCheck(inst *Instance) {
	w, err := boundary.NewLeakCheck(boundary.LeakCheckConfig{
		ModuleID:  inst.ID(),
		Clock:     m.cfg.Clock,
		Delay:     m.cfg.LeakCheckDelay,
		Collected: boundary.CollectionProbe(inst.boundary),
	})
	if err != nil {
		logger.Warningf("leak check for module %q not scheduled: %v", inst.ID(), err)
		return
	}
	m.mu.Lock()
	m.leakWorkers = append(m.leakWorkers, w)
	m.mu.Unlock()
}

// findByState returns the earliest-listed instance of the module in
// the given state.
func (m *Manager) findByState(id string, s module.State) *Instance {
	for _, inst := range m.reg.list(id) {
		if inst.State() == s {
			return inst
		}
	}
	return nil
}

// Instances returns the module's candidate instances in registration
// order, stable first.
func (m *Manager) Instances(id string) []*Instance {
	return m.reg.list(id)
}

// Invoke carries one call through governance, routing and the
// pipeline. The context's resource id names the target service and
// its operation names the method. Governance denials are returned
// unchanged and published as rejections; routing failures are
// not-found errors.
func (m *Manager) Invoke(ictx *invocation.Context) (interface{}, error) {
	cands := m.reg.list(ictx.ModuleID)
	if len(cands) == 0 {
		return nil, errors.NotFoundf("module %q", ictx.ModuleID)
	}
	policy := cands[0].def.Governance
	m.cfg.Governance.Annotate(ictx, policy)
	if err := m.cfg.Governance.CheckInvocation(ictx); err != nil {
		m.cfg.Hub.Publish(events.InvocationRejectedTopic, events.InvocationRejected{
			ModuleID:  ictx.ModuleID,
			ServiceID: ictx.ResourceID,
			Reason:    err.Error(),
		})
		return nil, errors.Trace(err)
	}
	live := make([]routing.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.State() == module.Active {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return nil, errors.NotFoundf("active instance of module %q", ictx.ModuleID)
	}
	chosen := m.cfg.Router.Route(ictx.ModuleID, live, ictx.Labels)
	inst, ok := chosen.(*Instance)
	if !ok {
		return nil, errors.NotFoundf("routable instance of module %q", ictx.ModuleID)
	}
	serviceID := ictx.ResourceID
	if serviceID == "" {
		serviceID = ictx.ResourceType
	}
	result, err := m.cfg.Pipeline.Invoke(inst, serviceID, ictx.Operation, ictx.Args, ictx)
	return result, errors.Trace(err)
}

// Shutdown uninstalls every module and stops the manager's background
// workers. Individual uninstall failures are logged and the shutdown
// continues; the first error is returned.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	m.cfg.Hub.Publish(events.RuntimeShuttingDownTopic, nil)
	var firstErr error
	for _, id := range m.reg.moduleIDs() {
		if err := m.Uninstall(id); err != nil {
			logger.Errorf("uninstalling module %q during shutdown: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.mu.Lock()
	workers := m.leakWorkers
	m.leakWorkers = nil
	m.mu.Unlock()
	for _, w := range workers {
		w.Kill()
		if err := w.Wait(); err != nil {
			logger.Warningf("leak check worker: %v", err)
		}
	}
	m.cfg.Hub.Publish(events.RuntimeShutdownTopic, nil)
	return errors.Trace(firstErr)
}
