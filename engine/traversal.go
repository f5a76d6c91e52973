package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/common/store"
)

// scheduler drives one execution's traversal: readiness tracking, handler
// invocation, branch gating and skip propagation. Each ready node runs in its
// own goroutine, bounded by the executor's parallelism limit.
type scheduler struct {
	ec         *ExecutionContext
	registry   *Registry
	executions store.ExecutionStore
	sem        chan struct{}

	wg sync.WaitGroup

	mu     sync.Mutex
	states map[string]*nodeState

	failOnce  sync.Once
	firstErr  error
	cancelRun context.CancelFunc
}

type nodeState struct {
	node      *models.Node
	inEdges   []*models.Edge
	resolved  int
	delivered int
	inputs    []models.M
	started   bool
	done      bool
	skipped   bool
	stream    chan models.M
}

func newScheduler(ec *ExecutionContext, registry *Registry, executions store.ExecutionStore, maxParallel int, cancelRun context.CancelFunc) *scheduler {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &scheduler{
		ec:         ec,
		registry:   registry,
		executions: executions,
		sem:        make(chan struct{}, maxParallel),
		states:     make(map[string]*nodeState),
		cancelRun:  cancelRun,
	}
}

// eager node types start on their first delivery instead of waiting for every
// in-edge; the engine forwards later deliveries on the node's stream.
func eager(node *models.Node) bool {
	return node.Type == models.TypeMerge
}

// run walks the workflow until the in-flight set drains. It returns the first
// unhandled handler error, or nil.
func (s *scheduler) run(ctx context.Context) error {
	wf := s.ec.Workflow
	for _, n := range wf.Nodes {
		s.states[n.ID] = &nodeState{node: n, inEdges: wf.IncomingEdges(n.ID)}
	}

	triggers := wf.TriggerNodes()
	if len(triggers) == 0 {
		return flowerr.New(flowerr.KindInvalidWorkflow, "workflow %q has no trigger nodes", wf.Name)
	}

	// Nodes with no in-edges that are not triggers are unreachable.
	var actions []func()
	s.mu.Lock()
	for _, st := range s.states {
		if len(st.inEdges) == 0 && !st.node.IsTrigger() {
			s.skipLocked(ctx, st, &actions)
		}
	}
	s.mu.Unlock()
	for _, fn := range actions {
		fn()
	}

	for _, trigger := range triggers {
		st := s.states[trigger.ID]
		s.mu.Lock()
		st.started = true
		s.mu.Unlock()
		s.startNode(ctx, st, models.Clone(s.ec.InitialInput))
	}

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// resolve records the outcome of one in-edge: a delivery with a payload, or a
// gated-off edge. Node starts and stream operations are collected under the
// lock and performed after it is released.
func (s *scheduler) resolve(ctx context.Context, nodeID string, payload models.M, delivered bool) {
	var actions []func()
	s.mu.Lock()
	s.resolveLocked(ctx, nodeID, payload, delivered, &actions)
	s.mu.Unlock()
	for _, fn := range actions {
		fn()
	}
}

func (s *scheduler) resolveLocked(ctx context.Context, nodeID string, payload models.M, delivered bool, actions *[]func()) {
	st, ok := s.states[nodeID]
	if !ok {
		return
	}

	st.resolved++
	if delivered {
		st.delivered++
		st.inputs = append(st.inputs, payload)
	}

	if eager(st.node) {
		s.resolveEagerLocked(ctx, st, payload, delivered, actions)
		return
	}

	if st.resolved < len(st.inEdges) {
		return
	}
	if st.delivered == 0 {
		s.skipLocked(ctx, st, actions)
		return
	}

	st.started = true
	input := mergeDeliveries(st.inputs)
	*actions = append(*actions, func() { s.startNode(ctx, st, input) })
}

func (s *scheduler) resolveEagerLocked(ctx context.Context, st *nodeState, payload models.M, delivered bool, actions *[]func()) {
	if delivered {
		if !st.started {
			st.started = true
			// Later deliveries go through the stream; the first one is the
			// handler's input, so the buffer never fills.
			stream := make(chan models.M, len(st.inEdges))
			st.stream = stream
			s.ec.setStream(st.node.ID, stream)
			*actions = append(*actions, func() { s.startNode(ctx, st, payload) })
		} else if st.stream != nil {
			// Buffered at the in-edge count and the first delivery never goes
			// through the stream, so this send cannot block. Sending under
			// the lock serialises it against the close below.
			st.stream <- payload
		}
	}

	if st.resolved == len(st.inEdges) {
		if st.started {
			if st.stream != nil {
				close(st.stream)
				st.stream = nil
			}
		} else {
			s.skipLocked(ctx, st, actions)
		}
	}
}

// skipLocked marks a node SKIPPED and gates all of its out-edges off,
// propagating the skip through anything reachable only via this node.
func (s *scheduler) skipLocked(ctx context.Context, st *nodeState, actions *[]func()) {
	if st.done || st.started {
		return
	}
	st.skipped = true
	st.done = true

	node := st.node
	*actions = append(*actions, func() {
		now := time.Now().UTC()
		s.record(models.NodeExecution{
			NodeID:     node.ID,
			NodeName:   node.Name,
			NodeType:   node.Type,
			Status:     models.StatusSkipped,
			StartedAt:  now,
			FinishedAt: now,
		})
	})

	for _, edge := range s.ec.Workflow.OutgoingEdges(node.ID) {
		s.resolveLocked(ctx, edge.TargetNodeID, nil, false, actions)
	}
}

func (s *scheduler) startNode(ctx context.Context, st *nodeState, input models.M) {
	s.wg.Add(1)
	go s.runNode(ctx, st, input)
}

func (s *scheduler) runNode(ctx context.Context, st *nodeState, input models.M) {
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}
	// Once the run is cancelled no new handlers start.
	if ctx.Err() != nil {
		return
	}

	node := st.node

	if node.Disabled {
		if err := s.ec.publishOutput(node.ID, input); err != nil {
			s.fail(err)
			return
		}
		s.markDone(st)
		s.propagate(ctx, st, input, allHandlesActive)
		return
	}

	log := s.ec.Log()
	log.NodeStart(ctx, node.ID, node.Type)
	startedAt := time.Now().UTC()

	handler, err := s.registry.Lookup(node.Type)
	var output models.M
	if err == nil {
		output, err = handler.Execute(ctx, node, input, s.ec)
	}
	finishedAt := time.Now().UTC()

	if err != nil {
		kind := flowerr.KindOf(err)
		status := models.StatusFailed
		if kind == flowerr.KindCancelled {
			status = models.StatusCancelled
		}
		s.record(models.NodeExecution{
			NodeID:       node.ID,
			NodeName:     node.Name,
			NodeType:     node.Type,
			Status:       status,
			StartedAt:    startedAt,
			FinishedAt:   finishedAt,
			Input:        input,
			ErrorMessage: err.Error(),
		})
		log.Error(ctx, "node failed", models.M{
			"node_id":   node.ID,
			"node_type": node.Type,
			"kind":      string(kind),
			"error":     err.Error(),
		})
		log.NodeEnd(ctx, node.ID, string(status), finishedAt.Sub(startedAt))
		s.markDone(st)
		s.fail(err)
		return
	}

	if output == nil {
		output = models.M{}
	}
	if err := s.ec.publishOutput(node.ID, output); err != nil {
		s.markDone(st)
		s.fail(err)
		return
	}

	s.record(models.NodeExecution{
		NodeID:     node.ID,
		NodeName:   node.Name,
		NodeType:   node.Type,
		Status:     models.StatusSuccess,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Input:      input,
		Output:     output,
	})
	log.NodeEnd(ctx, node.ID, string(models.StatusSuccess), finishedAt.Sub(startedAt))

	s.markDone(st)
	s.propagate(ctx, st, output, activeHandles(node, output))
}

func (s *scheduler) markDone(st *nodeState) {
	s.mu.Lock()
	st.done = true
	s.mu.Unlock()
}

// propagate delivers a completed node's output along its active out-edges and
// gates the rest off.
func (s *scheduler) propagate(ctx context.Context, st *nodeState, output models.M, active map[string]bool) {
	for _, edge := range s.ec.Workflow.OutgoingEdges(st.node.ID) {
		if active == nil || active[edge.FromHandle()] {
			s.resolve(ctx, edge.TargetNodeID, output, true)
		} else {
			s.resolve(ctx, edge.TargetNodeID, nil, false)
		}
	}
}

// allHandlesActive marks every out-edge active, used for disabled nodes.
var allHandlesActive map[string]bool

// activeHandles computes the branch policy for a completed node: which source
// handles carry its output downstream.
func activeHandles(node *models.Node, output models.M) map[string]bool {
	switch node.Type {
	case models.TypeIf:
		if models.GetBool(output, "conditionResult", false) {
			return map[string]bool{models.HandleTrue: true}
		}
		return map[string]bool{models.HandleFalse: true}
	case models.TypeSwitch:
		branch := models.GetString(output, "_branch", models.HandleFallback)
		return map[string]bool{branch: true}
	default:
		return map[string]bool{models.HandleMain: true}
	}
}

// fail records the first unhandled error and cancels the rest of the run.
func (s *scheduler) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.firstErr = err
		s.mu.Unlock()
		if s.cancelRun != nil {
			s.cancelRun()
		}
	})
}

func (s *scheduler) record(ne models.NodeExecution) {
	// Persisting the row is best-effort; the run itself is the source of truth
	// while it is in flight.
	_ = s.executions.AppendNodeExecution(context.Background(), s.ec.ExecutionID, ne)
}

// mergeDeliveries folds the collected edge deliveries into one effective
// input. Later deliveries overwrite earlier keys at the top level.
func mergeDeliveries(inputs []models.M) models.M {
	if len(inputs) == 1 {
		return models.Clone(inputs[0])
	}
	out := models.M{}
	for _, in := range inputs {
		models.MergeInto(out, in)
	}
	return out
}
