package sharding

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"go.uber.org/zap"

	"coreledger/internal/logger"
)

// Coordinator assigns aggregate (entity) ids to cluster nodes using consistent
// hashing over the current node list. Every node runs an identical Coordinator;
// they converge on the same assignment because they hash over the same sorted
// node list, not because any one of them is authoritative.
type Coordinator struct {
	registry *Registry

	// nodeID is this node's own identity.
	nodeID string

	mu    sync.RWMutex
	nodes []string

	// assignmentChangeChan signals that entity ownership may have shifted.
	assignmentChangeChan chan struct{}
}

// NewCoordinator creates a coordinator bound to the given node registry.
func NewCoordinator(registry *Registry) *Coordinator {
	return &Coordinator{
		registry:             registry,
		nodeID:               registry.GetNodeID(),
		nodes:                []string{registry.GetNodeID()},
		assignmentChangeChan: make(chan struct{}, 1),
	}
}

// Start begins watching the node registry and recomputing assignments whenever
// the cluster membership changes.
func (c *Coordinator) Start(ctx context.Context) error {
	nodesChan, err := c.registry.WatchNodes(ctx)
	if err != nil {
		return fmt.Errorf("watch nodes: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case nodeIDs, ok := <-nodesChan:
				if !ok {
					return
				}
				c.updateNodes(nodeIDs)
			}
		}
	}()

	return nil
}

// Owns reports whether this node is responsible for the given entity id.
// Uses consistent hashing: hash(entityID) % len(nodes) selects the owner.
func (c *Coordinator) Owns(entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.nodes) == 0 {
		return false
	}
	if len(c.nodes) == 1 {
		return true
	}

	return c.assignedNode(entityID) == c.nodeID
}

// AssignedEntities filters allEntityIDs down to those owned by this node.
func (c *Coordinator) AssignedEntities(allEntityIDs []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.nodes) == 0 {
		return nil
	}
	if len(c.nodes) == 1 {
		return allEntityIDs
	}

	assigned := make([]string, 0, len(allEntityIDs))
	for _, id := range allEntityIDs {
		if c.assignedNode(id) == c.nodeID {
			assigned = append(assigned, id)
		}
	}
	return assigned
}

// AssignmentChanges returns a channel that fires when entity ownership may
// have shifted, e.g. because a node joined or left. A shard runtime should
// treat this as a signal to passivate any entity it no longer owns.
func (c *Coordinator) AssignmentChanges() <-chan struct{} {
	return c.assignmentChangeChan
}

// NodeCount returns the current number of nodes participating in the hash ring.
func (c *Coordinator) NodeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

func (c *Coordinator) updateNodes(nodeIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sorted := make([]string, len(nodeIDs))
	copy(sorted, nodeIDs)
	sort.Strings(sorted)

	if !nodesEqual(c.nodes, sorted) {
		previous := len(c.nodes)
		c.nodes = sorted

		log := logger.NewProductionLogger()
		defer func() { _ = log.Sync() }()
		log.Info("cluster membership changed",
			zap.Int("node_count", len(c.nodes)),
			zap.Int("previous_count", previous),
			zap.Strings("nodes", c.nodes))

		select {
		case c.assignmentChangeChan <- struct{}{}:
		default:
		}
	}
}

// assignedNode returns the node that owns entityID. Callers must hold at
// least a read lock.
func (c *Coordinator) assignedNode(entityID string) string {
	if len(c.nodes) == 0 {
		return ""
	}

	h := fnv.New64a()
	h.Write([]byte(entityID))
	hash := h.Sum64()

	index := int(hash % uint64(len(c.nodes)))
	return c.nodes[index]
}

// AssignmentStats returns, per node, how many of allEntityIDs it currently owns.
// Used by operators to sanity-check shard balance across the cluster.
func (c *Coordinator) AssignmentStats(allEntityIDs []string) map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make(map[string]int)
	for _, nodeID := range c.nodes {
		stats[nodeID] = 0
	}
	for _, id := range allEntityIDs {
		stats[c.assignedNode(id)]++
	}
	return stats
}

func nodesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
