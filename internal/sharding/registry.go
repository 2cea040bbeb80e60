package sharding

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"coreledger/internal/etcd"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// NodePrefix is the etcd key prefix under which every live cluster node
	// registers itself.
	NodePrefix = "/coreledger/nodes/"

	// DefaultLeaseTTL is the default TTL, in seconds, for a node's etcd lease.
	// A node that misses this many seconds of heartbeats is considered gone
	// and its shards are reassigned.
	DefaultLeaseTTL = 15

	// DefaultHeartbeatInterval is how often a node refreshes its registration.
	DefaultHeartbeatInterval = 10 * time.Second
)

// NodeInfo describes one member of the cluster that participates in entity
// shard ownership.
type NodeInfo struct {
	NodeID        string    `json:"node_id"`
	Hostname      string    `json:"hostname"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Registry registers this process as a cluster node in etcd and tracks
// the other live nodes so the Coordinator can recompute shard ownership.
type Registry struct {
	etcdClient *etcd.Client
	info       NodeInfo
	leaseID    clientv3.LeaseID
	leaseTTL   int64

	heartbeatInterval time.Duration
	stopChan          chan struct{}
	doneChan          chan struct{}
}

// NewRegistry creates a node registry identified by nodeID.
func NewRegistry(etcdClient *etcd.Client, nodeID string) (*Registry, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Registry{
		etcdClient: etcdClient,
		info: NodeInfo{
			NodeID:        nodeID,
			Hostname:      hostname,
			StartedAt:     time.Now(),
			LastHeartbeat: time.Now(),
		},
		leaseTTL:          DefaultLeaseTTL,
		heartbeatInterval: DefaultHeartbeatInterval,
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}, nil
}

// Start grants a lease, registers this node, and begins the heartbeat loop
// that keeps the lease (and therefore this node's shard claim) alive.
func (r *Registry) Start(ctx context.Context) error {
	leaseID, err := r.etcdClient.GrantLease(ctx, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	r.leaseID = leaseID

	if err := r.register(ctx); err != nil {
		return fmt.Errorf("register node: %w", err)
	}

	log.Printf("node registered: %s (hostname: %s)", r.info.NodeID, r.info.Hostname)

	go r.heartbeatLoop(ctx)

	return nil
}

// Stop deregisters this node and halts the heartbeat loop. Revoking the
// lease deletes the node's etcd key, so peers see the departure immediately
// rather than waiting out the full lease TTL.
func (r *Registry) Stop(ctx context.Context) error {
	close(r.stopChan)
	<-r.doneChan

	if r.leaseID != 0 {
		if err := r.etcdClient.RevokeLease(ctx, r.leaseID); err != nil {
			log.Printf("revoke lease: %v", err)
		}
	}

	log.Printf("node deregistered: %s", r.info.NodeID)
	return nil
}

// GetNodeID returns this node's identity.
func (r *Registry) GetNodeID() string {
	return r.info.NodeID
}

// ListNodes returns every node currently registered in etcd.
func (r *Registry) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	kvs, err := r.etcdClient.GetWithPrefix(ctx, NodePrefix)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	nodes := make([]NodeInfo, 0, len(kvs))
	for _, value := range kvs {
		var info NodeInfo
		if err := json.Unmarshal([]byte(value), &info); err != nil {
			log.Printf("unmarshal node info: %v", err)
			continue
		}
		nodes = append(nodes, info)
	}

	return nodes, nil
}

// WatchNodes streams the current node-id list every time cluster membership
// changes, starting with the list as of the call.
func (r *Registry) WatchNodes(ctx context.Context) (<-chan []string, error) {
	nodesChan := make(chan []string)

	nodes, err := r.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	initialIDs := make([]string, len(nodes))
	for i, n := range nodes {
		initialIDs[i] = n.NodeID
	}

	go func() {
		select {
		case nodesChan <- initialIDs:
		case <-ctx.Done():
			return
		}
	}()

	watchChan := r.etcdClient.Watch(ctx, NodePrefix, clientv3.WithPrefix())

	go func() {
		defer close(nodesChan)

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					log.Printf("watch error: %v", watchResp.Err())
					continue
				}

				nodes, err := r.ListNodes(ctx)
				if err != nil {
					log.Printf("list nodes after watch event: %v", err)
					continue
				}

				nodeIDs := make([]string, len(nodes))
				for i, n := range nodes {
					nodeIDs[i] = n.NodeID
				}

				select {
				case nodesChan <- nodeIDs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return nodesChan, nil
}

func (r *Registry) register(ctx context.Context) error {
	r.info.LastHeartbeat = time.Now()

	data, err := json.Marshal(r.info)
	if err != nil {
		return fmt.Errorf("marshal node info: %w", err)
	}

	return r.etcdClient.PutWithLease(ctx, r.nodeKey(), string(data), r.leaseID)
}

func (r *Registry) heartbeatLoop(ctx context.Context) {
	defer close(r.doneChan)

	keepAliveChan, err := r.etcdClient.KeepAlive(ctx, r.leaseID)
	if err != nil {
		log.Printf("start keep-alive: %v", err)
		return
	}

	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.info.LastHeartbeat = time.Now()
			if err := r.register(ctx); err != nil {
				log.Printf("update heartbeat: %v", err)
			}
		case ka, ok := <-keepAliveChan:
			if !ok {
				log.Println("keep-alive channel closed, re-establishing lease")
				if err := r.reestablishLease(ctx); err != nil {
					log.Printf("re-establish lease: %v", err)
					return
				}
				keepAliveChan, err = r.etcdClient.KeepAlive(ctx, r.leaseID)
				if err != nil {
					log.Printf("restart keep-alive: %v", err)
					return
				}
			} else if ka != nil {
				// lease renewed
			}
		}
	}
}

func (r *Registry) reestablishLease(ctx context.Context) error {
	leaseID, err := r.etcdClient.GrantLease(ctx, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("grant new lease: %w", err)
	}

	r.leaseID = leaseID
	return r.register(ctx)
}

func (r *Registry) nodeKey() string {
	return NodePrefix + r.info.NodeID
}

// GenerateNodeID derives a unique node identity from the hostname and a
// nanosecond timestamp, so two nodes started at once on the same host never
// collide.
func GenerateNodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	hostname = strings.ReplaceAll(hostname, ".", "-")
	hostname = strings.ReplaceAll(hostname, "/", "-")

	return fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
}
