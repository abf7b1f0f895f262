// Package node wires the three core collaborators — the persistent
// Merkle map, the routing table, and the search driver — behind a
// gRPC transport, the same assembly role cli.go's CLI struct plays
// for supernode's DHT/keyring/client collaborators, just built around
// this module's own components instead of a Lumera chain client.
package node

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
	"github.com/lumeranet/corekad/internal/search"
	"github.com/lumeranet/corekad/internal/store/cache"
	storesqlite "github.com/lumeranet/corekad/internal/store/sqlite"
	"github.com/lumeranet/corekad/internal/transport"
	"github.com/lumeranet/corekad/pkg/config"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
	"github.com/lumeranet/corekad/pkg/logtrace"
)

// Node bundles the routing table, backing store, and search driver
// behind a Handler/Transport pair, and knows how to serve them over
// gRPC.
type Node struct {
	cfg config.Config

	sqliteStore *storesqlite.Store
	cacheStore  *cache.Store
	store       merkle.Store

	kb     *kbucket.KBuckets
	client *transport.Client
	driver *search.Driver
	server *transport.Server

	mu   sync.RWMutex
	root merkle.Root
}

// Open constructs a Node from cfg: opens the sqlite store (wrapped in
// a ristretto cache when enabled), restores or creates the HBMM root,
// builds the routing table seeded with any configured bootstrap
// peers, and wires the search driver over a real gRPC client.
func Open(ctx context.Context, cfg config.Config, self kbucket.NodeId, rootKey *merkle.StoreKey) (*Node, error) {
	sqliteStore, err := storesqlite.Open(ctx, cfg.DataDir())
	if err != nil {
		return nil, err
	}

	var backing merkle.Store = sqliteStore
	var cacheStore *cache.Store
	if cfg.Store.CacheEnabled {
		opts := cache.DefaultOptions()
		if cfg.Store.CacheMaxBytes > 0 {
			opts.MaxCost = cfg.Store.CacheMaxBytes
		}
		cacheStore, err = cache.New(sqliteStore, opts)
		if err != nil {
			sqliteStore.Close()
			return nil, err
		}
		backing = cacheStore
	}

	root := merkle.New()
	if rootKey != nil {
		root, err = merkle.Restore(ctx, backing, *rootKey)
		if err != nil {
			sqliteStore.Close()
			return nil, err
		}
	}

	kb := kbucket.New(self, kbucket.HashWallet{}, nil)
	for _, addr := range cfg.Node.BootstrapPeers {
		id := kbucket.NodeId(addr) // resolved to a real ID during handshake in a full deployment
		kb.InsertItem(&kbucket.PeerItem{
			ID:     id,
			Key:    kbucket.KeyOf(kbucket.HashWallet{}, id),
			Object: kbucket.ServerDescriptor{Address: addr},
		})
	}

	clientOpts := transport.DefaultClientOptions()
	if cfg.Transport.DialTimeoutSeconds > 0 {
		clientOpts.DialTimeout = time.Duration(cfg.Transport.DialTimeoutSeconds) * time.Second
	}
	if cfg.Transport.CallsPerSecond > 0 {
		clientOpts.CallsPerSecond = cfg.Transport.CallsPerSecond
	}
	if cfg.Transport.MaxConcurrentCalls > 0 {
		clientOpts.MaxConcurrentCall = int64(cfg.Transport.MaxConcurrentCalls)
	}
	client := transport.NewClient(clientOpts)

	searchOpts := search.DefaultOptions()
	if cfg.Routing.Alpha > 0 {
		searchOpts.Alpha = cfg.Routing.Alpha
	}
	if cfg.Routing.EvictAfterFailures > 0 {
		searchOpts.EvictAfterFailures = uint32(cfg.Routing.EvictAfterFailures)
	}
	if cfg.Routing.FailurePenaltySeconds > 0 {
		searchOpts.FailurePenaltySeconds = int64(cfg.Routing.FailurePenaltySeconds)
	}
	driver := search.New(kb, client, searchOpts)

	n := &Node{
		cfg:         cfg,
		sqliteStore: sqliteStore,
		cacheStore:  cacheStore,
		store:       backing,
		kb:          kb,
		client:      client,
		driver:      driver,
		root:        root,
	}
	n.server = transport.NewServer(n, nil)
	return n, nil
}

// Close releases every owned resource.
func (n *Node) Close() error {
	if err := n.client.Close(); err != nil {
		logtrace.Warn(context.Background(), "error closing transport client", logtrace.Fields{logtrace.FieldError: err.Error()})
	}
	if n.cacheStore != nil {
		n.cacheStore.Close(context.Background())
	}
	return n.sqliteStore.Close()
}

// Root returns the current HBMM root handle.
func (n *Node) Root() merkle.Root {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.root
}

// Get reads a value straight from the local HBMM, without any
// network round trip.
func (n *Node) Get(ctx context.Context, key merkle.Key) (merkle.Value, bool, error) {
	return merkle.Get(ctx, n.store, n.Root(), key)
}

// Put inserts a value into the local HBMM and advances the node's
// root.
func (n *Node) Put(ctx context.Context, key merkle.Key, value merkle.Value) (merkle.Root, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	newRoot, err := merkle.Insert(ctx, n.store, n.root, key, value)
	if err != nil {
		return merkle.Root{}, err
	}
	n.root = newRoot
	return newRoot, nil
}

// Diff enumerates every key whose value differs between two roots
// this node's store can resolve, pruning subtrees shared between
// them (merkle.Diff).
func (n *Node) Diff(ctx context.Context, oldRoot, newRoot merkle.Root) ([]merkle.KeyChange, error) {
	return merkle.Diff(ctx, n.store, oldRoot, newRoot)
}

// FindNode implements transport.Handler by returning this node's own
// nearest known peers to target, the same responsibility
// network.go's handleFindNode discharges against its DHT's hashtable.
func (n *Node) FindNode(_ context.Context, target []byte) ([]*kbucket.PeerItem, error) {
	return n.kb.NearestN(target, effectiveBucketCapacity(n.cfg)), nil
}

// FindValue implements transport.Handler: answer with the value if
// this node holds target as an HBMM key, else behave like FindNode.
func (n *Node) FindValue(ctx context.Context, target []byte) (merkle.Value, bool, []*kbucket.PeerItem, error) {
	value, found, err := merkle.Get(ctx, n.store, n.Root(), merkle.Key(target))
	if err != nil {
		return nil, false, nil, err
	}
	if found {
		return value, true, nil, nil
	}
	return nil, false, n.kb.NearestN(target, effectiveBucketCapacity(n.cfg)), nil
}

// FindNodeSearch runs an iterative parallel FIND_NODE lookup against
// the network via the search driver.
func (n *Node) FindNodeSearch(ctx context.Context, target []byte) (search.Result, error) {
	return n.driver.FindNode(ctx, target)
}

// FindValueSearch runs an iterative parallel FIND_VALUE lookup.
func (n *Node) FindValueSearch(ctx context.Context, target []byte) (search.Result, error) {
	return n.driver.FindValue(ctx, target)
}

// Serve blocks accepting peer RPCs on lis.
func (n *Node) Serve(lis net.Listener) error {
	return n.server.Serve(lis)
}

// GracefulStop drains in-flight RPCs before returning.
func (n *Node) GracefulStop() { n.server.GracefulStop() }

func effectiveBucketCapacity(c config.Config) int {
	if c.Routing.BucketCapacity > 0 {
		return c.Routing.BucketCapacity
	}
	return kbucket.K
}

// NewNodeID generates a random 32-byte node identity, the same
// randomness source cli/key-generation flows in this corpus reach for
// (crypto/rand, not math/rand, since an identity is security
// sensitive).
func NewNodeID() (kbucket.NodeId, error) {
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, corekaderrors.Wrap(err, "node: generate node id")
	}
	return kbucket.NodeId(id), nil
}

// ParseStoreKey parses a hex-encoded StoreKey, as accepted from the
// --root CLI flag.
func ParseStoreKey(hexStr string) (merkle.StoreKey, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != len(merkle.StoreKey{}) {
		return merkle.StoreKey{}, corekaderrors.Errorf("node: invalid root key %q", hexStr)
	}
	var key merkle.StoreKey
	copy(key[:], raw)
	return key, nil
}
