// Package sim runs a network of consensus engines in process. Every event
// created is signed, gossiped to every node (including its creator) and
// delivered in a shuffled order so the orphan buffer gets exercised.
package sim

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/RobustRoundRobin/go-hashgraph/consensus/vv"
	"github.com/RobustRoundRobin/go-hashgraph/secp256k1suite"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDisagreement = errors.New("nodes disagree on the consensus order")
)

// Options configure a Network. Zero values get defaults.
type Options struct {
	Nodes      int
	Seed       int64
	Batch      int // events created between deliveries
	TxPerEvent int

	Config *hashgraph.Config
	Logger hashgraph.Logger

	// Keys, if set, are the node keys. Otherwise keys are generated.
	Keys []*ecdsa.PrivateKey

	// Weights, if set, gives each node (by index) its stake
	Weights []uint64

	// Snapshots, if set, provides the snapshot store for node i
	Snapshots func(i int) vv.SnapshotStore
}

// Node is one member of the network
type Node struct {
	Index  int
	ID     hashgraph.Hash
	Key    *ecdsa.PrivateKey
	Engine *vv.Engine

	mu      sync.Mutex
	ordered []vv.Ordered
	inbox   [][]byte
	txs     int
}

func (n *Node) output(ordered []vv.Ordered) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ordered = append(n.ordered, ordered...)
}

func (n *Node) transactions(count int) vv.TransactionSupplier {
	return func() [][]byte {
		txs := make([][]byte, 0, count)
		for i := 0; i < count; i++ {
			n.txs++
			txs = append(txs, []byte(fmt.Sprintf("node%d-tx%d", n.Index, n.txs)))
		}
		return txs
	}
}

// Ordered returns a copy of what the node has ordered so far
func (n *Node) Ordered() []vv.Ordered {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]vv.Ordered(nil), n.ordered...)
}

type Network struct {
	opts    Options
	codec   *hashgraph.CipherCodec
	logger  hashgraph.Logger
	weights *hashgraph.WeightTable

	Nodes []*Node

	rng     *rand.Rand
	created int
	held    int // creation attempts refused by backpressure
}

func NewNetwork(opts Options) (*Network, error) {

	if opts.Nodes <= 0 {
		opts.Nodes = len(opts.Keys)
	}
	if opts.Nodes <= 0 {
		opts.Nodes = 4
	}
	if opts.Batch <= 0 {
		opts.Batch = 1
	}
	if opts.Config == nil {
		config := *hashgraph.DefaultConfig
		opts.Config = &config
	}
	if opts.Logger == nil {
		opts.Logger = NewLogger(0)
	}

	net := &Network{
		opts:   opts,
		codec:  secp256k1suite.NewCodec(),
		logger: opts.Logger,
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}

	weights := make(map[hashgraph.Hash]uint64)
	for i := 0; i < opts.Nodes; i++ {
		var key *ecdsa.PrivateKey
		if i < len(opts.Keys) {
			key = opts.Keys[i]
		} else {
			var err error
			if key, err = secp256k1suite.GenerateKey(); err != nil {
				return nil, err
			}
		}
		node := &Node{Index: i, Key: key, ID: net.codec.NodeIDFromPub(&key.PublicKey)}
		net.Nodes = append(net.Nodes, node)

		weights[node.ID] = 1
		if i < len(opts.Weights) {
			weights[node.ID] = opts.Weights[i]
		}
	}

	var err error
	if net.weights, err = hashgraph.NewWeightTable(weights); err != nil {
		return nil, err
	}

	for _, node := range net.Nodes {
		engineOpts := []vv.EngineOption{
			vv.WithOutput(node.output),
			vv.WithTransactionSupplier(node.transactions(opts.TxPerEvent)),
		}
		if opts.Snapshots != nil {
			if s := opts.Snapshots(node.Index); s != nil {
				engineOpts = append(engineOpts, vv.WithSnapshotStore(s))
			}
		}
		node.Engine, err = vv.New(opts.Config, net.codec, net.weights, node.ID,
			opts.Logger, engineOpts...)
		if err != nil {
			return nil, err
		}
	}
	return net, nil
}

func (net *Network) Weights() *hashgraph.WeightTable {
	return net.weights
}

// Created is the number of events created so far
func (net *Network) Created() int {
	return net.created
}

func (net *Network) Start(ctx context.Context) error {
	for _, node := range net.Nodes {
		if err := node.Engine.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every engine, saving snapshots where configured
func (net *Network) Stop(ctx context.Context) error {
	var errs []error
	for _, node := range net.Nodes {
		if err := node.Engine.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", node.Index, err))
		}
	}
	return errors.Join(errs...)
}

// Run creates steps events, delivering them in batches, then delivers
// anything still in flight
func (net *Network) Run(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := net.Step(); err != nil {
			return err
		}
		if (i+1)%net.opts.Batch == 0 {
			if err := net.Deliver(ctx); err != nil {
				return err
			}
		}
	}
	return net.Deliver(ctx)
}

// Step has a randomly chosen node create an event and queues it for every
// node
func (net *Network) Step() error {

	node := net.Nodes[net.rng.Intn(len(net.Nodes))]

	created, err := node.Engine.CreateEvent()
	if err != nil {
		return err
	}
	if created == nil {
		net.held++
		return nil
	}

	h, raw, err := net.codec.EncodeSignEvent(created.Event, node.Key)
	if err != nil {
		return err
	}
	if h != created.Hash {
		return fmt.Errorf("node %d created event hash mismatch", node.Index)
	}
	net.created++

	for _, n := range net.Nodes {
		n.inbox = append(n.inbox, raw)
	}
	return nil
}

// Deliver hands every node its queued events, shuffled, with the nodes
// ingesting in parallel
func (net *Network) Deliver(ctx context.Context) error {

	for _, n := range net.Nodes {
		net.rng.Shuffle(len(n.inbox), func(i, j int) {
			n.inbox[i], n.inbox[j] = n.inbox[j], n.inbox[i]
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, n := range net.Nodes {
		n := n
		inbox := n.inbox
		n.inbox = nil

		g.Go(func() error {
			for _, raw := range inbox {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := net.deliver(n, raw); err != nil {
					return fmt.Errorf("node %d: %w", n.Index, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// deliver plays the part of the transport: check the signature then hand the
// event to the engine
func (net *Network) deliver(n *Node, raw []byte) error {

	se, h, err := net.codec.DecodeSignedEvent(raw)
	if err != nil {
		return err
	}
	_, err = n.Engine.HandleEvent(hashgraph.RawEvent{
		Raw:            raw,
		SignatureValid: net.codec.VerifySignedEvent(se, h),
		ReceivedAt:     time.Now(),
	})
	return err
}

// Sync waits until every node has run consensus over everything delivered
func (net *Network) Sync() error {
	for _, n := range net.Nodes {
		if _, err := n.Engine.Snapshot(); err != nil {
			return err
		}
	}
	return nil
}

// CheckAgreement compares the consensus order of every node against the
// first. Nodes may be behind each other but must agree on their common
// prefix. It returns the length of the shortest order.
func (net *Network) CheckAgreement() (int, error) {

	reference := net.Nodes[0].Ordered()
	shortest := len(reference)

	for _, n := range net.Nodes[1:] {
		ordered := n.Ordered()
		if len(ordered) < shortest {
			shortest = len(ordered)
		}
		for i := 0; i < len(ordered) && i < len(reference); i++ {
			a, b := reference[i], ordered[i]
			if a.Hash != b.Hash || a.Order != b.Order || a.Timestamp != b.Timestamp {
				return 0, fmt.Errorf("node %d at %d has %s, node 0 has %s: %w",
					n.Index, i, b.Hash.HexShort(), a.Hash.HexShort(), ErrDisagreement)
			}
		}
	}
	return shortest, nil
}
