package vv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
)

var (
	ErrSnapshotInvalid = errors.New("consensus snapshot invalid")
	ErrStoreNotEmpty   = errors.New("snapshots can only be restored into an empty store")
)

// Snapshot is the consensus state needed to continue after a restart: the
// non ancient events with their ancestry and consensus fields and the
// undecided (or recently decided) rounds.
type Snapshot struct {
	DecidedBelow     uint64 // every round below this is decided
	MaxRound         uint64
	NextOrder        uint64
	AncientThreshold uint64
	AncientRound     uint64   // the round AncientThreshold was taken from
	Forkers          []uint64 // creator indices

	Rounds []RoundSnapshot
	Events []EventSnapshot // in link order
}

type RoundSnapshot struct {
	Round              uint64
	Decided            bool
	Stalled            bool
	MinJudgeGeneration uint64
}

type AncestorSnapshot struct {
	Seq     uint64
	Hash    Hash
	Present bool
}

type EventSnapshot struct {
	Event hashgraph.Event
	Hash  Hash

	Index      uint64
	Seq        uint64
	ReceivedAt uint64
	Last       []AncestorSnapshot
	ForkSeen   []bool

	Round              uint64
	Witness            bool
	Fame               uint64
	Judge              bool
	Ordered            bool
	RoundReceived      uint64
	ConsensusTimestamp uint64
	ConsensusOrder     uint64
}

// SnapshotStore persists snapshots. LoadSnapshot returns nil and no error if
// there is nothing saved.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// LastDecidedRound returns the latest decided round, false if none are
func (s *Snapshot) LastDecidedRound() (uint64, bool) {
	if s.DecidedBelow == 0 {
		return 0, false
	}
	return s.DecidedBelow - 1, true
}

// Snapshot captures the current consensus state. It must be called from the
// goroutine that adds records.
func (c *Consensus) Snapshot() *Snapshot {

	snap := &Snapshot{
		DecidedBelow:     c.decidedBelow,
		MaxRound:         c.maxRound,
		NextOrder:        c.nextOrder,
		AncientThreshold: c.store.AncientThreshold(),
		AncientRound:     c.ancientRound,
		Forkers:          c.store.forkerIndices(),
	}

	for r := range c.rounds {
		ri := c.rounds[r]
		snap.Rounds = append(snap.Rounds, RoundSnapshot{
			Round: ri.round, Decided: ri.decided, Stalled: ri.stalled,
			MinJudgeGeneration: ri.minJudgeGeneration,
		})
	}
	sortRoundSnapshots(snap.Rounds)

	for _, rec := range c.store.records() {
		es := EventSnapshot{
			Event:              *rec.event,
			Hash:               rec.hash,
			Index:              rec.index,
			Seq:                rec.seq,
			ReceivedAt:         hashgraph.UnixNano(rec.receivedAt),
			Last:               make([]AncestorSnapshot, len(rec.last)),
			ForkSeen:           append([]bool(nil), rec.forkSeen...),
			Round:              rec.round,
			Witness:            rec.witness,
			Fame:               uint64(rec.fame),
			Judge:              rec.judge,
			Ordered:            rec.ordered,
			RoundReceived:      rec.roundReceived,
			ConsensusTimestamp: rec.consensusTimestamp,
			ConsensusOrder:     rec.consensusOrder,
		}
		for i, a := range rec.last {
			es.Last[i] = AncestorSnapshot{Seq: a.seq, Hash: a.hash, Present: a.present}
		}
		snap.Events = append(snap.Events, es)
	}
	return snap
}

// Restore rebuilds the store and consensus state from snap. Both must be
// fresh. The restored records are returned in link order so the caller can
// bring anything else that follows the graph (the Creator) up to date.
// Nothing that was ordered before the snapshot is ordered again.
func (c *Consensus) Restore(snap *Snapshot) ([]*eventRecord, error) {

	if c.store.Len() != 0 || c.maxRound != 0 || c.nextOrder != 0 {
		return nil, ErrStoreNotEmpty
	}

	n := c.weights.Len()
	recs := make([]*eventRecord, 0, len(snap.Events))

	for i := range snap.Events {
		es := &snap.Events[i]

		creator, ok := c.weights.Index(es.Event.Creator)
		if !ok {
			return nil, fmt.Errorf("event %s creator %s not a member: %w",
				es.Hash.HexShort(), es.Event.Creator.HexShort(), ErrSnapshotInvalid)
		}
		if len(es.Last) != n || len(es.ForkSeen) != n {
			return nil, fmt.Errorf("event %s ancestry for %d nodes, have %d: %w",
				es.Hash.HexShort(), len(es.Last), n, ErrSnapshotInvalid)
		}

		e := es.Event
		rec := &eventRecord{
			hash:               es.Hash,
			event:              &e,
			index:              es.Index,
			creator:            creator,
			seq:                es.Seq,
			receivedAt:         time.Unix(0, int64(es.ReceivedAt)),
			last:               make([]ancestor, n),
			forkSeen:           append([]bool(nil), es.ForkSeen...),
			round:              es.Round,
			witness:            es.Witness,
			fame:               Fame(es.Fame),
			judge:              es.Judge,
			ordered:            es.Ordered,
			roundReceived:      es.RoundReceived,
			consensusTimestamp: es.ConsensusTimestamp,
			consensusOrder:     es.ConsensusOrder,
		}
		for j, a := range es.Last {
			rec.last[j] = ancestor{seq: a.Seq, hash: a.Hash, present: a.Present}
		}
		recs = append(recs, rec)
	}

	c.store.restoreThreshold(snap.AncientThreshold, snap.Forkers)
	for _, rec := range recs {
		c.store.restore(rec)
	}

	c.decidedBelow = snap.DecidedBelow
	c.ancientRound = snap.AncientRound
	c.maxRound = snap.MaxRound
	c.nextOrder = snap.NextOrder

	for _, rs := range snap.Rounds {
		c.rounds[rs.Round] = &roundInfo{
			round: rs.Round, decided: rs.Decided, stalled: rs.Stalled,
			minJudgeGeneration: rs.MinJudgeGeneration,
		}
	}
	for _, rec := range recs {
		if !rec.witness {
			continue
		}
		ri := c.rounds[rec.round]
		if ri == nil {
			continue
		}
		ri.witnesses = append(ri.witnesses, rec)
		if rec.judge {
			ri.judges = append(ri.judges, rec)
		}
	}
	for _, ri := range c.rounds {
		sortByCreator(ri.judges)
	}
	for _, rec := range recs {
		if rec.witness && rec.round > 0 {
			c.collectStronglySeen(rec)
		}
	}

	c.metrics.MaxRound.Set(float64(c.maxRound))
	c.metrics.StoreSize.Set(float64(c.store.Len()))
	if r, ok := c.DecidedRound(); ok {
		c.metrics.DecidedRound.Set(float64(r))
	}
	c.logger.Info("hashgraph consensus restored", "events", len(recs),
		"rounds", len(c.rounds), "decidedbelow", c.decidedBelow, "nextorder", c.nextOrder)

	return recs, nil
}

// EncodeSnapshot encodes snap with codec (rlp in practice)
func EncodeSnapshot(codec hashgraph.BytesEncoder, snap *Snapshot) ([]byte, error) {
	return codec.EncodeToBytes(snap)
}

func DecodeSnapshot(codec hashgraph.BytesDecoder, b []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := codec.DecodeBytes(b, snap); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrSnapshotInvalid)
	}
	return snap, nil
}

// MemSnapshotStore keeps the encoded latest snapshot in memory
type MemSnapshotStore struct {
	mu     sync.Mutex
	codec  hashgraph.BytesCodec
	latest []byte
	saves  int
}

func NewMemSnapshotStore(codec hashgraph.BytesCodec) *MemSnapshotStore {
	return &MemSnapshotStore{codec: codec}
}

func (m *MemSnapshotStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	b, err := EncodeSnapshot(m.codec, snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = b
	m.saves++
	return nil
}

func (m *MemSnapshotStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	b := m.latest
	m.mu.Unlock()
	if b == nil {
		return nil, nil
	}
	return DecodeSnapshot(m.codec, b)
}

// Saves is the number of snapshots saved
func (m *MemSnapshotStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
