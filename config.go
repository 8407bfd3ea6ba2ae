package hashgraph

import "time"

// Config carries the virtual voting consensus configuration. The protocol
// parameters must be identical on every node.
type Config struct {
	CoinFrequency    uint64 `toml:",omitempty"` // Every CoinFrequency'th voting round is a coin round (must be >= 3)
	MaxVotingRounds  uint64 `toml:",omitempty"` // Elections running longer than this many rounds are reported as stalled
	RoundsNonAncient uint64 `toml:",omitempty"` // Number of decided rounds whose events are kept. Older events are ancient and pruned

	OrphanRetention     uint64 `toml:",omitempty"` // How long (ms) an event with unknown parents is buffered before it is discarded
	OrphanSweepInterval uint64 `toml:",omitempty"` // How often (ms) the engine expires orphans

	MaxUnorderedSelfEvents uint64 `toml:",omitempty"` // Event creation stops while this many of our own events wait for consensus
	DiscardForks           bool   `toml:",omitempty"` // Drop, rather than link, the second event of a fork

	SeenCacheSize int `toml:",omitempty"` // Size of the recently seen event hash cache used for de-duplication
}

// DefaultConfig provides the default consensus configuration
var DefaultConfig = &Config{
	CoinFrequency:          10,
	MaxVotingRounds:        20,
	RoundsNonAncient:       26,
	OrphanRetention:        10000,
	OrphanSweepInterval:    1000,
	MaxUnorderedSelfEvents: 100,
	DiscardForks:           false,
	SeenCacheSize:          4096,
}

// OrphanRetentionDuration is OrphanRetention as a time.Duration
func (c *Config) OrphanRetentionDuration() time.Duration {
	return time.Duration(c.OrphanRetention) * time.Millisecond
}

// OrphanSweepDuration is OrphanSweepInterval as a time.Duration
func (c *Config) OrphanSweepDuration() time.Duration {
	return time.Duration(c.OrphanSweepInterval) * time.Millisecond
}
