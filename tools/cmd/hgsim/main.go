package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"time"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/RobustRoundRobin/go-hashgraph/consensus/vv"
	"github.com/RobustRoundRobin/go-hashgraph/secp256k1suite"
	"github.com/RobustRoundRobin/go-hashgraph/sqlitestore"
	"github.com/RobustRoundRobin/go-hashgraph/tools/sim"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"gopkg.in/urfave/cli.v1"
)

var (
	// Git information set by linker when building with ci.go.
	gitCommit string
	gitDate   string
	app       = &cli.App{
		Name:        filepath.Base(os.Args[0]),
		Usage:       "Hashgraph virtual voting consensus simulator",
		Version:     params.VersionWithCommit(gitCommit, gitDate),
		Writer:      os.Stdout,
		HideVersion: true,
	}
)

func init() {
	// Set up the CLI app.

	app.CommandNotFound = func(ctx *cli.Context, cmd string) {
		fmt.Fprintf(os.Stderr, "No such command: %s\n", cmd)
		os.Exit(1)
	}

	// Add subcommands.
	app.Commands = []cli.Command{
		keygenCommand,
		runCommand,
	}
}

var keygenCommand = cli.Command{
	Name:   "keygen",
	Usage:  "Generate node keys for a simulated network",
	Action: keygen,
	Flags: []cli.Flag{
		cli.IntFlag{Name: "nodes", Value: 4, Usage: "number of node keys to generate"},
		cli.StringFlag{Name: "datadir", Value: ".", Usage: "directory the key files are written to"},
	},
}

var runCommand = cli.Command{
	Name:   "run",
	Usage:  "Run a simulated network and print the consensus order of the first node",
	Action: run,
	Flags: []cli.Flag{
		cli.IntFlag{Name: "nodes", Value: 4, Usage: "number of nodes, ignored if keys are loaded from datadir"},
		cli.IntFlag{Name: "steps", Value: 200, Usage: "number of events to create"},
		cli.IntFlag{Name: "batch", Value: 1, Usage: "events created between gossip deliveries"},
		cli.IntFlag{Name: "txs", Value: 1, Usage: "transactions per event"},
		cli.Int64Flag{Name: "seed", Value: 1, Usage: "seed for the choice of creator and the delivery order"},
		cli.StringFlag{Name: "datadir", Usage: "load node keys written by keygen from this directory"},
		cli.StringFlag{Name: "snapshots", Usage: "persist node snapshots to sqlite databases in this directory"},
		cli.StringFlag{Name: "weights", Usage: "json file with the list of node weights, in key order"},
		cli.Uint64Flag{Name: "coinfrequency", Value: hashgraph.DefaultConfig.CoinFrequency, Usage: "every n'th voting round is a coin round"},
		cli.Uint64Flag{Name: "nonancient", Value: hashgraph.DefaultConfig.RoundsNonAncient, Usage: "decided rounds kept before events are pruned"},
		cli.IntFlag{Name: "verbosity", Value: int(log.LvlWarn), Usage: "log level 0-5"},
		cli.BoolFlag{Name: "quiet", Usage: "only print the summary"},
	},
}

func keyFile(dataDir string, i int) string {
	return filepath.Join(dataDir, fmt.Sprintf("node%d.key", i))
}

func keygen(ctx *cli.Context) error {

	dataDir := ctx.String("datadir")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return err
	}
	codec := secp256k1suite.NewCodec()

	for i := 0; i < ctx.Int("nodes"); i++ {
		key, err := secp256k1suite.GenerateKey()
		if err != nil {
			return err
		}
		path := keyFile(dataDir, i)
		if err := crypto.SaveECDSA(path, key); err != nil {
			return fmt.Errorf("file `%s':%w", path, err)
		}
		fmt.Printf("%02d %s %s\n", i, codec.NodeIDFromPub(&key.PublicKey).Hex(), path)
	}
	return nil
}

func loadKeys(dataDir string) ([]*ecdsa.PrivateKey, error) {
	var keys []*ecdsa.PrivateKey
	for i := 0; ; i++ {
		path := keyFile(dataDir, i)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		key, err := crypto.LoadECDSA(path)
		if err != nil {
			return nil, fmt.Errorf("file `%s':%w", path, err)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no node keys found in `%s'", dataDir)
	}
	return keys, nil
}

func run(ctx *cli.Context) error {

	config := *hashgraph.DefaultConfig
	config.CoinFrequency = ctx.Uint64("coinfrequency")
	config.RoundsNonAncient = ctx.Uint64("nonancient")

	opts := sim.Options{
		Nodes:      ctx.Int("nodes"),
		Seed:       ctx.Int64("seed"),
		Batch:      ctx.Int("batch"),
		TxPerEvent: ctx.Int("txs"),
		Config:     &config,
		Logger:     sim.NewLogger(log.Lvl(ctx.Int("verbosity"))),
	}

	if dataDir := ctx.String("datadir"); dataDir != "" {
		keys, err := loadKeys(dataDir)
		if err != nil {
			return err
		}
		opts.Keys = keys
		opts.Nodes = len(keys)
	}

	if path := ctx.String("weights"); path != "" {
		if err := common.LoadJSON(path, &opts.Weights); err != nil {
			return fmt.Errorf("loading file `%s': %v", path, err)
		}
	}

	if dir := ctx.String("snapshots"); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		stores := make([]*sqlitestore.Store, opts.Nodes)
		for i := range stores {
			s, err := sqlitestore.Open(
				filepath.Join(dir, fmt.Sprintf("node%d.db", i)), &secp256k1suite.BytesCodec{})
			if err != nil {
				return err
			}
			defer s.Close()
			stores[i] = s
		}
		opts.Snapshots = func(i int) vv.SnapshotStore { return stores[i] }
	}

	net, err := sim.NewNetwork(opts)
	if err != nil {
		return err
	}

	bg := context.Background()
	start := time.Now()
	if err := net.Start(bg); err != nil {
		return err
	}
	err = net.Run(bg, ctx.Int("steps"))
	if err == nil {
		err = net.Sync()
	}
	if stopErr := net.Stop(bg); err == nil {
		err = stopErr
	}
	if err != nil {
		return err
	}

	ordered := net.Nodes[0].Ordered()
	if !ctx.Bool("quiet") {
		weights := net.Weights()
		for _, o := range ordered {
			creator, _ := weights.Index(o.Event.Creator)
			fmt.Printf("%6d r%-4d %s %s c%02d txs %d\n",
				o.Order, o.Round, time.Unix(0, int64(o.Timestamp)).UTC().Format(time.RFC3339Nano),
				o.Hash.HexShort(), creator, len(o.Transactions))
		}
	}

	agreed, err := net.CheckAgreement()
	if err != nil {
		return err
	}
	fmt.Printf("nodes %d created %d ordered %d agreed %d in %v\n",
		len(net.Nodes), net.Created(), len(ordered), agreed, time.Since(start))
	return nil
}

func main() {
	exit(app.Run(os.Args))
}

func exit(err interface{}) {
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
