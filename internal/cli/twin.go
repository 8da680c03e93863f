package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/twin"
)

var (
	twinAddr     string
	twinSeed     string
	twinToken    string
	twinPrefix   string
	twinFake     []string
	twinFakeSeed uint64
)

func init() {
	twinCmd.Flags().StringVar(&twinAddr, "addr", ":8080", "listen address")
	twinCmd.Flags().StringVar(&twinSeed, "seed", "", "JSON file of collection name to record array")
	twinCmd.Flags().StringVar(&twinToken, "token", "", "require this bearer token on API routes")
	twinCmd.Flags().StringVar(&twinPrefix, "prefix", "", "mount API routes under this path, e.g. /api")
	twinCmd.Flags().StringArrayVar(&twinFake, "fake", nil,
		"generate records as collection:count:field=type,... (repeatable); types: "+strings.Join(twin.FakeTypes(), ", "))
	twinCmd.Flags().Uint64Var(&twinFakeSeed, "fake-seed", 0, "seed for --fake data, 0 for random")
	rootCmd.AddCommand(twinCmd)
}

var twinCmd = &cobra.Command{
	Use:   "twin",
	Short: "Serve an in-memory stand-in of the search and update API for dry runs",
	Args:  cobra.NoArgs,
	RunE:  runTwin,
}

func runTwin(cmd *cobra.Command, args []string) error {
	ctx, log, err := newLogger(cmd.Context(), flagLogConfig())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store := twin.NewStore()
	if twinSeed != "" {
		if err := store.LoadFile(twinSeed); err != nil {
			return err
		}
		log.Info("loaded twin state", zap.String("seed", twinSeed))
	}

	for _, def := range twinFake {
		spec, err := twin.ParseFakeSpec(def)
		if err != nil {
			return err
		}
		if err := store.Fake(spec, twinFakeSeed); err != nil {
			return err
		}
		log.Info("generated twin records", zap.String("collection", spec.Collection), zap.Int("count", spec.Count))
	}

	opts := []twin.Option{twin.WithLogger(log)}
	if twinToken != "" {
		opts = append(opts, twin.WithToken(twinToken))
	}
	if twinPrefix != "" {
		opts = append(opts, twin.WithPrefix(twinPrefix))
	}

	return twin.NewServer(store, opts...).Serve(ctx, twinAddr)
}
