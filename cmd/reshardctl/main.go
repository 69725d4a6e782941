package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
	"github.com/pg-sharding/reshard/qdb"
)

var (
	qdbType      string
	qdbAddr      string
	memQdbBackup string
	logLevel     string

	sourceNss   string
	sourceUUID  string
	tempNss     string
	shardKey    []string
	donors      []string
	recipients  []string
	chunks      []string
	abortReason string
)

var rootCmd = &cobra.Command{
	Use: "reshardctl --qdb-addr localhost:2379",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return spqrlog.UpdateZeroLogLevel(logLevel)
	},
}

func openQDB() (qdb.QDB, error) {
	spqrlog.Zero.Debug().
		Str("type", qdbType).
		Str("address", qdbAddr).
		Msg("opening qdb")
	return qdb.NewQDB(qdbType, qdbAddr, memQdbBackup)
}

func withQDB(f func(ctx context.Context, db qdb.QDB, out io.Writer, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := openQDB()
		if err != nil {
			return err
		}
		if c, ok := db.(io.Closer); ok {
			defer func() {
				_ = c.Close()
			}()
		}
		return f(cmd.Context(), db, cmd.OutOrStdout(), args)
	}
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// parseShardKey parses "name:type[:hash]" column specs.
func parseShardKey(specs []string) ([]qdb.ShardKeyColumn, error) {
	if len(specs) == 0 {
		return nil, spqrerror.New(spqrerror.SPQR_INVALID_REQUEST, "shard key is empty")
	}
	cols := make([]qdb.ShardKeyColumn, len(specs))
	for i, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST, "invalid shard key column \"%s\"", spec)
		}
		cols[i] = qdb.ShardKeyColumn{Name: parts[0], Type: parts[1]}
		if len(parts) == 3 {
			cols[i].HashFunction = parts[2]
		}
	}
	if _, err := resharding.ShardKeyFromDB(cols); err != nil {
		return nil, spqrerror.Wrap(spqrerror.SPQR_INVALID_REQUEST, err)
	}
	return cols, nil
}

// parseChunks parses "lower_bound:shard" chunk specs.
func parseChunks(specs []string) ([]qdb.ChunkRange, error) {
	res := make([]qdb.ChunkRange, len(specs))
	for i, spec := range specs {
		bound, shard, ok := strings.Cut(spec, ":")
		if !ok || shard == "" {
			return nil, spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST, "invalid chunk \"%s\"", spec)
		}
		lower, err := strconv.ParseUint(bound, 10, 64)
		if err != nil {
			return nil, spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST, "invalid chunk bound \"%s\"", bound)
		}
		res[i] = qdb.ChunkRange{LowerBound: lower, ShardID: shard}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LowerBound < res[j].LowerBound
	})
	if len(res) == 0 || res[0].LowerBound != 0 {
		return nil, spqrerror.New(spqrerror.SPQR_INVALID_REQUEST, "chunks must cover the key space starting from 0")
	}
	return res, nil
}

func createOperation(ctx context.Context, db qdb.QDB, out io.Writer, _ []string) error {
	src, err := resharding.ParseNamespace(sourceNss)
	if err != nil {
		return err
	}
	tmp, err := resharding.ParseNamespace(tempNss)
	if err != nil {
		return err
	}
	key, err := parseShardKey(shardKey)
	if err != nil {
		return err
	}
	chunkRanges, err := parseChunks(chunks)
	if err != nil {
		return err
	}
	if len(donors) == 0 || len(recipients) == 0 {
		return spqrerror.New(spqrerror.SPQR_INVALID_REQUEST, "operation needs donor and recipient shards")
	}
	if _, err := uuid.Parse(sourceUUID); err != nil {
		return spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST, "invalid source collection uuid \"%s\"", sourceUUID)
	}

	if err := db.WriteRoutingInfo(ctx, &qdb.RoutingInfo{
		Nss:      tmp.String(),
		Version:  1,
		ShardKey: key,
		Chunks:   chunkRanges,
	}); err != nil {
		return err
	}

	doc := &qdb.CoordinatorDocument{
		ReshardingUUID:    uuid.New().String(),
		SourceNss:         src.String(),
		SourceUUID:        sourceUUID,
		TempReshardingNss: tmp.String(),
		ReshardingKey:     key,
		State:             qdb.CoordinatorPreparingToDonate,
		RecipientShards:   recipients,
	}
	for _, d := range donors {
		doc.DonorShards = append(doc.DonorShards, qdb.CoordinatorDonorEntry{
			ShardID:      d,
			MutableState: qdb.DonorMutableState{State: qdb.DonorUnused},
		})
	}
	if err := db.WriteCoordinatorDocument(ctx, doc); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "created resharding operation %s\n", doc.ReshardingUUID)
	return err
}

func listOperations(ctx context.Context, db qdb.QDB, out io.Writer, _ []string) error {
	docs, err := db.ListCoordinatorDocuments(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d resharding operations found\n", len(docs))
	for _, doc := range docs {
		fmt.Fprintf(out, "operation %s on %s in state %s\n", doc.ReshardingUUID, doc.SourceNss, doc.State)
		for _, d := range doc.DonorShards {
			fmt.Fprintf(out, "  donor %s: %s\n", d.ShardID, d.MutableState.State)
		}
	}
	return nil
}

func showOperation(ctx context.Context, db qdb.QDB, out io.Writer, args []string) error {
	doc, err := db.GetCoordinatorDocument(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(out, doc)
}

func listDonors(ctx context.Context, db qdb.QDB, out io.Writer, _ []string) error {
	docs, err := db.ListDonorDocuments(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, docs)
}

func setState(ctx context.Context, db qdb.QDB, out io.Writer, args []string) error {
	state := qdb.CoordinatorState(args[1])
	if _, err := resharding.CoordinatorStateFromDB(state); err != nil {
		return err
	}
	doc, err := db.GetCoordinatorDocument(ctx, args[0])
	if err != nil {
		return err
	}
	doc.State = state
	if err := db.WriteCoordinatorDocument(ctx, doc); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "operation %s is now in state %s\n", doc.ReshardingUUID, state)
	return err
}

func abortOperation(ctx context.Context, db qdb.QDB, out io.Writer, args []string) error {
	doc, err := db.GetCoordinatorDocument(ctx, args[0])
	if err != nil {
		return err
	}
	state, err := resharding.CoordinatorStateFromDB(doc.State)
	if err != nil {
		return err
	}
	if state >= resharding.CoordinatorDecisionPersisted && doc.AbortReason == nil {
		return spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST,
			"operation %s already persisted its decision to commit", doc.ReshardingUUID).
			WithHint("wait for the donors to finish and drop the source collection")
	}
	doc.AbortReason = &spqrerror.AbortReason{
		Code:    spqrerror.SPQR_RESHARDING_ABORTED,
		Message: abortReason,
	}
	if err := db.WriteCoordinatorDocument(ctx, doc); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "operation %s aborted\n", doc.ReshardingUUID)
	return err
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "create a resharding operation and broadcast it to its donors",
	RunE:  withQDB(createOperation),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list resharding operations",
	RunE:  withQDB(listOperations),
}

var showCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "show the coordinator document of an operation",
	Args:  cobra.ExactArgs(1),
	RunE:  withQDB(showOperation),
}

var donorsCmd = &cobra.Command{
	Use:   "donors",
	Short: "list donor records",
	RunE:  withQDB(listDonors),
}

var setStateCmd = &cobra.Command{
	Use:   "set-state <uuid> <state>",
	Short: "set the coordinator state of an operation",
	Args:  cobra.ExactArgs(2),
	RunE:  withQDB(setState),
}

var abortCmd = &cobra.Command{
	Use:   "abort <uuid>",
	Short: "abort a resharding operation",
	Args:  cobra.ExactArgs(1),
	RunE:  withQDB(abortOperation),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&qdbType, "qdb-type", "etcd", "qdb implementation, etcd or mem")
	rootCmd.PersistentFlags().StringVarP(&qdbAddr, "qdb-addr", "e", "localhost:2379", "qdb address")
	rootCmd.PersistentFlags().StringVar(&memQdbBackup, "memqdb-backup", "", "memqdb backup file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "error", "log level")

	createCmd.Flags().StringVar(&sourceNss, "source", "", "namespace being resharded")
	createCmd.Flags().StringVar(&sourceUUID, "source-uuid", "", "uuid of the collection being resharded")
	createCmd.Flags().StringVar(&tempNss, "temp", "", "temporary resharding namespace")
	createCmd.Flags().StringSliceVar(&shardKey, "key", nil, "new shard key column as name:type[:hash]")
	createCmd.Flags().StringSliceVar(&donors, "donor", nil, "donor shard id")
	createCmd.Flags().StringSliceVar(&recipients, "recipient", nil, "recipient shard id")
	createCmd.Flags().StringSliceVar(&chunks, "chunk", nil, "chunk of the new key space as lower_bound:shard")

	abortCmd.Flags().StringVar(&abortReason, "reason", "aborted by user", "abort reason")

	rootCmd.AddCommand(createCmd, listCmd, showCmd, donorsCmd, setStateCmd, abortCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		spqrlog.Zero.Fatal().Err(err).Msg("")
	}
}
