// dlqctl is the operational CLI for dead letter records exported to a JSONL
// file (the FileSink format). It lists, inspects, requeues and replays
// records, rewriting the file with the updated lifecycle state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
	"github.com/mjones3/event-governance-poc-sub000/dlq"
	"github.com/mjones3/event-governance-poc-sub000/messaging"
	"github.com/mjones3/event-governance-poc-sub000/transports/kafka"
)

var (
	dlqFile    string
	brokers    []string
	actor      string
	filterKind string
	statusFlag string
	moduleFlag string
	limitFlag  int
)

var rootCmd = &cobra.Command{
	Use:   "dlqctl",
	Short: "Inspect and replay dead letter records",
	Long: `dlqctl operates on a JSONL dead letter file: list and inspect records,
requeue failed ones, and replay them to Kafka.`,
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter records",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}

		records, err := store.List(context.Background(), buildFilter())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DLQ ID\tMODULE\tEVENT TYPE\tKIND\tPRIORITY\tSTATUS\tRETRIES\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.DLQID, r.Module, r.EventType, r.ErrorKind, r.Priority,
				r.Status, r.RetryCount, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <dlq-id>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}

		record, err := store.Get(context.Background(), args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}

		stats, err := store.Stats(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("total: %d\n", stats.Total)
		fmt.Println("by kind:")
		for kind, n := range stats.ByKind {
			fmt.Printf("  %s: %d\n", kind, n)
		}
		fmt.Println("by status:")
		for status, n := range stats.ByStatus {
			fmt.Printf("  %s: %d\n", status, n)
		}
		fmt.Println("by priority:")
		for priority, n := range stats.ByPriority {
			fmt.Printf("  %s: %d\n", priority, n)
		}
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <dlq-id>",
	Short: "Move a FAILED record back to PENDING",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}

		svc := dlq.NewReprocessingService(store, nopRepublisher{})
		if err := svc.Requeue(context.Background(), args[0], actor); err != nil {
			return err
		}

		fmt.Printf("requeued %s\n", args[0])
		return persistStore(store)
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [dlq-id]",
	Short: "Replay records to Kafka",
	Long: `Replay one record by ID, or every pending/failed record matching the
filter flags when no ID is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}

		broker, err := kafka.NewBroker(brokers)
		if err != nil {
			return fmt.Errorf("failed to connect to kafka: %w", err)
		}
		defer broker.Close()

		svc := dlq.NewReprocessingService(store, brokerRepublisher{broker})
		ctx := context.Background()

		if len(args) == 1 {
			result, err := svc.Reprocess(ctx, args[0], actor)
			if err != nil {
				return err
			}
			if result.AlreadyCompleted {
				fmt.Printf("%s already completed, nothing to do\n", result.DLQID)
			} else {
				fmt.Printf("%s -> %s\n", result.DLQID, result.Status)
			}
			return persistStore(store)
		}

		result, err := svc.ReprocessBatch(ctx, buildFilter(), actor)
		if err != nil {
			return err
		}
		fmt.Printf("selected %d, succeeded %d, failed %d, skipped %d\n",
			result.Selected, result.Succeeded, result.Failed, result.Skipped)
		return persistStore(store)
	},
}

// nopRepublisher backs flows that never publish, like requeue
type nopRepublisher struct{}

func (nopRepublisher) Republish(ctx context.Context, topic, key string, payload []byte) error {
	return fmt.Errorf("republishing not available")
}

type brokerRepublisher struct {
	broker messaging.Broker
}

func (r brokerRepublisher) Republish(ctx context.Context, topic, key string, payload []byte) error {
	return r.broker.Publish(ctx, topic, key, payload)
}

func loadStore() (*dlq.InMemoryStore, error) {
	sink := dlq.NewFileSink(dlqFile)
	records, err := sink.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", dlqFile, err)
	}

	store := dlq.NewInMemoryStore()
	ctx := context.Background()
	for _, record := range records {
		if err := store.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to load record %s: %w", record.DLQID, err)
		}
	}
	return store, nil
}

func persistStore(store *dlq.InMemoryStore) error {
	records, err := store.List(context.Background(), dlq.ListFilter{})
	if err != nil {
		return err
	}

	f, err := os.Create(dlqFile)
	if err != nil {
		return fmt.Errorf("failed to rewrite %s: %w", dlqFile, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to write record %s: %w", record.DLQID, err)
		}
	}
	return nil
}

func buildFilter() dlq.ListFilter {
	filter := dlq.ListFilter{
		Module: moduleFlag,
		Limit:  limitFlag,
	}
	if filterKind != "" {
		filter.Kinds = []contracts.ErrorKind{contracts.ErrorKind(strings.ToUpper(filterKind))}
	}
	if statusFlag != "" {
		filter.Statuses = []contracts.Status{contracts.Status(strings.ToUpper(statusFlag))}
	}
	return filter
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dlqFile, "file", "f", "dlq.jsonl", "dead letter JSONL file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "dlqctl", "actor recorded on lifecycle changes")
	rootCmd.PersistentFlags().StringVar(&filterKind, "kind", "", "filter by error kind (e.g. SCHEMA_VALIDATION)")
	rootCmd.PersistentFlags().StringVar(&statusFlag, "status", "", "filter by status (e.g. FAILED)")
	rootCmd.PersistentFlags().StringVar(&moduleFlag, "module", "", "filter by module")
	rootCmd.PersistentFlags().IntVar(&limitFlag, "limit", 0, "max records to list")

	reprocessCmd.Flags().StringSliceVar(&brokers, "brokers", []string{"localhost:9092"}, "kafka broker addresses")

	rootCmd.AddCommand(listCmd, showCmd, statsCmd, requeueCmd, reprocessCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
