// ctxctl is the operator CLI: it seeds the FHIR server, inspects patient
// contexts, runs one-off summaries and manages topics and schema.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/internal/app"
	"github.com/drfirst/go-clinctx/internal/config"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/infrastructure/redpanda"
	"github.com/drfirst/go-clinctx/internal/orchestrator"
	"github.com/drfirst/go-clinctx/migrations"
	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ctxctl",
		Short:         "Clinical context operator tool",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", "", "Path to .env file")

	rootCmd.AddCommand(loadCmd(), patientsCmd(), contextCmd(), summarizeCmd(), topicsCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and a logger for a command
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <dir>",
		Short: "Post every transaction bundle in a directory to the FHIR server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := app.NewFHIRClient(cfg, circuitbreaker.NewManager(logger), logger)
			if err != nil {
				return err
			}

			res, err := client.LoadDirectory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Posted %d bundle(s), skipped %d.\n", res.Posted, res.Skipped)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d bundle(s) failed: %v", len(res.Failed), res.Failed)
			}
			return nil
		},
	}
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients on the FHIR server",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := app.NewFHIRClient(cfg, circuitbreaker.NewManager(logger), logger)
			if err != nil {
				return err
			}

			patients, err := client.ListPatients(cmd.Context(), count)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tGENDER\tBIRTH DATE")
			for i := range patients {
				d := patientcontext.DemographicsFromPatient(&patients[i])
				birth := ""
				if !d.BirthDate.IsZero() {
					birth = d.BirthDate.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.PatientID, d.Name, d.Gender.Code, birth)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("count", 50, "Maximum number of patients")
	return cmd
}

type contextOutput struct {
	PatientID   string         `json:"patient_id"`
	Digest      string         `json:"digest"`
	Sections    map[string]int `json:"sections"`
	Skipped     []string       `json:"skipped,omitempty"`
	Unavailable []string       `json:"unavailable,omitempty"`
	Text        string         `json:"text"`
}

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <patient-id>",
		Short: "Print the aggregated clinical context of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := app.NewFHIRClient(cfg, circuitbreaker.NewManager(logger), logger)
			if err != nil {
				return err
			}

			built, err := orchestrator.NewBuilder(client, nil, cfg.Workers, logger).Build(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !asJSON {
				fmt.Println(built.Text)
				for _, s := range built.Skipped {
					fmt.Fprintln(os.Stderr, "skipped:", s)
				}
				return nil
			}

			out := contextOutput{
				PatientID: built.Context.PatientID(),
				Digest:    built.Digest,
				Sections:  built.SectionCounts(),
				Text:      built.Text,
			}
			for _, s := range built.Skipped {
				out.Skipped = append(out.Skipped, s.Error())
			}
			for _, k := range built.Unavailable {
				out.Unavailable = append(out.Unavailable, string(k))
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
	return cmd
}

func summarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize <patient-id>",
		Short: "Generate a consultation note for a patient without persisting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, _ := cmd.Flags().GetString("question")
			outFile, _ := cmd.Flags().GetString("out")

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			services, err := app.NewServices(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			defer services.Close()

			pipeline, err := services.Pipeline(nil, cfg.Workers, logger)
			if err != nil {
				return err
			}

			res, err := pipeline.Run(cmd.Context(), summary.RequestMessage{
				SummaryID:   uuid.New().String(),
				PatientID:   args[0],
				Question:    question,
				RequestedBy: "ctxctl",
			})
			if err != nil {
				return err
			}

			fmt.Println(res.Narrative)
			if outFile == "" {
				return nil
			}
			if err := os.WriteFile(outFile, res.Document.XML, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s (document %s)\n", outFile, res.Document.ID)
			return nil
		},
	}
	cmd.Flags().String("question", "", "Question for the consultation note")
	cmd.Flags().String("out", "", "Write the CDA document to this file")
	return cmd
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage Redpanda topics",
	}

	withAdmin := func(run func(ctx context.Context, admin *redpanda.Admin) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := cfg.RequireBrokers(); err != nil {
				return err
			}

			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()
			return run(cmd.Context(), admin)
		}
	}

	ensureCmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create missing topics and grow undersized ones",
	}
	ensureCmd.RunE = func(cmd *cobra.Command, args []string) error {
		replication, _ := cmd.Flags().GetInt16("replication")
		return withAdmin(func(ctx context.Context, admin *redpanda.Admin) error {
			if err := admin.EnsureTopics(ctx, redpanda.Topics, replication); err != nil {
				return err
			}
			fmt.Println("Topics ready.")
			return nil
		})(cmd, args)
	}
	ensureCmd.Flags().Int16("replication", 1, "Replication factor for new topics")
	cmd.AddCommand(ensureCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: withAdmin(func(ctx context.Context, admin *redpanda.Admin) error {
			topics, err := admin.ListTopics(ctx)
			if err != nil {
				return err
			}
			for _, t := range topics {
				fmt.Println(t)
			}
			return nil
		}),
	})

	lagCmd := &cobra.Command{
		Use:   "lag",
		Short: "Show consumer group lag",
	}
	lagCmd.RunE = func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		return withAdmin(func(ctx context.Context, admin *redpanda.Admin) error {
			rows, err := admin.GroupLag(ctx, group)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tPARTITION\tCOMMITTED\tEND\tLAG")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.Topic, r.Partition, r.Committed, r.End, r.Lag)
			}
			return w.Flush()
		})(cmd, args)
	}
	lagCmd.Flags().String("group", redpanda.DefaultConsumerConfig().GroupID, "Consumer group")
	cmd.AddCommand(lagCmd)

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(run func(ctx context.Context, m *migrations.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return run(cmd.Context(), migrations.New(pool, logger))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *migrations.Migrator) error {
			count, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withMigrator(func(ctx context.Context, m *migrations.Migrator) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, s := range statuses {
				applied := "pending"
				if s.AppliedAt != nil {
					applied = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, s.Name, applied)
			}
			return w.Flush()
		}),
	})

	return cmd
}
