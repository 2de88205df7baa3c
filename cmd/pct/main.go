package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"prodcon/internal/config"
	"prodcon/internal/db"
	"prodcon/internal/events"
	"prodcon/internal/gitwalk"
	"prodcon/internal/importer"
	"prodcon/internal/migrate"
	"prodcon/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "pct",
	Short: "ProdCon tracker data importer",
	Long: `pct imports orchestrated build manifests from a version-control
repository's history into a local tracking database.

It walks every commit of the versions repository, finds build.xml manifests
under the configured path, normalizes each into builds, endpoints, packages
and blobs, and records them once per branch/build-number. Re-running is
safe: already-imported builds are skipped.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PRODCON")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
}

func importCmd() *cobra.Command {
	var (
		url      string
		path     string
		local    string
		work     string
		keepWork bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import orchestrated builds from repository history",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if url == "" {
				url = cfg.Repository.URL
			}
			if path == "" {
				path = cfg.Repository.Path
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			src, cleanup, err := openSource(cmd.Context(), logger, url, local, work, keepWork)
			if err != nil {
				return err
			}
			defer cleanup()

			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				imp := importer.Importer{Source: src, Store: r, RootPath: path, Log: logger}
				res, err := imp.Run(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "URL of the versions repository to clone")
	cmd.Flags().StringVar(&path, "path", "", "path within the repository containing the version data")
	cmd.Flags().StringVar(&local, "local", "", "import from an existing clone instead of cloning")
	cmd.Flags().StringVar(&work, "work", "", "working directory for the clone (kept afterwards when set)")
	cmd.Flags().BoolVar(&keepWork, "keep-work", false, "do not clean up the working directory")
	return cmd
}

// openSource clones the repository into a scratch directory, or opens an
// existing clone when --local is given. The returned cleanup removes the
// scratch clone unless the caller asked to keep it.
func openSource(ctx context.Context, logger *slog.Logger, url, local, work string, keepWork bool) (gitwalk.Source, func(), error) {
	if local != "" {
		src, err := gitwalk.Open(local)
		return src, func() {}, err
	}
	keep := keepWork
	if work == "" {
		work = filepath.Join(os.TempDir(), "prodcon-work-"+uuid.NewString())
	} else {
		keep = true
	}
	logger.Info("cloning repository", "url", url, "work", work)
	src, err := gitwalk.Clone(ctx, url, work)
	if err != nil {
		if !keep {
			os.RemoveAll(work)
		}
		return nil, nil, err
	}
	cleanup := func() {
		if !keep {
			logger.Debug("cleaning work directory", "work", work)
			os.RemoveAll(work)
		}
	}
	return src, cleanup, nil
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "build", Short: "Inspect imported builds"}
	cmd.AddCommand(buildListCmd())
	cmd.AddCommand(buildShowCmd())
	return cmd
}

func buildListCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List imported orchestrated builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrchestratedBuilds(ctx, branch)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "BRANCH", "BUILD", "STABLE", "STAMP")
				for _, b := range items {
					t.AppendRow(table.Row{b.OrchestratedBuildID, b.Branch, b.BuildNumber, b.IsStable, b.VersionStamp})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "filter by branch")
	return cmd
}

func buildShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one orchestrated build with its full graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				b, err := r.GetOrchestratedBuild(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "orchestrated build id (branch/buildNumber)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show entity counts in the tracking database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				stats, err := r.CountEntities(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				t := newTable("ENTITY", "COUNT")
				t.AppendRow(table.Row{"orchestrated builds", stats.OrchestratedBuilds})
				t.AppendRow(table.Row{"builds", stats.Builds})
				t.AppendRow(table.Row{"endpoints", stats.Endpoints})
				t.AppendRow(table.Row{"packages", stats.Packages})
				t.AppendRow(table.Row{"blobs", stats.Blobs})
				t.AppendRow(table.Row{"endpoint refs", stats.EndpointRefs})
				fmt.Println(t.Render())
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Import event log"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent import events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.TailEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "number of events")
	cmd.AddCommand(tail)
	return cmd
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn, Events: events.Writer{}})
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(headers))
	return t
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
