package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"buurtstat/adapters/api"
	"buurtstat/adapters/extract"
	"buurtstat/adapters/postgres"
	"buurtstat/app"
	"buurtstat/domain/core"
	"buurtstat/internal/config"
	apperrors "buurtstat/internal/errors"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	rootCmd := &cobra.Command{
		Use:   "buurtstat",
		Short: "Neighborhood inequality analysis pipeline and results server",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newDownloadCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if apperrors.IsAppError(err) {
			fmt.Fprintf(os.Stderr, "[%s] %v\n", apperrors.GetCode(err), err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// describeFailure adds a phase hint for known failure classes so the
// operator sees what to fix without reading a stack of wrapped errors.
func describeFailure(err error) error {
	switch {
	case core.IsFatalExtractError(err):
		return fmt.Errorf("raw data files are unusable, check SURVEY_FILE and ADMIN_FILE: %w", err)
	case core.IsMergeInvariantError(err):
		return fmt.Errorf("hierarchical merge produced inconsistent rows: %w", err)
	case core.IsEstimationError(err):
		return fmt.Errorf("model estimation failed on the analysis sample: %w", err)
	}
	return err
}

func newRunCmd() *cobra.Command {
	var useAPI bool
	var noOccupation bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the complete ETL and analysis pipeline",
		Long: `Run the full sequence: extract survey and CBS administrative data,
derive the geographic hierarchy, merge, recode, fit the multilevel
model sequences, and write tables, the results summary, and the
analysis report.

Example: buurtstat run --use-api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if useAPI {
				cfg.CBS.UseAPI = true
			}
			if noOccupation {
				cfg.Survey.IncludeOccupation = false
			}

			var store app.ResultsStore
			if cfg.Database.URL != "" {
				db, err := postgres.Connect(cmd.Context(), cfg.Database.URL)
				if err != nil {
					return err
				}
				defer db.Close()
				store = postgres.NewResultsRepository(db)
			}

			summary, err := app.NewPipeline(cfg, store).Run(cmd.Context())
			if err != nil {
				return describeFailure(err)
			}

			fmt.Println("\n=== PIPELINE COMPLETE ===")
			fmt.Printf("Observations: %d\n", summary.Sample.AnalysisN)
			fmt.Printf("Neighborhoods: %d\n", summary.Sample.Buurten)
			fmt.Printf("ICC: %.4f\n", summary.ICC.ICC)
			if len(summary.KeyEffect.Models) > 0 {
				last := summary.KeyEffect.Models[len(summary.KeyEffect.Models)-1]
				fmt.Printf("Key coefficient: %.3f (SE=%.3f)\n", last.Estimate, last.SE)
			}
			fmt.Printf("Outputs saved to: %s\n", cfg.Paths.OutputDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useAPI, "use-api", false, "Download fresh data from the CBS API instead of local files")
	cmd.Flags().BoolVar(&noOccupation, "no-occupation", false, "Exclude occupation from the analysis sample (keeps more cases)")

	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analysis results over HTTP",
		Long: `Serve the precomputed results summary and generated tables for the
dashboard. When DATABASE_URL is set the latest stored run is served,
with the results file on disk as fallback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			fileSource := api.NewFileSource(cfg.Paths.ResultsFile)
			serverCfg := api.Config{
				Port:           cfg.Server.Port,
				Source:         fileSource,
				RegressionFile: cfg.Paths.RegressionFile,
				ReportFile:     filepath.Join(cfg.Paths.OutputDir, "analysis_report.html"),
				TableFile:      cfg.Paths.ProcessedFile,
			}

			if cfg.Database.URL != "" {
				db, err := postgres.Connect(cmd.Context(), cfg.Database.URL)
				if err != nil {
					return err
				}
				defer db.Close()
				serverCfg.Source = postgres.NewResultsRepository(db)
				serverCfg.Fallback = fileSource
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.NewServer(serverCfg).Start(ctx)
		},
	}
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var year string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download CBS neighborhood indicators and save them locally",
		Long: `Fetch the configured CBS StatLine table, standardize its columns, and
write the result to the admin data path for later pipeline runs.

Example: buurtstat download --year 2018`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if year == "" {
				year = cfg.CBS.Year
			}

			client := extract.NewCBSClient(cfg.CBS.BaseURL, cfg.CBS.TableID)
			data, err := client.DownloadAndSave(cmd.Context(), year, cfg.Paths.AdminFile)
			if err != nil {
				return err
			}

			fmt.Printf("Downloaded %d regions to %s\n", data.NumRows(), cfg.Paths.AdminFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&year, "year", "", "Reporting year to filter (defaults to CBS_YEAR)")

	return cmd
}
