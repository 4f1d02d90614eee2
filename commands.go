package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"open-dio/loader"
	"open-dio/metrics"
	"open-dio/models"
	"open-dio/services"
	"open-dio/storage"
	"open-dio/utils"
)

// ghgCategory is the impact category the lay comparisons are computed from.
const ghgCategory = "GHG"

var (
	buildRequestPath string
	requestPath      string
	categories       []string
	jsonOutput       bool
	source           string
	priorityOnly     bool

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the engine from the configured inputs and publish the multiplier artifact",
		Args:  cobra.NoArgs,
		RunE:  runBuild,
	}

	calculateCmd = &cobra.Command{
		Use:   "calculate",
		Short: "Evaluate a spending request against published multipliers",
		Args:  cobra.NoArgs,
		RunE:  runCalculate,
	}

	compareCmd = &cobra.Command{
		Use:   "compare [kg CO2e]",
		Short: "Express a GHG total as everyday equivalents",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompare,
	}

	sectorsCmd = &cobra.Command{
		Use:   "sectors [query]",
		Short: "List sectors of the registry, optionally filtered",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSectors,
	}
)

func init() {
	buildCmd.Flags().StringVar(&buildRequestPath, "request", "", "evaluate this spending request with the freshly built engine")
	calculateCmd.Flags().StringVarP(&requestPath, "request", "r", "-", "spending request JSON file (- for stdin)")
	calculateCmd.Flags().StringSliceVarP(&categories, "categories", "c", nil, "only compute these impact categories")
	calculateCmd.Flags().StringVar(&source, "source", "json", "multiplier source: json, sqlite or postgres")
	calculateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	sectorsCmd.Flags().BoolVar(&priorityOnly, "priority", false, "only priority-relevant sectors")

	rootCmd.AddCommand(buildCmd, calculateCmd, compareCmd, sectorsCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func retryConfig() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger}
}

func runBuild(cmd *cobra.Command, _ []string) error {
	logger.Info("=== EEIO build starting ===")
	logger.Info("Config: model %s | workers: %d | timeout: %s", model.ModelVersion, cfg.Workers, cfg.BuildTimeout)

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.BuildTimeout)
	defer cancel()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	defer flushMetrics(registry)

	inputs, err := loader.LoadBuildInputs(ctx, loader.Paths{
		Sectors:          cfg.SectorsPath,
		SectorOutputs:    cfg.SectorOutputPath,
		EconomicFlows:    cfg.EconomicFlowsPath,
		EnvironmentFlows: cfg.EnvironmentFlowsPath,
		ProcessSectors:   cfg.ProcessSectorsPath,
		Characterization: cfg.CharacterizationPath,
		Crosswalk:        cfg.CrosswalkPath,
	})
	if err != nil {
		return err
	}
	logger.Info("Loaded %d sectors, %d economic records, %d environmental flows",
		len(inputs.Sectors), len(inputs.EconomicFlows), len(inputs.EnvironmentFlows))

	var holder services.EngineHolder
	pipeline := services.NewPipeline(model, cfg.Workers, logger, collector)
	engine, report, err := pipeline.Rebuild(ctx, &holder, inputs)
	if err != nil {
		if report != nil && report.Malformed.Total > 0 {
			logger.Warn("%d economic records were skipped before the failure", report.Malformed.Total)
		}
		return fmt.Errorf("build failed, nothing published: %w", err)
	}

	pub := &storage.Publication{
		BuildID:      engine.BuildID,
		ModelVersion: engine.ModelVersion,
		CreatedAt:    report.StartedAt,
		Categories:   engine.Categories,
		Table:        engine.Multipliers,
		Report:       report,
	}
	if err := publish(ctx, pub); err != nil {
		return err
	}

	if cfg.UnclassifiedCSVPath != "" && engine.Unclassified.Len() > 0 {
		if err := storage.WriteUnclassifiedCSV(cfg.UnclassifiedCSVPath, engine.Unclassified); err != nil {
			logger.Error("Unclassified flow export failed: %v", err)
		} else {
			logger.Info("Unclassified flows saved to %s", cfg.UnclassifiedCSVPath)
		}
	}

	printer := services.NewReportPrinter(cmd.OutOrStdout())
	printer.PrintBuild(report, engine)

	if buildRequestPath != "" {
		inputs, err := loader.LoadSpendingRequest(buildRequestPath)
		if err != nil {
			return err
		}
		current := holder.Load()
		res := current.Calculator.Calculate(inputs)
		collector.ObserveCalculation(res)
		printer.PrintCalculation(res, current.Comparisons.Equivalents(res.ImpactsByCategory[ghgCategory]))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  Done. Artifact: %s | Build %s\n\n", cfg.ArtifactPath, engine.BuildID)
	return nil
}

// publish writes the artifact first; the other backends are best effort.
func publish(ctx context.Context, pub *storage.Publication) error {
	if err := storage.NewJSONWriter(cfg.ArtifactPath).Write(ctx, pub); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	logger.Info("Multiplier artifact saved to %s", cfg.ArtifactPath)

	var writers []storage.MultiplierWriter
	if cfg.MultipliersCSVPath != "" {
		writers = append(writers, storage.NewMultiplierCSV(cfg.MultipliersCSVPath))
	}
	if cfg.SQLitePath != "" {
		w, err := storage.NewSQLiteWriter(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to open SQLite store: %v", err)
		} else {
			writers = append(writers, w)
		}
	}
	if cfg.PostgresEnabled {
		w, err := storage.NewPostgresWriter(ctx, cfg.DSN(), retryConfig())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
		} else {
			writers = append(writers, w)
		}
	}

	for _, w := range writers {
		if err := w.Write(ctx, pub); err != nil {
			logger.Error("Multiplier write failed (%T): %v", w, err)
		} else {
			logger.Info("Multipliers stored (%T)", w)
		}
		_ = w.Close()
	}
	return nil
}

func runCalculate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	table, err := loadTable(ctx)
	if err != nil {
		return err
	}

	rows, err := loader.LoadCrosswalk(cfg.CrosswalkPath)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].ExternalCodePrefix = services.NormaliseExternalCode(rows[i].ExternalCodePrefix)
		rows[i].InternalSectorCode = strings.TrimSpace(rows[i].InternalSectorCode)
	}
	cw, err := services.NewCrosswalk(rows, services.CrosswalkOptions{
		Levels:             model.Crosswalk.Levels,
		WeightTolerance:    model.Crosswalk.WeightTolerance,
		MatchInternalCodes: model.Crosswalk.MatchInternalCodes,
		KnownSector: func(code string) bool {
			_, ok := table[code]
			return ok
		},
	})
	if err != nil {
		return err
	}
	if unknown := cw.UnknownSectors(); len(unknown) > 0 {
		logger.Warn("Crosswalk targets %d sector(s) without multipliers", len(unknown))
	}

	inputs, err := loader.LoadSpendingRequest(requestPath)
	if err != nil {
		return err
	}

	calc := services.NewCalculator(table, cw, model.ImpactCategories)
	res, err := calc.CalculateFor(inputs, categories)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		logger.Warn("%d request entr%s rejected: %v", len(res.Rejected), pluralY(len(res.Rejected)), err)
	}

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry).ObserveCalculation(res)
	defer flushMetrics(registry)

	equivalents := services.NewComparisons(model.Comparisons).Equivalents(res.ImpactsByCategory[ghgCategory])
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*models.CalculationResult
			Comparisons []models.Equivalent `json:"comparisons"`
		}{res, equivalents})
	}
	services.NewReportPrinter(cmd.OutOrStdout()).PrintCalculation(res, equivalents)
	return nil
}

// loadTable reads the published multipliers from the selected source.
func loadTable(ctx context.Context) (models.MultiplierTable, error) {
	var reader storage.MultiplierReader
	switch source {
	case "json":
		art, err := storage.ReadArtifact(cfg.ArtifactPath)
		if err != nil {
			return nil, err
		}
		return art.Table(model.ImpactCategories)
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is not set")
		}
		w, err := storage.NewSQLiteWriter(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer w.Close()
		reader = w
	case "postgres":
		w, err := storage.NewPostgresWriter(ctx, cfg.DSN(), retryConfig())
		if err != nil {
			return nil, err
		}
		defer w.Close()
		reader = w
	default:
		return nil, fmt.Errorf("unknown multiplier source %q", source)
	}

	pub, err := reader.FetchLatest(ctx)
	if err != nil {
		return nil, err
	}
	if err := pub.Table.Covers(model.ImpactCategories); err != nil {
		return nil, fmt.Errorf("build %s: %w", pub.BuildID, err)
	}
	logger.Info("Using multipliers from build %s (%s)", pub.BuildID, pub.CreatedAt.Format(time.RFC3339))
	return pub.Table, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	kg, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid GHG amount %q: %w", args[0], err)
	}
	equivalents := services.NewComparisons(model.Comparisons).Equivalents(kg)
	if len(equivalents) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  Nothing to compare")
		return nil
	}
	for _, eq := range equivalents {
		fmt.Fprintf(cmd.OutOrStdout(), "  %12.2f %s\n", eq.Count, eq.Label)
	}
	return nil
}

func runSectors(cmd *cobra.Command, args []string) error {
	raw, err := loader.LoadSectors(cfg.SectorsPath)
	if err != nil {
		return err
	}
	sectors := services.NewCleaner(logger).CleanSectors(raw, model.PriorityKeywords)

	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	services.NewReportPrinter(cmd.OutOrStdout()).PrintSectors(filterSectors(sectors, query, priorityOnly))
	return nil
}

// filterSectors keeps sectors whose code or name contains query
// (case-insensitive), and only priority-relevant ones when priority is set.
func filterSectors(sectors []models.Sector, query string, priority bool) []models.Sector {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []models.Sector
	for _, s := range sectors {
		if priority && !s.IsPriorityRelevant {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(s.Code), query) &&
			!strings.Contains(strings.ToLower(s.Name), query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func flushMetrics(g prometheus.Gatherer) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsTextfile, g); err != nil {
		logger.Error("%v", err)
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
