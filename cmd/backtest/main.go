package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/engine"
	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/internal/signal"
	"github.com/quantfoundry/backtest/internal/store"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/internal/validation"
)

// validationReport bundles the three validation outputs for the YAML report.
type validationReport struct {
	CPCV         validation.CPCVReport       `yaml:"cpcv"`
	MonteCarlo   validation.MonteCarloReport `yaml:"monte_carlo"`
	Significance validation.TTestResult      `yaml:"significance"`
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLog.Sync()

	dataPath := cmd.String("data")
	symbol := cmd.String("symbol")
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath)))
	}

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	s, err := series.LoadCSV(dataPath, symbol)
	if err != nil {
		return err
	}

	appLog.Info("loaded market data",
		zap.String("symbol", symbol),
		zap.Int("bars", s.Len()))

	indicators := indicator.ComputeWithConfig(s, cfg.Indicators)
	provider := signal.NewCrossoverProvider(s, indicators)

	eng, err := engine.New(cfg, s, provider, appLog)
	if err != nil {
		return err
	}

	if !cmd.Bool("no-progress") {
		bar := progressbar.Default(int64(s.Len()))
		bar.Describe(fmt.Sprintf("Backtesting %s", symbol))
		eng.SetProgress(func(done, total int) {
			bar.Set(done)
		})
	}

	mode := engine.ModeSequential
	if cmd.String("mode") == "parallel" {
		mode = engine.ModeParallel
	}

	result, runErr := eng.Run(ctx, mode)

	outputDir := cmd.String("output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := persistResult(cmd, appLog, outputDir, result); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}

	appLog.Info("backtest finished",
		zap.String("run_id", result.RunID),
		zap.Int("trades", len(result.Trades)),
		zap.Float64("final_equity", result.FinalEquity),
		zap.Float64("total_return_pct", result.Metrics.TotalReturnPct))

	if cmd.Bool("validate") {
		return runValidation(ctx, cfg, s, result, outputDir, appLog)
	}

	return nil
}

func persistResult(cmd *cli.Command, appLog *logger.Logger, outputDir string, result types.BacktestResult) error {
	reportPath := filepath.Join(outputDir, fmt.Sprintf("%s_metrics.yaml", result.RunID))
	if err := types.WriteMetricsReport(reportPath, []types.BacktestResult{result}); err != nil {
		return err
	}

	appLog.Info("metrics report written", zap.String("path", reportPath))

	dbPath := cmd.String("db")
	if dbPath == "" {
		dbPath = filepath.Join(outputDir, "backtest.duckdb")
	}

	st, err := store.Open(dbPath, appLog)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveResult(result); err != nil {
		return err
	}

	appLog.Info("run persisted", zap.String("db", dbPath), zap.String("run_id", result.RunID))

	return nil
}

func runValidation(ctx context.Context, cfg config.RunConfig, s *series.Series, result types.BacktestResult, outputDir string, appLog *logger.Logger) error {
	factory := func(window *series.Series, _ int) signal.Provider {
		return signal.NewCrossoverProvider(window, indicator.ComputeWithConfig(window, cfg.Indicators))
	}

	var report validationReport

	cpcv, err := validation.RunCPCV(ctx, cfg, s, factory, appLog)
	if err != nil {
		return err
	}
	report.CPCV = cpcv

	mc, err := validation.RunMonteCarlo(result.Trades, cfg.InitialCapital, cfg.Validation)
	if err != nil {
		return err
	}
	report.MonteCarlo = mc

	pnls := make([]float64, len(result.Trades))
	for i, t := range result.Trades {
		pnls[i] = t.NetPnL
	}

	sig, err := validation.TTestAgainstZero(pnls, cfg.Validation.MinSampleSize)
	if err != nil {
		return err
	}
	report.Significance = sig

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal validation report: %w", err)
	}

	reportPath := filepath.Join(outputDir, fmt.Sprintf("%s_validation.yaml", result.RunID))
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write validation report: %w", err)
	}

	appLog.Info("validation report written",
		zap.String("path", reportPath),
		zap.Float64("cpcv_sharpe_mean", cpcv.Sharpe.Mean),
		zap.Float64("mc_drawdown_p75", mc.MaxDrawdown.P75),
		zap.Bool("significant", sig.Significant))

	return nil
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := config.DefaultConfig().GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func loadConfig(path string) (config.RunConfig, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config.RunConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return config.ParseYAML(data)
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run and validate historical strategy backtests",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a backtest over a CSV bar series",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to the OHLCV CSV file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "symbol",
						Aliases: []string{"s"},
						Usage:   "Symbol of the series (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the run config YAML (defaults apply when omitted)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory for reports and the result database",
						Value:   "results",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "DuckDB file for persisted results (defaults to <output>/backtest.duckdb)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Execution mode: sequential or parallel",
						Value: "sequential",
					},
					&cli.BoolFlag{
						Name:  "validate",
						Usage: "Run CPCV, Monte Carlo and significance validation after the backtest",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress bar",
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the run config",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
