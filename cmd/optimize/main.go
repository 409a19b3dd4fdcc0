package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/swarm/config"
)

// LogRow is one evaluation in optimize_log.csv.
type LogRow struct {
	Eval          int     `csv:"eval"`
	Fitness       float64 `csv:"fitness"`
	Polarization  float64 `csv:"polarization"`
	Containment   float64 `csv:"containment"`
	MeanNeighbors float64 `csv:"mean_neighbors"`
	Alignment     float64 `csv:"alignment"`
	Cohesion      float64 `csv:"cohesion"`
	Separation    float64 `csv:"separation"`
	Boundary      float64 `csv:"boundary"`
}

func newLogRow(eval int, fitness float64, score Score, clamped []float64) LogRow {
	return LogRow{
		Eval:          eval,
		Fitness:       fitness,
		Polarization:  score.Polarization,
		Containment:   score.Containment,
		MeanNeighbors: score.MeanNeighbors,
		Alignment:     clamped[0],
		Cohesion:      clamped[1],
		Separation:    clamped[2],
		Boundary:      clamped[3],
	}
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Int("max-ticks", 1800, "Simulation length per run in ticks")
	maxBoids := flag.Int("max-boids", 2000, "Boid cap per run (0 = keep config value)")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	// Runs are short and many; keep per-run logging quiet
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *maxBoids > 0 {
		baseCfg.Spawner.MaxBoids = *maxBoids
	}

	params := NewParamVector()

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, int32(*maxTicks), evalSeeds, baseCfg)

	// Start the search from the base config's weights
	dim := params.Dim()
	initX := params.Normalize(params.Clamp(params.ExtractFromConfig(baseCfg)))

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // seeds already run in parallel
	}

	logPath := filepath.Join(*outputDir, "optimize_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	headerWritten := false

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			score := evaluator.LastScore()
			evalCount++

			// Log clamped values, which are what the run actually used
			clamped := params.Clamp(raw)
			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			rows := []LogRow{newLogRow(evalCount, fitness, score, clamped)}
			var werr error
			if headerWritten {
				werr = gocsv.MarshalWithoutHeaders(rows, logFile)
			} else {
				werr = gocsv.Marshal(rows, logFile)
				headerWritten = werr == nil
			}
			if werr != nil {
				log.Printf("failed to write log row: %v", werr)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval

			fmt.Printf("Eval %d/%d: quality=%.3f polarization=%.2f containment=%.2f neighbors=%.1f (best=%.3f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, -fitness, score.Polarization, score.Containment, score.MeanNeighbors,
				-bestFitness, formatDuration(elapsed), formatDuration(remaining))
			return fitness
		},
	}

	fmt.Printf("Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, ticks per run: %d, max boids: %d\n",
		*seeds, *maxTicks, baseCfg.Spawner.MaxBoids)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Best params may come from any evaluation, not just the final one
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluations completed")
	}

	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best quality: %.4f\n", -bestFitness)

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	// Reload so max_boids is written as configured, not as overridden for tuning
	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
