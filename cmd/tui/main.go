package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"kalmanarb-go/internal/config"
)

const defaultConfigPath = "configs/kalmanarb.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== KalmanArb Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit filter noise")
		fmt.Println("3) Edit entry/exit thresholds")
		fmt.Println("4) Edit capital and allocation")
		fmt.Println("5) Save config")
		fmt.Println("6) Run backtest")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editFilter(reader, cfg)
		case "3":
			editThresholds(reader, cfg)
		case "4":
			editCapital(reader, cfg)
		case "5":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "not saved: %v\n", err)
			} else if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			runBacktest()
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Input: %s -> %s\n", cfg.Data.InputPath, cfg.Data.OutputDir)
	fmt.Printf("Filter: R=%g delta=%g joseph=%t\n", cfg.Filter.R, cfg.Filter.Delta, cfg.Filter.JosephForm)
	fmt.Printf("Strategy: %s entry=%.2f exit=%.2f\n", cfg.Strategy.Mode, cfg.Strategy.EntryStd, cfg.Strategy.ExitStd)
	fmt.Printf("Initial capital: $%.2f\n", cfg.Backtest.InitialCapital)
	fmt.Printf("Allocation per leg: %.2f%%\n", cfg.Backtest.AllocationFraction*100)
	fmt.Printf("Max gross leverage: %.2f (0 = off)\n", cfg.Risk.MaxGrossLeverage)
}

func editFilter(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Filter ---")
	cfg.Filter.R = promptFloat(reader, "Observation noise R", cfg.Filter.R)
	cfg.Filter.Delta = promptFloat(reader, "State drift delta", cfg.Filter.Delta)
}

func editThresholds(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Thresholds ---")
	cfg.Strategy.EntryStd = promptFloat(reader, "Entry z-score", cfg.Strategy.EntryStd)
	cfg.Strategy.ExitStd = promptFloat(reader, "Exit z-score", cfg.Strategy.ExitStd)
}

func editCapital(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Capital ---")
	cfg.Backtest.InitialCapital = promptFloat(reader, "Initial capital", cfg.Backtest.InitialCapital)
	cfg.Backtest.AllocationFraction = promptPercent(reader, "Allocation per leg (%)", cfg.Backtest.AllocationFraction)
	cfg.Risk.MaxGrossLeverage = promptFloat(reader, "Max gross leverage", cfg.Risk.MaxGrossLeverage)
}

func runBacktest() {
	fmt.Println("Running backtest with the saved config...")
	cmd := exec.CommandContext(context.Background(), "go", "run", "./cmd/kalmanarb", "backtest", "--config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
	}
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%g]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %g\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

// loadConfig falls back to defaults until the first save creates the file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(locateConfig())
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func saveConfig(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(locateConfig()), 0o755); err != nil {
		return err
	}
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if p := os.Getenv(config.EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return filepath.Clean(defaultConfigPath)
}
