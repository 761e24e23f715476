package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tapereader/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v, starting from defaults\n", err)
		cfg = config.Default()
	}

	for {
		fmt.Println("\n=== Tapereader Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Switch trading profile")
		fmt.Println("3) Edit validator thresholds")
		fmt.Println("4) Edit position monitor limits")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch engine")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			switchProfile(reader, cfg)
		case "3":
			editValidation(reader, cfg)
		case "4":
			editPosition(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchEngine(reader)
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
	fmt.Printf("Pair: %s / %s (asset %s, point value %.1f)\n",
		cfg.Market.LegA, cfg.Market.LegB, cfg.Market.Asset, cfg.Market.PointValue)
	fmt.Printf("Feed: %s", cfg.Feed.Provider)
	if cfg.Feed.URL != "" {
		fmt.Printf(" (%s)", cfg.Feed.URL)
	}
	fmt.Println()
	profile := cfg.ActiveProfile
	if profile == "" {
		profile = "default"
	}
	fmt.Printf("Active profile: %s\n", profile)
	fmt.Printf("Min samples: %d | std threshold: %.2f | min profit: %.1f\n",
		cfg.Statistics.MinSamples, cfg.Dynamic.BaseStdThreshold, cfg.Validation.MinProfit)
	fmt.Printf("Max spread: %.1f | min std dev: %.3f\n",
		cfg.Validation.MaxSpreadAbs, cfg.Validation.MinStdDev)
	fmt.Printf("Position: max %d min | adverse %.1f (tape %.1f) | multiple: %v\n",
		cfg.Position.MaxTimeMinutes, cfg.Position.AdverseLimit,
		cfg.Position.TapeAdverseLimit, cfg.Position.AllowMultiple)
	fmt.Printf("Tape: min trades %d | pressure ratio %.1fx | cooldown %ds\n",
		cfg.Tape.MinTrades, cfg.Tape.MinPressureRatio, cfg.Tape.CooldownSec)
	fmt.Printf("Signal log: %s (%s)\n", cfg.Logging.Dir, strings.Join(cfg.Logging.Formats, ", "))
}

func switchProfile(reader *bufio.Reader, cfg *config.Config) {
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\n--- Trading Profiles ---")
	for _, name := range names {
		p := cfg.Profiles[name]
		marker := " "
		if name == cfg.ActiveProfile {
			marker = "*"
		}
		fmt.Printf("%s %s", marker, name)
		if p != (config.Profile{}) {
			fmt.Printf("  (std %.2f, samples %d, profit %.1f)",
				p.StdThreshold, p.MinSamples, p.MinProfit)
		}
		fmt.Println()
	}
	fmt.Print("Profile name (blank to keep): ")
	line, _ := reader.ReadString('\n')
	name := strings.TrimSpace(line)
	if name == "" {
		return
	}
	profile, ok := cfg.Profiles[name]
	if !ok {
		fmt.Println("unknown profile")
		return
	}
	cfg.ActiveProfile = name
	if profile.StdThreshold > 0 {
		cfg.Dynamic.BaseStdThreshold = profile.StdThreshold
	}
	if profile.MinSamples > 0 {
		cfg.Statistics.MinSamples = profile.MinSamples
	}
	if profile.MinProfit > 0 {
		cfg.Validation.MinProfit = profile.MinProfit
		cfg.Dynamic.BaseMinProfit = profile.MinProfit
	}
	fmt.Printf("profile %s applied\n", name)
}

func editValidation(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Validator ---")
	cfg.Dynamic.BaseStdThreshold = promptFloat(reader, "Std-dev threshold (z)", cfg.Dynamic.BaseStdThreshold)
	cfg.Statistics.MinSamples = int(promptFloat(reader, "Min samples for signal", float64(cfg.Statistics.MinSamples)))
	cfg.Validation.MinProfit = promptFloat(reader, "Min expected profit", cfg.Validation.MinProfit)
	cfg.Validation.MinStdDev = promptFloat(reader, "Min volatility (std dev)", cfg.Validation.MinStdDev)
	cfg.Validation.MaxSpreadAbs = promptFloat(reader, "Max absolute spread", cfg.Validation.MaxSpreadAbs)
}

func editPosition(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Position Monitor ---")
	cfg.Position.MaxTimeMinutes = int(promptFloat(reader, "Max time in position (min)", float64(cfg.Position.MaxTimeMinutes)))
	cfg.Position.AdverseLimit = promptFloat(reader, "Adverse limit (points)", cfg.Position.AdverseLimit)
	cfg.Position.TapeAdverseLimit = promptFloat(reader, "Tape adverse limit (points)", cfg.Position.TapeAdverseLimit)
	cfg.Position.NoProgressSec = int(promptFloat(reader, "No-progress warning (sec)", float64(cfg.Position.NoProgressSec)))
}

func launchEngine(reader *bufio.Reader) {
	fmt.Println("Launching engine (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/engine")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the engine and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
