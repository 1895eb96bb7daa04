package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/webforge/sla-sentinel/internal/app"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	Version = "1.0.0-dev"
)

// CLI represents the command line interface
type CLI struct {
	args []string
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

func main() {
	cli := &CLI{args: os.Args[1:]}

	commands := map[string]*Command{
		"run":            {Name: "run", Description: "Start the SLA sentinel", Usage: "run [--config path] [--log-level level]", Run: cli.runCommand},
		"validate":       {Name: "validate", Description: "Validate configuration file", Usage: "validate [--config path]", Run: cli.validateCommand},
		"version":        {Name: "version", Description: "Show version information", Usage: "version", Run: cli.versionCommand},
		"help":           {Name: "help", Description: "Show help information", Usage: "help [command]", Run: cli.helpCommand},
		"example-config": {Name: "example-config", Description: "Generate example configuration file", Usage: "example-config [--output path]", Run: cli.exampleConfigCommand},
	}

	if len(cli.args) == 0 {
		cli.printUsage(commands)
		os.Exit(1)
	}

	commandName := cli.args[0]

	// Handle help flag
	if commandName == "--help" || commandName == "-h" {
		cli.printUsage(commands)
		return
	}

	// Default to run command if not a recognized command
	if _, exists := commands[commandName]; !exists {
		// Check if it's a flag for the run command
		if strings.HasPrefix(commandName, "--") {
			commandName = "run"
		} else {
			fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", commandName)
			cli.printUsage(commands)
			os.Exit(1)
		}
	} else {
		// Remove command name from args
		cli.args = cli.args[1:]
	}

	cmd := commands[commandName]
	if err := cmd.Run(cli.args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (cli *CLI) printUsage(commands map[string]*Command) {
	fmt.Printf("SLA Sentinel v%s\n", Version)
	fmt.Println("An SLA violation prediction and threshold optimization engine for delivery pipelines.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Printf("  %s <command> [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("COMMANDS:")

	commandOrder := []string{"run", "validate", "example-config", "version", "help"}
	for _, name := range commandOrder {
		if cmd, exists := commands[name]; exists {
			fmt.Printf("  %-15s %s\n", cmd.Name, cmd.Description)
		}
	}

	fmt.Println()
	fmt.Println("GLOBAL OPTIONS:")
	fmt.Println("  --help, -h       Show help information")
	fmt.Println()
	fmt.Println("Use \"sla-sentinel help <command>\" for more information about a command.")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Printf("  %s run --config /etc/sla-sentinel/config.yaml\n", os.Args[0])
	fmt.Printf("  %s validate --config ./config.yaml\n", os.Args[0])
	fmt.Printf("  %s example-config --output ./sla-sentinel.yaml\n", os.Args[0])
}

func (cli *CLI) parseFlags(args []string, flags map[string]*string) []string {
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Handle --flag=value format
			if strings.Contains(flagName, "=") {
				parts := strings.SplitN(flagName, "=", 2)
				flagName = parts[0]
				if flagVar, exists := flags[flagName]; exists {
					*flagVar = parts[1]
				}
				continue
			}

			// Handle --flag value format
			if flagVar, exists := flags[flagName]; exists {
				if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
					*flagVar = args[i+1]
					i++ // Skip the value
				} else {
					// Boolean flag or missing value
					*flagVar = "true"
				}
				continue
			}
		}

		remaining = append(remaining, arg)
	}

	return remaining
}

func (cli *CLI) runCommand(args []string) error {
	var configPath string
	var logLevel = "info"

	flags := map[string]*string{
		"config":    &configPath,
		"log-level": &logLevel,
	}

	remaining := cli.parseFlags(args, flags)

	// Check for help
	for _, arg := range remaining {
		if arg == "--help" || arg == "-h" {
			cli.printRunHelp()
			return nil
		}
	}

	// Create logger with specified level
	logger, err := cli.createLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	// Load configuration
	var cfg *config.Config
	if configPath == "" {
		logger.Info("Running in zero-config mode with defaults")
		cfg, err = config.LoadDefault()
		if err != nil {
			return fmt.Errorf("failed to load default configuration: %w", err)
		}
	} else {
		if err := cli.validateConfigPath(configPath); err != nil {
			return err
		}
		fmt.Printf("Loading configuration from: %s\n", configPath)
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	manager, err := app.NewManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal", zap.String("signal", sig.String()))
		logger.Info("Shutting down gracefully")
		cancel()
	}()

	logger.Info("Starting SLA Sentinel",
		zap.String("version", Version),
		zap.Float64("confidence_threshold", cfg.Prediction.ConfidenceThreshold),
		zap.String("lookahead", cfg.Prediction.Lookahead.String()),
		zap.String("server_address", cfg.Server.BindAddress))

	// Run the manager
	if err := manager.Run(ctx); err != nil {
		logger.Error("Manager stopped with error", zap.Error(err))
		return fmt.Errorf("manager stopped with error: %w", err)
	}

	logger.Info("SLA Sentinel stopped")
	return nil
}

func (cli *CLI) validateCommand(args []string) error {
	var configPath string

	flags := map[string]*string{
		"config": &configPath,
	}

	remaining := cli.parseFlags(args, flags)

	// Check for help
	for _, arg := range remaining {
		if arg == "--help" || arg == "-h" {
			cli.printValidateHelp()
			return nil
		}
	}

	var cfg *config.Config
	var err error

	if configPath == "" {
		fmt.Println("Validating zero-config mode with defaults")
		cfg, err = config.LoadDefault()
		if err != nil {
			return fmt.Errorf("default configuration validation failed: %w", err)
		}
	} else {
		if err := cli.validateConfigPath(configPath); err != nil {
			return err
		}

		fmt.Printf("Validating configuration file: %s\n", configPath)
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	cli.printConfigurationSummary(cfg)

	fmt.Println("\nConfiguration validation completed successfully")
	return nil
}

// printConfigurationSummary prints a summary of valid configuration
func (cli *CLI) printConfigurationSummary(cfg *config.Config) {
	fmt.Println("\nCONFIGURATION SUMMARY:")

	fmt.Printf("Server:\n")
	fmt.Printf("   Bind Address: %s\n", cfg.Server.BindAddress)
	fmt.Printf("   Metrics Path: %s\n", cfg.Server.MetricsPath)
	fmt.Printf("   Health Path: %s\n", cfg.Server.HealthPath)

	fmt.Printf("\nStorage:\n")
	fmt.Printf("   Database: %s\n", cfg.Storage.DatabasePath)
	fmt.Printf("   Model Directory: %s\n", cfg.Storage.ModelDir)
	fmt.Printf("   Retention: Samples=%s, Audit=%s\n",
		cfg.Storage.Retention.Samples, cfg.Storage.Retention.Audit)

	fmt.Printf("\nPrediction:\n")
	fmt.Printf("   Confidence Threshold: %.2f\n", cfg.Prediction.ConfidenceThreshold)
	fmt.Printf("   Lookahead: %s\n", cfg.Prediction.Lookahead)
	fmt.Printf("   SLA Thresholds (%d configured):\n", len(cfg.Prediction.Thresholds))
	for _, vt := range types.AllViolationTypes() {
		if threshold, ok := cfg.Prediction.Thresholds[vt]; ok {
			fmt.Printf("      %s: %.0f\n", vt, threshold)
		}
	}

	fmt.Printf("\nClassifier:\n")
	fmt.Printf("   Trees: %d, Max Depth: %d\n", cfg.Classifier.TreeCount, cfg.Classifier.MaxTreeDepth)
	fmt.Printf("   Accuracy Gate: %.2f\n", cfg.Classifier.AccuracyThreshold)

	fmt.Printf("\nScaling:\n")
	if cfg.Scaling.Enabled {
		fmt.Printf("   Probability Threshold: %.2f\n", cfg.Scaling.ProbabilityThreshold)
		fmt.Printf("   Scale Factor: %.1f, Cooldown: %s\n", cfg.Scaling.ScaleFactor, cfg.Scaling.Cooldown)
		if cfg.Scaling.ControlPlaneURL != "" {
			fmt.Printf("   Control Plane: %s\n", cfg.Scaling.ControlPlaneURL)
		} else {
			fmt.Printf("   Control Plane: log-only (no URL configured)\n")
		}
		fmt.Printf("   Resources (%d configured):\n", len(cfg.Scaling.Resources))
		for _, r := range cfg.Scaling.Resources {
			fmt.Printf("      %s: min=%d max=%d initial=%d\n", r.Resource, r.MinCapacity, r.MaxCapacity, r.InitialCapacity)
		}
	} else {
		fmt.Printf("   Disabled\n")
	}

	fmt.Printf("\nAlerting:\n")
	fmt.Printf("   Email: %s\n", enabledMark(cfg.Alerting.Email.Enabled))
	fmt.Printf("   Webhook: %s\n", enabledMark(cfg.Alerting.Webhook.Enabled))
	fmt.Printf("   Dashboard: %s\n", enabledMark(cfg.Alerting.Dashboard.Enabled))
	fmt.Printf("   Suppression Window: %s\n", cfg.Alerting.SuppressionWindow)

	if cfg.Telemetry.Enabled {
		fmt.Printf("\nTelemetry: Enabled (%s exporter)\n", cfg.Telemetry.Exporter.Type)
		fmt.Printf("   Service: %s v%s (%s)\n", cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.Environment)
		fmt.Printf("   Sampling Rate: %.1f%%\n", cfg.Telemetry.Sampling.Rate*100)
	} else {
		fmt.Printf("\nTelemetry: Disabled\n")
	}
}

func enabledMark(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func (cli *CLI) versionCommand(args []string) error {
	fmt.Printf("SLA Sentinel version %s\n", Version)
	fmt.Println("Built with Go")
	fmt.Println("https://github.com/webforge/sla-sentinel")
	return nil
}

func (cli *CLI) helpCommand(args []string) error {
	commands := map[string]*Command{
		"run":            {Name: "run", Description: "Start the SLA sentinel", Usage: "run [--config path] [--log-level level]", Run: cli.runCommand},
		"validate":       {Name: "validate", Description: "Validate configuration file", Usage: "validate [--config path]", Run: cli.validateCommand},
		"version":        {Name: "version", Description: "Show version information", Usage: "version", Run: cli.versionCommand},
		"help":           {Name: "help", Description: "Show help information", Usage: "help [command]", Run: cli.helpCommand},
		"example-config": {Name: "example-config", Description: "Generate example configuration file", Usage: "example-config [--output path]", Run: cli.exampleConfigCommand},
	}

	if len(args) == 0 {
		cli.printUsage(commands)
		return nil
	}

	commandName := args[0]
	switch commandName {
	case "run":
		cli.printRunHelp()
	case "validate":
		cli.printValidateHelp()
	case "example-config":
		cli.printExampleConfigHelp()
	case "version":
		fmt.Println("USAGE: sla-sentinel version")
		fmt.Println("Show version information and build details.")
	default:
		fmt.Printf("Unknown command: %s\n\n", commandName)
		cli.printUsage(commands)
	}

	return nil
}

func (cli *CLI) exampleConfigCommand(args []string) error {
	var outputPath = "sla-sentinel.yaml"

	flags := map[string]*string{
		"output": &outputPath,
	}

	remaining := cli.parseFlags(args, flags)

	// Check for help
	for _, arg := range remaining {
		if arg == "--help" || arg == "-h" {
			cli.printExampleConfigHelp()
			return nil
		}
	}

	// Check if file already exists
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s (use a different path or remove the existing file)", outputPath)
	}

	if err := config.WriteExample(outputPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Example configuration written to: %s\n", outputPath)
	fmt.Println("Edit the file to match your environment and use:")
	fmt.Printf("  sla-sentinel validate --config %s\n", outputPath)
	return nil
}

func (cli *CLI) validateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", path)
	}

	return nil
}

func (cli *CLI) createLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	return config.Build()
}

func (cli *CLI) printRunHelp() {
	fmt.Println("USAGE: sla-sentinel run [options]")
	fmt.Println("Start the SLA sentinel with prediction, alerting and auto-scaling.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  --config path          Configuration file path (default: zero-config mode)")
	fmt.Println("  --log-level level      Log level: debug, info, warn, error (default: info)")
	fmt.Println("  --help, -h             Show this help message")
	fmt.Println()
	fmt.Println("SIGNALS:")
	fmt.Println("  SIGINT/SIGTERM    Graceful shutdown")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  sla-sentinel run")
	fmt.Println("  sla-sentinel run --config /etc/sla-sentinel/config.yaml")
	fmt.Println("  sla-sentinel run --log-level debug")
}

func (cli *CLI) printValidateHelp() {
	fmt.Println("USAGE: sla-sentinel validate [options]")
	fmt.Println("Validate configuration file without starting the service.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  --config path  Configuration file path (default: zero-config mode)")
	fmt.Println("  --help, -h     Show this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  sla-sentinel validate")
	fmt.Println("  sla-sentinel validate --config ./config.yaml")
}

func (cli *CLI) printExampleConfigHelp() {
	fmt.Println("USAGE: sla-sentinel example-config [options]")
	fmt.Println("Generate an example configuration file.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  --output path  Output file path (default: sla-sentinel.yaml)")
	fmt.Println("  --help, -h     Show this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  sla-sentinel example-config")
	fmt.Println("  sla-sentinel example-config --output /etc/sla-sentinel/config.yaml")
}
