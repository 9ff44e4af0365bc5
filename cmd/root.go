package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/execution-cfg/pkg/server"
)

var (
	log              = logrus.New()
	serverConfigFile string
	logLevel         string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "execution-cfg",
	Short: "Recovers control-flow graphs of EVM transactions.",
	Long: `Recovers the control-flow graph of every contract a transaction touches,
highlights the executed path and stitches the graphs along the call tree.
Without a subcommand it serves the analysis API and queue worker.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCommon()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverConfigFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")
}

func initCommon() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logLevel == "" {
		return
	}

	setLevel(logLevel)
}

func setLevel(raw string) {
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		log.WithError(err).Warn("Invalid logging level, using info")

		level = logrus.InfoLevel
	}

	log.SetLevel(level)
}

func runServer(ctx context.Context) error {
	config, err := loadServerConfigFromFile(serverConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	if logLevel == "" {
		setLevel(config.LoggingLevel)
	}

	srv, err := server.NewServer(ctx, log, "execution_cfg", config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	log.Info("Execution CFG server exited - cya!")

	return nil
}

func loadServerConfigFromFile(file string) (*server.Config, error) {
	if file == "" {
		file = "config.yaml"
	}

	config := &server.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	type plain server.Config

	if err := yaml.Unmarshal(yamlFile, (*plain)(config)); err != nil {
		return nil, err
	}

	return config, nil
}
