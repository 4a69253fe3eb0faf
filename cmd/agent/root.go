package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/johnwmail/clipsync/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	defaults := config.DefaultConfig()

	pfset := Command.PersistentFlags()
	pfset.String("storage-type", defaults.StorageType, "storage backend: memory, mongodb, dynamodb")
	pfset.String("mongodb-uri", defaults.MongoDBURI, "MongoDB connection URI")
	pfset.String("mongodb-database", defaults.MongoDBDatabase, "MongoDB database name")
	pfset.String("mongodb-collection", defaults.MongoDBCollection, "MongoDB collection name")
	pfset.String("dynamodb-table", defaults.DynamoDBTable, "DynamoDB table name")
	pfset.String("dynamodb-region", defaults.DynamoDBRegion, "DynamoDB region")
	pfset.Duration("dynamodb-poll", defaults.DynamoDBPollInterval, "DynamoDB live subscription poll interval")
	pfset.String("jwt-secret", "", "HMAC secret for identity tokens")
	pfset.CountP("verbose", "v", "increase log level")
	pfset.BoolP("quiet", "q", false, "suppress all the logs")

	viper.SetEnvPrefix("clipsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Command is the root command of the agent
var Command = &cobra.Command{
	Use:           "clipsync-agent",
	Short:         "Sync the clipboard of this device with your other devices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		level := log.WarnLevel - log.Level(viper.GetInt("verbose")*4)
		if viper.GetBool("quiet") {
			level = math.MaxInt32
		}

		logger := log.NewWithOptions(os.Stderr, log.Options{
			TimeFormat:      time.Kitchen,
			ReportTimestamp: true,
			Level:           level,
		})
		slog.SetDefault(slog.New(logger))

		slog.Debug("Logger has been set up", "level", level)
		return nil
	},
}

// agentConfig builds the service configuration from flags and CLIPSYNC_* variables
func agentConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.StorageType = viper.GetString("storage-type")
	cfg.MongoDBURI = viper.GetString("mongodb-uri")
	cfg.MongoDBDatabase = viper.GetString("mongodb-database")
	cfg.MongoDBCollection = viper.GetString("mongodb-collection")
	cfg.DynamoDBTable = viper.GetString("dynamodb-table")
	cfg.DynamoDBRegion = viper.GetString("dynamodb-region")
	cfg.DynamoDBPollInterval = viper.GetDuration("dynamodb-poll")
	cfg.JWTSecret = viper.GetString("jwt-secret")

	if viper.IsSet("device") {
		cfg.Device = viper.GetString("device")
	}
	if viper.IsSet("history-limit") {
		cfg.HistoryLimit = viper.GetInt("history-limit")
	}
	if viper.IsSet("capture-interval") {
		cfg.CaptureInterval = viper.GetDuration("capture-interval")
	}
	if viper.IsSet("sweep-cap") {
		cfg.BackendSweepCap = viper.GetInt("sweep-cap")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the cobra cli until it finishes or SIGINT/SIGTERM arrives
func Execute(version string) {
	Command.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Command.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
