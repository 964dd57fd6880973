package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/ElementBaths/parsedmarc/internal/log"
	"github.com/ElementBaths/parsedmarc/internal/model"
	"github.com/ElementBaths/parsedmarc/internal/notify"
	"github.com/ElementBaths/parsedmarc/internal/pipeline"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

const configName = "dmarc-pipeline.yaml"

var (
	userConfigPath string // /default/config/path/dmarc-pipeline on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	closeLog       func() error

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "dmarc-pipeline")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initPipeline

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("dmarc-pipeline failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "dmarc-pipeline",
	Short:        "Supervises the scheduled DMARC processing pipeline",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run executes one pipeline pass and exits with the primary task's status",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of dmarc-pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("dmarc-pipeline: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("dmarc-pipeline: %s\n", info.Main.Version)
		fmt.Printf("go:             %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var notifier pipeline.FailureNotifier
	if config.Notify.Enabled {
		n, err := notify.New(config.Notify)
		if err != nil {
			return err
		}
		notifier = n
	}

	emitter := pipeline.NewEmitter(config.Service.Tag, slog.Default())
	supervisor, err := pipeline.NewSupervisor(config, emitter, notifier)
	if err != nil {
		return err
	}

	code := supervisor.Run(ctx)
	if closeLog != nil {
		_ = closeLog()
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func initPipeline(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("DMARC_PIPELINE_CONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, configName)
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d.String())
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, closer, err := log.Open(config.Service.Log)
	if err != nil {
		return fmt.Errorf("opening log destination %s: %w", config.Service.Log, err)
	}
	closeLog = closer
	slog.SetDefault(log.New(w, config.Service.Verbose))

	slog.Debug("dmarc-pipeline run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
