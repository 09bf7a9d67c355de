package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pvbess/app"
	"github.com/kilianp07/pvbess/config"
	"github.com/kilianp07/pvbess/infra/logger"
)

var (
	cfgPath string
	outDir  string
	format  string
)

var rootCmd = &cobra.Command{
	Use:           "pvbess",
	Short:         "Lifecycle-aware PV and battery dispatch simulator",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); defaults and PVBESS_ variables when empty")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "results", "output directory")
	rootCmd.PersistentFlags().StringVar(&format, "format", "yaml", "report format: yaml or json")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// service loads the configuration and builds the service. The returned
// context is canceled on SIGINT or SIGTERM.
func service() (context.Context, *app.Service, func(), error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	svc.Serve(ctx)
	done := func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
		stop()
	}
	return ctx, svc, done, nil
}

// writeFile creates name under the output directory and fills it with fn.
func writeFile(name string, fn func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := fn(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

func reportName() string {
	if format == "json" {
		return "report.json"
	}
	return "report.yaml"
}
