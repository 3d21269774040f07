package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"lhtl/internal/config"
	"lhtl/internal/server/bootstrap"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "lhtl-server",
		Short:         "Habit reflection gallery server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	registerConfigFlags(root.PersistentFlags())

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			printBanner(cmd.OutOrStdout(), cfg)
			return bootstrap.RunServer(cfg)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			w := cmd.OutOrStdout()
			if source := cfg.Source(); source != "" {
				fmt.Fprintln(w, gray("# source: "+source))
			}
			_, err = w.Write(data)
			return err
		},
	})

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s)\n", bold("lhtl-server"), version, commit, runtime.Version())
		},
	}

	root.AddCommand(serve, configCmd, versionCmd)
	return root
}

func registerConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./lhtl.yaml or ~/.lhtl/lhtl.yaml)")
	fs.String("addr", "", "listen address, e.g. :5000")
	fs.String("static-dir", "", "directory holding the browser client")
	fs.String("data-file", "", "path of the works record file")
	fs.String("upload-dir", "", "directory for uploaded images")
	fs.String("audio-dir", "", "directory for cached speech audio")
	fs.String("ai-provider", "", "analysis provider: openai, mock or none")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(config.WithConfigFile(path), config.WithFlags(cmd.Flags()))
}

func printBanner(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "%s %s\n", bold("lhtl-server"), gray(version))
	fmt.Fprintf(w, "  %s %s\n", cyan("listen"), cfg.Server.Addr)
	fmt.Fprintf(w, "  %s %s\n", cyan("store "), cfg.Storage.DataFile)
	if cfg.AIEnabled() {
		fmt.Fprintf(w, "  %s %s\n", cyan("ai    "), green(cfg.AI.Provider))
	} else {
		fmt.Fprintf(w, "  %s %s\n", cyan("ai    "), gray("disabled"))
	}
}
