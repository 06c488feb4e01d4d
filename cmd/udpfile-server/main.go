// Command udpfile-server serves a directory of files over UDP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/config"
	"github.com/SaraCappelletti/ProgettoRetiUDP/host"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configFile string
	listen     string
	root       string
	timeout    time.Duration
	hash       string
	verbosity  string
	dscp       int
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "udpfile-server",
		Short:         "Serve a directory of files over UDP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", config.DefaultPath, "configuration file")
	fs.StringVarP(&f.listen, "listen", "l", "", "UDP listen address")
	fs.StringVar(&f.root, "root", "", "directory of served files")
	fs.DurationVar(&f.timeout, "timeout", 0, "session receive timeout")
	fs.StringVar(&f.hash, "hash", "", "file digest function")
	fs.StringVar(&f.verbosity, "verbosity", "", "log level (trace, debug, info, warn, error, crit)")
	fs.IntVar(&f.dscp, "dscp", 0, "DiffServ code point of outgoing packets")
	return cmd
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.ListenAddr = f.listen
	}
	if fs.Changed("root") {
		cfg.Root = f.root
	}
	if fs.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fs.Changed("hash") {
		cfg.Hash = f.hash
	}
	if fs.Changed("verbosity") {
		cfg.LogLevel = f.verbosity
	}
	if fs.Changed("dscp") {
		cfg.DSCP = f.dscp
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.SetupLogging(cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serve runs the server until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config) error {
	hash, err := cfg.HashFunc()
	if err != nil {
		return err
	}
	h, err := host.Listen(host.Config{
		ListenAddr: cfg.ListenAddr,
		Root:       cfg.Root,
		Timeout:    cfg.Timeout,
		Hash:       hash,
		DSCP:       cfg.DSCP,
	})
	if err != nil {
		return fmt.Errorf("can't listen: %w", err)
	}
	<-ctx.Done()
	log.Info("Closing server...")
	return h.Close()
}
