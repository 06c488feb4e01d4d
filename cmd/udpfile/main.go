// Command udpfile fetches, stores and lists files on a udpfile server.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SaraCappelletti/ProgettoRetiUDP/client"
	"github.com/SaraCappelletti/ProgettoRetiUDP/config"
	"github.com/SaraCappelletti/ProgettoRetiUDP/reliable"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		name := "udpfile"
		if len(os.Args) > 1 {
			name = os.Args[1]
		}
		printError(os.Stderr, fmt.Errorf("Command %q interrupted by the user.", name))
		os.Exit(1)
	}()

	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "[ERROR]: %s\n", errorMessage(err))
}

// errorMessage returns the text shown to the user for err.
func errorMessage(err error) string {
	if reliable.IsTimeout(err) {
		return "The server stopped responding"
	}
	return err.Error()
}

type flags struct {
	configFile string
	server     string
	timeout    time.Duration
	hash       string
	verbosity  string
	dscp       int
}

func newRootCmd() *cobra.Command {
	var (
		f   flags
		cfg *config.Config
	)
	root := &cobra.Command{
		Use:           "udpfile",
		Short:         "Exchange files with a udpfile server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(f.configFile); err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("server") {
				cfg.ServerAddr = f.server
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
				return err
			}
			return cfg.SetupLogging(cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", config.DefaultPath, "configuration file")
	pf.StringVarP(&f.server, "server", "s", "", "server address (host:port)")
	pf.DurationVar(&f.timeout, "timeout", 0, "receive timeout")
	pf.StringVar(&f.hash, "hash", "", "file digest function")
	pf.StringVar(&f.verbosity, "verbosity", "", "log level (trace, debug, info, warn, error, crit)")
	pf.IntVar(&f.dscp, "dscp", 0, "DiffServ code point of outgoing packets")

	newClient := func() (*client.Client, error) {
		h, err := cfg.HashFunc()
		if err != nil {
			return nil, err
		}
		return client.New(cfg.ServerAddr, client.Config{Timeout: cfg.Timeout, Hash: h, DSCP: cfg.DSCP}), nil
	}
	root.AddCommand(getCmd(newClient), putCmd(newClient), listCmd(newClient))
	return root
}

type clientFactory func() (*client.Client, error)

func getCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> <out_file>",
		Short: "Download a file from the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			name, out := args[0], args[1]
			if _, err := c.Get(name, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File %q received successfully in %q.\n", name, out)
			return nil
		},
	}
}

func putCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <in_file>",
		Short: "Upload a file to the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			name, in := args[0], args[1]
			if _, err := c.Put(name, in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File %q sent successfully.\n", name)
			return nil
		},
	}
}

func listCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the files available on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			names, err := c.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available files in the server:")
			for _, name := range names {
				fmt.Fprintf(out, "• %s\n", name)
			}
			return nil
		},
	}
}
