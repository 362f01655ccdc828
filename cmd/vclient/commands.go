package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zberg/go-vcontrold/internal/config"
	"github.com/zberg/go-vcontrold/internal/logging"
	"github.com/zberg/go-vcontrold/internal/poller"
	"github.com/zberg/go-vcontrold/internal/sink"
	"github.com/zberg/go-vcontrold/pkg/vcontrold"
)

var (
	configPath string
	targetHost string
	targetPort int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&targetHost, "host", "", "host name or IP address of vcontrold")
	rootCmd.PersistentFlags().IntVar(&targetPort, "port", vcontrold.DefaultPort, "TCP port of vcontrold")

	discoverCmd.Flags().String("subnet", "", "IPv4 prefix to scan instead of the local /24 networks, e.g. 192.168.1.0/24")
	discoverCmd.Flags().Duration("timeout", 3*time.Second, "how long to scan")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(detailCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(shellCmd)
}

// loadConfig reads the configuration and applies the persistent flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	return config.Load(configPath, func(c *config.Config) {
		if flags.Changed("host") {
			c.Daemon.Host = targetHost
		}
		if flags.Changed("port") {
			c.Daemon.Port = targetPort
		}
	})
}

// clientOptions translates the daemon section into client options.
func clientOptions(cfg *config.Config, logger *logging.Logger) []vcontrold.ClientOption {
	d := cfg.Daemon
	return []vcontrold.ClientOption{
		vcontrold.WithPort(d.Port),
		vcontrold.WithPrompt(d.Prompt),
		vcontrold.WithConnectTimeout(d.ConnectTimeout),
		vcontrold.WithRequestTimeout(d.RequestTimeout),
		vcontrold.WithRetryPolicy(vcontrold.RetryPolicy{
			MaxAttempts: d.Retry.MaxAttempts,
			InitialWait: d.Retry.InitialWait,
			MaxWait:     d.Retry.MaxWait,
		}),
		vcontrold.WithLogger(logger.Logger),
	}
}

// setup loads the configuration and creates the logger and client.
func setup(cmd *cobra.Command) (*config.Config, *logging.Logger, *vcontrold.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(cfg.Logging, version)

	client, err := vcontrold.NewClient(cfg.Daemon.Host, clientOptions(cfg, logger)...)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, client, nil
}

// getClientAndCatalog is the common start of commands that need the catalog.
func getClientAndCatalog(cmd *cobra.Command) (*vcontrold.Client, *vcontrold.Catalog, error) {
	_, _, client, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := client.Catalog(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("loading command catalog: %w", err)
	}
	return client, catalog, nil
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover vcontrold daemons on the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subnet, _ := cmd.Flags().GetString("subnet")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		opts := []vcontrold.ClientOption{vcontrold.WithPort(targetPort)}

		fmt.Println("Discovering daemons...")
		var (
			results []vcontrold.DiscoveryResult
			err     error
		)
		if subnet != "" {
			prefix, perr := netip.ParsePrefix(subnet)
			if perr != nil {
				return fmt.Errorf("invalid subnet %q: %w", subnet, perr)
			}
			results, err = vcontrold.DiscoverSubnet(ctx, prefix, opts...)
		} else {
			results, err = vcontrold.Discover(ctx, opts...)
		}
		if err != nil {
			return fmt.Errorf("discovering: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No daemons found.")
			return nil
		}
		for _, res := range results {
			fmt.Printf("Found daemon at: %s:%d\n", res.IP, res.Port)
		}
		return nil
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the daemon offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, catalog, err := getClientAndCatalog(cmd)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tACCESS\tTYPE\tUNIT\tDESCRIPTION")
		for _, name := range catalog.Names() {
			meta, _ := catalog.Lookup(name)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, access(meta), meta.Type, meta.Unit, meta.Description)
		}
		return w.Flush()
	},
}

func access(meta vcontrold.CommandMeta) string {
	switch {
	case meta.Getter != "" && meta.Setter != "":
		return "rw"
	case meta.Setter != "":
		return "w"
	default:
		return "r"
	}
}

var detailCmd = &cobra.Command{
	Use:   "detail [command]",
	Short: "Show what the catalog knows about a command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, catalog, err := getClientAndCatalog(cmd)
		if err != nil {
			return err
		}

		meta, ok := catalog.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %q", vcontrold.ErrUnknownCommand, args[0])
		}

		fmt.Printf("Name:        %s\n", meta.Name)
		fmt.Printf("Description: %s\n", meta.Description)
		fmt.Printf("Getter:      %s\n", meta.Getter)
		fmt.Printf("Setter:      %s\n", meta.Setter)
		fmt.Printf("Type:        %s\n", meta.Type)
		fmt.Printf("Unit:        %s\n", meta.Unit)
		for i, v := range meta.Enum {
			label := ""
			if i < len(meta.EnumText) {
				label = meta.EnumText[i]
			}
			fmt.Printf("Enum:        %s %s\n", v, label)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [command]...",
	Short: "Read one or more values",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, catalog, err := getClientAndCatalog(cmd)
		if err != nil {
			return err
		}

		failed := 0
		for _, name := range args {
			v, err := client.GetValue(cmd.Context(), catalog, name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				failed++
				continue
			}
			fmt.Printf("%s = %s\n", name, v)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d reads failed", failed, len(args))
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set [command] [value]",
	Short: "Write a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, catalog, err := getClientAndCatalog(cmd)
		if err != nil {
			return err
		}

		meta, ok := catalog.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %q", vcontrold.ErrUnknownCommand, args[0])
		}
		v, err := vcontrold.ParseInput(meta, args[1])
		if err != nil {
			return err
		}

		if err := client.SetValue(cmd.Context(), catalog, args[0], v); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the configured items and forward them to the configured sinks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, client, err := setup(cmd)
		if err != nil {
			return err
		}

		out, err := openSinks(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := out.Close(); err != nil {
				logger.Warn("closing sinks failed", "error", err)
			}
		}()

		items := make([]poller.Item, 0, len(cfg.Items))
		for _, it := range cfg.Items {
			items = append(items, poller.Item{Name: it.Name, Command: it.Command, Refresh: it.Refresh})
		}
		p, err := poller.New(client, out, items, logger.With("component", "poller").Logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("polling", "endpoint", client.Endpoint().String(), "items", len(items))
		return p.Run(ctx)
	},
}

// openSinks connects every enabled sink. Without any, readings are printed.
func openSinks(cfg *config.Config, logger *logging.Logger) (sink.Fanout, error) {
	var out sink.Fanout
	if cfg.MQTT.Enabled {
		m, err := sink.NewMQTT(cfg.MQTT, logger.With("component", "mqtt").Logger)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if cfg.InfluxDB.Enabled {
		i, err := sink.NewInfluxDB(cfg.InfluxDB, logger.With("component", "influxdb").Logger)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		out = append(out, sink.NewText(os.Stdout))
	}
	return out, nil
}

// isBlockCommand reports whether the daemon answers line with a block.
func isBlockCommand(line string) bool {
	name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	return name == "commands" || name == "detail"
}
