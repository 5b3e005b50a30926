package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwf5426/cartfs/internal/cart"
	"github.com/jwf5426/cartfs/internal/config"
	"github.com/jwf5426/cartfs/internal/metrics"
)

var cfg = config.Default()

func init() {
	cmdFlags := rootCmd.PersistentFlags()
	cfg.RegisterFlags(cmdFlags)

	rootCmd.AddCommand(poweronCmd)
	rootCmd.AddCommand(poweroffCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(serveCmd)
}

var rootCmd = &cobra.Command{
	Use:   "cartctl",
	Short: "Control the cartridge filesystem driver",
	Long: `
cartctl drives the cartridge/frame filesystem over its bus connection to a
controller. Standalone subcommands (open, read, write, seek, close) each
complete a full power cycle on their own, and every power-on zeroes every
cartridge, so neither file metadata nor frame contents survive between
invocations. Use "serve" for a session that keeps state across several
operations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.ApplyFlags()
	},
}

// newDriver builds a Driver from the resolved Config, wiring in a logger
// and, when --metrics-addr is set, a Metrics sink.
func newDriver() (*cart.Driver, *metrics.Metrics) {
	log := newLogger()
	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
	}
	opts := []cart.Option{cart.WithLogger(log)}
	if m != nil {
		opts = append(opts, cart.WithMetrics(m))
	}
	d := cart.New(cfg.ControllerAddr, cfg.ControllerPort, cfg.CacheCapacity, opts...)
	return d, m
}

var poweronCmd = &cobra.Command{
	Use:   "poweron",
	Short: "Run the power-on sequence (init, load+zero every cartridge)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _ := newDriver()
		if err := d.Poweron(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var poweroffCmd = &cobra.Command{
	Use:   "poweroff",
	Short: "Issue the power-off exchange",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _ := newDriver()
		if err := d.Poweroff(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open name",
	Short: "Power on, open a file by name, report its handle, then power off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _ := newDriver()
		if err := d.Poweron(); err != nil {
			return err
		}
		defer d.Poweroff()

		h, err := d.Open([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(h)
		return d.Close(h)
	},
}

var writeCmd = &cobra.Command{
	Use:   "write name data",
	Short: "Power on, open name, write data, close, then power off",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _ := newDriver()
		if err := d.Poweron(); err != nil {
			return err
		}
		defer d.Poweroff()

		h, err := d.Open([]byte(args[0]))
		if err != nil {
			return err
		}
		defer d.Close(h)

		payload := []byte(args[1])
		n, err := d.Write(h, payload, len(payload))
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read name count",
	Short: "Power on, open name, read count bytes, close, then power off",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("cartctl: count must be an integer: %w", err)
		}

		d, _ := newDriver()
		if err := d.Poweron(); err != nil {
			return err
		}
		defer d.Poweroff()

		h, err := d.Open([]byte(args[0]))
		if err != nil {
			return err
		}
		defer d.Close(h)

		buf := make([]byte, count)
		n, err := d.Read(h, buf, count)
		if err != nil {
			return err
		}
		fmt.Println(string(buf[:n]))
		return nil
	},
}

var seekCmd = &cobra.Command{
	Use:   "seek name location",
	Short: "Power on, open name, seek to location, close, then power off",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("cartctl: location must be an integer: %w", err)
		}

		d, _ := newDriver()
		if err := d.Poweron(); err != nil {
			return err
		}
		defer d.Poweroff()

		h, err := d.Open([]byte(args[0]))
		if err != nil {
			return err
		}
		defer d.Close(h)

		if err := d.Seek(h, loc); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close name",
	Short: "Power on, open then immediately close name, then power off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _ := newDriver()
		if err := d.Poweron(); err != nil {
			return err
		}
		defer d.Poweroff()

		h, err := d.Open([]byte(args[0]))
		if err != nil {
			return err
		}
		return d.Close(h)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Power on and hold the driver open, running operations read from stdin",
	Long: `
serve keeps one Driver powered on for the life of the process, reading
line-delimited operations from stdin until EOF or "quit":

  open NAME          -> prints a handle
  write HANDLE DATA  -> prints bytes written
  read HANDLE COUNT  -> prints the bytes read
  seek HANDLE LOC
  close HANDLE
  quit               -> powers off and exits

If --metrics-addr is set, Prometheus metrics are served there for the
life of the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, m := newDriver()

		if cfg.MetricsAddr != "" {
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintln(os.Stderr, "cartctl: metrics server:", err)
				}
			}()
		}

		if err := d.Poweron(); err != nil {
			return err
		}

		runServeLoop(d)
		return d.Poweroff()
	},
}

func runServeLoop(d *cart.Driver) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return
		case "open":
			if len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: open NAME")
				continue
			}
			h, err := d.Open([]byte(fields[1]))
			printResult(h, err)
		case "write":
			if len(fields) < 3 {
				fmt.Fprintln(os.Stderr, "usage: write HANDLE DATA")
				continue
			}
			h, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad handle:", err)
				continue
			}
			data := []byte(strings.Join(fields[2:], " "))
			n, err := d.Write(h, data, len(data))
			printResult(n, err)
		case "read":
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "usage: read HANDLE COUNT")
				continue
			}
			h, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad handle:", err)
				continue
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad count:", err)
				continue
			}
			buf := make([]byte, count)
			n, err := d.Read(h, buf, count)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			fmt.Println(string(buf[:n]))
		case "seek":
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "usage: seek HANDLE LOCATION")
				continue
			}
			h, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad handle:", err)
				continue
			}
			loc, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad location:", err)
				continue
			}
			printResult(0, d.Seek(h, loc))
		case "close":
			if len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: close HANDLE")
				continue
			}
			h, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad handle:", err)
				continue
			}
			printResult(0, d.Close(h))
		default:
			fmt.Fprintln(os.Stderr, "unknown operation:", fields[0])
		}
	}
}

func printResult(n int, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Println(n)
}
