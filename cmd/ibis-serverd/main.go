// Command ibis-serverd runs the IBIS broker: it owns the RS-232 link to
// the physical displays and the stop-indicator GPIO lines, arbitrates
// concurrent display-content submissions from clients, and serves the
// length-prefixed JSON control protocol over TCP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mezgrman/ibisbroker/internal/ibis"
)

func main() {
	var (
		serialPort     = pflag.StringP("serial-port", "d", "/dev/ttyUSB0", "Serial device the IBIS displays are attached to")
		baudRate       = pflag.IntP("baud-rate", "b", 1200, "Serial baud rate")
		listenAddress  = pflag.StringP("listen", "l", fmt.Sprintf(":%d", ibis.DefaultPort), "Address to serve the control protocol on")
		refreshTimeout = pflag.Duration("refresh-timeout", ibis.DefaultRefreshTimeout, "How long an unchanged line is left before it's repainted")
		stateFile      = pflag.StringP("state-file", "s", "ibis.json", "Path to persist and restore buffer/enabled/stop-indicator state. Empty disables persistence")
		gpioConfig     = pflag.String("gpio-config", "", "Path to a YAML pin map for the stop-indicator GPIO lines. Empty disables GPIO")
		selftest       = pflag.Bool("selftest", false, "Run the power-on display selftest sequence before serving")
		verbose        = pflag.BoolP("verbose", "v", false, "Log message sets, arbitration rejections, and enable/disable changes")
		debug          = pflag.Bool("debug", false, "Log per-telegram tracing in addition to --verbose output")
		logJSON        = pflag.Bool("log-json", false, "Emit logs as JSON instead of the interactive formatter")
		help           = pflag.Bool("help", false, "Display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - IBIS passenger-display broker.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Owns the serial link to the displays and arbitrates content\n")
		fmt.Fprintf(os.Stderr, "submitted over the control protocol by one or more clients.\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := ibis.NewLogger(*verbose, *debug, *logJSON)

	pins, err := ibis.LoadGPIOConfig(*gpioConfig)
	if err != nil {
		logger.Fatal("loading GPIO config", "err", err)
	}

	server, err := ibis.NewServer(ibis.ServerConfig{
		SerialDevice:   *serialPort,
		BaudRate:       *baudRate,
		ListenAddress:  *listenAddress,
		RefreshTimeout: *refreshTimeout,
		StateFile:      *stateFile,
		GPIOPins:       pins,
		Selftest:       *selftest,
	}, logger)
	if err != nil {
		logger.Fatal("starting server", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ibis-serverd starting", "serial", *serialPort, "listen", *listenAddress)
	start := time.Now()
	if err := server.Run(ctx); err != nil {
		logger.Fatal("server exited", "err", err)
	}
	logger.Info("ibis-serverd stopped", "uptime", time.Since(start))
}
