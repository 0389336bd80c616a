package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sps30"
	"sps30/lifecycle"
	"sps30/sim"
)

const DEFAULTPORT = "/dev/ttyAMA0"

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run measurement duty cycle until interrupted",
	Long: `Run measurement duty cycle until interrupted.

Serial port is retried until it opens. Sensor is probed --probe-attempts
times, exit code is 3 if it never responds.

Examples:
  sps30ctl run --port /dev/ttyUSB0
  sps30ctl run --sim --sample-count 5 --idle 5s
  SPS30_PORT=/dev/ttyAMA0 sps30ctl run --metrics-addr :9130`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    runController,
}

func init() {
	rootCmd.AddCommand(runCmd)
	defaults := lifecycle.DefaultConfig()

	addConnectionFlags(runCmd)
	f := runCmd.Flags()
	f.Int("probe-attempts", defaults.ProbeAttempts, "probe attempts before giving up")
	f.Int("sample-count", defaults.SampleCount, "readings per measurement window")
	f.Duration("sample-interval", defaults.SampleInterval, "delay after each reading")
	f.Duration("idle", defaults.IdleDuration, "low power idle between measurement windows")
	f.Uint8("auto-clean-days", defaults.AutoCleanDays, "fan auto clean interval in days")
	f.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9130")
}

func addConnectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("port", "p", DEFAULTPORT, "serial device")
	f.IntP("baud", "b", sps30.DEFAULTBAUDRATE, "baud rate")
	f.Duration("response-timeout", sps30.TIMEOUTRESPONSE*time.Millisecond, "how long to wait each sensor response")
	f.Bool("sim", false, "use in-process simulated sensor instead of serial port")
	f.String("sim-model", "", "YAML model file for simulated sensor")
}

// bindFlags binds flags of the executing command only, env and config file fill in the rest
func bindFlags(cmd *cobra.Command, args []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func openConn(log logrus.FieldLogger) (sps30.Conn, error) {
	if !viper.GetBool("sim") {
		return sps30.NewSerialConn(viper.GetString("port"), sps30.WithBaudRate(viper.GetInt("baud")))
	}
	model := sim.DefaultModel()
	if fname := viper.GetString("sim-model"); fname != "" {
		var err error
		model, err = sim.LoadModel(fname)
		if err != nil {
			return nil, err
		}
	}
	log.WithField("serial", model.Serial).Info("using simulated sensor")
	return sim.NewSensor(model), nil
}

func serveMetrics(addr string, log logrus.FieldLogger) (*lifecycle.Metrics, error) {
	reg := prometheus.NewRegistry()
	metrics, err := lifecycle.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if errServe := http.ListenAndServe(addr, router); errServe != nil {
			log.WithError(errServe).Error("metrics server stopped")
		}
	}()
	return metrics, nil
}

func logrusForPort() *logrus.Entry {
	if viper.GetBool("sim") {
		return logrus.WithField("port", "sim")
	}
	return logrus.WithField("port", viper.GetString("port"))
}

func runController(cmd *cobra.Command, args []string) error {
	log := logrusForPort()

	conn, err := openConn(log)
	if err != nil {
		return err
	}
	dev := sps30.NewDevice(conn, sps30.WithResponseTimeout(viper.GetDuration("response-timeout")))

	var metrics *lifecycle.Metrics
	if addr := viper.GetString("metrics-addr"); addr != "" {
		if metrics, err = serveMetrics(addr, log); err != nil {
			return err
		}
	}

	autoCleanDays := viper.GetUint("auto-clean-days")
	if 255 < autoCleanDays {
		return fmt.Errorf("%w: auto clean interval %v days", lifecycle.ErrInvalidConfig, autoCleanDays)
	}

	ctrl, err := lifecycle.NewController(lifecycle.Dependencies{
		Transport: conn,
		Driver:    dev,
		Sleeper:   clock.New(),
		Sink:      lifecycle.NewWriterSink(os.Stdout),
		Log:       log,
		Metrics:   metrics,
	},
		lifecycle.WithProbeAttempts(viper.GetInt("probe-attempts")),
		lifecycle.WithSampleWindow(viper.GetInt("sample-count"), viper.GetDuration("sample-interval")),
		lifecycle.WithIdleDuration(viper.GetDuration("idle")),
		lifecycle.WithAutoCleanDays(uint8(autoCleanDays)),
	)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return ctrl.Run(ctx)
}

/*
interruptContext is cancelled by first of sigs. Controller finishes its cycle before
returning, so signal handling is released right away and second Ctrl-C kills the process
*/
func interruptContext(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, sigs...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
