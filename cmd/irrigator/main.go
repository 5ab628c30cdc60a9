// Command irrigator waters on a fixed schedule: it drives a pump motor for a
// set duration, then waits a set interval after each cycle before the next.
// Transitions are published to MQTT and exposed on an HTTP status page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/irrigator/internal/config"
	"github.com/sweeney/irrigator/internal/controller"
	"github.com/sweeney/irrigator/internal/gpio"
	"github.com/sweeney/irrigator/internal/metrics"
	"github.com/sweeney/irrigator/internal/mqtt"
	"github.com/sweeney/irrigator/internal/status"
	"github.com/sweeney/irrigator/internal/timer"
	"github.com/sweeney/irrigator/internal/web"
)

const defaultConfigPath = "/etc/irrigator/irrigator.yaml"

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}

	cfg, err := opts.config()
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if opts.printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(data)
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// options holds parsed command-line flags. Overrides apply only to flags
// given explicitly, so config file values survive otherwise.
type options struct {
	configPath  string
	debug       bool
	printConfig bool

	broker      string
	httpAddr    string
	chip        string
	pinMotor    int
	pinLight    int
	interval    time.Duration
	duration    time.Duration
	tick        time.Duration
	reportEvery time.Duration

	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	def := config.Default()
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("irrigator", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", defaultConfigPath, "YAML config file (missing file uses defaults)")
	fs.BoolVar(&o.debug, "debug", false, "Use the short test schedule (water 1m every 6m) as defaults")
	fs.BoolVar(&o.printConfig, "print-config", false, "Print the effective configuration and exit")
	fs.StringVar(&o.broker, "broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&o.httpAddr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	fs.StringVar(&o.chip, "chip", def.GPIO.Chip, "GPIO chip name")
	fs.IntVar(&o.pinMotor, "pin-motor", def.GPIO.PinMotor, "BCM pin number for the pump motor")
	fs.IntVar(&o.pinLight, "pin-light", def.GPIO.PinLight, "BCM pin number for the indicator (-1 to disable)")
	fs.DurationVar(&o.interval, "interval", def.Schedule.Interval, "Time from the end of one cycle to the start of the next")
	fs.DurationVar(&o.duration, "duration", def.Schedule.Duration, "Watering cycle length")
	fs.DurationVar(&o.tick, "tick", def.Schedule.Tick, "Scheduler check period")
	fs.DurationVar(&o.reportEvery, "report-every", def.Status.ReportEvery, "Status log and heartbeat period")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// config resolves defaults, the config file and explicit flags, in that
// order, and validates the result.
func (o *options) config() (*config.Config, error) {
	base := config.Default()
	if o.debug {
		base = config.Debug()
	}

	cfg, err := config.Load(o.configPath, base)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if o.set["broker"] {
		cfg.MQTT.Broker = o.broker
	}
	if o.set["http"] {
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.set["chip"] {
		cfg.GPIO.Chip = o.chip
	}
	if o.set["pin-motor"] {
		cfg.GPIO.PinMotor = o.pinMotor
	}
	if o.set["pin-light"] {
		cfg.GPIO.PinLight = o.pinLight
	}
	if o.set["interval"] {
		cfg.Schedule.Interval = o.interval
	}
	if o.set["duration"] {
		cfg.Schedule.Duration = o.duration
	}
	if o.set["tick"] {
		cfg.Schedule.Tick = o.tick
	}
	if o.set["report-every"] {
		cfg.Status.ReportEvery = o.reportEvery
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	// Initialize GPIO
	out, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.PinMotor, cfg.GPIO.PinLight)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Printf("ERROR: release gpio: %v", err)
		}
	}()

	m := metrics.New()

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.Discard
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		mo := mqtt.DefaultOptions(cfg.MQTT.Broker)
		mo.ClientID = cfg.MQTT.ClientID
		mo.BufferSize = cfg.MQTT.BufferSize
		rp := mqtt.NewRealPublisher(mo)
		rp.SetBufferObserver(m.SetBuffered)
		publisher, mqttStatus = rp, rp
	} else {
		log.Printf("WARN: no MQTT broker configured, events will not be published")
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Interval:    cfg.Schedule.Interval,
		Duration:    cfg.Schedule.Duration,
		Tick:        cfg.Schedule.Tick,
		ReportEvery: cfg.Status.ReportEvery,
		PinMotor:    cfg.GPIO.PinMotor,
		PinLight:    cfg.GPIO.PinLight,
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(cfg.Status.NetworkFile); net != nil {
		tracker.SetNetwork(net)
	}

	clock := timer.Real()
	ctrl := controller.New(controller.Config{
		Interval: cfg.Schedule.Interval,
		Duration: cfg.Schedule.Duration,
		PinMotor: cfg.GPIO.PinMotor,
		PinLight: cfg.GPIO.PinLight,
	}, out, controller.Options{
		Clock:     clock,
		Publisher: publisher,
		Tracker:   tracker,
		Metrics:   m,
	})
	sched := controller.NewScheduler(ctrl, clock, cfg.Schedule.Tick)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Status reporter runs on its own ticker and only reads the tracker.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reportTicker := time.NewTicker(cfg.Schedule.Tick)
	defer reportTicker.Stop()
	reporter := status.NewReporter(tracker, cfg.Schedule.Tick, cfg.Status.ReportEvery,
		heartbeat(publisher, mqttStatus, tracker, cfg.Status.NetworkFile))
	go reporter.Run(ctx, reportTicker.C)

	log.Printf("started: interval=%v duration=%v tick=%v motor=%d light=%d broker=%s",
		cfg.Schedule.Interval, cfg.Schedule.Duration, cfg.Schedule.Tick,
		cfg.GPIO.PinMotor, cfg.GPIO.PinLight, cfg.MQTT.Broker)

	ticker := time.NewTicker(cfg.Schedule.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sched, ctrl, publisher, mqttStatus, tracker, time.Now, ticker.C, sigCh)
}

// runLoop starts the first cycle, then feeds scheduler ticks until a signal
// arrives. On shutdown the actuator is stopped before the SHUTDOWN event is
// published.
func runLoop(sched *controller.Scheduler, ctrl *controller.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	if err := sched.Begin(); err != nil {
		log.Printf("ERROR: initial watering cycle failed: %v", err)
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			if err := ctrl.Shutdown(); err != nil {
				log.Printf("ERROR: stop on shutdown: %v", err)
			}

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			// Actuator errors are logged and counted by the controller; the
			// schedule carries on regardless.
			sched.Tick()

			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// heartbeat returns the reporter callback that publishes a HEARTBEAT system
// event with a fresh status snapshot.
func heartbeat(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, networkFile string) func(status.Snapshot) {
	return func(status.Snapshot) {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		// Refresh network info for heartbeat
		if net := readNetworkInfo(networkFile); net != nil {
			tracker.SetNetwork(net)
		}
		snap := tracker.Snapshot()
		event := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("heartbeat publish error: %v", err)
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads pi-helper's env file, falling back to the process
// environment for any variable the file does not set. Returns nil when no
// network status is known.
func readNetworkInfo(path string) *status.NetworkInfo {
	file := map[string]string{}
	if path != "" {
		if env, err := godotenv.Read(path); err == nil {
			file = env
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Printf("WARN: read %s: %v", path, err)
		}
	}
	get := func(key string) string {
		if v, ok := file[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}
