// Command dcf77-receiver samples a DCF77 receiver module on a GPIO pin every
// 10ms, decodes the time telegram and publishes each decoded minute to MQTT.
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

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/dcf77-receiver/internal/config"
	"github.com/sweeney/dcf77-receiver/internal/dcf77"
	"github.com/sweeney/dcf77-receiver/internal/gpio"
	"github.com/sweeney/dcf77-receiver/internal/logic"
	"github.com/sweeney/dcf77-receiver/internal/metrics"
	"github.com/sweeney/dcf77-receiver/internal/mqtt"
	"github.com/sweeney/dcf77-receiver/internal/status"
	"github.com/sweeney/dcf77-receiver/internal/web"
)

func main() {
	cfg, printState, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg, printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags builds the configuration from the command line and the optional
// --config file. Flags given explicitly on the command line override the file.
func parseFlags(fs *flag.FlagSet, args []string) (config.Config, bool, error) {
	cfg := config.Default()

	configFile := fs.String("config", "", "YAML config file (explicit flags override it)")
	fs.StringVar(&cfg.Chip, "chip", cfg.Chip, "GPIO chip the receiver is connected to")
	fs.IntVar(&cfg.Pin, "pin", cfg.Pin, "BCM pin number of the receiver output")
	fs.BoolVar(&cfg.Invert, "invert", cfg.Invert, "Receiver output is low during a pulse (open collector)")
	fs.DurationVar(&cfg.Poll, "poll", cfg.Poll, "GPIO sampling interval (the decoder assumes 10ms)")
	fs.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&cfg.HTTP, "http", cfg.HTTP, "HTTP status address (empty to disable)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Log every decoded bit")
	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "Decode a synthesized signal instead of reading GPIO")
	printState := fs.Bool("print-state", false, "Print the current pin level and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}
	if *configFile == "" {
		return cfg, *printState, cfg.Validate()
	}

	fileCfg, err := config.Load(*configFile)
	if err != nil {
		return cfg, false, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			fileCfg.Chip = cfg.Chip
		case "pin":
			fileCfg.Pin = cfg.Pin
		case "invert":
			fileCfg.Invert = cfg.Invert
		case "poll":
			fileCfg.Poll = cfg.Poll
		case "broker":
			fileCfg.Broker = cfg.Broker
		case "heartbeat":
			fileCfg.Heartbeat = cfg.Heartbeat
		case "http":
			fileCfg.HTTP = cfg.HTTP
		case "verbose":
			fileCfg.Verbose = cfg.Verbose
		case "simulate":
			fileCfg.Simulate = cfg.Simulate
		}
	})
	return fileCfg, *printState, fileCfg.Validate()
}

func openReader(cfg config.Config) (gpio.Reader, error) {
	if cfg.Simulate {
		now := time.Now()
		log.Printf("gpio: simulating DCF77 signal from %s", now.Format(time.RFC3339))
		return gpio.NewSignalReader(now), nil
	}
	r, err := gpio.NewRealReader(cfg.Chip, cfg.Pin, cfg.Invert)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func run(cfg config.Config, printState bool) error {
	if cfg.Poll != dcf77.SampleInterval {
		log.Printf("warning: poll=%v, decoder thresholds assume %v", cfg.Poll, dcf77.SampleInterval)
	}

	reader, err := openReader(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	if printState {
		high, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("DCF77: %s\n", levelString(high))
		return nil
	}

	broker, err := mqtt.NewRealPublisher(cfg.Broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	publisher := mqtt.NewOutbox(broker)
	// Runs after g.Wait, once the outbox has flushed.
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:        cfg.Chip,
		Pin:         cfg.Pin,
		Invert:      cfg.Invert,
		Simulate:    cfg.Simulate,
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTP,
	})
	tracker.SetMQTTConnected(publisher.IsConnected())
	m := metrics.New()
	live := web.NewLive()

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to queue startup event: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return live.Run(ctx) })
	g.Go(func() error { return publisher.Run(ctx) })

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, m.Handler(), live)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: chip=%s pin=%d invert=%v poll=%v broker=%s heartbeat=%v simulate=%v",
		cfg.Chip, cfg.Pin, cfg.Invert, cfg.Poll, cfg.Broker, cfg.Heartbeat, cfg.Simulate)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	out := sinks{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		metrics:    m,
		live:       live,
	}
	g.Go(func() error {
		defer cancel()
		return runLoop(ctx, reader, out, cfg.Heartbeat, cfg.Verbose, time.Now, ticker.C, sigCh)
	})
	return g.Wait()
}

// sinks receives what the sampling loop produces. Only publisher is required,
// and it must not block: run wraps the broker connection in an mqtt.Outbox.
type sinks struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	live       *web.Live
}

// statusPayload refreshes connectivity and returns the full status JSON for a
// system event, or nil when there is no tracker.
func (s sinks) statusPayload(event, reason string) []byte {
	if s.tracker == nil {
		return nil
	}
	if s.mqttStatus != nil {
		s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
	}
	return status.FormatStatusEvent(s.tracker.Snapshot(), event, reason)
}

func runLoop(ctx context.Context, reader gpio.Reader, out sinks, heartbeat time.Duration, verbose bool, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	receiver := logic.NewReceiver(startTime)
	synced := false
	readErrors := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: out.statusPayload("SHUTDOWN", signalName),
			}
			if err := out.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			}
			return nil

		case <-tick:
			t := now()
			high, err := reader.Read()
			if err != nil {
				// Log once per outage.
				if readErrors == 0 {
					log.Printf("gpio read error: %v", err)
				}
				readErrors++
				continue
			}
			if readErrors > 0 {
				log.Printf("gpio: read recovered after %d errors", readErrors)
				readErrors = 0
			}

			events := receiver.Process(logic.Input{High: high, Time: t})
			if !synced && receiver.Synced() {
				synced = true
				log.Printf("decoder: minute gap found, synced")
			}

			for _, event := range events {
				logEvent(event, verbose)
				if err := out.publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
				if out.metrics != nil {
					out.metrics.RecordEvent(event)
				}
				if out.tracker != nil {
					out.tracker.Observe(event)
				}
				if out.live != nil {
					out.live.Broadcast(event)
				}
			}

			state, second := receiver.State()
			if out.tracker != nil {
				out.tracker.Update(state, second, receiver.Synced(), receiver.EventCountsSnapshot())
			}
			if out.metrics != nil {
				out.metrics.SetState(second, receiver.Synced())
			}

			if hb := receiver.CheckHeartbeat(t, heartbeat); hb != nil {
				log.Printf("heartbeat: uptime=%v synced=%v minutes=%d valid=%d invalid=%d faulty_bits=%d",
					hb.Uptime, hb.Synced, hb.Counts.Minutes, hb.Counts.ValidMinutes, hb.Counts.InvalidMinutes, hb.Counts.FaultyBits)

				hbEvent := mqtt.SystemEvent{
					Timestamp:  hb.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: out.statusPayload("HEARTBEAT", ""),
				}
				if err := out.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

func logEvent(e logic.Event, verbose bool) {
	switch e.Type {
	case logic.EventBit:
		if verbose {
			log.Printf("bit: second=%d value=%d", e.Second, boolToInt(e.Value))
		}
	case logic.EventFaultyBit:
		if verbose {
			log.Printf("bit: second=%d faulty", e.Second)
		}
	case logic.EventMinute:
		if e.Valid() {
			log.Printf("minute: %s", e.Time)
		} else {
			log.Printf("minute: invalid after %d bits: %v", e.Bits, e.Err)
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func levelString(high bool) string {
	if high {
		return "HIGH (pulse)"
	}
	return "LOW"
}
