// Command presence-meter turns range-sensor lines into presence triggers and
// level-meter events, publishing them to MQTT and a local status page.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sweeney/presence-meter/internal/config"
	"github.com/sweeney/presence-meter/internal/gpio"
	"github.com/sweeney/presence-meter/internal/indicator"
	"github.com/sweeney/presence-meter/internal/logic"
	"github.com/sweeney/presence-meter/internal/mqtt"
	"github.com/sweeney/presence-meter/internal/pipeline"
	"github.com/sweeney/presence-meter/internal/source"
	"github.com/sweeney/presence-meter/internal/status"
	"github.com/sweeney/presence-meter/internal/web"
)

// tuiLogFile receives logs while the terminal monitor owns the screen.
const tuiLogFile = "presence-meter.log"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := config.NewConfig()

	rootCmd := &cobra.Command{
		Use:   "presence-meter",
		Short: "Range-sensor presence triggers and level meter",
		Long: `presence-meter reads distance lines from a serial port, TCP socket, stdin
or MQTT topic, smooths them per sensor and fires presence triggers when a
threshold is crossed. Triggers fill one or more level meters that drain when
nobody is around, hold at max and lock out until empty.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), flags)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	flags.BindFlags(rootCmd.Flags())
	return rootCmd
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

func run(cfg *config.Config) error {
	logOut := io.Writer(os.Stdout)
	if cfg.TUI {
		f, err := tea.LogToFile(tuiLogFile, "presence-meter")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(logOut, cfg.LogLevel)
	slog.SetDefault(logger)

	// MQTT is optional; without a broker events are dropped
	var (
		publisher  mqtt.Publisher = mqtt.Discard
		mqttStatus mqtt.ConnectionStatus
		subscriber mqtt.Subscriber
	)
	if cfg.Broker != "" {
		rp := mqtt.NewRealPublisher(mqtt.Options{
			Broker: cfg.Broker,
			Topics: mqtt.NewTopics(cfg.TopicPrefix),
		}, logger)
		// Broker round trips stay off the tick loop
		publisher = mqtt.NewAsyncPublisher(rp, mqtt.DefaultQueueSize, logger)
		mqttStatus, subscriber = rp, rp
	}
	defer publisher.Close()

	src, srcErr := source.Open(cfg.SourceConfig(), subscriber, logger)

	if cfg.PrintLine {
		if srcErr != nil {
			return fmt.Errorf("open source: %w", srcErr)
		}
		defer src.Close()
		return printLine(os.Stdout, src, cfg.ParserConfig(), time.Now)
	}

	tracker := status.NewTracker(time.Now(), cfg.StatusConfig())
	if srcErr != nil {
		// Keep serving status and manual pulses without a source
		logger.Error("failed to open line source", "source", cfg.Source, "error", srcErr)
		tracker.SetSource(false, srcErr)
		src = nil
	} else {
		tracker.SetSource(true, nil)
	}

	processor := logic.NewProcessor(cfg.ProcessorConfig())
	levelCfgs := cfg.LevelConfigs()
	controllers := make([]*logic.LevelController, 0, len(levelCfgs))
	for _, lc := range levelCfgs {
		controllers = append(controllers, logic.NewLevelController(lc, processor))
	}
	queue := pipeline.NewQueue()
	engine := pipeline.NewEngine(queue, processor, controllers, pipeline.EngineConfig{
		LogTriggers:  cfg.LogTriggers,
		LogPerSensor: cfg.LogPerSensor,
	}, logger)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, queue)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if src != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pipeline.Ingest(ctx, src, pipeline.IngestConfig{
				Parser:      cfg.ParserConfig(),
				Origin:      cfg.Source,
				LogAllLines: cfg.LogAllLines,
			}, queue, logger)
			if err != nil {
				logger.Error("ingestion stopped", "error", err)
			}
			tracker.SetSource(false, err)
		}()
	}
	defer func() {
		cancel()
		if src != nil {
			src.Close()
		}
		wg.Wait()
	}()

	lc := loopConfig{
		engine:     engine,
		queue:      queue,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		heartbeat:  cfg.Heartbeat,
		logger:     logger,
	}

	if cfg.PulsePin != gpio.Disabled {
		button, err := gpio.NewRealButton(cfg.GPIOChip, cfg.PulsePin)
		if err != nil {
			logger.Warn("pulse button unavailable", "chip", cfg.GPIOChip, "pin", cfg.PulsePin, "error", err)
		} else {
			defer button.Close()
			lc.button = button
			lc.pulser = &logic.ManualPulser{HoldToRepeat: cfg.HoldToRepeat, RepeatInterval: cfg.RepeatInterval}
		}
	}

	if cfg.LEDPin != gpio.Disabled {
		led, err := gpio.NewRealLED(cfg.GPIOChip, cfg.LEDPin)
		if err != nil {
			logger.Warn("hold LED unavailable", "chip", cfg.GPIOChip, "pin", cfg.LEDPin, "error", err)
		} else {
			defer led.Close()
			lc.blinker = indicator.NewBlinker(levelCfgs[0].Name, cfg.BlinkHz, indicator.LEDOutput(led, logger))
		}
	}

	logger.Info("started",
		"source", cfg.Source,
		"tick", cfg.Tick,
		"threshold_cm", cfg.ThresholdCm,
		"less_than", cfg.LessThan,
		"cooldown", cfg.Cooldown,
		"indicators", len(controllers),
		"broker", cfg.Broker,
		"heartbeat", cfg.Heartbeat,
	)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.TUI {
		return runLoop(lc, time.Now, ticker.C, sigCh)
	}
	return runWithMonitor(lc, cfg.BlinkHz, ticker.C, sigCh)
}

// runWithMonitor runs the loop in the background while the terminal monitor
// owns the foreground. Quitting the monitor shuts the loop down like SIGINT.
func runWithMonitor(lc loopConfig, blinkHz float64, tick <-chan time.Time, sigCh chan os.Signal) error {
	monitor := indicator.NewMonitor(blinkHz)
	defer monitor.Close()

	engine := lc.engine
	unsubscribe := engine.Subscribe(func(step pipeline.Step) {
		monitor.Observe(step, engine.Levels(), engine.Sensors(), engine.Counts())
	})
	defer unsubscribe()

	prog := tea.NewProgram(indicator.NewModel(monitor, lc.queue), tea.WithAltScreen())

	loopErr := make(chan error, 1)
	go func() {
		err := runLoop(lc, time.Now, tick, sigCh)
		prog.Quit()
		loopErr <- err
	}()

	if _, err := prog.Run(); err != nil {
		lc.logger.Error("terminal monitor failed", "error", err)
	}
	select {
	case sigCh <- syscall.SIGINT:
	default:
	}
	return <-loopErr
}

// loopConfig carries the collaborators of runLoop. button, pulser, blinker,
// mqttStatus and tracker may be nil.
type loopConfig struct {
	engine     *pipeline.Engine
	queue      *pipeline.Queue
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	button     gpio.Button
	pulser     *logic.ManualPulser
	blinker    *indicator.Blinker
	heartbeat  time.Duration
	logger     *slog.Logger
}

func runLoop(lc loopConfig, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	logger := lc.logger
	startTime := now()
	heartbeat := logic.NewHeartbeat(startTime)

	initial := lc.engine.Start(startTime)
	lc.publishLevels(initial.Levels)
	lc.updateTracker(initial)

	buttonFailing := false

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			logger.Info("shutting down", "signal", reason)
			lc.engine.Stop()
			if lc.blinker != nil {
				lc.blinker.Stop()
			}

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    reason,
				Retained:  true,
			}
			if lc.tracker != nil {
				lc.refreshConnection()
				event.RawPayload = status.FormatStatusEvent(lc.tracker.Snapshot(), "SHUTDOWN", reason)
			}
			if err := lc.publisher.PublishSystem(event); err != nil {
				logger.Warn("failed to publish shutdown event", "error", err)
			} else {
				logger.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			if lc.button != nil && lc.pulser != nil {
				pressed, err := lc.button.Pressed()
				switch {
				case err != nil:
					if !buttonFailing {
						logger.Warn("pulse button read failed", "error", err)
					}
					buttonFailing = true
				default:
					if buttonFailing {
						logger.Info("pulse button recovered")
					}
					buttonFailing = false
					if lc.pulser.Process(pressed, t) {
						lc.queue.PushPulse(t, "button")
					}
				}
			}

			step := lc.engine.Step(t)

			for _, trig := range step.Triggers {
				if err := lc.publisher.PublishTrigger(trig); err != nil {
					// Don't stop on publish failure
					logger.Warn("trigger publish failed", "sensor", trig.SensorID, "error", err)
				}
			}
			lc.publishLevels(step.Levels)
			lc.updateTracker(step)

			if hb := heartbeat.Check(t, lc.heartbeat, lc.engine.Counts()); hb != nil {
				logger.Info("heartbeat",
					"uptime", hb.Uptime,
					"triggers", hb.Counts.Triggers,
					"suppressed", hb.Counts.Suppressed,
					"lockouts", hb.Counts.Lockouts,
					"manual_pulses", hb.Counts.ManualPulses,
				)
				hbEvent := mqtt.SystemEvent{
					Timestamp: hb.Timestamp,
					Event:     "HEARTBEAT",
				}
				if lc.tracker != nil {
					hbEvent.RawPayload = status.FormatStatusEvent(lc.tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := lc.publisher.PublishSystem(hbEvent); err != nil {
					logger.Warn("heartbeat publish failed", "error", err)
				}
			}
		}
	}
}

func (lc loopConfig) publishLevels(events []logic.LevelEvent) {
	for _, ev := range events {
		lc.logger.Info("level event",
			"indicator", ev.Indicator,
			"type", ev.Type,
			"index", ev.Index,
			"prev", ev.Prev,
			"active", ev.Active,
		)
		if err := lc.publisher.PublishLevel(ev); err != nil {
			lc.logger.Warn("level publish failed", "indicator", ev.Indicator, "error", err)
		}
		if lc.blinker != nil {
			lc.blinker.Handle(ev)
		}
	}
}

func (lc loopConfig) updateTracker(step pipeline.Step) {
	if lc.tracker == nil {
		return
	}
	lc.tracker.RecordTriggers(step.Triggers)
	lc.tracker.Update(lc.engine.Sensors(), lc.engine.Levels(), lc.engine.Counts())
	lc.refreshConnection()
}

func (lc loopConfig) refreshConnection() {
	if lc.tracker != nil && lc.mqttStatus != nil {
		lc.tracker.SetMQTTConnected(lc.mqttStatus.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// printLine waits for the first line from src and prints how it parses.
func printLine(w io.Writer, src source.Source, cfg logic.ParserConfig, now func() time.Time) error {
	for {
		line, err := src.ReadLine()
		if errors.Is(err, source.ErrTimeout) || errors.Is(err, source.ErrLineTooLong) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read line: %w", err)
		}

		res := logic.ParseLine(line, cfg, now())
		fmt.Fprintf(w, "line: %q\nkind: %s\n", line, res.Kind)
		for _, r := range res.Readings {
			fmt.Fprintf(w, "  %s: %.1f cm\n", r.SensorID, r.DistanceCm)
		}
		return nil
	}
}
