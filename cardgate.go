package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"cardgate/account"
	"cardgate/actuator"
	"cardgate/audit"
	"cardgate/button"
	"cardgate/console"
	"cardgate/eventpipe"
	"cardgate/logger"
	"cardgate/metrics"
	"cardgate/mqtt"
	"cardgate/reader"
	"cardgate/session"
	"cardgate/store"
)

var myBuild string

const (
	readerReleaseWait = 3 * time.Second
	selftestStep      = time.Second
)

// App holds the long-lived devices and connections so they can be released
// from either shutdown path: a signal, or the console ending the program.
type App struct {
	cfg      *Config
	log      zerolog.Logger
	logFile  io.Closer
	act      actuator.Actuator
	store    account.Store
	audit    *audit.Router
	mqtt     *mqtt.Client
	button   *button.Button
	cancel   context.CancelFunc
	readerWG sync.WaitGroup
	release  sync.Once
}

func main() {
	cfgfile := flag.StringP("cfg", "c", "cardgate.yml", "Config file")
	selftest := flag.Bool("selftest", false, "Send every actuator command once and exit")
	version := flag.Bool("version", false, "Print the build and exit")
	flag.Parse()

	fmt.Printf("cardgate build %s\n", myBuild)
	if *version {
		return
	}

	// A missing .env is normal; variables may come from the service manager.
	_ = godotenv.Load()

	cfg, err := loadConfig(*cfgfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load config: %v\n", err)
		os.Exit(1)
	}

	log, logFile, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Init logger: %v\n", err)
		os.Exit(1)
	}

	act, err := actuator.New(cfg.Actuator, log)
	if err != nil {
		fatal(log, err, "Init actuator")
	}
	if *selftest {
		runSelftest(act, log)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{cfg: cfg, log: log, logFile: logFile, act: act, cancel: cancel}

	// The kiosk is only stopped by its service manager; keyboard signals
	// from the console user are ignored.
	signal.Ignore(syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTSTP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("SIGTERM received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	go metrics.Serve(ctx, cfg.Metrics, log)

	app.store, err = store.Open(ctx, cfg.Store, log)
	if err != nil {
		fatal(log, err, "Open account store")
	}

	app.audit, err = audit.New(cfg.Audit, log)
	if err != nil {
		fatal(log, err, "Init audit log")
	}
	if err := app.audit.Record(audit.ProgramStart, "build "+buildName()); err != nil {
		log.Error().Err(err).Msg("Audit program start")
	}

	app.mqtt, err = mqtt.New(cfg.MQTT, log)
	if err != nil {
		fatal(log, err, "Init MQTT")
	}
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.Error().Err(err).Msg("MQTT connect")
		}
	}()
	go app.mqtt.PingSender(ctx)

	handoff := &reader.Handoff{}
	app.readerWG.Add(1)
	go func() {
		defer app.readerWG.Done()
		reader.Run(ctx, cfg.Reader, handoff, log.With().Str("component", "reader").Logger())
	}()

	tty := console.NewTTY(os.Stdin, os.Stdout, log)
	sess := session.New(cfg.Session, session.Options{
		Store:     app.store,
		Actuator:  act,
		Audit:     app.audit,
		Prompter:  tty,
		Handoff:   handoff,
		Publisher: app.mqtt,
		Log:       log.With().Str("component", "session").Logger(),
		AppLog:    cfg.Log.File,
		Cleanup:   app.shutdown,
	})
	menu := console.NewMenu(sess, tty, log.With().Str("component", "console").Logger())
	sess.SetConsole(menu)

	app.button, err = button.New(cfg.Button, sess.ExitButton, log)
	if err != nil {
		log.Error().Err(err).Msg("Exit button disabled")
	}

	pipe, err := eventpipe.New(cfg.EventPipe, func(ev eventpipe.Event) {
		switch ev.Kind {
		case eventpipe.Card:
			if !handoff.Offer(ev.Card) {
				log.Debug().Str("card", ev.Card).Msg("Simulated card dropped, no session waiting")
			}
		case eventpipe.Button:
			sess.ExitButton()
		}
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("Event pipe disabled")
	} else if pipe != nil {
		go pipe.Run(ctx)
	}

	if need, err := sess.NeedsBootstrap(ctx); err != nil {
		log.Error().Err(err).Msg("Check for existing accounts")
	} else if need {
		if err := menu.Bootstrap(ctx); err != nil {
			log.Error().Err(err).Msg("Bootstrap aborted")
			app.exit(1)
		}
	}

	log.Info().Str("build", buildName()).Msg("Access session started")
	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Session stopped")
		app.exit(1)
	}
	if err := app.audit.Record(audit.ProgramExit, "terminated by signal"); err != nil {
		log.Error().Err(err).Msg("Audit program exit")
	}
	app.exit(0)
}

// shutdown stops the background tasks and releases every device. It runs at
// most once, whichever path gets there first.
func (app *App) shutdown() {
	app.release.Do(func() {
		app.cancel()

		done := make(chan struct{})
		go func() {
			app.readerWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(readerReleaseWait):
			app.log.Warn().Msg("Reader did not release the device in time")
		}

		app.mqtt.Disconnect()
		if err := app.act.Release(); err != nil {
			app.log.Error().Err(err).Msg("Release actuator")
		}
		if app.button != nil {
			if err := app.button.Release(); err != nil {
				app.log.Error().Err(err).Msg("Release exit button")
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.store.Close(ctx); err != nil {
			app.log.Error().Err(err).Msg("Close account store")
		}
		app.log.Info().Msg("Shutdown complete")
	})
}

func (app *App) exit(code int) {
	app.shutdown()
	_ = app.logFile.Close()
	os.Exit(code)
}

func runSelftest(act actuator.Actuator, log zerolog.Logger) {
	for _, cmd := range actuator.Commands {
		log.Info().Stringer("command", cmd).Msg("Selftest")
		fmt.Printf("Sending %s\n", cmd)
		act.Send(cmd)
		time.Sleep(selftestStep)
	}
	act.Send(actuator.Idle)
	if err := act.Release(); err != nil {
		log.Error().Err(err).Msg("Release actuator")
	}
}

// fatal reports a startup failure on the terminal as well as in the log,
// which may only be going to a file, and exits.
func fatal(log zerolog.Logger, err error, msg string) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	log.Fatal().Err(err).Msg(msg)
}

func buildName() string {
	if myBuild == "" {
		return "dev"
	}
	return myBuild
}
