package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/odvcencio/tether/pkg/action"
	"github.com/odvcencio/tether/pkg/bridge"
	"github.com/odvcencio/tether/pkg/bus"
	"github.com/odvcencio/tether/pkg/config"
	"github.com/odvcencio/tether/pkg/coordinator"
	"github.com/odvcencio/tether/pkg/logging"
	"github.com/odvcencio/tether/pkg/metrics"
	"github.com/odvcencio/tether/pkg/terminal"
	"github.com/odvcencio/tether/pkg/workspace"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	configPath  string
	endpoint    string
	metricsAddr string
	quietMode   bool
)

func main() {
	flag.StringVar(&configPath, "config", defaultConfigPath(), "path to the tether config file")
	flag.StringVar(&endpoint, "endpoint", "", "agent websocket endpoint (overrides config)")
	flag.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address (e.g. :9810)")
	flag.BoolVar(&quietMode, "quiet", false, "suppress debug log output")
	flag.Parse()

	if flag.Arg(0) == "version" {
		fmt.Printf("tether %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tether: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if endpoint != "" {
		cfg.Bridge.Endpoint = endpoint
		cfg.Bridge.Enabled = true
	}

	b := bus.New()
	defer b.Close()

	printLogs(b)

	if cfg.Logging.Dir != "" {
		sink, err := logging.NewSink(b, cfg.Logging.Dir, logging.Level(cfg.Logging.MinLevel))
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	metrics.Attach(b)
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				b.Log(fmt.Sprintf("metrics server: %v", err), "error")
			}
		}()
	}

	roots := cfg.Workspace.Roots
	if len(roots) == 0 {
		if wd, err := os.Getwd(); err == nil {
			roots = []string{wd}
		}
	}
	ws := workspace.NewStaticProvider(roots)

	registry := action.NewRegistry(b)
	terminals := terminal.NewManager()
	defer terminals.Close()

	br := bridge.New(cfg.Bridge, b)
	defer br.Close()

	coord := coordinator.New(coordinator.Options{
		Bus:            b,
		Sender:         br,
		Registry:       registry,
		Workspace:      ws,
		Terminals:      terminals,
		ActionDeadline: cfg.Actions.Deadline,
	})
	coord.Start()
	defer coord.Close()

	// Config edits restart the connection with the new settings.
	watcher, err := config.Watch(configPath,
		func(next config.Config) {
			if endpoint != "" {
				next.Bridge.Endpoint = endpoint
				next.Bridge.Enabled = true
			}
			b.Log("configuration reloaded", "info")
			br.ApplyConfiguration(next.Bridge)
		},
		func(err error) {
			b.Log(fmt.Sprintf("config reload failed: %v", err), "error")
		})
	if err == nil {
		defer watcher.Close()
	}

	br.Restart()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go readInput(lines)

	fmt.Println("tether ready. /run <id> invokes an action, /actions lists them, /quit exits; anything else is chat.")
	for {
		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleInput(line, coord, registry, br); done {
				return nil
			}
		}
	}
}

func handleInput(line string, coord *coordinator.Coordinator, registry *action.Registry, br *bridge.Bridge) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit", line == "/exit":
		return true
	case line == "/actions":
		actions := registry.Actions()
		if len(actions) == 0 {
			fmt.Println("no actions registered")
			return false
		}
		for _, a := range actions {
			marker := " "
			if a.Disabled {
				marker = "x"
			}
			fmt.Printf("  [%s] %-24s %s\n", marker, a.ID, a.Label)
		}
		return false
	case line == "/status":
		state, msg := br.State()
		if msg != "" {
			fmt.Printf("bridge: %s (%s), %d action(s) in flight\n", state, msg, coord.InFlightCount())
		} else {
			fmt.Printf("bridge: %s, %d action(s) in flight\n", state, coord.InFlightCount())
		}
		return false
	case strings.HasPrefix(line, "/run "):
		coord.InvokeRemoteAction(strings.TrimSpace(strings.TrimPrefix(line, "/run ")))
		return false
	case strings.HasPrefix(line, "/"):
		fmt.Printf("unknown command %q\n", line)
		return false
	default:
		coord.SendChatMessage(line, true)
		return false
	}
}

func readInput(lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

// printLogs mirrors bus log events to stderr so the terminal shows what the
// JSONL sink records.
func printLogs(b *bus.Bus) {
	b.SubscribeLog(func(ev bus.LogEvent) {
		if quietMode && ev.Level == "debug" {
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Level, ev.Message)
	})
	b.SubscribeBridgeState(func(ev bus.BridgeStateEvent) {
		if ev.Message != "" {
			fmt.Fprintf(os.Stderr, "bridge: %s (%s)\n", ev.State, ev.Message)
		} else {
			fmt.Fprintf(os.Stderr, "bridge: %s\n", ev.State)
		}
	})
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.config/tether/tether.yaml"
	}
	return "tether.yaml"
}
