// Command plexusd runs the plexus substrate: a JSON-RPC dispatcher hosting
// the bash, wizard, and imaging demo activations, served over WebSocket or
// stdio depending on flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/hypermemetic/plexus-substrate/activations/bash"
	"github.com/hypermemetic/plexus-substrate/activations/imaging"
	"github.com/hypermemetic/plexus-substrate/activations/wizard"
	"github.com/hypermemetic/plexus-substrate/config"
	"github.com/hypermemetic/plexus-substrate/internal/plexus"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
	"github.com/hypermemetic/plexus-substrate/internal/transport/stdio"
	"github.com/hypermemetic/plexus-substrate/internal/transport/ws"
)

func main() {
	var (
		hostF       = flag.String("host", "", "listen host (overrides config file)")
		portF       = flag.Int("port", 0, "listen port (overrides config file)")
		stdioF      = flag.Bool("stdio", false, "serve the notification-only adapter on stdin/stdout instead of WebSocket")
		queueDepthF = flag.Int("queue-depth", 0, "per-subscription queue depth (0 = default 200)")
		configF     = flag.String("config", "", "path to an optional YAML config file")
		logFormatF  = flag.String("log-format", "", "\"json\" or \"terminal\" (default: auto-detect)")
	)
	flag.Parse()

	cfg, err := config.Load(*configF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *hostF != "" {
		cfg.Host = *hostF
	}
	if *portF != 0 {
		cfg.Port = *portF
	}
	if *stdioF {
		cfg.Stdio = true
	}
	if *queueDepthF != 0 {
		cfg.QueueDepth = *queueDepthF
	}
	if *logFormatF != "" {
		cfg.LogFormat = *logFormatF
	}

	format := log.FormatJSON
	switch cfg.LogFormat {
	case "terminal":
		format = log.FormatTerminal
	case "json":
		format = log.FormatJSON
	default:
		if log.IsTerminal() {
			format = log.FormatTerminal
		}
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	logger := telemetry.NewClueLogger()
	tracer := telemetry.NewClueTracer("github.com/hypermemetic/plexus-substrate")

	dispatcher := plexus.New(tracer, logger)
	if err := registerActivations(dispatcher, cfg); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "registering activations"})
		os.Exit(1)
	}
	log.Print(ctx, log.KV{K: "plexus_hash", V: dispatcher.Hash()})

	if cfg.Stdio {
		runStdio(ctx, dispatcher, logger, tracer, cfg)
		return
	}
	runWebSocket(ctx, dispatcher, logger, tracer, cfg)
}

func registerActivations(d *plexus.Dispatcher, cfg config.Config) error {
	if cfg.ActivationEnabled("bash") {
		if err := d.Register(&bash.Activation{Shell: cfg.Bash.Shell}); err != nil {
			return err
		}
	}
	if cfg.ActivationEnabled("wizard") {
		if err := d.Register(&wizard.Activation{Templates: cfg.Wizard.Templates}); err != nil {
			return err
		}
	}
	if cfg.ActivationEnabled("imaging") {
		if err := d.Register(&imaging.Activation{}); err != nil {
			return err
		}
	}
	return nil
}

func runStdio(ctx context.Context, dispatcher *plexus.Dispatcher, logger telemetry.Logger, tracer telemetry.Tracer, cfg config.Config) {
	adapter := stdio.NewAdapter(dispatcher, logger, tracer, true, cfg.QueueDepth)
	log.Print(ctx, log.KV{K: "transport", V: "stdio"})
	if err := adapter.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "stdio session ended"})
	}
}

func runWebSocket(ctx context.Context, dispatcher *plexus.Dispatcher, logger telemetry.Logger, tracer telemetry.Tracer, cfg config.Config) {
	adapter := ws.NewAdapter(dispatcher, logger, tracer, cfg.QueueDepth)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", adapter.ServeHTTP)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Print(ctx, log.KV{K: "transport", V: "websocket"}, log.KV{K: "addr", V: addr})
		errc <- srv.ListenAndServe()
	}()

	log.Print(ctx, log.KV{K: "exiting", V: fmt.Sprintf("%v", <-errc)})
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
