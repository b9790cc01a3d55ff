package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tcpms/application"
	"tcpms/infrastructure/logging"
	"tcpms/infrastructure/server"
	"tcpms/infrastructure/settings"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:9090", "listen address")
	configPath := flag.String("config", "", "path to a JSON server settings file")
	flag.Parse()

	cfg, err := settings.LoadServerSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcpms-server: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogLogger()

	ln, err := server.Listen(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcpms-server: listen on %s: %v\n", *addr, err)
		os.Exit(1)
	}

	srv := server.New(ln, cfg, loggingHooks{logger: logger}, logger)

	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		logger.Printf("tcpms-server: interrupt received, shutting down")
		appCtxCancel()
	}()

	logger.Printf("tcpms-server: listening on %s (encryption=%v, max_clients=%d)", *addr, cfg.EncryptionEnabled, cfg.MaxClients)
	if err := srv.Serve(appCtx); err != nil && appCtx.Err() == nil {
		logger.Printf("tcpms-server: serve: %v", err)
		os.Exit(1)
	}
}

// loggingHooks logs every lifecycle event; a real deployment would swap
// this for hooks that feed a dashboard or message queue.
type loggingHooks struct {
	application.NopServerHooks
	logger application.Logger
}

func (h loggingHooks) OnClientConnected(clientID string) {
	h.logger.Printf("tcpms-server: client connected: %s", clientID)
}

func (h loggingHooks) OnClientDisconnected(clientID string) {
	h.logger.Printf("tcpms-server: client disconnected: %s", clientID)
}

func (h loggingHooks) OnClientPanic(clientID string) {
	h.logger.Printf("tcpms-server: client rejoined after panic: %s", clientID)
}
