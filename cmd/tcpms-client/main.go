package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tcpms/application"
	"tcpms/infrastructure/client"
	"tcpms/infrastructure/logging"
	"tcpms/infrastructure/settings"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9090", "server address")
	password := flag.String("password", "", "shared password, if the server requires encryption")
	configPath := flag.String("config", "", "path to a JSON client settings file")
	flag.Parse()

	cfg, err := settings.LoadClientSettings(*configPath, *addr, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcpms-client: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogLogger()
	c := client.New(cfg, printingHooks{logger: logger}, logger)

	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		fmt.Println("\ntcpms-client: interrupt received, disconnecting")
		_ = c.Disconnect()
		appCtxCancel()
	}()

	ok, err := c.Connect(appCtx)
	if err != nil || !ok {
		fmt.Fprintf(os.Stderr, "tcpms-client: connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer c.Disconnect()

	fmt.Printf("tcpms-client: connected to %s, type a line and press enter to send (ctrl-d to quit)\n", *addr)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := c.SendString(scanner.Text()); err != nil {
			fmt.Fprintf(os.Stderr, "tcpms-client: send: %v\n", err)
		}
	}
}

// printingHooks writes received data straight to stdout; a real
// application would route these into its own event handling instead.
type printingHooks struct {
	application.NopClientHooks
	logger application.Logger
}

func (h printingHooks) OnStringReceived(s string) {
	fmt.Println(s)
}

func (h printingHooks) OnBlobReceived(b []byte) {
	fmt.Printf("<blob %d bytes>\n", len(b))
}

func (h printingHooks) OnDisconnected() {
	h.logger.Printf("tcpms-client: disconnected")
}

func (h printingHooks) OnPanic() {
	h.logger.Printf("tcpms-client: rejoined after panic")
}
