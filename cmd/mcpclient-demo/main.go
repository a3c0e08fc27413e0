// Command mcpclient-demo is a minimal embedding host for mcpclient,
// grounded on the teacher's example/stdio/main.go: it spawns a child MCP
// server over stdio, waits for the handshake, issues one request, and prints
// the result before shutting down on signal or completion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/tidalfoundry/mcpclient"
	"github.com/tidalfoundry/mcpclient/transport/stdio"
)

func main() {
	command := flag.String("command", "", "child process command to spawn as the MCP server")
	method := flag.String("method", "tools/list", "JSON-RPC method to send once connected")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	if *command == "" {
		fmt.Fprintln(os.Stderr, "mcpclient-demo: -command is required")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	clientCfg := mcpclient.NewClientConfig(
		mcpclient.Info{Name: "mcpclient-demo", Version: "0.1.0"},
		mcpclient.WithLogger(logger),
	)

	manager := mcpclient.NewManager(clientCfg)
	serverCfg := mcpclient.StdioServerConfig("demo-server", *command, flag.Args(), *timeout)
	manager.RegisterServer(serverCfg, func() mcpclient.Transport {
		return stdio.New(serverCfg.Command, serverCfg.Args, serverCfg.Env, logger)
	})

	if err := run(ctx, manager, "demo-server", *method, *timeout); err != nil {
		logger.Error("demo failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, manager *mcpclient.Manager, server, method string, timeout time.Duration) error {
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.DisconnectAll(dctx)
	}()

	if _, err := manager.EnsureConnected(ctx, server); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	reply, err := manager.SendRequestAndWait(ctx, server, method, nil, timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if reply.Error != nil {
		return fmt.Errorf("%s: server error %d: %s", method, reply.Error.Code, reply.Error.Message)
	}

	var pretty any
	if err := json.Unmarshal(reply.Result, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(string(reply.Result))
	}
	return nil
}
