// Command bridged is the bridge's process entry point: it wires
// config → bridgelog → a CDP websocket client → the Adapter session state
// machine → the northbound DAP server loop, then waits for SIGINT/SIGTERM
// to shut down gracefully.
//
// Grounded on the teacher (go-delve-mcp-dap-server)'s main.go (flag-based
// transport selection between stdio and a listening mode) and
// spencerandtheteagues-apex-build-platform's main.go (signal.Notify +
// context.WithTimeout graceful shutdown).
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dapbridge/dap-cdp-bridge/internal/adapter"
	"github.com/dapbridge/dap-cdp-bridge/internal/bridgelog"
	"github.com/dapbridge/dap-cdp-bridge/internal/cdp"
	"github.com/dapbridge/dap-cdp-bridge/internal/config"
	"github.com/dapbridge/dap-cdp-bridge/internal/dapio"
)

func main() {
	cfg := config.LoadEnv(config.Default())

	dapTransport := flag.String("dap", cfg.DAPListenAddr, "northbound DAP transport: 'stdio' or 'tcp:<host:port>'")
	cdpURL := flag.String("cdp", cfg.CDPTargetURL, "southbound CDP websocket debugger URL")
	smartStep := flag.Bool("smartStep", cfg.SmartStep, "skip stepping through scripts with no authored source mapping")
	flag.Parse()

	cfg.DAPListenAddr = *dapTransport
	cfg.CDPTargetURL = *cdpURL
	cfg.SmartStep = *smartStep

	bridgelog.Init()
	defer bridgelog.Sync()
	log := bridgelog.L()

	if cfg.CDPTargetURL == "" {
		log.Fatal("bridged: -cdp (or BRIDGE_CDP_ADDRESS/BRIDGE_CDP_PORT) is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc, err := cdp.DialWebSocket(ctx, cfg.CDPTargetURL)
	if err != nil {
		log.Fatal("bridged: dial CDP target", bridgelog.Err(err))
	}
	defer rpc.Close()

	opts := adapter.Options{
		SmartStep:         cfg.SmartStep,
		StepTimeout:       cfg.StepTimeout,
		BreakpointTimeout: cfg.BreakpointTimeout,
		OverlayDebounce:   cfg.OverlayDebounce,
	}

	switch {
	case cfg.DAPListenAddr == "stdio":
		runStdio(ctx, rpc, opts)
	case len(cfg.DAPListenAddr) > 4 && cfg.DAPListenAddr[:4] == "tcp:":
		runTCP(ctx, rpc, cfg.DAPListenAddr[4:], opts)
	default:
		log.Fatal("bridged: unrecognized -dap value, want 'stdio' or 'tcp:<host:port>'")
	}
}

// stdioConn adapts os.Stdin/os.Stdout into a single io.ReadWriteCloser for
// dapio.Server.
type stdioConn struct {
	in  *os.File
	out *os.File
}

func (c stdioConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c stdioConn) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c stdioConn) Close() error                { return c.in.Close() }

func runStdio(ctx context.Context, rpc cdp.RpcClient, opts adapter.Options) {
	srv := dapio.NewServer(stdioConn{in: os.Stdin, out: os.Stdout}, nil)
	a := adapter.NewWithOptions(rpc, srv, opts)
	srv.SetHandler(a)

	go func() {
		<-ctx.Done()
		_ = rpc.Close()
	}()

	if err := srv.Serve(); err != nil {
		bridgelog.L().Warn("bridged: stdio session ended", bridgelog.Err(err))
	}
}

func runTCP(ctx context.Context, rpc cdp.RpcClient, addr string, opts adapter.Options) {
	log := bridgelog.L()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal("bridged: listen", bridgelog.Err(err))
	}
	defer ln.Close()

	log.Info("bridged: listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info("bridged: shutting down")
				return
			default:
				log.Warn("bridged: accept", bridgelog.Err(err))
				continue
			}
		}
		go handleConn(conn, rpc, opts)
	}
}

func handleConn(conn net.Conn, rpc cdp.RpcClient, opts adapter.Options) {
	defer conn.Close()
	srv := dapio.NewServer(conn, nil)
	a := adapter.NewWithOptions(rpc, srv, opts)
	srv.SetHandler(a)

	if err := srv.Serve(); err != nil {
		bridgelog.L().Warn("bridged: session ended", bridgelog.Err(err))
	}
}
