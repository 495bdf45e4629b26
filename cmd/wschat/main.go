// Command wschat is a minimal WebSocket echo server/client pair exercising
// package ws end to end, kept deliberately small: it is a driver for the
// protocol engine, not a product in its own right.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andycostintoma/httpx/httpwire"
	"github.com/andycostintoma/httpx/internal/config"
	"github.com/andycostintoma/httpx/internal/dynbuf"
	"github.com/andycostintoma/httpx/internal/httpx"
	"github.com/andycostintoma/httpx/internal/netx"
	"github.com/andycostintoma/httpx/internal/wire"
	"github.com/andycostintoma/httpx/ws"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

func main() {
	root := &cobra.Command{
		Use:   "wschat",
		Short: "Echo server and chat client over the ws protocol engine",
	}
	root.AddCommand(serveCmd(), dialCmd())

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a WebSocket echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func dialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dial",
		Short: "Connect to a WebSocket echo server and send lines from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg)
		},
	}
}

// writeMessage drains an httpwire.Writer for msg onto conn. wire.ErrClosed
// is not an error here: it just means the caller should close conn after
// this send, which the handshake path never wants (the connection becomes
// the WebSocket stream), so it's swallowed.
func writeMessage(ctx context.Context, conn net.Conn, msg *httpwire.Message) error {
	w := httpwire.NewWriter(msg)
	stream := httpwire.NetStream{Conn: conn}
	for !w.Done() {
		if _, err := w.WriteSome(ctx, stream); err != nil {
			if errors.Is(err, wire.ErrClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Info().Str("addr", ln.Addr().String()).Msg("wschat server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := serveConn(ctx, conn, cfg); err != nil {
				logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection ended")
			}
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, cfg config.Config) error {
	defer conn.Close()

	r := netx.NewCRLFFastReader(conn)
	req, err := httpx.ParseRequest(r, httpx.ParseLimits{MaxLineBytes: 8192, MaxHeaderBytes: 65536})
	if err != nil {
		return fmt.Errorf("parse upgrade request: %w", err)
	}

	var pmdCfg *ws.PermessageDeflateConfig
	if cfg.PermessageDeflate {
		pmdCfg = &ws.PermessageDeflateConfig{ServerEnable: true}
	}

	resp, params, err := ws.Accept(req, ws.ServerOptions{PMD: pmdCfg})
	if err != nil {
		_ = writeMessage(ctx, conn, resp)
		return fmt.Errorf("reject handshake: %w", err)
	}
	if err := writeMessage(ctx, conn, resp); err != nil {
		return err
	}

	opt := ws.DefaultOptions()
	opt.ReadBufferSize = cfg.ReadBufferSize
	opt.WriteBufferSize = cfg.WriteBufferSize
	opt.ReadMessageMax = cfg.ReadMessageMax

	c := ws.NewConn(ws.NetStream{Conn: conn}, ws.RoleServer, opt, params)
	c.SetLogger(logger)
	dst := dynbuf.New(opt.ReadBufferSize)
	for {
		dst.Reset()
		op, err := c.Read(ctx, dst)
		if err != nil {
			return err
		}
		msg := append([]byte(nil), dst.Data()...)
		if err := c.WriteOpcode(ctx, op, msg); err != nil {
			return err
		}
	}
}

func runClient(ctx context.Context, cfg config.Config) error {
	conn, err := net.DialTimeout("tcp", cfg.DialAddr, cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	var pmdCfg *ws.PermessageDeflateConfig
	if cfg.PermessageDeflate {
		pmdCfg = &ws.PermessageDeflateConfig{ClientEnable: true}
	}

	handshake, err := ws.NewClientHandshake(ws.ClientOptions{
		Host: cfg.DialAddr, Target: "/", PMD: pmdCfg,
	})
	if err != nil {
		return err
	}
	if err := writeMessage(ctx, conn, handshake.Request); err != nil {
		return err
	}

	r := netx.NewCRLFFastReader(conn)
	resp, err := httpx.ParseResponse(r, httpx.ParseLimits{MaxLineBytes: 8192, MaxHeaderBytes: 65536})
	if err != nil {
		return err
	}
	params, err := handshake.ValidateServerResponse(resp)
	if err != nil {
		return err
	}

	opt := ws.DefaultOptions()
	opt.ReadBufferSize = cfg.ReadBufferSize
	opt.WriteBufferSize = cfg.WriteBufferSize

	c := ws.NewConn(ws.NetStream{Conn: conn}, ws.RoleClient, opt, params)
	logger.Info().Msg("connected, type lines to send; Ctrl-D to quit")

	go func() {
		dst := dynbuf.New(opt.ReadBufferSize)
		for {
			dst.Reset()
			op, err := c.Read(ctx, dst)
			if err != nil {
				logger.Info().Err(err).Msg("read loop ended")
				return
			}
			fmt.Printf("< [%s] %s\n", op, dst.Data())
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := c.Write(ctx, scanner.Bytes()); err != nil {
			return err
		}
	}
	return c.Close(ctx, ws.CloseNormal, "")
}
