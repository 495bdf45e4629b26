// Command httpcat is a minimal HTTP/1 file server and client exercising the
// httpwire write engine directly, without any WebSocket upgrade: a driver
// for the plain request/response serializer, not a product in its own
// right.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andycostintoma/httpx/httpwire"
	"github.com/andycostintoma/httpx/internal/config"
	"github.com/andycostintoma/httpx/internal/httpx"
	"github.com/andycostintoma/httpx/internal/netx"
	"github.com/andycostintoma/httpx/internal/wire"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

func main() {
	root := &cobra.Command{
		Use:   "httpcat",
		Short: "Serve or fetch files over plain HTTP/1 using the httpwire engine",
	}
	root.AddCommand(serveCmd(), getCmd())

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve files under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, root)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "directory to serve files from")
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a path from a server and write the body to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runGet(cmd.Context(), cfg, args[0])
		},
	}
	return cmd
}

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

func runServer(ctx context.Context, cfg config.Config, root string) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Info().Str("addr", ln.Addr().String()).Str("root", root).Msg("httpcat server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := serveConn(ctx, conn, root); err != nil {
				logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection ended")
			}
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, root string) error {
	defer conn.Close()

	r := netx.NewCRLFFastReader(conn)
	req, err := httpx.ParseRequest(r, httpx.ParseLimits{MaxLineBytes: 8192, MaxHeaderBytes: 65536})
	if err != nil {
		return fmt.Errorf("parse request: %w", err)
	}

	resp := buildResponse(req, root)
	return writeMessage(ctx, conn, resp)
}

func buildResponse(req *httpx.Request, root string) *httpwire.Message {
	if req.Method != "GET" {
		resp := httpwire.NewResponse(405, 11, httpwire.StringBody("method not allowed\n"))
		resp.Header.Set("Allow", "GET")
		mustPrepare(resp)
		return resp
	}

	clean := filepath.Clean(strings.TrimPrefix(req.RequestURI, "/"))
	if strings.HasPrefix(clean, "..") {
		resp := httpwire.NewResponse(400, 11, httpwire.StringBody("invalid path\n"))
		mustPrepare(resp)
		return resp
	}
	full := filepath.Join(root, clean)

	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		resp := httpwire.NewResponse(404, 11, httpwire.StringBody("not found\n"))
		mustPrepare(resp)
		return resp
	}

	resp := httpwire.NewResponse(200, 11, httpwire.FileBody{Path: full})
	resp.Header.Set("Content-Type", "application/octet-stream")
	if hasToken(req.Header.Get("Connection"), "close") {
		mustPrepare(resp, httpwire.OptClose)
	} else {
		mustPrepare(resp)
	}
	return resp
}

func hasToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// mustPrepare normalizes framing headers. The response bodies built above
// never set Content-Length/Transfer-Encoding/Connection themselves, so
// Prepare never rejects them.
func mustPrepare(msg *httpwire.Message, opt ...httpwire.ConnOption) {
	if err := httpwire.Prepare(msg, opt...); err != nil {
		panic(err)
	}
}

func runGet(ctx context.Context, cfg config.Config, target string) error {
	conn, err := net.DialTimeout("tcp", cfg.DialAddr, cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := httpwire.NewRequest("GET", target, 11, nil)
	req.Header.Set("Host", cfg.DialAddr)
	if err := httpwire.Prepare(req, httpwire.OptClose); err != nil {
		return err
	}
	if err := writeMessage(ctx, conn, req); err != nil {
		return err
	}

	r := netx.NewCRLFFastReader(conn)
	resp, err := httpx.ParseResponse(r, httpx.ParseLimits{MaxLineBytes: 8192, MaxHeaderBytes: 65536})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		logger.Warn().Int("status", resp.StatusCode).Msg("non-200 response")
	}
	body, _, err := httpx.NewBodyReader(ctx, resp.Header, r, -1)
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = io.Copy(os.Stdout, body)
	return err
}
