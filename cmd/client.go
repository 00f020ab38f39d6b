// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	clientAddr    string
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
	sendPayload   string
	sendHex       bool
	sendStdin     bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a bridge and print what the mote sends",
	Long: `Debugging client for a running bridge.

Connects over raw TCP (--addr) or WebSocket (--url), optionally sends a
payload, then prints every chunk received from the mote as a hex dump.

With --stdin, each line read from standard input is sent as one payload.

For WebSocket authentication, the password is read from the MOTEPROBE_PASSWORD
environment variable, or prompted interactively if not set.`,
	RunE: runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().StringVarP(&clientAddr, "addr", "a", "", "Bridge TCP address (host:port)")
	clientCmd.Flags().StringVarP(&wsURL, "url", "u", "", "Bridge WebSocket URL (ws:// or wss://)")
	clientCmd.Flags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	clientCmd.Flags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	clientCmd.Flags().StringVarP(&sendPayload, "send", "s", "", "Payload to send after connecting")
	clientCmd.Flags().BoolVar(&sendHex, "hex", false, "Payloads are hex encoded")
	clientCmd.Flags().BoolVar(&sendStdin, "stdin", false, "Send each line of standard input")
}

func runClient(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openClient(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	fmt.Printf("Moteprobe - Client\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if sendPayload != "" {
		if err := sendLine(conn, sendPayload); err != nil {
			return err
		}
	}
	if sendStdin {
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if err := sendLine(conn, scanner.Text()); err != nil {
					fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
				}
			}
		}()
	}

	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			fmt.Print(formatChunk(time.Now(), buf[:n]))
		}
		if err != nil {
			if ctx.Err() != nil || err == io.EOF || err == bridge.ErrConnectionClosed {
				fmt.Printf("Connection closed\n")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}

// parsePayload decodes a payload argument, as hex when --hex is set
func parsePayload(s string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(s), nil
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return data, nil
}

func sendLine(w io.Writer, line string) error {
	payload, err := parsePayload(line, sendHex)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	// The bridge wraps whatever one read returns, so oversized writes are split by the link.
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// formatChunk renders a received chunk with a timestamp
func formatChunk(ts time.Time, data []byte) string {
	return fmt.Sprintf("[%s] %d bytes: %s", ts.Format("15:04:05.000"), len(data), moteframe.HexDump(data, "                "))
}

// openClient connects over WebSocket when --url is set, otherwise over TCP
func openClient(ctx context.Context) (io.ReadWriteCloser, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = getPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := openWebSocket(ctx, wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if clientAddr != "" {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", clientAddr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to connect to %s: %w", clientAddr, err)
		}
		return conn, fmt.Sprintf("TCP: %s", clientAddr), nil
	}

	return nil, "", fmt.Errorf("either --addr or --url must be specified")
}

// openWebSocket dials a bridge WebSocket endpoint with optional HTTP Basic auth
func openWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*bridge.WebSocketConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return bridge.NewWebSocketConn(conn), nil
}

// getPassword retrieves the password from the environment or prompts for it
func getPassword() (string, error) {
	if pw := os.Getenv("MOTEPROBE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
