package infra

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"time"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// maxHealthResponseBytes bounds memory against a misbehaving peer.
const maxHealthResponseBytes = 64 * 1024

type healthRequest struct {
	ProtocolVersion int    `json:"protocol_version"`
	Method          string `json:"method"`
	ID              string `json:"id"`
}

type healthResponse struct {
	OK   bool `json:"ok"`
	Data struct {
		Status  string `json:"status"`
		PID     int    `json:"pid"`
		Version string `json:"version"`
	} `json:"data"`
}

// SocketHealthProbe implements domain.HealthProbe over a unix domain socket.
// One newline-terminated JSON request, one newline-terminated JSON response,
// symmetric deadlines. Every failure mode is just "unhealthy".
type SocketHealthProbe struct{}

// NewHealthProbe creates a socket-backed health probe.
func NewHealthProbe() *SocketHealthProbe {
	return &SocketHealthProbe{}
}

// Check returns true iff the agent answered a healthy response within timeout.
func (p *SocketHealthProbe) Check(ctx context.Context, socketPath string, timeout time.Duration) bool {
	_, ok := p.Status(ctx, socketPath, timeout)
	return ok
}

// Status performs the health exchange and returns pid/version detail when the
// response carries it.
func (p *SocketHealthProbe) Status(ctx context.Context, socketPath string, timeout time.Duration) (domain.AgentHealth, bool) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return domain.AgentHealth{}, false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return domain.AgentHealth{}, false
	}

	req := healthRequest{ProtocolVersion: 1, Method: "get_health", ID: requestID()}
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.AgentHealth{}, false
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return domain.AgentHealth{}, false
	}

	// Read until the first newline or the byte ceiling, whichever first.
	reader := bufio.NewReader(io.LimitReader(conn, maxHealthResponseBytes+1))
	line, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return domain.AgentHealth{}, false
	}
	if len(line) > maxHealthResponseBytes {
		return domain.AgentHealth{}, false
	}

	var resp healthResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return domain.AgentHealth{}, false
	}
	if !resp.OK || resp.Data.Status != "ok" {
		return domain.AgentHealth{}, false
	}
	return domain.AgentHealth{PID: resp.Data.PID, Version: resp.Data.Version}, true
}

// requestID creates an opaque id for correlating request and response.
func requestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "hud"
	}
	return hex.EncodeToString(b)
}

// Ensure SocketHealthProbe implements domain.HealthProbe.
var _ domain.HealthProbe = (*SocketHealthProbe)(nil)
