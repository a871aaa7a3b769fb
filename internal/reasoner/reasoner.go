// Package reasoner is the boundary to the external reasoning process.
// The process is a black box reached over a subprocess pipe: it receives
// a JSON request on stdin and must answer with a JSON diff envelope on
// stdout. A timeout or failure yields zero diffs for the turn, never an
// aborted run.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Request is the structured payload sent to the reasoner.
type Request struct {
	Turn    int            `json:"turn"`
	Log     models.TurnLog `json:"log"`
	Context []string       `json:"context"` // selected playbook snippets
}

// Reasoner produces raw reflection output for a turn.
type Reasoner interface {
	Reflect(ctx context.Context, req Request) ([]byte, error)
}

// ExecClient invokes an external reasoner binary per call.
type ExecClient struct {
	Binary    string
	Model     string
	Timeout   time.Duration
	ExtraArgs []string
}

// NewExecClient creates a client with a default 90s per-call timeout.
func NewExecClient(binary, model string, timeout time.Duration) *ExecClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ExecClient{Binary: binary, Model: model, Timeout: timeout}
}

// Reflect runs the reasoner once. The returned bytes are the raw (best
// effort JSON) output; parsing is the adapter's job. Timeouts surface as
// apperr.ErrTimeout so the caller can degrade to zero diffs.
func (c *ExecClient) Reflect(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("reasoner: marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := []string{"--output-format", "json"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	args = append(args, c.ExtraArgs...)

	cmd := exec.CommandContext(callCtx, c.Binary, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("reasoner: %s: %w", c.Binary, apperr.ErrTimeout)
		}
		return nil, fmt.Errorf("reasoner: %s: %w (stderr: %s)", c.Binary, err, truncate(stderr.String(), 256))
	}
	return extractJSON(stdout.Bytes()), nil
}

// extractJSON returns the first top-level JSON value in out, tolerating
// banner text around it. If none is found the raw output is returned and
// the adapter will drop it with a warning.
func extractJSON(out []byte) []byte {
	start := bytes.IndexAny(out, "{[")
	if start < 0 {
		return out
	}
	closing := byte('}')
	if out[start] == '[' {
		closing = ']'
	}
	end := bytes.LastIndexByte(out, closing)
	if end <= start {
		return out
	}
	return out[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsTimeout reports whether err is a reasoner timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, apperr.ErrTimeout)
}
