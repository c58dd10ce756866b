package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/finelagusaz/ghost-launcher/internal/ghost"
)

// ExecScanner runs the Scanner as a child process. The request is written to
// stdin as JSON and the response is read from stdout.
type ExecScanner struct {
	Command string
	Args    []string
	// Timeout bounds one scan. Zero means no limit beyond ctx.
	Timeout time.Duration
}

type execRequest struct {
	RootPath          string   `json:"root_path"`
	AdditionalFolders []string `json:"additional_folders"`
}

type execResponse struct {
	Ghosts      []ghost.Ghost `json:"ghosts"`
	Fingerprint string        `json:"fingerprint"`
}

// waitDelay bounds how long Run waits for output pipes after the process is
// killed, in case a grandchild still holds them.
const waitDelay = time.Second

// maxStderr caps how much scanner stderr is quoted in an error.
const maxStderr = 512

func (e *ExecScanner) Scan(ctx context.Context, root string, folders []string) (Result, error) {
	if e.Command == "" {
		return Result{}, errors.New("no scanner command configured")
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	if folders == nil {
		folders = []string{}
	}
	payload, err := json.Marshal(execRequest{RootPath: root, AdditionalFolders: folders})
	if err != nil {
		return Result{}, fmt.Errorf("encode scanner request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("run scanner %q: %w", e.Command, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg != "" {
			return Result{}, fmt.Errorf("run scanner %q: %w: %s", e.Command, err, msg)
		}
		return Result{}, fmt.Errorf("run scanner %q: %w", e.Command, err)
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode scanner response: %w", err)
	}
	if resp.Fingerprint == "" {
		return Result{}, errors.New("scanner response has no fingerprint")
	}
	return Result{Items: resp.Ghosts, Fingerprint: resp.Fingerprint}, nil
}
