package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"deadwax/internal/catalog"
	"deadwax/internal/config"
	"deadwax/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckProbeBinary verifies that the configured probe command resolves to
// an executable.
func CheckProbeBinary(binary string) Result {
	const name = "FFprobe"

	cmd := strings.TrimSpace(binary)
	if cmd == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", cmd)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckCatalog verifies that the library catalog database exists and carries
// the expected schema.
func CheckCatalog(ctx context.Context, dbPath string) Result {
	const name = "Catalog"

	path := strings.TrimSpace(dbPath)
	if path == "" {
		return Result{Name: name, Detail: "db_path not configured"}
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cat, err := catalog.OpenPath(checkCtx, path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer cat.Close()

	artists, err := cat.Artists(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d artists)", path, len(artists))}
}

// CheckAI verifies that the AI API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckAI(ctx context.Context, cfg config.AI) Result {
	const name = "AI model"

	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeAIError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// summarizeAIError produces a human-readable summary for AI health check failures.
func summarizeAIError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (AI API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (AI API unreachable)"
	}
	return err.Error()
}
