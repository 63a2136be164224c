package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// maxCheckOutput bounds how much check output lands in the store.
const maxCheckOutput = 2000

// envFile is read relative to the project root for env checks.
const envFile = ".env"

// run executes one check. Env checks inspect the .env file directly;
// everything else goes through the shell so pipes and quoting written
// in bootstrap.md work unchanged.
func (v *Verifier) run(ctx context.Context, c Check) Result {
	if c.Kind == CheckEnv {
		return v.runEnvCheck(c)
	}
	return v.runCommand(ctx, c)
}

func (v *Verifier) runCommand(ctx context.Context, c Check) Result {
	timeout := time.Duration(v.settings.CheckTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
	cmd.Dir = v.paths.Root
	out, err := cmd.CombinedOutput()

	res := Result{Check: c, Output: strings.TrimSpace(string(out))}
	switch {
	case err == nil:
		res.OK = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Output = fmt.Sprintf("command timed out after %ds", v.settings.CheckTimeoutSecs)
		res.ExitCode = -1
	default:
		res.ExitCode = exitCodeOf(err)
		if res.Output == "" {
			res.Output = err.Error()
		}
	}
	return res
}

// runEnvCheck passes when the variable appears in .env with a
// non-empty value. The value itself never leaves this function.
func (v *Verifier) runEnvCheck(c Check) Result {
	name := strings.TrimPrefix(c.Command, envCommandPrefix)
	res := Result{Check: c, ExitCode: 1}

	data, err := os.ReadFile(filepath.Join(v.paths.Root, envFile))
	if err != nil {
		res.Output = envFile + " file not found"
		return res
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		if strings.TrimSpace(key) == name && strings.TrimSpace(value) != "" {
			return Result{Check: c, OK: true, Output: name + "=<set>"}
		}
	}
	res.Output = name + " not found or empty in " + envFile
	return res
}

func exitCodeOf(err error) int {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}
