package nodes

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/common/flowerr"
	"github.com/flowmesh/flowmesh/common/interp"
	"github.com/flowmesh/flowmesh/common/models"
	"github.com/flowmesh/flowmesh/engine"
)

// CommandHandler runs a shell command with a timeout. The command string is
// interpolated against the input before execution.
type CommandHandler struct{}

// NewExecuteCommand creates the executeCommand handler.
func NewExecuteCommand() *CommandHandler {
	return &CommandHandler{}
}

func (h *CommandHandler) NodeType() string {
	return models.TypeExecuteCommand
}

func (h *CommandHandler) Execute(ctx context.Context, node *models.Node, input models.M, ec *engine.ExecutionContext) (models.M, error) {
	p := node.Parameters
	command := interp.Interpolate(ctx, models.GetString(p, "command", ""), input, ec.Credentials())
	workDir := models.GetString(p, "workingDirectory", "")
	timeout := time.Duration(models.GetInt(p, "timeoutMs", 60000)) * time.Millisecond
	failOnNonZero := models.GetBool(p, "failOnNonZero", true)

	if strings.TrimSpace(command) == "" {
		return nil, flowerr.New(flowerr.KindHandlerFailure, "executeCommand node %s has no command", node.ID)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := errors.Is(cmdCtx.Err(), context.DeadlineExceeded)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	out := models.Clone(input)
	out["stdout"] = stdout.String()
	out["stderr"] = stderr.String()
	out["exitCode"] = exitCode
	out["timedOut"] = timedOut
	out["success"] = runErr == nil

	if timedOut {
		return nil, flowerr.New(flowerr.KindTimeout, "command timed out after %s", timeout)
	}
	if ctx.Err() != nil {
		return nil, flowerr.Wrap(flowerr.KindCancelled, ctx.Err(), "command cancelled")
	}
	if runErr != nil && failOnNonZero {
		return nil, flowerr.Wrap(flowerr.KindHandlerFailure, runErr, "command exited with code %d: %s", exitCode, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
