package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rahul/stride/internal/engine"
)

// ConsoleAuthorizer resolves guarded-mode authorization requests from a
// terminal operator. It prints the pending batch and blocks on a y/n
// answer; the whole batch is approved or denied as one unit.
type ConsoleAuthorizer struct {
	In  *bufio.Reader
	Out io.Writer
}

func NewConsoleAuthorizer(in io.Reader, out io.Writer) *ConsoleAuthorizer {
	return &ConsoleAuthorizer{
		In:  bufio.NewReader(in),
		Out: out,
	}
}

func (c *ConsoleAuthorizer) RequestAuthorization(ctx context.Context, batch engine.CallBatch) (<-chan engine.Decision, error) {
	fmt.Fprintf(c.Out, "\n⏸️  Step %d wants to run %d tool call(s):\n", batch.StepID, len(batch.Calls))
	for i, call := range batch.Calls {
		args := call.Arguments
		if len(args) > 200 {
			args = args[:200] + "..."
		}
		fmt.Fprintf(c.Out, "  %d. %s %s\n", i+1, call.Name, args)
	}
	fmt.Fprint(c.Out, "Approve? [y/N] ")

	ch := make(chan engine.Decision, 1)
	line, err := c.In.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read authorization answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "y" || answer == "yes" || answer == "approve" {
		ch <- engine.DecisionApprove
	} else {
		ch <- engine.DecisionDeny
	}
	return ch, nil
}
