package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/gpt-relay/internal/app/dispatch"
	"github.com/PabloGalante/gpt-relay/internal/domain"
)

const (
	consoleServer domain.ServerID = "console"
	consoleUser   domain.UserID   = "local"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Type commands on stdin as a single local user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		return runConsole(cmd.Context(), os.Stdin, cmd.OutOrStdout(), a.dispatcher)
	},
}

// runConsole reads one command per line until EOF.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, d *dispatch.Dispatcher) error {
	fmt.Fprintf(out, "gpt-relay console, type %shelp for commands\n", d.Prefix())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, ok := dispatch.Route(dispatch.Incoming{
			ServerID: consoleServer,
			AuthorID: consoleUser,
			Content:  line,
		}, "", d.Prefix())
		if !ok {
			fmt.Fprintf(out, "not a command, try %shelp\n", d.Prefix())
			continue
		}

		reply := d.Handle(ctx, cmd)
		fmt.Fprintf(out, "%s\n%s: %s\n", reply.Title, reply.Field, reply.Value)

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return scanner.Err()
}
