package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Send raw commands to the daemon interactively",
	Long: `Starts an interactive prompt. Every line is sent to the daemon as is,
over a fresh connection, and the reply is printed. Type "exit" to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, client, err := setup(cmd)
		if err != nil {
			return err
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          client.Endpoint().String() + "> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		ctx := cmd.Context()
		for {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}

			input := strings.TrimSpace(line)
			switch input {
			case "":
				continue
			case "exit", "quit":
				return nil
			}

			if isBlockCommand(input) {
				lines, err := client.RawBlock(ctx, input)
				if err != nil {
					fmt.Fprintf(rl.Stdout(), "Error: %v\n", err)
					continue
				}
				for _, l := range lines {
					fmt.Fprintln(rl.Stdout(), l)
				}
				continue
			}

			payload, err := client.Raw(ctx, input)
			if err != nil {
				fmt.Fprintf(rl.Stdout(), "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(rl.Stdout(), payload)
		}
	},
}
