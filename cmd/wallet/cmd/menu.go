package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/patrickcheng2025-art/s8/wallet"
)

// menu reads commands line by line until exit or end of input. One session
// and one dispatcher live for the whole loop.
func menu(cmd *cobra.Command) error {
	e, err := newEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Wallet on chain %d (%s)\n", e.cfg.ChainID(), e.cfg.RPCURL())
	if e.session.HasAccount() {
		fmt.Fprintf(w, "Loaded wallet %s\n", e.session.Account.Address.Hex())
	}
	fmt.Fprintln(w, "Type help for the list of commands.")

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	scanner := bufio.NewScanner(cmd.InOrStdin())
	session := e.session
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, err := wallet.ParseCommand(line)
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		if command.Name == wallet.CmdImport && len(command.Args) == 0 && interactive {
			key, err := readKey(cmd)
			if err != nil {
				fmt.Fprintln(w, err)
				continue
			}
			command.Args = []string{key}
		}

		ctx, stop := signalContext(cmd)
		next, out, err := e.dispatcher.Dispatch(ctx, session, command)
		stop()
		session = next
		printOutput(cmd, out)
		if err != nil {
			fmt.Fprintln(w, "Error:", describeError(err))
		}
		if out.Exit {
			return nil
		}
	}
}
