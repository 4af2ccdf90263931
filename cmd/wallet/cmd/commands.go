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

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create a new key and save it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(cmd, false, wallet.Command{Name: wallet.CmdGenerate})
	},
}

var importCmd = &cobra.Command{
	Use:   "import [private-key]",
	Short: "Import an existing key and save it",
	Long: `Import an existing private key (64 hex characters, 0x optional).

Without an argument the key is read from stdin, hidden when stdin is a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			if key, err = readKey(cmd); err != nil {
				return err
			}
		}
		return dispatchOnce(cmd, false, wallet.Command{Name: wallet.CmdImport, Args: []string{key}})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show address, ETH balance, nonce and base fee",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(cmd, true, wallet.Command{Name: wallet.CmdInfo})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [token]",
	Short: "Show the ETH balance, or the balance of an ERC-20 token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(cmd, true, wallet.Command{Name: wallet.CmdBalance, Args: args})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <token> <to> <amount>",
	Short: "Transfer ERC-20 tokens",
	Long: `Transfer amount (in token units, e.g. 1.5) of token to the recipient.

The transfer is simulated first and never broadcast if the simulation fails.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(cmd, true, wallet.Command{Name: wallet.CmdSend, Args: args})
	},
}

var gasCmd = &cobra.Command{
	Use:   "gas",
	Short: "Show the current base fee and the fee quote for a transfer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(cmd, true, wallet.Command{Name: wallet.CmdGas})
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <hash> [confirmations]",
	Short: "Poll a transaction that timed out earlier",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(cmd, true, wallet.Command{Name: wallet.CmdWait, Args: args})
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return menu(cmd)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd, importCmd, infoCmd, balanceCmd, sendCmd, gasCmd, waitCmd, menuCmd)
}

// readKey reads a private key from stdin without echo when possible.
func readKey(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.OutOrStdout(), "Private key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read private key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read private key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
