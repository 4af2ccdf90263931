package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/patrickcheng2025-art/s8/eth"
)

// TransferGas is the gas used to price a typical ERC-20 transfer in the gas
// report.
const TransferGas = 65000

const (
	CmdGenerate = "generate"
	CmdImport   = "import"
	CmdInfo     = "info"
	CmdBalance  = "balance"
	CmdSend     = "send"
	CmdGas      = "gas"
	CmdWait     = "wait"
	CmdHelp     = "help"
	CmdExit     = "exit"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrNoSigningKey   = errors.New("no signing key in session, generate or import a wallet first")
)

const noWalletWarning = "No wallet loaded. Run generate or import first."

var usage = map[string]string{
	CmdGenerate: "generate                      create and save a new key",
	CmdImport:   "import <private-key>          import and save an existing key",
	CmdInfo:     "info                          show address, ETH balance and nonce",
	CmdBalance:  "balance [token]               ETH balance, or ERC-20 balance of token",
	CmdSend:     "send <token> <to> <amount>    transfer ERC-20 tokens",
	CmdGas:      "gas                           current base fee and fee quote",
	CmdWait:     "wait <hash> [confirmations]   poll a transaction again",
	CmdHelp:     "help                          show this list",
	CmdExit:     "exit                          leave the wallet",
}

var commandOrder = []string{CmdGenerate, CmdImport, CmdInfo, CmdBalance, CmdSend, CmdGas, CmdWait, CmdHelp, CmdExit}

// Command is one parsed wallet command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a line into a command name and its arguments.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty input", ErrUnknownCommand)
	}
	name := strings.ToLower(fields[0])
	if _, ok := usage[name]; !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	return Command{Name: name, Args: fields[1:]}, nil
}

// Output is what a command has to show. Result is set by send and wait.
type Output struct {
	Lines  []string
	Result *eth.TransactionResult
	Exit   bool
}

func (o *Output) printf(format string, args ...any) {
	o.Lines = append(o.Lines, fmt.Sprintf(format, args...))
}

// Dispatcher runs wallet commands against one chain client.
type Dispatcher struct {
	client *eth.Client
	store  Store
	logger logrus.FieldLogger

	// submitter is kept across sends so nonces stay reserved for the account.
	submitter *eth.Submitter
}

func NewDispatcher(client *eth.Client, store Store, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{client: client, store: store, logger: logger}
}

// Dispatch executes cmd and returns the session to use for the next command.
func (d *Dispatcher) Dispatch(ctx context.Context, s Session, cmd Command) (Session, Output, error) {
	var out Output
	var err error
	switch cmd.Name {
	case CmdGenerate:
		s, err = d.generate(s, &out)
	case CmdImport:
		s, err = d.importKey(s, cmd.Args, &out)
	case CmdInfo:
		err = d.info(ctx, s, &out)
	case CmdBalance:
		err = d.balance(ctx, s, cmd.Args, &out)
	case CmdSend:
		err = d.send(ctx, s, cmd.Args, &out)
	case CmdGas:
		err = d.gas(ctx, s, &out)
	case CmdWait:
		err = d.wait(ctx, cmd.Args, &out)
	case CmdHelp:
		for _, name := range commandOrder {
			out.printf("  %s", usage[name])
		}
	case CmdExit:
		out.Exit = true
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	if err != nil {
		d.logger.WithError(err).WithField("command", cmd.Name).Debug("Command failed")
	}
	return s, out, err
}

func (d *Dispatcher) generate(s Session, out *Output) (Session, error) {
	acc, err := eth.GenerateAccount(d.client.Config().ChainID())
	if err != nil {
		return s, err
	}
	if err := d.store.Save(recordOf(acc)); err != nil {
		return s, err
	}
	out.printf("New wallet generated")
	out.printf("Private key: %s", acc.KeyHex())
	out.printf("Address:     %s", acc.Address.Hex())
	out.printf("Keep the private key safe. Anyone holding it controls the funds.")
	return d.replace(s, acc), nil
}

func (d *Dispatcher) importKey(s Session, args []string, out *Output) (Session, error) {
	if len(args) != 1 {
		return s, fmt.Errorf("%w: %s", ErrUsage, usage[CmdImport])
	}
	acc, err := eth.AccountFromKey(args[0], d.client.Config().ChainID())
	if err != nil {
		return s, err
	}
	if err := d.store.Save(recordOf(acc)); err != nil {
		return s, err
	}
	out.printf("Wallet imported")
	out.printf("Address: %s", acc.Address.Hex())
	return d.replace(s, acc), nil
}

// replace swaps the session account and drops state tied to the old one.
func (d *Dispatcher) replace(s Session, acc *eth.Account) Session {
	if s.Account != nil && s.Account != acc {
		s.Account.Wipe()
	}
	d.submitter = nil
	return Session{Account: acc}
}

func (d *Dispatcher) info(ctx context.Context, s Session, out *Output) error {
	if !s.HasAccount() {
		out.printf(noWalletWarning)
		return nil
	}
	snap, err := d.client.Reader().Snapshot(ctx, s.Account.Address.Hex())
	if err != nil {
		return err
	}
	out.printf("Address:     %s", snap.Address.Hex())
	if s.CanSign() {
		out.printf("Private key: %s", maskKey(s.Account.KeyHex()))
	}
	out.printf("Chain ID:    %d", d.client.Config().ChainID())
	out.printf("ETH balance: %s ETH", eth.FormatEther(snap.Balance))
	out.printf("Nonce:       %d", snap.Nonce)
	out.printf("Base fee:    %s gwei", eth.FormatGwei(snap.BaseFee))
	return nil
}

func (d *Dispatcher) balance(ctx context.Context, s Session, args []string, out *Output) error {
	if !s.HasAccount() {
		out.printf(noWalletWarning)
		return nil
	}
	owner := s.Account.Address.Hex()
	switch len(args) {
	case 0:
		bal, err := d.client.Reader().NativeBalance(ctx, owner)
		if err != nil {
			return err
		}
		out.printf("ETH balance: %s ETH", eth.FormatEther(bal))
	case 1:
		bal, err := d.client.Reader().TokenBalance(ctx, owner, args[0])
		if err != nil {
			return err
		}
		out.printf("%s balance: %s %s", bal.Symbol, bal.Amount.String(), bal.Symbol)
		out.printf("Token:    %s", bal.Address.Hex())
		out.printf("Decimals: %d", bal.Decimals)
	default:
		return fmt.Errorf("%w: %s", ErrUsage, usage[CmdBalance])
	}
	out.printf("Owner: %s", owner)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, s Session, args []string, out *Output) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: %s", ErrUsage, usage[CmdSend])
	}
	if !s.CanSign() {
		return ErrNoSigningKey
	}
	if d.submitter == nil || d.submitter.Account() != s.Account {
		submitter, err := d.client.NewSubmitter(s.Account)
		if err != nil {
			return err
		}
		d.submitter = submitter
	}

	res, err := d.submitter.Transfer(ctx, args[0], args[1], args[2])
	if res != nil {
		out.Result = res
		describe(out, res)
	}
	return err
}

func (d *Dispatcher) gas(ctx context.Context, s Session, out *Output) error {
	quote, err := d.client.Fees().Estimate(ctx)
	if err != nil {
		return err
	}
	out.printf("Base fee:         %s wei (%s gwei)", quote.BaseFeePerGas, eth.FormatGwei(quote.BaseFeePerGas))
	out.printf("Max priority fee: %s gwei", eth.FormatGwei(quote.MaxPriorityFeePerGas))
	out.printf("Max fee:          %s gwei", eth.FormatGwei(quote.MaxFeePerGas))
	ceiling := quote.CostCeiling(TransferGas)
	out.printf("Max cost for %d gas: %s ETH", TransferGas, eth.FormatEther(ceiling))
	if !s.HasAccount() {
		return nil
	}

	balance, err := d.client.Reader().NativeBalance(ctx, s.Account.Address.Hex())
	if err != nil {
		return err
	}
	if balance.Cmp(ceiling) >= 0 {
		out.printf("ETH balance: %s ETH, enough for a transfer", eth.FormatEther(balance))
	} else {
		out.printf("ETH balance: %s ETH, not enough for a transfer (short %s ETH)",
			eth.FormatEther(balance), eth.FormatEther(new(big.Int).Sub(ceiling, balance)))
	}
	return nil
}

func (d *Dispatcher) wait(ctx context.Context, args []string, out *Output) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: %s", ErrUsage, usage[CmdWait])
	}
	raw := strings.TrimPrefix(strings.ToLower(args[0]), "0x")
	b, err := hexutil.Decode("0x" + raw)
	if err != nil || len(b) != common.HashLength {
		return fmt.Errorf("%w: invalid transaction hash %s", ErrUsage, args[0])
	}
	hash := common.BytesToHash(b)
	confirmations := d.client.Config().Confirmations()
	if len(args) == 2 {
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: confirmations must be a number", ErrUsage)
		}
		confirmations = n
	}
	res := d.client.Waiter().Wait(ctx, hash, confirmations)
	out.Result = &eth.TransactionResult{Pending: &eth.PendingTransaction{Hash: hash}, State: res.State, Receipt: res.Receipt}
	describe(out, out.Result)
	return nil
}

func describe(out *Output, res *eth.TransactionResult) {
	out.printf("Transaction: %s", res.Pending.Hash.Hex())
	out.printf("State:       %s", res.State)
	if res.Receipt != nil {
		out.printf("Block:       %d", res.Receipt.BlockNumber)
		out.printf("Gas used:    %d", res.Receipt.GasUsed)
	}
	if res.State == eth.StateTimedOut {
		out.printf("Not confirmed yet. Run: wait %s", res.Pending.Hash.Hex())
	}
}
