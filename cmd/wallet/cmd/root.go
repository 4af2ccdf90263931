package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/patrickcheng2025-art/s8/eth"
	"github.com/patrickcheng2025-art/s8/wallet"
)

const envLogLevel = "WALLET_LOG_LEVEL"

var (
	envFile    string
	walletFile string

	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Sepolia ERC-20 wallet",
	Long: `A command line wallet for ERC-20 tokens on Sepolia.

Keys are kept in a local JSON file in plaintext. Use a throwaway key.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setup()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return menu(cmd)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&walletFile, "wallet", "", "wallet file (defaults to $WALLET_FILE or .wallet.json)")
}

func setup() {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warnf("Error loading %s", envFile)
	}

	logger.SetLevel(logrus.WarnLevel)
	if lvl := os.Getenv(envLogLevel); lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			logger.WithError(err).Warnf("Invalid %s, keeping %s", envLogLevel, logger.GetLevel())
		} else {
			logger.SetLevel(level)
		}
	}
	logger.SetOutput(os.Stderr)
	logProxy(logger, os.LookupEnv)
}

// logProxy reports proxy settings that ethclient picks up through net/http.
func logProxy(logger logrus.FieldLogger, lookup eth.LookupFunc) {
	httpProxy, _ := lookup("HTTP_PROXY")
	httpsProxy, _ := lookup("HTTPS_PROXY")
	if httpProxy == "" && httpsProxy == "" {
		return
	}
	logger.WithFields(logrus.Fields{
		"http_proxy":  httpProxy,
		"https_proxy": httpsProxy,
	}).Info("Connecting to Ethereum network via proxy")
}

// env is everything a command needs to run against the chain.
type env struct {
	cfg        eth.Config
	client     *eth.Client
	dispatcher *wallet.Dispatcher
	session    wallet.Session
}

func (e *env) Close() {
	e.client.Close()
}

// newEnv loads configuration and the saved wallet. With verify set the RPC
// endpoint is contacted and its chain ID checked; otherwise the client is
// only prepared.
func newEnv(ctx context.Context, verify bool) (*env, error) {
	cfg, err := eth.NewConfiguration(os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	var client *eth.Client
	if verify {
		client, err = eth.Dial(ctx, cfg, logger)
	} else {
		var raw *ethclient.Client
		raw, err = ethclient.DialContext(ctx, cfg.RPCURL())
		if err == nil {
			client = eth.NewClient(raw, cfg, logger)
		}
	}
	if err != nil {
		return nil, err
	}

	path := walletFile
	if path == "" {
		path = cfg.WalletFile()
	}
	store := wallet.NewFileStore(path)
	session, err := wallet.LoadSession(store, cfg.ChainID())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("load wallet %s: %w", path, err)
	}
	if !session.HasAccount() && cfg.PrivateKey() != "" {
		acc, err := eth.AccountFromKey(cfg.PrivateKey(), cfg.ChainID())
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("ETH_PRIVATE_KEY: %w", err)
		}
		session = wallet.Session{Account: acc}
	}

	return &env{
		cfg:        cfg,
		client:     client,
		dispatcher: wallet.NewDispatcher(client, store, logger),
		session:    session,
	}, nil
}

// signalContext is cancelled on Ctrl-C. A pending wait then reports
// TIMED_OUT instead of aborting the process.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

// dispatchOnce runs a single wallet command and prints its output.
func dispatchOnce(cmd *cobra.Command, verify bool, command wallet.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	e, err := newEnv(ctx, verify)
	if err != nil {
		return err
	}
	defer e.Close()

	_, out, err := e.dispatcher.Dispatch(ctx, e.session, command)
	printOutput(cmd, out)
	if err != nil {
		return describeError(err)
	}
	return nil
}

func printOutput(cmd *cobra.Command, out wallet.Output) {
	for _, line := range out.Lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}

// describeError adds recovery advice to wallet core errors.
func describeError(err error) error {
	var e *eth.Error
	if !errors.As(err, &e) {
		return err
	}
	switch {
	case e.OutcomeUnknown():
		return fmt.Errorf("%w\nthe transaction may still be mined; check it with: wallet wait <hash>", err)
	case e.Kind == eth.KindSimulationReverted:
		return fmt.Errorf("%w\nnothing was sent", err)
	case e.Retryable():
		return fmt.Errorf("%w\nsafe to retry", err)
	}
	return err
}
