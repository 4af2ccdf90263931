package cmd

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/patrickcheng2025-art/s8/eth"
)

func TestDescribeError(t *testing.T) {
	err := describeError(&eth.Error{Kind: eth.KindBroadcastFailed, Op: "eth_sendRawTransaction"})
	assert.ErrorIs(t, err, eth.ErrBroadcastFailed)
	assert.Contains(t, err.Error(), "wallet wait")

	err = describeError(&eth.Error{Kind: eth.KindSimulationReverted})
	assert.Contains(t, err.Error(), "nothing was sent")

	err = describeError(&eth.Error{Kind: eth.KindRpcUnavailable})
	assert.Contains(t, err.Error(), "safe to retry")

	plain := errors.New("boom")
	assert.Equal(t, plain, describeError(plain))
}

func TestReadKey_FromPipe(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal")
	}
	c := &cobra.Command{}
	c.SetIn(strings.NewReader("  0xabc123\n"))
	key, err := readKey(c)
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", key)

	c.SetIn(strings.NewReader(""))
	_, err = readKey(c)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"generate", "import", "info", "balance", "send", "gas", "wait", "menu"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestLogProxy(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	logProxy(logger, func(string) (string, bool) { return "", false })
	assert.Empty(t, hook.AllEntries())

	env := map[string]string{"HTTPS_PROXY": "socks5://127.0.0.1:9050"}
	logProxy(logger, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, "socks5://127.0.0.1:9050", entry.Data["https_proxy"])
	assert.Equal(t, "", entry.Data["http_proxy"])
}
