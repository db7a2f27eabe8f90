package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
)

var flagParseErrorTests = []struct {
	in     string
	flag   string
	reason string
}{
	{
		"unknown flag: --nope",
		"--nope",
		"Flag %s is missing.",
	},
	{
		"flag needs an argument: --continue",
		"--continue",
		"Flag %s needs an argument.",
	},
	{
		"flag needs an argument: 'c' in -c",
		"-c",
		"Flag %s needs an argument.",
	},
	{
		"unknown shorthand flag: 'z' in -z",
		"-z",
		"Short flag %s is missing.",
	},
	{
		`invalid argument "20dd" for "--older-than" flag: time: unknown unit "dd" in duration "20dd"`,
		"--older-than",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "sdfjasdl" for "--max-tokens" flag: strconv.ParseInt: parsing "sdfjasdl": invalid syntax`,
		"--max-tokens",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "nope" for "-r, --raw" flag: strconv.ParseBool: parsing "nope": invalid syntax`,
		"-r, --raw",
		"Flag %s have an invalid argument.",
	},
}

func TestFlagParseError(t *testing.T) {
	for _, tf := range flagParseErrorTests {
		t.Run(tf.in, func(t *testing.T) {
			err := newFlagParseError(errors.New(tf.in))
			require.Equal(t, tf.flag, err.Flag())
			require.Equal(t, tf.reason, err.ReasonFormat())
			require.Equal(t, tf.in, err.Error())
		})
	}
}

func TestMaxCompletionTokensFlag(t *testing.T) {
	t.Run("flag is registered and can be parsed", func(t *testing.T) {
		cfg := config.Config{}
		cmd := NewRootCmd(BuildInfo{}, cfg, nil)

		err := cmd.ParseFlags([]string{"--max-completion-tokens", "4096"})
		require.NoError(t, err)

		flag := cmd.Flag("max-completion-tokens")
		require.NotNil(t, flag)
		require.Equal(t, "4096", flag.Value.String())
	})

	t.Run("accepts zero value", func(t *testing.T) {
		cfg := config.Config{}
		cmd := NewRootCmd(BuildInfo{}, cfg, nil)

		err := cmd.ParseFlags([]string{"--max-completion-tokens", "0"})
		require.NoError(t, err)

		flag := cmd.Flag("max-completion-tokens")
		require.NotNil(t, flag)
		require.Equal(t, "0", flag.Value.String())
	})
}

func TestDurationFlag(t *testing.T) {
	var d time.Duration
	f := newDurationFlag(time.Hour, &d)
	require.Equal(t, time.Hour, d)
	require.Equal(t, "duration", f.Type())

	require.NoError(t, f.Set("2d"))
	require.Equal(t, 48*time.Hour, d)
	require.Equal(t, "48h0m0s", f.String())

	require.Error(t, f.Set("soon"))
}

func TestUnknownFlag(t *testing.T) {
	cli := &testCLI{cfg: testConfig(t)}
	err := cli.run(t, "--nope")
	var ferr flagParseError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, "--nope", ferr.Flag())
}

func TestConfigError(t *testing.T) {
	cfgErr := errs.Wrap(errors.New("bad yaml"), "Could not parse settings file.")
	cmd := NewRootCmd(BuildInfo{}, config.Config{}, cfgErr, WithIO(nil, &discard{}, &discard{}))
	cmd.SetArgs([]string{"hello"})
	require.ErrorIs(t, cmd.Execute(), cfgErr)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
