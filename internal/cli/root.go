// Package cli is the command-line front end of the game. Each command opens a
// sync session on one game, checks the action is allowed and applies it.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options holds the flags shared by every command
type Options struct {
	Server    string
	Data      string
	OEmbedURL string
	Timeout   time.Duration
	Verbose   bool
}

// NewRootCmd builds the command tree
func NewRootCmd(opts *Options, version string) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PORRA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "porra",
		Short:         "La porra musical: guess who brought each song.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&opts.Server, "server", "s", "ws://localhost:8080/ws", "store server websocket url (env: PORRA_SERVER)")
	fs.StringVarP(&opts.Data, "data", "d", defaultDataPath(), "local identity database (env: PORRA_DATA)")
	fs.StringVar(&opts.OEmbedURL, "oembed-url", "", "oembed endpoint for song lookups (env: PORRA_OEMBED_URL)")
	fs.DurationVar(&opts.Timeout, "timeout", 15*time.Second, "time allowed for each store operation (env: PORRA_TIMEOUT)")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "display additional output (env: PORRA_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		newCreateCmd(opts),
		newShowCmd(opts),
		newJoinCmd(opts),
		newSongCmd(opts),
		newVoteCmd(opts),
		newRevealCmd(opts),
		newAdvanceCmd(opts),
		newResetCmd(opts),
		newWatchCmd(opts),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("porra v{{.Version}}\n")

	return cmd
}

func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "porra-identity.db"
	}
	return filepath.Join(dir, "porra-identity.db")
}

// newLogger writes warnings to stderr, or everything with --verbose
func newLogger(opts *Options, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
