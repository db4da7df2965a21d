// Package commands implements program subcommands. Every action validates
// command line and hands over to a function which does the actual work
// without knowing about CLI framework.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"tsukiyomi/common"
	"tsukiyomi/detect"
	"tsukiyomi/library"
	"tsukiyomi/session"
	"tsukiyomi/state"
)

var errNoSavedBook = errors.New("no book saved by previous sessions")

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// sourceArg returns absolute path of the first argument.
func sourceArg(cmd *cli.Command, what string) (string, error) {
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return "", fmt.Errorf("no %s has been specified", what)
	}
	return filepath.Abs(src)
}

// destinationArg returns absolute path of argument at idx or current working
// directory when absent.
func destinationArg(cmd *cli.Command, idx int, log *zap.Logger) (string, error) {
	if cmd.Args().Len() > idx+1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[idx+1:]))
	}
	dst := cmd.Args().Get(idx)
	if len(dst) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("unable to get working directory: %w", err)
		}
		return wd, nil
	}
	return filepath.Abs(dst)
}

// applyImportFlags overrides configured decoding with command line.
func applyImportFlags(env *state.LocalEnv, cmd *cli.Command, log *zap.Logger) {
	if name := cmd.String("encoding"); len(name) > 0 {
		mode, err := common.ParseEncodingMode(name)
		if err != nil {
			log.Warn("Unknown encoding mode requested, keeping configured one", zap.String("requested", name), zap.Stringer("mode", env.EncodingMode), zap.Error(err))
		} else {
			env.EncodingMode = mode
		}
	}

	// zip does not define file name encoding, old bundles may need archaic
	// code page
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		enc, err := state.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			return
		}
		env.CodePage = enc
		n, _ := ianaindex.IANA.Name(enc)
		log.Debug("Forcefully converting all non UTF-8 file names in bundles", zap.String("charset", n))
	}
}

func kindFlag(cmd *cli.Command, log *zap.Logger) detect.Kind {
	kind, err := library.ParseKind(cmd.String("as"))
	if err != nil {
		log.Warn("Unknown input kind requested, detecting automatically", zap.String("requested", cmd.String("as")), zap.Error(err))
	}
	return kind
}

// userError prefixes err with its localized message so it reaches the user
// even when log is quiet.
func userError(env *state.LocalEnv, err error) error {
	return fmt.Errorf("%s: %w", common.UserMessage(err, env.Locale), err)
}

func advise(out io.Writer, s *session.Session) {
	if msg := s.Advisory(); len(msg) > 0 {
		fmt.Fprintln(out, msg)
	}
}
