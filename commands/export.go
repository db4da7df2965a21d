package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"tsukiyomi/common"
	"tsukiyomi/session"
	"tsukiyomi/state"
	"tsukiyomi/store"
)

// Export writes book restored from session store as bundle together with its
// current settings and progress.
func Export(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("export")

	dst, err := destinationArg(cmd, 0, log)
	if err != nil {
		return err
	}
	env.Overwrite = cmd.Bool("overwrite")

	if err := env.OpenStore(); err != nil {
		return fmt.Errorf("unable to open session store: %w", err)
	}

	out := output(cmd)
	s, err := restoreSession(env, out)
	if err != nil {
		return err
	}
	return exportSession(ctx, env, s, dst, out)
}

// restoreSession reopens book stored by previous sessions.
func restoreSession(env *state.LocalEnv, out io.Writer) (*session.Session, error) {
	s := env.NewSession()
	if !s.RestoreLast() {
		advise(out, s)
		return nil, userError(env, common.NewUserError(common.MsgNoSavedBook, errNoSavedBook))
	}
	return s, nil
}

func exportSession(ctx context.Context, env *state.LocalEnv, s *session.Session, dst string, out io.Writer) error {
	if s.Book() == nil {
		return userError(env, common.NewUserError(common.MsgNoBookToExport, errNoSavedBook))
	}
	name, err := s.Export(ctx, dst)
	if err != nil {
		return userError(env, err)
	}
	env.Rpt.Store(filepath.Join("bundle", filepath.Base(name)), name)

	fmt.Fprintf(out, "%s: %s\n", env.Locale.Msg(common.MsgExported), name)
	advise(out, s)
	return nil
}

// Progress lists reading positions kept in session store.
func Progress(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 0 {
		env.Log.Warn("Malformed command line, unexpected arguments", zap.Strings("ignoring", cmd.Args().Slice()))
	}
	if err := env.OpenStore(); err != nil {
		return fmt.Errorf("unable to open session store: %w", err)
	}
	return listProgress(env.Store, env.Log.Named("progress"), output(cmd))
}

func listProgress(kv store.KV, log *zap.Logger, out io.Writer) error {
	ids, err := store.ProgressKeys(kv)
	if err != nil {
		return fmt.Errorf("unable to list reading progress: %w", err)
	}
	last, _, err := store.LoadJSON[store.LastOpened](kv, store.KeyLastOpened)
	if err != nil {
		log.Warn("Unable to load last opened book", zap.Error(err))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tBOOK\tCHAPTER\tPAGE\tLEFT\tTOP\tUPDATED")
	for _, id := range ids {
		rec, ok, err := store.LoadJSON[store.ProgressRecord](kv, store.ProgressKey(id))
		if err != nil {
			log.Warn("Skipping unreadable progress record", zap.String("id", id), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		mark := ""
		if id == last.BookID {
			mark = "*"
		}
		chapter := "-"
		if rec.ChapterID != nil {
			chapter = *rec.ChapterID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%g\t%g\t%s\n", mark, id, chapter, rec.PageIndex, rec.ScrollLeft, rec.ScrollTop, rec.UpdatedAt)
	}
	return tw.Flush()
}
