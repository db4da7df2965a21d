package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosimple/slug"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"tsukiyomi/detect"
	"tsukiyomi/library"
	"tsukiyomi/state"
)

// Import loads book into reading session and persists it so later commands
// can restore it.
func Import(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("import")

	src, err := sourceArg(cmd, "input source")
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many sources", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	applyImportFlags(env, cmd, log)
	kind := kindFlag(cmd, log)

	if err := env.OpenStore(); err != nil {
		return fmt.Errorf("unable to open session store: %w", err)
	}

	log.Info("Import starting", zap.String("source", src), zap.Stringer("kind", kind))
	defer func(start time.Time) {
		log.Info("Import completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return importBook(ctx, env, src, kind, output(cmd))
}

// importBook opens src in a new session over the opened store. On failure
// whatever previous sessions stored is kept intact.
func importBook(ctx context.Context, env *state.LocalEnv, src string, kind detect.Kind, out io.Writer) error {
	s := env.NewSession()
	res, err := env.Loader().Open(ctx, s, src, kind)
	if err != nil {
		return userError(env, err)
	}
	s.PersistLastOpened()
	s.PersistEmbedded()

	fmt.Fprintf(out, "%s: %s (%s, %d)\n", env.Locale.Msg(res.Status), res.Book.Title, s.BookID(), len(res.Book.TOC))
	storeResult(env, res)
	advise(out, s)
	return nil
}

// Convert loads book and immediately writes it as bundle. Session store is
// never touched.
func Convert(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	src, err := sourceArg(cmd, "input source")
	if err != nil {
		return err
	}
	dst, err := destinationArg(cmd, 1, log)
	if err != nil {
		return err
	}
	applyImportFlags(env, cmd, log)
	kind := kindFlag(cmd, log)
	env.Overwrite = cmd.Bool("overwrite")

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return convertBook(ctx, env, src, dst, kind, output(cmd))
}

func convertBook(ctx context.Context, env *state.LocalEnv, src, dst string, kind detect.Kind, out io.Writer) error {
	s := env.NewScratchSession()
	res, err := env.Loader().Open(ctx, s, src, kind)
	if err != nil {
		return userError(env, err)
	}
	storeResult(env, res)
	return exportSession(ctx, env, s, dst, out)
}

// Decode reports how text file would be decoded without importing it.
func Decode(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("decode")

	src, err := sourceArg(cmd, "input source")
	if err != nil {
		return err
	}
	applyImportFlags(env, cmd, log)

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("unable to read source: %w", err)
	}
	det := detect.Detect(data, env.EncodingMode, env.Legacy)
	log.Debug("Text decoded", zap.String("source", src), zap.Stringer("encoding", det.Encoding), zap.Int("utf8", det.UTF8Score), zap.Int("legacy", det.LegacyScore))

	fmt.Fprintln(output(cmd), det.Diagnostics)
	return nil
}

// storeResult puts loaded book structure into debug report.
func storeResult(env *state.LocalEnv, res *library.Result) {
	if env.Rpt == nil {
		return
	}
	name := slug.Make(res.Book.Title)
	if len(name) == 0 {
		name = "book"
	}
	env.Rpt.StoreData(fmt.Sprintf("book/%s.txt", name), []byte(res.Book.Dump()))
	if res.Detection != nil {
		env.Rpt.StoreData("book/detection.txt", []byte(res.Detection.Diagnostics))
	}
}
