package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tsukiyomi/state"
	"tsukiyomi/viewport"
)

// Replay performs scripted gestures over simulated reader viewport showing
// book restored from session store. Settings and progress reported by the
// viewport are persisted exactly as interactive reader would do.
func Replay(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("replay")

	src, err := sourceArg(cmd, "replay script")
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open replay script: %w", err)
	}
	defer f.Close()

	script, err := viewport.LoadScript(f)
	if err != nil {
		return err
	}

	if err := env.OpenStore(); err != nil {
		return fmt.Errorf("unable to open session store: %w", err)
	}

	log.Info("Replay starting", zap.String("script", src), zap.Int("steps", len(script.Steps)))
	defer func(start time.Time) {
		log.Info("Replay completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return replayScript(ctx, env, script, output(cmd))
}

func replayScript(ctx context.Context, env *state.LocalEnv, script *viewport.Script, out io.Writer) error {
	s, err := restoreSession(env, out)
	if err != nil {
		return err
	}

	g := env.Geometry()
	if script.Viewport != nil {
		g = *script.Viewport
	}
	r := viewport.NewReplay(s.Book(), g, s, time.Now(), env.Log)
	defer r.Controller.Close()

	results, runErr := r.Run(ctx, s.Settings(), s.RestorePoint(), script)

	data, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("unable to encode replay results: %w", err)
	}
	env.Rpt.StoreData("replay/results.yaml", data)
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("unable to write replay results: %w", err)
	}
	advise(out, s)

	if runErr != nil {
		return fmt.Errorf("replay interrupted: %w", runErr)
	}
	return nil
}
