package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/docstore"
	"github.com/roach88/elementstore/internal/dynamo"
	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/schema"
	"github.com/roach88/elementstore/internal/store"
)

// newLogger logs to the command's stderr; --verbose enables debug output.
func (o *RootOptions) newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openBackend opens the backend selected by the root flags.
func (o *RootOptions) openBackend(ctx context.Context, logger *slog.Logger) (engine.Backend, error) {
	switch o.Backend {
	case "sqlite":
		opts := store.DefaultOptions()
		opts.Logger = logger
		return store.OpenWithOptions(o.Database, opts)
	case "bolt":
		b, err := docstore.OpenBolt(docstore.DefaultConfig(o.Database))
		if err != nil {
			return nil, err
		}
		return docstore.New(b, docstore.WithLogger(logger)), nil
	case "dynamodb":
		cols, err := dynamo.Open(ctx, dynamo.Config{
			DocumentTable: o.Table + "_documents",
			HistoryTable:  o.Table + "_history",
			MetaTable:     o.Table + "_meta",
			Region:        o.Region,
			Endpoint:      o.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return docstore.New(cols, docstore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
}

// openEngine opens the selected backend and applies --schema when set.
// The caller closes the engine.
func (o *RootOptions) openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	ctx := cmd.Context()
	logger := o.newLogger(cmd)

	backend, err := o.openBackend(ctx, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open %s backend", o.Backend), err)
	}
	eng, err := engine.New(backend, engine.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	if o.Schema != "" {
		types, err := schema.LoadPath(o.Schema)
		if err != nil {
			eng.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
		}
		if err := eng.DefineTypes(ctx, types); err != nil {
			eng.Close()
			return nil, WrapExitError(ExitFailure, "failed to apply schema", err)
		}
		logger.Debug("schema applied", "path", o.Schema, "types", len(types))
	}
	return eng, nil
}

// withEngine opens the engine, runs fn and closes the engine. Open failures
// are reported through the formatter.
func (o *RootOptions) withEngine(cmd *cobra.Command, fn func(*engine.Engine, *OutputFormatter) error) error {
	f := o.formatter(cmd)
	eng, err := o.openEngine(cmd)
	if err != nil {
		code := "COMMAND_ERROR"
		if c := ir.CodeOf(err); c != "" {
			code = string(c)
		}
		_ = f.Error(code, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			f.VerboseLog("error closing store: %v", closeErr)
		}
	}()
	return fn(eng, f)
}
