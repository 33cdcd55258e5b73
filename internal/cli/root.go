package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Backend selects the store: sqlite, bolt or dynamodb.
	Backend  string
	Database string // sqlite or bolt file

	// Table is the DynamoDB table name prefix.
	Table    string
	Region   string
	Endpoint string

	// Schema is a CUE directory, .cue or .yaml file applied on open.
	Schema string

	// User is recorded as the modifying user.
	User string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidBackends defines the allowed backends.
var ValidBackends = []string{"sqlite", "bolt", "dynamodb"}

// NewRootCommand creates the root command for the elementstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "elementstore",
		Short: "Versioned element store",
		Long: `A schema-flexible element store with full revision history.

Elements are typed records whose attributes and references are versioned per
revision. Every command works against SQLite, bbolt or DynamoDB.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends))
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Backend, "backend", "sqlite", "storage backend (sqlite|bolt|dynamodb)")
	flags.StringVar(&opts.Database, "db", "elementstore.db", "database file for the sqlite and bolt backends")
	flags.StringVar(&opts.Table, "table", "elementstore", "DynamoDB table name prefix")
	flags.StringVar(&opts.Region, "region", "", "AWS region override")
	flags.StringVar(&opts.Endpoint, "endpoint", "", "DynamoDB endpoint override")
	flags.StringVar(&opts.Schema, "schema", "", "schema (CUE dir, .cue or .yaml) to apply before the command")
	flags.StringVar(&opts.User, "user", "", "user recorded in the modification history")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewCheckVersionCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
