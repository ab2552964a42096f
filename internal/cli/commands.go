package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netguru/repolib"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Exit codes
const (
	ExitOK           = 0
	ExitCommandError = 1
	ExitReplayFailed = 2
)

// NewFetchCommand creates the fetch command.
func NewFetchCommand(root *RootOptions) *cobra.Command {
	var (
		id       string
		where    []string
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Print matching records as JSON lines",
		Long: `Fetch records and print every entity the engine emits, one JSON
object per line. Without --id or --where every record is fetched.

Examples:
  repolib fetch
  repolib fetch --id 42
  repolib fetch --where status=open --where priority=2
  repolib fetch --strategy only_remote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(id, where, true)
			if err != nil {
				return err
			}
			var extra appOptions
			if strategy != "" {
				if extra.fetchStrategy, err = repolib.ParseStrategy(strategy); err != nil {
					return err
				}
			}

			a, err := root.open(cmd, extra)
			if err != nil {
				return err
			}
			defer a.close()

			return a.run(cmd.OutOrStdout(), func() error {
				return a.bundle.Engine.Fetch(cmd.Context(), q)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "fetch a single record by id")
	cmd.Flags().StringArrayVar(&where, "where", nil, "field=value equality filter (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "override the fetch strategy (e.g. only_local, both)")
	return cmd
}

// NewPutCommand creates the put command.
func NewPutCommand(root *RootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "put <json>...",
		Short: "Create or update records",
		Long: `Write one or more JSON objects. Each object must carry the configured
id field. Records are created (upserted) unless --update is given, in which
case updating a missing record fails.

Examples:
  repolib put '{"id":"1","title":"buy milk"}'
  repolib put --update '{"id":"1","title":"buy oat milk"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records := make([]Record, 0, len(args))
			for _, raw := range args {
				var r Record
				if err := json.Unmarshal([]byte(raw), &r); err != nil {
					return fmt.Errorf("invalid record %q: %w", raw, err)
				}
				records = append(records, r)
			}

			a, err := root.open(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			for _, r := range records {
				if recordID(a.idField)(r) == "" {
					return fmt.Errorf("record is missing the %q field", a.idField)
				}
			}

			return a.run(cmd.OutOrStdout(), func() error {
				ctx := cmd.Context()
				for _, r := range records {
					var err error
					if update {
						err = a.bundle.Engine.Update(ctx, r)
					} else {
						err = a.bundle.Engine.Create(ctx, r)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "update existing records instead of upserting")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(root *RootOptions) *cobra.Command {
	var (
		id    string
		where []string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete records and print the removed ones",
		Long: `Delete records by id or by field filter. Deleting everything requires
--all.

Examples:
  repolib delete --id 42
  repolib delete --where status=done
  repolib delete --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(id, where, all)
			if err != nil {
				return err
			}

			a, err := root.open(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			return a.run(cmd.OutOrStdout(), func() error {
				return a.bundle.Engine.Delete(cmd.Context(), q)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "delete a single record by id")
	cmd.Flags().StringArrayVar(&where, "where", nil, "field=value equality filter (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "delete every record")
	return cmd
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay buffered writes",
	}
	cmd.AddCommand(newQueueListCommand(root))
	cmd.AddCommand(newQueueFlushCommand(root))
	return cmd
}

type pendingLine struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

func newQueueListCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print buffered writes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			pending, err := a.bundle.Controller.Pending(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, req := range pending {
				line := pendingLine{ID: req.ID(), Kind: string(req.Kind())}
				if q := req.Query(); q != nil {
					line.Target = q.Key()
				} else {
					line.Target = "id:" + recordID(a.idField)(req.Entity())
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newQueueFlushCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay buffered writes against the remote",
		Long: `Replay every buffered write in order. Writes that fail again stay
buffered; the command then exits with code 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.Offline {
				return errors.New("cannot flush with --offline")
			}

			a, err := root.open(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.bundle.Flush(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d\n", n)
			if err != nil {
				return &ExitError{Code: ExitReplayFailed, Err: fmt.Errorf("replay incomplete: %w", err)}
			}
			return nil
		},
	}
}

// run executes op while printing every entity the engine emits.
func (a *app) run(w io.Writer, op func() error) error {
	sub := a.bundle.Engine.Subscribe()

	printed := make(chan error, 1)
	go func() {
		enc := json.NewEncoder(w)
		var encErr error
		for r := range sub.C() {
			if encErr == nil {
				encErr = enc.Encode(r)
			}
		}
		printed <- encErr
	}()

	opErr := op()
	sub.Unsubscribe()
	encErr := <-printed

	if dropped := sub.Dropped(); dropped > 0 {
		a.logger.Warn("output_dropped", "count", dropped)
	}
	return errors.Join(opErr, encErr)
}

// buildQuery turns --id/--where flags into a query. Without either it
// returns All when allowAll is set.
func buildQuery(id string, where []string, allowAll bool) (repolib.Query, error) {
	switch {
	case id != "" && len(where) > 0:
		return nil, errors.New("--id and --where are mutually exclusive")
	case id != "":
		return repolib.ByID(id), nil
	case len(where) > 0:
		params := make(map[string]any, len(where))
		for _, w := range where {
			k, v, ok := strings.Cut(w, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid --where %q: expected field=value", w)
			}
			params[k] = parseValue(v)
		}
		return repolib.ByParams(params), nil
	case allowAll:
		return repolib.All(), nil
	}
	return nil, errors.New("one of --id, --where or --all is required")
}

// parseValue reads v as a JSON scalar when it is one, so that
// priority=2 matches the number 2. Anything else is a string.
func parseValue(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		switch out.(type) {
		case float64, bool, nil:
			return out
		}
	}
	return v
}
