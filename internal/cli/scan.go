package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/packscan/pkg/pipeline"
)

// scanCommand creates the consistency sweep command.
func (c *CLI) scanCommand() *cobra.Command {
	var opts pipeline.SweepOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Reconcile local copies with the database",
		Long: `Reconcile the repositories directory with the database. Exactly one mode is required.

  --local  local copies are authoritative: records are rebuilt from each copy's
           details.json, keeping existing classifications, and records without a
           copy are deleted.
  --db     the database is authoritative: copies without a record and records
           without a copy are deleted.

Both modes remove staging directories left by interrupted downloads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := c.openEnv(ctx, "scan", envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			timer := newElapsed(c.Logger)
			spinner := newSpinner(ctx, "Scanning "+e.engine.Root())
			spinner.Start()
			res, err := e.runner.Sweep(ctx, opts)
			if err != nil {
				spinner.StopWithError("Scan failed")
				return err
			}
			spinner.StopWithSuccess("Scan complete")
			timer.done("swept " + e.engine.Root())

			if opts.Local {
				printKeyValue("Restored", fmt.Sprint(res.Restored))
				printKeyValue("Unreadable", fmt.Sprint(res.Unreadable))
			} else {
				printKeyValue("Copies", fmt.Sprintf("%d removed", res.RemovedCopies))
			}
			printKeyValue("Records", fmt.Sprintf("%d removed", res.RemovedRecords))
			printKeyValue("Partial", fmt.Sprintf("%d removed", res.RemovedPartial))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Local, "local", false, "rebuild the database from local copies")
	cmd.Flags().BoolVar(&opts.DB, "db", false, "delete local copies and records without a counterpart")
	return cmd
}
