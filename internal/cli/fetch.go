package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/packscan/pkg/pipeline"
)

// fetchFlags holds the flags shared by fetch and run.
type fetchFlags struct {
	query string
	limit int
	reset bool
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", pipeline.DefaultTerm, "comma-separated search terms")
	cmd.Flags().IntVarP(&f.limit, "limit", "l", pipeline.DefaultLimit, "new repositories to collect across all terms")
	cmd.Flags().BoolVar(&f.reset, "reset", false, "delete every local copy and empty the database first")
	cmd.Flags().Int("concurrency", pipeline.DefaultConcurrency, "repositories processed at once")
	cmd.Flags().String("method", "tarball", "how repositories are downloaded (tarball|git)")
}

func (f *fetchFlags) options() pipeline.FetchOptions {
	return pipeline.FetchOptions{
		Terms: pipeline.ParseTerms(f.query),
		Limit: f.limit,
		Reset: f.reset,
	}
}

func bindFetchFlags(cmd *cobra.Command) {
	bindFlag(cmd, "concurrency", "concurrency")
	bindFlag(cmd, "fetch_method", "method")
}

// fetchCommand creates the fetch command.
func (c *CLI) fetchCommand() *cobra.Command {
	var flags fetchFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Search GitHub and download matching repositories",
		Long: `Search GitHub for repositories whose package.json mentions the query terms and
download each new one into the repositories directory.

The limit is split evenly between terms. Repositories already in the database
are skipped without counting against the limit.`,
		Example: `  packscan fetch --query webpack --limit 50
  packscan fetch -q webpack,react -l 100 --method git`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFetchFlags(cmd)
			e, err := c.openEnv(cmd.Context(), "fetch", envOptions{source: true, progress: true})
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.runner.Fetch(cmd.Context(), flags.options())
			e.reporter.Stop()
			if summary.RunID != "" {
				printSummary(summary)
			}
			if err != nil {
				return err
			}
			if summary.Succeeded > 0 {
				printNextStep("Classify them", appName+" categorize")
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// runCommand creates the run command.
func (c *CLI) runCommand() *cobra.Command {
	var (
		flags fetchFlags
		opts  pipeline.Options
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, categorize and analyze repositories in one pass",
		Long: `Run the whole pipeline for every repository a search yields: download it,
read its manifests, classify it and check its rules, then persist the record.`,
		Example: `  packscan run --query webpack --limit 200 --rm-folders`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFetchFlags(cmd)
			e, err := c.openEnv(cmd.Context(), "run", envOptions{source: true, progress: true, pipeline: opts})
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.runner.Run(cmd.Context(), flags.options())
			e.reporter.Stop()
			if summary.RunID != "" {
				printSummary(summary)
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&opts.KeepMissing, "keep-missing", false, "leave repositories without package.json uncategorized")
	cmd.Flags().BoolVar(&opts.RemoveFolders, "rm-folders", false, "delete each local copy once its pipeline ends")
	cmd.Flags().BoolVar(&opts.RemoveBlacklisted, "rm-blacklisted", false, "delete the local copies of blacklisted repositories")
	return cmd
}

// printSummary prints a batch summary.
func printSummary(s pipeline.Summary) {
	if s.Failed > 0 {
		printWarning("%s finished with %d failures", s.Command, s.Failed)
	} else {
		printSuccess("%s finished", s.Command)
	}
	printKeyValue("Total", fmt.Sprint(s.Total))
	printKeyValue("Succeeded", fmt.Sprint(s.Succeeded))
	printKeyValue("Skipped", fmt.Sprint(s.Skipped))
	printKeyValue("Failed", fmt.Sprint(s.Failed))
	printKeyValue("Duration", s.Duration.Round(time.Millisecond).String())
	printDetail("Run %s", s.RunID)
}
