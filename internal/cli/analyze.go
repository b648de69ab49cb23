package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/pipeline"
)

// categorizeCommand creates the categorize command.
func (c *CLI) categorizeCommand() *cobra.Command {
	var (
		table bool
		clear bool
		opts  pipeline.Options
	)

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Classify uncategorized repositories by framework",
		Long: `Read the manifests of every uncategorized repository and assign a category.

Repositories without a package.json are blacklisted as "other" unless
--keep-missing is set. With --table, categories are written to the separate
categorization table and record statuses are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear && !table {
				return errors.New(errors.ErrCodeInvalidInput, "--clear only applies with --table")
			}
			bindFlag(cmd, "concurrency", "concurrency")
			e, err := c.openEnv(cmd.Context(), "categorize", envOptions{progress: true, pipeline: opts})
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.runner.Categorize(cmd.Context(), pipeline.CategorizeOptions{Table: table, Clear: clear})
			e.reporter.Stop()
			if summary.RunID != "" {
				printSummary(summary)
			}
			if err != nil {
				return err
			}
			if !table && summary.Succeeded > 0 {
				printNextStep("Check their rules", appName+" analyze")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&table, "table", false, "write categories to the categorization table")
	cmd.Flags().BoolVar(&clear, "clear", false, "empty the categorization table first")
	cmd.Flags().BoolVar(&opts.KeepMissing, "keep-missing", false, "leave repositories without package.json uncategorized")
	cmd.Flags().BoolVar(&opts.RemoveBlacklisted, "rm-blacklisted", false, "delete the local copies of blacklisted repositories")
	cmd.Flags().Int("concurrency", pipeline.DefaultConcurrency, "repositories processed at once")
	return cmd
}

// analyzeCommand creates the analyze command.
func (c *CLI) analyzeCommand() *cobra.Command {
	var (
		category string
		opts     pipeline.Options
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Check lint and dev-dependency rules of categorized repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategoryFlag(category)
			if err != nil {
				return err
			}
			bindFlag(cmd, "concurrency", "concurrency")
			e, err := c.openEnv(cmd.Context(), "analyze", envOptions{progress: true, pipeline: opts})
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.runner.Analyze(cmd.Context(), pipeline.AnalyzeOptions{Category: cat})
			e.reporter.Stop()
			if summary.RunID != "" {
				printSummary(summary)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "all", "only analyze this category ("+categoryChoices()+")")
	cmd.Flags().BoolVar(&opts.RemoveFolders, "rm-folders", false, "delete each local copy once analyzed")
	cmd.Flags().Int("concurrency", pipeline.DefaultConcurrency, "repositories processed at once")
	_ = cmd.RegisterFlagCompletionFunc("category", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return strings.Split(categoryChoices(), "|"), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// parseCategoryFlag maps "all" and "" to no filter.
func parseCategoryFlag(s string) (classify.Category, error) {
	if s == "" || s == "all" {
		return classify.CategoryNone, nil
	}
	cat, err := classify.ParseCategory(s)
	if err != nil {
		return classify.CategoryNone, errors.Wrap(errors.ErrCodeInvalidInput, err, "--category")
	}
	return cat, nil
}

func categoryChoices() string {
	names := []string{"all"}
	for _, c := range classify.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, "|")
}
