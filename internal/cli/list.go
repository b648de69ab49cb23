package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/packscan/pkg/classify"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/pipeline"
	"github.com/matzehuels/packscan/pkg/store"
)

// Output formats for list, stats and runs.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want table, json or yaml)", f)
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable draws rows with the shared header and border styles.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// =============================================================================
// list
// =============================================================================

// listRow is the exported shape of a record.
type listRow struct {
	ID                  int64     `json:"id" yaml:"id"`
	FullName            string    `json:"full_name" yaml:"full_name"`
	Language            string    `json:"language,omitempty" yaml:"language,omitempty"`
	Stars               int       `json:"stars" yaml:"stars"`
	Forks               int       `json:"forks" yaml:"forks"`
	Contributors        int       `json:"contributors" yaml:"contributors"`
	LinesOfCode         int       `json:"lines_of_code" yaml:"lines_of_code"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" yaml:"updated_at"`
	Status              string    `json:"status" yaml:"status"`
	Category            string    `json:"category,omitempty" yaml:"category,omitempty"`
	Rule                string    `json:"rule,omitempty" yaml:"rule,omitempty"`
	RuleLinter          *bool     `json:"rule_linter" yaml:"rule_linter"`
	RuleDevDependencies *int      `json:"rule_dev_dependencies" yaml:"rule_dev_dependencies"`
}

func rowFrom(r store.Record) listRow {
	return listRow{
		ID:                  r.ID,
		FullName:            r.FullName,
		Language:            r.Language,
		Stars:               r.Stars,
		Forks:               r.Forks,
		Contributors:        r.Contributors,
		LinesOfCode:         r.LinesOfCode,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		Status:              string(r.Status),
		Category:            string(r.Category),
		Rule:                r.Rule,
		RuleLinter:          r.RuleLinter,
		RuleDevDependencies: r.RuleDevDependencies,
	}
}

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var (
		status   string
		category string
		format   string
		limit    int
		cats     bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored repositories",
		Example: `  packscan list --status analyzed --category react
  packscan list --format json > repositories.json
  packscan list --table --category vue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := listFilter(status, category, limit)
			if err != nil {
				return err
			}
			if err := validateFormat(format); err != nil {
				return err
			}
			e, err := c.openEnv(cmd.Context(), "list", envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			if cats {
				rows, err := categorizationRows(cmd.Context(), e.store, f)
				if err != nil {
					return err
				}
				return writeCategorizations(cmd.OutOrStdout(), format, rows)
			}
			records, err := e.store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), format, records)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "only records with this status")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only records with this category")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table|json|yaml)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum records to print (0 = all)")
	cmd.Flags().BoolVar(&cats, "table", false, "print the categorization table instead of records")
	return cmd
}

func listFilter(status, category string, limit int) (store.Filter, error) {
	f := store.Filter{Limit: limit}
	if status != "" {
		s, err := classify.ParseStatus(status)
		if err != nil {
			return f, errors.Wrap(errors.ErrCodeInvalidInput, err, "--status")
		}
		f.Status = s
	}
	cat, err := parseCategoryFlag(category)
	if err != nil {
		return f, err
	}
	f.Category = cat
	return f, nil
}

func writeRecords(w io.Writer, format string, records []store.Record) error {
	if format != formatTable {
		rows := make([]listRow, len(records))
		for i, r := range records {
			rows[i] = rowFrom(r)
		}
		return writeStructured(w, format, rows)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, StyleDim.Render("No repositories"))
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.FullName,
			strconv.Itoa(r.Stars),
			string(r.Status),
			orDash(string(r.Category)),
			formatLinter(r.RuleLinter),
			formatCount(r.RuleDevDependencies),
		})
	}
	return renderTable(w, []string{"ID", "Repository", "Stars", "Status", "Category", "Linter", "Misplaced"}, rows)
}

// categorizationRow is one entry of the categorization table.
type categorizationRow struct {
	ID       int64  `json:"id" yaml:"id"`
	FullName string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Category string `json:"category" yaml:"category"`
}

// categorizationRows joins the categorization table with record names,
// ordered by id. Only f.Category and f.Limit apply.
func categorizationRows(ctx context.Context, s *store.Store, f store.Filter) ([]categorizationRow, error) {
	entries, err := s.Categorizations(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(records))
	for _, r := range records {
		names[r.ID] = r.FullName
	}

	ids := make([]int64, 0, len(entries))
	for id, cat := range entries {
		if f.Category != "" && cat != f.Category {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if f.Limit > 0 && len(ids) > f.Limit {
		ids = ids[:f.Limit]
	}
	rows := make([]categorizationRow, len(ids))
	for i, id := range ids {
		rows[i] = categorizationRow{ID: id, FullName: names[id], Category: string(entries[id])}
	}
	return rows, nil
}

func writeCategorizations(w io.Writer, format string, rows []categorizationRow) error {
	if format != formatTable {
		return writeStructured(w, format, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, StyleDim.Render("No categorizations"))
		return err
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{strconv.FormatInt(r.ID, 10), orDash(r.FullName), r.Category}
	}
	return renderTable(w, []string{"ID", "Repository", "Category"}, out)
}

func formatLinter(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return "yes"
	default:
		return "no"
	}
}

func formatCount(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// =============================================================================
// stats
// =============================================================================

// statsCommand creates the stats command.
func (c *CLI) statsCommand() *cobra.Command {
	var (
		top    int
		format string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize statuses, categories and the most common dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			bindFlag(cmd, "concurrency", "concurrency")
			ctx := cmd.Context()
			e, err := c.openEnv(ctx, "stats", envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			spinner := newSpinner(ctx, "Reading manifests")
			spinner.Start()
			report, err := e.runner.Stats(ctx, top)
			spinner.Stop()
			if err != nil {
				return err
			}
			if format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, report)
			}
			return writeReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVarP(&top, "top", "t", pipeline.DefaultTop, "dependencies listed per section")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table|json|yaml)")
	cmd.Flags().Int("concurrency", pipeline.DefaultConcurrency, "manifests read at once")
	return cmd
}

func writeReport(w io.Writer, r pipeline.Report) error {
	fmt.Fprintln(w, StyleTitle.Render("Repositories"))
	fmt.Fprintf(w, "%s %s\n", StyleDim.Render("total"), StyleNumber.Render(strconv.Itoa(r.Total)))

	statuses := make([][]string, 0, len(r.Statuses))
	for _, s := range []classify.Status{classify.StatusUncategorized, classify.StatusCategorized, classify.StatusBlacklisted, classify.StatusAnalyzed} {
		statuses = append(statuses, []string{string(s), strconv.Itoa(r.Statuses[s])})
	}
	if err := renderTable(w, []string{"Status", "Repositories"}, statuses); err != nil {
		return err
	}

	cats := make([]classify.Category, 0, len(r.Categories))
	for cat := range r.Categories {
		cats = append(cats, cat)
	}
	slices.Sort(cats)
	categories := make([][]string, 0, len(cats))
	for _, cat := range cats {
		categories = append(categories, []string{orDash(string(cat)), strconv.Itoa(r.Categories[cat])})
	}
	if len(categories) > 0 {
		if err := renderTable(w, []string{"Category", "Repositories"}, categories); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, StyleTitle.Render("Dependencies"))
	fmt.Fprintf(w, "%s %s\n", StyleDim.Render("local copies read"), StyleNumber.Render(strconv.Itoa(r.Scanned)))
	for _, section := range []struct {
		title  string
		counts []pipeline.DependencyCount
	}{
		{"Production", r.Production},
		{"Dev", r.Dev},
	} {
		if len(section.counts) == 0 {
			continue
		}
		rows := make([][]string, len(section.counts))
		for i, dc := range section.counts {
			rows[i] = []string{strconv.Itoa(i + 1), dc.Name, strconv.Itoa(dc.Repositories)}
		}
		if err := renderTable(w, []string{"#", section.title, "Repositories"}, rows); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// runs
// =============================================================================

// runRow is the exported shape of a batch run.
type runRow struct {
	ID         string     `json:"id" yaml:"id"`
	Command    string     `json:"command" yaml:"command"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at" yaml:"finished_at"`
	Total      int        `json:"total" yaml:"total"`
	Succeeded  int        `json:"succeeded" yaml:"succeeded"`
	Failed     int        `json:"failed" yaml:"failed"`
}

// runsCommand creates the runs command.
func (c *CLI) runsCommand() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent batch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			e, err := c.openEnv(cmd.Context(), "runs", envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := make([]runRow, len(runs))
			for i, r := range runs {
				out[i] = runRow{ID: r.ID, Command: r.Command, StartedAt: r.StartedAt,
					Total: r.Total, Succeeded: r.Succeeded, Failed: r.Failed}
				if !r.FinishedAt.IsZero() {
					out[i].FinishedAt = &runs[i].FinishedAt
				}
			}
			if format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, out)
			}
			return writeRuns(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "runs to show (0 = all)")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table|json|yaml)")
	return cmd
}

func writeRuns(w io.Writer, runs []runRow) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, StyleDim.Render("No runs recorded"))
		return err
	}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		duration := "interrupted"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rows[i] = []string{
			r.ID[:8],
			r.Command,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			duration,
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
		}
	}
	return renderTable(w, []string{"Run", "Command", "Started", "Duration", "Total", "Succeeded", "Failed"}, rows)
}
