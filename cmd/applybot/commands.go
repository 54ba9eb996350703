package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kalambet/applybot/internal/answers"
	"github.com/kalambet/applybot/internal/api"
	"github.com/kalambet/applybot/internal/config"
	"github.com/kalambet/applybot/internal/ledger"
	"github.com/kalambet/applybot/internal/llm"
	"github.com/kalambet/applybot/internal/persist"
)

// withStore loads the config, opens the configured store and hands both to fn.
func withStore(ctx context.Context, fn func(cfg config.Config, store persist.Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)
	return fn(cfg, store)
}

// --- ledger ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the record of applied jobs",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded companies and jobs per login and job title",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		title, _ := cmd.Flags().GetString("job-title")

		return withStore(cmd.Context(), func(_ config.Config, store persist.Backend) error {
			ids, err := store.ListIdentities(cmd.Context())
			if err != nil {
				return err
			}
			var views []api.LedgerView
			for _, id := range ids {
				if user != "" && id.UserLogin != user {
					continue
				}
				if title != "" && id.JobTitle != title {
					continue
				}
				p, err := store.LoadPartition(cmd.Context(), id)
				if err != nil {
					return err
				}
				views = append(views, api.LedgerView{UserLogin: id.UserLogin, JobTitle: id.JobTitle, Companies: p})
			}
			if len(views) == 0 {
				printWarning("No ledger entries")
				return nil
			}
			writeLedger(os.Stdout, views)
			return nil
		})
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check <company> <job>",
	Short: "Report whether a run would skip a job as already handled",
	Long: `Report whether a run would skip a job as already handled.

The login and job title default to the search profile in the data folder.

Examples:
  applybot ledger check "Acme LLC" "Go developer" --data ./data
  applybot ledger check acme "go developer" --user alice --job-title "go developer"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		title, _ := cmd.Flags().GetString("job-title")

		return withStore(cmd.Context(), func(cfg config.Config, store persist.Backend) error {
			id, err := resolveIdentity(cfg, user, title)
			if err != nil {
				return err
			}
			res, err := api.CheckLedger(cmd.Context(), store, cfg.Apply.OnceAtCompany, id, args[0], args[1])
			if err != nil {
				return err
			}
			if res.Handled {
				printWarning("%s at %s is already handled for %s", res.Job, res.Company, id)
			} else {
				printSuccess("%s at %s has not been applied to by %s", res.Job, res.Company, id)
			}
			return nil
		})
	},
}

// resolveIdentity fills missing flags from the search profile in the data
// folder.
func resolveIdentity(cfg config.Config, user, title string) (ledger.Identity, error) {
	if user == "" || title == "" {
		p, err := config.LoadSearchProfile(filepath.Join(cfg.Data.Dir, config.SearchProfileFile))
		if err != nil {
			return ledger.Identity{}, fmt.Errorf("--user and --job-title not given: %w", err)
		}
		if user == "" {
			user = p.Login
		}
		if title == "" {
			title = p.JobTitle
		}
	}
	return ledger.Identity{UserLogin: user, JobTitle: title}, nil
}

func writeLedger(w io.Writer, views []api.LedgerView) {
	for _, v := range views {
		fmt.Fprintf(w, "%s (%s)\n", colorize(styleBold, v.UserLogin), v.JobTitle)
		for _, company := range v.Companies.Companies() {
			fmt.Fprintf(w, "  %s: %s\n", company, strings.Join(v.Companies[company], ", "))
		}
	}
}

func init() {
	for _, c := range []*cobra.Command{ledgerListCmd, ledgerCheckCmd} {
		c.Flags().String("user", "", "site login")
		c.Flags().String("job-title", "", "searched job title")
	}
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)
}

// --- answers ---

var answersCmd = &cobra.Command{
	Use:   "answers",
	Short: "Inspect cached answers to application questions",
}

var answersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached question/answer pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		contains, _ := cmd.Flags().GetString("contains")

		return withStore(cmd.Context(), func(_ config.Config, store persist.Backend) error {
			entries, err := store.LoadAnswers(cmd.Context())
			if err != nil {
				return err
			}
			entries = filterAnswers(entries, contains)
			if len(entries) == 0 {
				printWarning("No cached answers")
				return nil
			}
			fmt.Fprintln(os.Stdout, answersTable(entries))
			return nil
		})
	},
}

func filterAnswers(entries []answers.Entry, contains string) []answers.Entry {
	needle := strings.ToLower(strings.TrimSpace(contains))
	if needle == "" {
		return entries
	}
	var out []answers.Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Question), needle) {
			out = append(out, e)
		}
	}
	return out
}

func answersTable(entries []answers.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "QUESTION", "ANSWER")
	if !noColor {
		t = t.BorderStyle(styleStep)
	}
	for i, e := range entries {
		t = t.Row(fmt.Sprintf("%d", i+1), truncate(e.Question, 60), truncate(e.Answer, 80))
	}
	return t.Render()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	answersListCmd.Flags().String("contains", "", "only questions containing this text")
	answersCmd.AddCommand(answersListCmd)
}

// --- costs ---

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Summarize model usage and cost from the invocation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		recent, _ := cmd.Flags().GetInt("recent")

		return withStore(cmd.Context(), func(_ config.Config, store persist.Backend) error {
			sum, err := store.CostSummary(cmd.Context())
			if err != nil {
				return err
			}
			writeCosts(os.Stderr, sum)
			if recent <= 0 {
				return nil
			}
			recs, err := store.ListInvocations(cmd.Context(), recent)
			if err != nil {
				return err
			}
			writeInvocations(os.Stdout, recs)
			return nil
		})
	},
}

func writeCosts(w io.Writer, s llm.CostSummary) {
	fmt.Fprintf(w, "  %s %d\n", colorize(styleBold, "Calls:"), s.Calls)
	fmt.Fprintf(w, "  %s %d in / %d out / %d total\n", colorize(styleBold, "Tokens:"), s.InputTokens, s.OutputTokens, s.TotalTokens)
	fmt.Fprintf(w, "  %s $%.4f\n", colorize(styleBold, "Cost:"), s.Cost)
}

func writeInvocations(w io.Writer, recs []llm.InvocationRecord) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %-24s %6d tok  $%.4f  %s\n",
			r.Time.Local().Format("2006-01-02 15:04:05"), r.ID[:min(8, len(r.ID))], r.Model,
			r.TotalTokens, r.Cost, truncate(r.Reply, 60))
	}
}

func init() {
	costsCmd.Flags().Int("recent", 0, "also list this many most recent invocations")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		writeConfig(os.Stdout, config.ShowAll(cfg))
		return nil
	},
}

func writeConfig(w io.Writer, keys []config.KeyInfo) {
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", colorize(styleBold, k.Key), k.Value)
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file.\n\nValid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
