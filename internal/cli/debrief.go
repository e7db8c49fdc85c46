package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avrelja/sidecoach/core/analytics"
	"github.com/avrelja/sidecoach/core/answer"
	"github.com/avrelja/sidecoach/core/llms/openai"
)

var debriefSessionID string

var debriefCmd = &cobra.Command{
	Use:   "debrief",
	Short: "Generate a Markdown review report for a recorded session",
	Long: `Debrief loads a recorded session from the local database and asks the
configured model for a structured review: strengths, knowledge gaps, unanswered
questions, and a study plan. Without --session the most recent session is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("no LLM API key configured, set LLM_API_KEY or llm.api_key")
		}

		history, err := analytics.ReadHistory(cfg.Session.DatabasePath, debriefSessionID)
		if err != nil {
			return err
		}

		llm := openai.NewClient(cfg.LLM.APIKey,
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithModel(cfg.LLM.Model),
		)
		analyzer := analytics.NewAnalyzer(
			answer.NewLLMGenerator(llm, answer.WithMaxTokens(2048)),
			analytics.WithReportsDir(cfg.Session.ReportsDir),
		)

		report, err := analyzer.Analyze(cmd.Context(), history)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	debriefCmd.Flags().StringVar(&debriefSessionID, "session", "", "session id to analyze (default: most recent)")
	rootCmd.AddCommand(debriefCmd)
}
