package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"ktv-subtitle-service/internal/dictionary"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Show or change the subtitle display rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules dictionary.SubtitleRules
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/admin/subtitle-rules", nil, &rules); err != nil {
				return err
			}
			return printRules(cmd, ctx, rules)
		},
	}
	rulesCmd.AddCommand(newRulesSetCommand(ctx))
	rulesCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default subtitle rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules dictionary.SubtitleRules
			if err := ctx.do(cmd.Context(), http.MethodPost, "/v1/admin/subtitle-rules/reset", nil, &rules); err != nil {
				return err
			}
			return printRules(cmd, ctx, rules)
		},
	})
	return rulesCmd
}

func newRulesSetCommand(ctx *commandContext) *cobra.Command {
	var maxLines, maxChars, fadeMs, delayMs, minDisplayMs int
	var sentenceBreak, postprocessing bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change individual subtitle rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules dictionary.SubtitleRules
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/admin/subtitle-rules", nil, &rules); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("max-lines") {
				rules.MaxLines = maxLines
			}
			if flags.Changed("max-chars") {
				rules.MaxCharsPerLine = maxChars
			}
			if flags.Changed("fade-ms") {
				rules.FadeTimeoutMs = fadeMs
			}
			if flags.Changed("delay-ms") {
				rules.DisplayDelayMs = delayMs
			}
			if flags.Changed("min-display-ms") {
				rules.MinDisplayMs = minDisplayMs
			}
			if flags.Changed("sentence-break") {
				rules.BreakOnSentenceEnd = sentenceBreak
			}
			if flags.Changed("postprocessing") {
				rules.PostprocessingEnabled = postprocessing
			}
			var saved dictionary.SubtitleRules
			if err := ctx.do(cmd.Context(), http.MethodPost, "/v1/admin/subtitle-rules", rules, &saved); err != nil {
				return err
			}
			return printRules(cmd, ctx, saved)
		},
	}

	cmd.Flags().IntVar(&maxLines, "max-lines", 2, "Lines per subtitle")
	cmd.Flags().IntVar(&maxChars, "max-chars", 18, "Characters per line")
	cmd.Flags().IntVar(&fadeMs, "fade-ms", 3000, "Fade timeout in milliseconds")
	cmd.Flags().IntVar(&delayMs, "delay-ms", 0, "Display delay in milliseconds")
	cmd.Flags().IntVar(&minDisplayMs, "min-display-ms", 1000, "Minimum display time in milliseconds")
	cmd.Flags().BoolVar(&sentenceBreak, "sentence-break", true, "Break lines at sentence ends")
	cmd.Flags().BoolVar(&postprocessing, "postprocessing", true, "Run dictionary correction and speaker breaks")
	return cmd
}

func printRules(cmd *cobra.Command, ctx *commandContext, rules dictionary.SubtitleRules) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, rules)
	}
	rows := [][]string{
		{"max_lines", strconv.Itoa(rules.MaxLines)},
		{"max_chars_per_line", strconv.Itoa(rules.MaxCharsPerLine)},
		{"fade_timeout_ms", strconv.Itoa(rules.FadeTimeoutMs)},
		{"display_delay_ms", strconv.Itoa(rules.DisplayDelayMs)},
		{"min_display_ms", strconv.Itoa(rules.MinDisplayMs)},
		{"break_on_sentence_end", yesNo(rules.BreakOnSentenceEnd)},
		{"postprocessing_enabled", yesNo(rules.PostprocessingEnabled)},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Rule", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	return nil
}
