package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ktv-subtitle-service/internal/dictionary"
)

type tableKind int

const (
	kindPattern tableKind = iota
	kindEntry
	kindSensitive
)

// dictTables maps CLI table names to their admin route slug.
var dictTables = map[string]struct {
	slug string
	kind tableKind
}{
	"profanity":     {"profanity", kindPattern},
	"hallucination": {"hallucination", kindPattern},
	"proper-nouns":  {"proper-nouns", kindEntry},
	"government":    {"government-dict", kindEntry},
	"abbreviations": {"abbreviations", kindEntry},
	"sensitive":     {"sensitive-patterns", kindSensitive},
}

func tableNames() string {
	return "profanity, hallucination, proper-nouns, government, abbreviations, sensitive"
}

func lookupTable(name string) (string, tableKind, error) {
	t, ok := dictTables[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", 0, fmt.Errorf("unknown table %q (expected one of: %s)", name, tableNames())
	}
	return t.slug, t.kind, nil
}

type dictStats struct {
	dictionary.TableCounts
	Static   dictionary.TableCounts `json:"static"`
	LoadedAt time.Time              `json:"loaded_at"`
}

type tableListing struct {
	DictionaryType string          `json:"dictionary_type"`
	Items          json.RawMessage `json:"items"`
	Total          int             `json:"total"`
}

type mutationResult struct {
	Message string `json:"message"`
	Total   int    `json:"total"`
}

func newDictCommand(ctx *commandContext) *cobra.Command {
	dictCmd := &cobra.Command{
		Use:   "dict",
		Short: "Inspect and edit the correction dictionaries",
	}
	dictCmd.AddCommand(newDictStatsCommand(ctx))
	dictCmd.AddCommand(newDictReloadCommand(ctx))
	dictCmd.AddCommand(newDictListCommand(ctx))
	dictCmd.AddCommand(newDictAddCommand(ctx))
	dictCmd.AddCommand(newDictRemoveCommand(ctx))
	return dictCmd
}

func newDictStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show table sizes of the built-in and editable dictionaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats dictStats
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/admin/stats", nil, &stats); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			printStats(cmd, stats)
			return nil
		},
	}
}

func newDictReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rebuild the dictionary snapshot from the backing file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats dictStats
			if err := ctx.do(cmd.Context(), http.MethodPost, "/v1/admin/reload", nil, &stats); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			printStats(cmd, stats)
			return nil
		},
	}
}

func printStats(cmd *cobra.Command, stats dictStats) {
	row := func(name string, dynamic, static int) []string {
		return []string{name, strconv.Itoa(dynamic), strconv.Itoa(static)}
	}
	rows := [][]string{
		row("profanity", stats.Profanity, stats.Static.Profanity),
		row("sensitive", stats.Sensitive, stats.Static.Sensitive),
		row("proper-nouns", stats.ProperNouns, stats.Static.ProperNouns),
		row("government", stats.Government, stats.Static.Government),
		row("abbreviations", stats.Abbreviations, stats.Static.Abbreviations),
		row("hallucination", stats.Hallucination, stats.Static.Hallucination),
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Table", "Editable", "Built-in"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	if !stats.LoadedAt.IsZero() {
		fmt.Fprintf(out, "Loaded at %s\n", stats.LoadedAt.Local().Format(time.RFC3339))
	}
}

func newDictListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table>",
		Short: "List the entries of an editable table",
		Long:  "List the entries of an editable table. Tables: " + tableNames() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, kind, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			var listing tableListing
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/admin/"+slug, nil, &listing); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, listing)
			}
			return printListing(cmd, kind, listing)
		},
	}
}

func printListing(cmd *cobra.Command, kind tableKind, listing tableListing) error {
	out := cmd.OutOrStdout()
	if listing.Total == 0 {
		fmt.Fprintf(out, "%s is empty\n", listing.DictionaryType)
		return nil
	}
	var headers []string
	var rows [][]string
	switch kind {
	case kindPattern:
		var items []string
		if err := json.Unmarshal(listing.Items, &items); err != nil {
			return fmt.Errorf("decode items: %w", err)
		}
		headers = []string{"#", "Pattern"}
		for i, p := range items {
			rows = append(rows, []string{strconv.Itoa(i + 1), p})
		}
	case kindEntry:
		var items []dictionary.Entry
		if err := json.Unmarshal(listing.Items, &items); err != nil {
			return fmt.Errorf("decode items: %w", err)
		}
		headers = []string{"#", "Key", "Value"}
		for i, e := range items {
			rows = append(rows, []string{strconv.Itoa(i + 1), e.Key, e.Value})
		}
	case kindSensitive:
		var items []dictionary.SensitiveRule
		if err := json.Unmarshal(listing.Items, &items); err != nil {
			return fmt.Errorf("decode items: %w", err)
		}
		headers = []string{"#", "Pattern", "Label"}
		for i, r := range items {
			rows = append(rows, []string{strconv.Itoa(i + 1), r.Pattern, r.Label})
		}
	}
	fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignRight}))
	fmt.Fprintf(out, "%d entries\n", listing.Total)
	return nil
}

func newDictAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <table> <pattern|key> [value]",
		Short: "Add a pattern or a correction pair",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, kind, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			var body any
			switch kind {
			case kindPattern:
				if len(args) != 2 {
					return fmt.Errorf("%s takes a single pattern", args[0])
				}
				body = map[string]string{"pattern": args[1]}
			case kindEntry:
				if len(args) != 3 {
					return fmt.Errorf("%s takes a key and a value", args[0])
				}
				body = dictionary.Entry{Key: args[1], Value: args[2]}
			default:
				return fmt.Errorf("%s is read-only", args[0])
			}
			var res mutationResult
			if err := ctx.do(cmd.Context(), http.MethodPost, "/v1/admin/"+slug, body, &res); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q to %s (%d entries)\n", args[1], args[0], res.Total)
			return nil
		},
	}
}

func newDictRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <table> <pattern|key>",
		Aliases: []string{"rm"},
		Short:   "Remove a pattern or a correction pair",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, kind, err := lookupTable(args[0])
			if err != nil {
				return err
			}
			if kind == kindSensitive {
				return fmt.Errorf("%s is read-only", args[0])
			}
			var res mutationResult
			path := "/v1/admin/" + slug + "/" + url.PathEscape(args[1])
			if err := ctx.do(cmd.Context(), http.MethodDelete, path, nil, &res); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q from %s (%d entries)\n", args[1], args[0], res.Total)
			return nil
		},
	}
}
