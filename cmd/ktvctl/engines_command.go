package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newEnginesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the configured recognition backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Default string   `json:"default"`
				Engines []string `json:"engines"`
			}
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/engines", nil, &resp); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			rows := make([][]string, 0, len(resp.Engines))
			for _, e := range resp.Engines {
				def := ""
				if e == resp.Default {
					def = "*"
				}
				rows = append(rows, []string{e, def})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Engine", "Default"}, rows, nil))
			return nil
		},
	}
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <url>",
		Short: "Classify a stream URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				URL            string `json:"url"`
				Type           string `json:"type"`
				Description    string `json:"description"`
				Supported      bool   `json:"supported"`
				Decodable      bool   `json:"decodable"`
				RequiresBuffer bool   `json:"requires_buffer"`
				BufferSeconds  int    `json:"buffer_seconds"`
			}
			path := "/v1/stream/detect?url=" + url.QueryEscape(args[0])
			if err := ctx.do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			rows := [][]string{
				{"type", resp.Type},
				{"description", resp.Description},
				{"decodable", yesNo(resp.Decodable)},
				{"requires buffer", yesNo(resp.RequiresBuffer)},
				{"buffer seconds", strconv.Itoa(resp.BufferSeconds)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
