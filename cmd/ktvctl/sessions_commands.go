package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ktv-subtitle-service/internal/archive"
)

type activeSession struct {
	ID        string    `json:"id"`
	Engine    string    `json:"engine"`
	Source    string    `json:"source"`
	RealTime  bool      `json:"sync_mode"`
	StartedAt time.Time `json:"started_at"`
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List, export and stop subtitle sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsActiveCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsStopCommand(ctx))
	sessionsCmd.AddCommand(newSessionsExportCommand(ctx))
	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			var list []archive.Session
			path := "/v1/sessions?limit=" + strconv.Itoa(limit)
			if err := ctx.do(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, list)
			}
			printSessions(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions")
	return cmd
}

func printSessions(out io.Writer, list []archive.Session) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			s.ID,
			s.Engine,
			s.State,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatDuration(s),
			strconv.Itoa(s.Subtitles),
			s.Source,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Engine", "State", "Started", "Duration", "Subtitles", "Source"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func formatDuration(s archive.Session) string {
	if s.EndedAt == nil {
		return "-"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}

func newSessionsActiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List running sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []activeSession
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/sessions/active", nil, &list); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No running sessions")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{
					s.ID,
					s.Engine,
					yesNo(s.RealTime),
					time.Since(s.StartedAt).Round(time.Second).String(),
					s.Source,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Engine", "Real-time", "Running", "Source"}, rows, nil))
			return nil
		},
	}
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s archive.Session
			if err := ctx.do(cmd.Context(), http.MethodGet, "/v1/sessions/"+url.PathEscape(args[0]), nil, &s); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, s)
			}
			printSessions(cmd.OutOrStdout(), []archive.Session{s})
			return nil
		},
	}
}

func newSessionsStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Cancel a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.do(cmd.Context(), http.MethodDelete, "/v1/sessions/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s stopped\n", args[0])
			return nil
		},
	}
}

func newSessionsExportCommand(ctx *commandContext) *cobra.Command {
	var format, output, maxChars string
	var speaker bool

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download the subtitles of a session as SRT or WebVTT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("format", format)
			if speaker {
				q.Set("speaker", "true")
			}
			if maxChars != "" {
				q.Set("max_chars", maxChars)
			}
			path := "/v1/sessions/" + url.PathEscape(args[0]) + "/export?" + q.Encode()
			resp, err := ctx.send(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if output == "" || output == "-" {
				_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			n, err := io.Copy(f, resp.Body)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", n, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "srt", "Subtitle format: srt or vtt")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&speaker, "speaker", false, "Prefix cues with the speaker label")
	cmd.Flags().StringVar(&maxChars, "max-chars", "", "Wrap cue lines at this many characters, or \"rules\"")
	return cmd
}
