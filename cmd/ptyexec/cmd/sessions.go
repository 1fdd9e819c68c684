package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ptyexec/internal/client"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions of a running server",
	Long: `Lists live sessions of a ptyexec server, oldest first.

Examples:
  ptyexec sessions
  ptyexec sessions show sess_01J...
  ptyexec sessions close sess_01J...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sessions, err := apiClient(cmd).Sessions(cmd.Context())
		if err != nil {
			return err
		}
		return renderSessions(cmd.OutOrStdout(), sessions, time.Now())
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session and its recent commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := apiClient(cmd).Session(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderSessionDetail(cmd.OutOrStdout(), detail)
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Terminate a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).CloseSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsCloseCmd)
	sessionsCmd.PersistentFlags().String("addr", "http://localhost:8000", "server address")
}

func apiClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("addr")
	return client.New(addr, client.WithTimeout(10*time.Second))
}

func renderSessions(w io.Writer, sessions []session.Info, now time.Time) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATE\tMODE\tQUEUED\tACTIVE\tIDLE\tPROJECT")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID,
			s.State,
			s.Mode,
			s.Queued,
			orDash(s.ActiveCommand),
			now.Sub(s.LastActivity).Truncate(time.Second),
			orDash(s.ProjectPath),
		)
	}
	return tw.Flush()
}

func renderSessionDetail(w io.Writer, detail client.SessionDetail) error {
	s := detail.Session
	_, _ = fmt.Fprintf(w, "Session %s\n  state:   %s\n  mode:    %s\n  pid:     %d\n  size:    %dx%d\n  project: %s\n",
		s.ID, s.State, s.Mode, s.Pid, s.Cols, s.Rows, orDash(s.ProjectPath))
	if len(detail.History) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "COMMAND\tSTATUS\tDURATION\tTEXT")
	for _, c := range detail.History {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			c.ID,
			c.Status,
			c.Duration().Truncate(time.Millisecond),
			c.Text,
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
