package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
	"absencetracker/internal/config"
	"absencetracker/internal/grid"
	"absencetracker/internal/session"
)

// rootCmd builds the command tree. The returned shutdown must be called once
// Execute returns, whatever its outcome; it flushes metrics and releases the
// token store.
func rootCmd(cfg config.App) (*cobra.Command, func() error) {
	var (
		a           *app
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Record and manage absences",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cfg, cmd.ErrOrStderr())
			return err
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "Authority base URL")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write request metrics to this file on exit")

	current := func() *app { return a }
	cmd.AddCommand(
		loginCmd(current),
		registerCmd(current),
		logoutCmd(current),
		whoamiCmd(current),
		listCmd(current),
		addCmd(current),
		editCmd(current),
		deleteCmd(current),
		&cobra.Command{
			Use:               "version",
			Short:             "Print version information",
			PersistentPreRun: func(cmd *cobra.Command, args []string) {},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	shutdown := func() error {
		if a == nil {
			return nil
		}
		return errors.Join(a.writeMetrics(metricsFile), a.Close())
	}
	return cmd, shutdown
}

func loginCmd(a func() *app) *cobra.Command {
	var creds auth.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptPassword(cmd, &creds.Password); err != nil {
				return err
			}
			user, err := a().session.Login(cmd.Context(), creds)
			if err != nil {
				return rejected(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "Password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func registerCmd(a func() *app) *cobra.Command {
	var profile auth.Profile
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptPassword(cmd, &profile.Password); err != nil {
				return err
			}
			user, err := a().session.Register(cmd.Context(), profile)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered and logged in as %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&profile.Password, "password", "p", "", "Password (read from stdin when omitted)")
	cmd.Flags().StringVar(&profile.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&profile.Email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func logoutCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a().session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func whoamiCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a().session
			if err := s.Restore(cmd.Context()); err != nil && !errors.Is(err, auth.ErrMalformedCredential) {
				return err
			}
			user, ok := s.Current()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			claims, _ := auth.Decode(s.Token())
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) %s, session expires %s\n",
				user.Username, user.ID, user.Name, claims.Expiry().Local().Format(attendance.InstantLayout))
			return nil
		},
	}
}

func listCmd(a func() *app) *cobra.Command {
	var format, day, typ string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your absences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, err := rowFilter(cmd, day, typ)
			if err != nil {
				return err
			}
			if format != "table" && format != "csv" {
				return fmt.Errorf("unknown format %q (want table or csv)", format)
			}
			if _, err := a().signedIn(cmd.Context()); err != nil {
				return err
			}
			var rows []grid.Row
			for _, r := range a().grid.Rows() {
				if keep(r) {
					rows = append(rows, r)
				}
			}
			if format == "csv" {
				return exportCSV(cmd.OutOrStdout(), rows)
			}
			return renderRows(cmd, rows)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "table", "Output format: table or csv")
	cmd.Flags().StringVar(&day, "day", "", "Only rows on this day of week")
	cmd.Flags().StringVar(&typ, "type", "", "Only rows of this leave type")
	return cmd
}

// rowFilter matches rows against the --day and --type flags; unset flags match
// everything.
func rowFilter(cmd *cobra.Command, day, typ string) (func(grid.Row) bool, error) {
	var (
		wantDay  attendance.Day
		wantType attendance.LeaveType
		err      error
	)
	if cmd.Flags().Changed("day") {
		if wantDay, err = attendance.ParseDay(day); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("type") {
		if wantType, err = attendance.ParseLeaveType(typ); err != nil {
			return nil, err
		}
	}
	return func(r grid.Row) bool {
		return (wantDay == "" || r.Day == wantDay) && (wantType == "" || r.Type == wantType)
	}, nil
}

// fieldFlags binds the editable columns of a row to command flags.
type fieldFlags struct {
	day, typ, date, from, to string
}

func (f *fieldFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.day, "day", "", "Day of week (Sunday..Thursday)")
	cmd.Flags().StringVar(&f.typ, "type", "", `Leave type (Permission, Medical, "Emergency leave")`)
	cmd.Flags().StringVar(&f.date, "date", "", `Date, e.g. "March 04 2024" or 2024-03-04`)
	cmd.Flags().StringVar(&f.from, "from", "", `Start, e.g. "March 04 2024 09:00"`)
	cmd.Flags().StringVar(&f.to, "to", "", `End, e.g. "March 04 2024 17:00"`)
}

func (f *fieldFlags) edit(cmd *cobra.Command) (grid.Edit, error) {
	var ed grid.Edit
	flags := cmd.Flags()
	if flags.Changed("day") {
		d, err := attendance.ParseDay(f.day)
		if err != nil {
			return ed, err
		}
		ed.Day = &d
	}
	if flags.Changed("type") {
		t, err := attendance.ParseLeaveType(f.typ)
		if err != nil {
			return ed, err
		}
		ed.Type = &t
	}
	for _, tf := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"date", f.date, &ed.Date},
		{"from", f.from, &ed.From},
		{"to", f.to, &ed.To},
	} {
		if !flags.Changed(tf.name) {
			continue
		}
		t, err := attendance.ParseTime(tf.raw)
		if err != nil {
			return ed, fmt.Errorf("--%s: %w", tf.name, err)
		}
		*tf.dst = &t
	}
	return ed, nil
}

func addCmd(a func() *app) *cobra.Command {
	var fields fieldFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new absence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ed, err := fields.edit(cmd)
			if err != nil {
				return err
			}
			user, err := a().signedIn(cmd.Context())
			if err != nil {
				return err
			}
			g := a().grid
			id := g.Add(user)
			if err := g.Change(id, ed); err != nil {
				return err
			}
			if err := g.Save(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", id)
			return nil
		},
	}
	fields.bind(cmd)
	return cmd
}

func editCmd(a func() *app) *cobra.Command {
	var fields fieldFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an existing absence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ed, err := fields.edit(cmd)
			if err != nil {
				return err
			}
			if _, err := a().signedIn(cmd.Context()); err != nil {
				return err
			}
			g := a().grid
			if err := g.Edit(args[0]); err != nil {
				return err
			}
			if err := g.Change(args[0], ed); err != nil {
				return err
			}
			if err := g.Save(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		},
	}
	fields.bind(cmd)
	return cmd
}

func deleteCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an absence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a().signedIn(cmd.Context()); err != nil {
				return err
			}
			if err := a().grid.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func renderRows(cmd *cobra.Command, rows []grid.Row) error {
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "no absences recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDAY\tDATE\tTYPE\tFROM\tTO")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Day, stamp(r.Date, attendance.DateLayout), r.Type,
			stamp(r.From, attendance.InstantLayout), stamp(r.To, attendance.InstantLayout))
	}
	return tw.Flush()
}

var csvHeader = []string{"id", "name", "day", "date", "type", "from", "to"}

// exportCSV writes rows with RFC 3339 timestamps so the file reloads without
// knowing the display layouts. Unset times are empty cells.
func exportCSV(out io.Writer, rows []grid.Row) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.ID, r.Name, string(r.Day), iso(r.Date, time.DateOnly), string(r.Type),
			iso(r.From, time.RFC3339), iso(r.To, time.RFC3339)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func iso(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(layout)
}

func stamp(t time.Time, layout string) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(layout)
}

func promptPassword(cmd *cobra.Command, dst *string) error {
	if *dst != "" {
		return nil
	}
	if in, ok := cmd.InOrStdin().(*os.File); ok && in == os.Stdin {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	*dst = strings.TrimRight(line, "\r\n")
	return nil
}

func rejected(err error) error {
	if errors.Is(err, session.ErrAuthenticationRejected) {
		return fmt.Errorf("username or password is incorrect: %w", err)
	}
	return err
}
