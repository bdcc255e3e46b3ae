package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"cacviun/internal/models"
	"cacviun/internal/reports"

	"github.com/spf13/cobra"
)

func newHistoryCmd(o *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a page of one user's reports",
		Example: `  cacviunctl history --email ana@unal.edu.co
  cacviunctl history --email ana@unal.edu.co --category Discrimination --page 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = models.NormalizeEmail(email)
			if err := models.ValidateInstitutionalEmail(email, o.emailDomain); err != nil {
				return err
			}
			c := o.client()
			return runHistory(cmd, o, func(ctx context.Context) ([]*models.Report, error) {
				return c.ReportHistory(ctx, email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "institutional email of the reporter")
	cmd.Flags().IntVar(&o.page, "page", 1, "page to print")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAdminHistoryCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin-history",
		Short: "Print a page of every report in the system",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := o.client()
			return runHistory(cmd, o, func(ctx context.Context) ([]*models.Report, error) {
				return c.AdminHistory(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&o.page, "page", 1, "page to print")
	return cmd
}

// loadView fetches the collection and applies the filter flags.
func loadView(cmd *cobra.Command, o *options, load reports.Loader) (*reports.View, error) {
	criteria, err := o.criteria()
	if err != nil {
		return nil, err
	}
	v := reports.NewView(o.pageSize)
	if err := v.Refresh(cmd.Context(), load); err != nil {
		return nil, err
	}
	// The first Apply installs the criteria, the second moves to the page.
	v.Apply(criteria, 0)
	v.Apply(criteria, o.page)
	return v, nil
}

func runHistory(cmd *cobra.Command, o *options, load reports.Loader) error {
	v, err := loadView(cmd, o, load)
	if err != nil {
		return err
	}
	snap := v.Snapshot()
	if o.jsonOut {
		return writeJSON(cmd.OutOrStdout(), snap)
	}
	return printHistory(cmd.OutOrStdout(), snap)
}

func printHistory(w io.Writer, snap reports.Snapshot) error {
	if snap.Filtered == 0 {
		_, err := fmt.Fprintln(w, "No reports match the filters.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAGE\tZONE\tDESCRIPTION")
	for _, r := range snap.Items {
		date := r.Date
		if t, ok := r.When(); ok {
			date = t.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Key(), date, r.Category, r.Age, r.Zone, truncate(r.Description, 48))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nPage %d of %d (%d of %d reports)\n",
		snap.Page, snap.TotalPages, snap.Filtered, snap.Total)
	return err
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
