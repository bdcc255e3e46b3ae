package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"cacviun/internal/reports"

	"github.com/spf13/cobra"
)

func newStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the statistics summary of the dashboard data",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := o.client()
			v, err := loadView(cmd, o, c.DashboardData)
			if err != nil {
				return err
			}
			summary := reports.Summarize(v.Filtered(), o.topN, o.now())
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
}

func printSummary(w io.Writer, s reports.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total reports\t%d\n", s.TotalReports)
	fmt.Fprintf(tw, "Most common category\t%s\n", s.MostCommonCategory)
	fmt.Fprintf(tw, "Most common location\t%s\n", s.MostCommonLocation)
	fmt.Fprintf(tw, "Peak month\t%s\n", s.PeakMonth)
	if err := tw.Flush(); err != nil {
		return err
	}

	sections := []struct {
		title   string
		buckets []reports.Bucket
	}{
		{"Categories", s.Categories},
		{"Zones", s.Zones},
		{"Age groups", s.AgeGroups},
		{"Last 12 months", s.Monthly},
		{"By year", s.Yearly},
	}
	for _, sec := range sections {
		if len(sec.buckets) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", sec.title)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		for _, b := range sec.buckets {
			fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\t\n", b.Label, b.Count, b.Percentage)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
