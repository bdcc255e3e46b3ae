// Command cacviunctl reads report data from the CACVi-UN backend and prints
// filtered history pages and statistics in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cacviun/internal/backend"
	"cacviun/internal/config"
	"cacviun/internal/models"
	"cacviun/internal/reports"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand.
type options struct {
	backendURL string
	timeout    time.Duration
	jsonOut    bool
	verbose    bool
	pageSize   int
	topN       int

	emailDomain string

	category  string
	zone      string
	ageMin    string
	ageMax    string
	startDate string
	endDate   string
	page      int

	// now is overridable in tests
	now func() time.Time
}

// criteria parses the filter flags the same way the server parses a query
// string.
func (o *options) criteria() (reports.Criteria, error) {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("category", o.category)
	set("zone", o.zone)
	set("age_min", o.ageMin)
	set("age_max", o.ageMax)
	set("start_date", o.startDate)
	set("end_date", o.endDate)
	if o.page > 0 {
		v.Set("page", strconv.Itoa(o.page))
	}
	c := reports.ParseCriteria(v)
	return c, c.Validate()
}

func (o *options) client() *backend.Client {
	return backend.NewClient(o.backendURL, backend.WithTimeout(o.timeout))
}

func newRootCmd(out io.Writer) *cobra.Command {
	cfg := config.FromEnv()
	o := &options{now: time.Now, emailDomain: cfg.EmailDomain}

	root := &cobra.Command{
		Use:   "cacviunctl",
		Short: "Inspect CACVi-UN incident reports from the terminal",
		Long: `cacviunctl talks to the CACVi-UN backend directly and prints the same
filtered history pages and statistics the web front end shows.

Filters (--category, --zone, --age-min, --age-max, --start-date,
--end-date) apply to every subcommand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if o.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339})
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&o.backendURL, "backend", cfg.BackendURL, "backend base URL")
	pf.DurationVar(&o.timeout, "timeout", cfg.BackendTimeout, "per-request timeout")
	pf.BoolVar(&o.jsonOut, "json", false, "print JSON instead of a table")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "log backend calls")
	pf.IntVar(&o.pageSize, "page-size", cfg.PageSize, "reports per page")
	pf.IntVar(&o.topN, "top", cfg.TopN, "histogram entries to keep")
	pf.StringVar(&o.category, "category", "", "only this violence type")
	pf.StringVar(&o.zone, "zone", "", "only this zone")
	pf.StringVar(&o.ageMin, "age-min", "", "minimum age, inclusive")
	pf.StringVar(&o.ageMax, "age-max", "", "maximum age, inclusive")
	pf.StringVar(&o.startDate, "start-date", "", "first day, YYYY-MM-DD")
	pf.StringVar(&o.endDate, "end-date", "", "last day, YYYY-MM-DD")

	root.AddCommand(newHistoryCmd(o), newAdminHistoryCmd(o), newStatsCmd(o))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage prefers the wording the web front end would show.
func userMessage(err error) string {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message()
	case backend.IsBusiness(err), backend.IsNetwork(err):
		return backend.UserMessage(err)
	default:
		return err.Error()
	}
}
