package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"calgrid/internal/dateutil"
	"calgrid/internal/view"
)

var (
	viewName   string
	viewDate   string
	viewSelect string
	viewJSON   bool
	viewNarrow bool
	viewOffset int
)

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().StringVar(&viewName, "view", "", "view to show (day|days|week|month|year|years); default_view when empty")
	viewCmd.Flags().StringVar(&viewDate, "date", "", "date to show, YYYY-MM-DD; today when empty")
	viewCmd.Flags().StringVar(&viewSelect, "select", "", "date to select, YYYY-MM-DD")
	viewCmd.Flags().IntVar(&viewOffset, "offset", 0, "pages to move forward (or backward when negative)")
	viewCmd.Flags().BoolVar(&viewNarrow, "narrow", false, "allow abbreviated titles")
	viewCmd.Flags().BoolVar(&viewJSON, "json", false, "print cells and event layout as JSON")
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Fetch the feeds once and print the laid out view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		e, fetcher := newEngine(conf)
		defer e.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		refresh(ctx, e, fetcher)

		var date time.Time
		if viewDate != "" {
			date, err = time.ParseInLocation(dateutil.DayKeyLayout, viewDate, conf.Location())
			if err != nil {
				return errors.Wrapf(err, "invalid --date %q", viewDate)
			}
		}
		if viewName != "" {
			if !e.SwitchView(view.ID(viewName), date) {
				return errors.Errorf("view %q is not available", viewName)
			}
		} else if !date.IsZero() {
			e.UpdateViewDate(date, false)
		}
		for ; viewOffset > 0; viewOffset-- {
			e.Next()
		}
		for ; viewOffset < 0; viewOffset++ {
			e.Previous()
		}
		if viewSelect != "" {
			sel, err := time.ParseInLocation(dateutil.DayKeyLayout, viewSelect, conf.Location())
			if err != nil {
				return errors.Wrapf(err, "invalid --select %q", viewSelect)
			}
			if !e.SelectDate(sel) {
				return errors.Errorf("date %s cannot be selected", viewSelect)
			}
		}
		e.SetNarrow(viewNarrow)

		out := snapshot(e)
		if viewJSON {
			return writeJSON(os.Stdout, out)
		}
		return writeText(os.Stdout, out)
	},
}
