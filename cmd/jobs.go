package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var runDate string

var recurringCmd = &cobra.Command{
	Use:   "recurring",
	Short: "Recurring billing",
}

var recurringRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one recurring billing pass",
	Example: `  billing recurring run
  billing recurring run --date 2024-03-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseRunDate(runDate)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.svc.RunRecurringBillingPass(cmd.Context(), asOf)
		if err != nil {
			return err
		}
		log.Info().
			Int("succeeded", len(res.Succeeded)).
			Int("skipped", len(res.Skipped)).
			Bool("interrupted", res.Interrupted).
			Msg("Recurring billing pass finished")
		return printJSON(res)
	},
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Overdue invoice reminders",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Send reminders for every overdue invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseRunDate(runDate)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.svc.SendOverdueReminders(cmd.Context(), asOf)
		if err != nil {
			return err
		}
		log.Info().
			Int("sent", len(res.Sent)).
			Int("failed", len(res.Failed)).
			Msg("Overdue reminders finished")
		return printJSON(res)
	},
}

func init() {
	for _, c := range []*cobra.Command{recurringRunCmd, remindersRunCmd} {
		c.Flags().StringVar(&runDate, "date", "", "as-of date (YYYY-MM-DD), defaults to today")
	}
	recurringCmd.AddCommand(recurringRunCmd)
	remindersCmd.AddCommand(remindersRunCmd)
	rootCmd.AddCommand(recurringCmd, remindersCmd)
}

func parseRunDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
