package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the indexed catalogue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.Answer(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if askJSON {
			data, err := json.MarshalIndent(map[string]any{
				"answer":     res.Answer,
				"confidence": res.Confidence,
				"latency_ms": res.Latency.Milliseconds(),
				"alerted":    res.Alerted,
				"failed":     res.Failed,
			}, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}
		cmd.Println(res.Answer)
		cmd.Printf("\nconfidence %.2f, %s\n", res.Confidence, res.Latency.Round(time.Millisecond))
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(askCmd)
}
