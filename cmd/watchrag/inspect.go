package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"watchrag/internal/audit"
)

var (
	logsAction    string
	logsQuery     string
	documentsName string
	queriesText   string
	queriesLimit  int
	metricsLimit  int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard figures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStore()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.store.Stats(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Documents\t%d\n", st.Documents)
		fmt.Fprintf(w, "  pending\t%d\n", st.Pending)
		fmt.Fprintf(w, "  processing\t%d\n", st.Processing)
		fmt.Fprintf(w, "  processed\t%d\n", st.Processed)
		fmt.Fprintf(w, "  loaded\t%d\n", st.Loaded)
		fmt.Fprintf(w, "  error\t%d\n", st.Errored)
		fmt.Fprintf(w, "Chunks\t%d\n", st.Chunks)
		fmt.Fprintf(w, "Queries\t%d (%d today)\n", st.Queries, st.QueriesToday)
		fmt.Fprintf(w, "Latency ms\tavg %.0f, min %.0f, max %.0f\n", st.AvgLatencyMS, st.MinLatencyMS, st.MaxLatencyMS)
		fmt.Fprintf(w, "Avg confidence\t%.2f\n", st.AvgConfidence)
		fmt.Fprintf(w, "RAG errors\t%d\n", st.RAGErrors)
		fmt.Fprintf(w, "Alerts\t%d\n", st.AlertsRaised)
		return w.Flush()
	},
}

var chunksCmd = &cobra.Command{
	Use:   "chunks [document-id]",
	Short: "List the stored chunks of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document id %q", args[0])
		}
		a, err := openStore()
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.store.GetDocument(cmd.Context(), id)
		if err != nil {
			return err
		}
		chunks, err := a.store.ListChunks(cmd.Context(), id)
		if err != nil {
			return err
		}
		cmd.Printf("%s (%s), %d chunks\n\n", doc.FileName, doc.Status, len(chunks))
		for _, c := range chunks {
			cmd.Printf("[%d] %s\n", c.ID, c.Content)
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List audit log lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStore()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.store.ListLogs(cmd.Context(), audit.LogFilter{Action: logsAction, Query: logsQuery})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tDOCUMENT\tDETAILS")
		for _, e := range entries {
			doc := "-"
			if e.DocumentID != nil {
				doc = strconv.FormatInt(*e.DocumentID, 10)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Action, doc, e.Details)
		}
		return w.Flush()
	},
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List registered documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStore()
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.store.ListDocuments(cmd.Context(), documentsName)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tSTATUS\tUPLOADED")
		for _, d := range docs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, d.FileName, d.Status, d.UploadedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List answered questions with latency and confidence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStore()
		if err != nil {
			return err
		}
		defer a.Close()

		answers, err := a.store.ListAnswers(cmd.Context(), audit.AnswerFilter{Query: queriesText, Limit: queriesLimit})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLATENCY\tCONFIDENCE\tQUESTION\tANSWER")
		for _, r := range answers {
			fmt.Fprintf(w, "%s\t%.0fms\t%.2f\t%s\t%s\n", r.CreatedAt.Local().Format(time.DateTime),
				r.LatencyMS, r.Confidence, oneLine(r.Question), oneLine(r.Answer))
		}
		return w.Flush()
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the latest answer metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openStore()
		if err != nil {
			return err
		}
		defer a.Close()

		metrics, err := a.store.ListMetrics(cmd.Context(), metricsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tQUERY\tLATENCY\tCONFIDENCE")
		for _, m := range metrics {
			fmt.Fprintf(w, "%s\t%d\t%.0fms\t%.2f\n", m.CreatedAt.Local().Format(time.DateTime), m.QueryID, m.LatencyMS, m.Confidence)
		}
		return w.Flush()
	},
}

// oneLine keeps multi-line answers from breaking the table.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func init() {
	logsCmd.Flags().StringVar(&logsAction, "action", "", "only show this action tag, e.g. ERROR_RAG")
	logsCmd.Flags().StringVarP(&logsQuery, "query", "q", "", "search action, details and file name")
	documentsCmd.Flags().StringVarP(&documentsName, "query", "q", "", "filter by file name")
	queriesCmd.Flags().StringVarP(&queriesText, "query", "q", "", "search question and answer text")
	queriesCmd.Flags().IntVar(&queriesLimit, "limit", audit.DefaultListLimit, "maximum rows")
	metricsCmd.Flags().IntVar(&metricsLimit, "limit", audit.DefaultListLimit, "maximum rows")
	rootCmd.AddCommand(statsCmd, chunksCmd, logsCmd, documentsCmd, queriesCmd, metricsCmd)
}
