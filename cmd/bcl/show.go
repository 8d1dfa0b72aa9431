package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/franz/bibcluster/internal/index"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

var showCmd = &cobra.Command{
	Use:   "show <work-uuid>",
	Short: "Show a stored work with its editions and items",
	Long: `Display a work in a human-readable form: titles, agents, editions with
their items and links. Use --json to print the search document the work
projects to instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().Bool("json", false, "Print the projected search document as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	db, err := openStore(false)
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := db.GetWorkByUUID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("work %s: %w", args[0], util.ErrNotFound)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(index.BuildDocument(w))
	}
	printWork(out, w, util.GetTerminalWidth())
	return nil
}

func printWork(out io.Writer, w *model.Work, width int) {
	if width > 100 {
		width = 100
	}
	rule := strings.Repeat("─", width)

	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "%s\n", w.Title)
	if w.SubTitle != "" {
		fmt.Fprintf(out, "  %s\n", w.SubTitle)
	}
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "uuid:       %s\n", w.UUID)
	fmt.Fprintf(out, "sort title: %s\n", w.SortTitle)
	if w.Medium != "" {
		fmt.Fprintf(out, "medium:     %s\n", w.Medium)
	}
	for _, a := range w.Authors {
		fmt.Fprintf(out, "author:     %s\n", agentLine(a))
	}
	for _, a := range w.Contributors {
		fmt.Fprintf(out, "contrib:    %s\n", agentLine(a))
	}
	for _, l := range w.Languages {
		fmt.Fprintf(out, "language:   %s\n", l.Name)
	}
	for _, id := range w.Identifiers {
		fmt.Fprintf(out, "identifier: %s\n", id.Key())
	}
	if len(w.Subjects) > 0 {
		headings := make([]string, len(w.Subjects))
		for i, s := range w.Subjects {
			headings[i] = s.Heading
		}
		fmt.Fprintf(out, "subjects:   %s\n", strings.Join(headings, "; "))
	}
	if !w.DateModified.IsZero() {
		fmt.Fprintf(out, "modified:   %s\n", humanize.Time(w.DateModified))
	}

	fmt.Fprintf(out, "\n%s\n", english.Plural(len(w.Editions), "edition", "editions"))
	for _, e := range w.Editions {
		date := e.PublicationDate
		if date == "" {
			date = "undated"
		}
		fmt.Fprintf(out, "\n  [%s] %s", date, e.Title)
		if e.PublicationPlace != "" {
			fmt.Fprintf(out, " (%s)", e.PublicationPlace)
		}
		fmt.Fprintf(out, "\n    uuid: %s, %s\n", e.UUID, english.Plural(len(e.DCDWUUIDs), "record", "records"))
		for _, p := range e.Publishers {
			fmt.Fprintf(out, "    publisher: %s\n", p.Name)
		}
		for _, l := range e.Links {
			fmt.Fprintf(out, "    link: %s\n", l.URL)
		}
		for _, it := range e.Items {
			fmt.Fprintf(out, "    item %s (%s)\n", it.UUID, it.Source)
			for _, l := range it.Links {
				fmt.Fprintf(out, "      %s %s\n", l.MediaType, l.URL)
			}
		}
	}
}

func agentLine(a model.Agent) string {
	line := a.Name
	if a.VIAF != "" {
		line += " viaf:" + a.VIAF
	}
	if a.LCNAF != "" {
		line += " lcnaf:" + a.LCNAF
	}
	if len(a.Roles) > 0 {
		line += " [" + strings.Join(a.Roles, ", ") + "]"
	}
	return line
}
