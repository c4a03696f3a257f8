package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/autostrm/internal/events"
	"github.com/vmunix/autostrm/internal/jobs"
)

var eventsCmd = &cobra.Command{
	Use:   "events [job-id]",
	Short: "Show job history",
	Long:  "Shows the recorded history of one job, or of every job within --since when no id is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEvents,
}

var eventsSince time.Duration

func init() {
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 24*time.Hour, "How far back to look when no job is given")
	rootCmd.AddCommand(eventsCmd)
}

type eventRow struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Job        string          `json:"job"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closeApp, err := openLocal(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	var raws []events.RawEvent
	if len(args) == 1 {
		id := strings.ToLower(args[0])
		if list, lerr := a.manager.ListJobs(ctx, jobs.Filter{}); lerr == nil {
			if full, merr := matchID(list, id); merr == nil {
				id = full
			} else if !errors.Is(merr, jobs.ErrNotFound) {
				return merr
			}
		}
		raws, err = a.history.ForEntity(ctx, events.EntityJob, id)
	} else {
		raws, err = a.history.Since(ctx, time.Now().Add(-eventsSince))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		rows := make([]eventRow, 0, len(raws))
		for _, r := range raws {
			rows = append(rows, eventRow{
				ID:         r.ID,
				Type:       r.EventType,
				Job:        r.EntityID,
				OccurredAt: r.OccurredAt,
				Payload:    json.RawMessage(r.Payload),
			})
		}
		return printJSON(out, rows)
	}
	if len(raws) == 0 {
		_, _ = fmt.Fprintln(out, "No events.")
		return nil
	}
	printEvents(out, raws, events.DefaultRegistry())
	return nil
}

func printEvents(w io.Writer, raws []events.RawEvent, reg *events.Registry) {
	rows := make([][]string, 0, len(raws))
	for _, r := range reg.DecodeAll(raws) {
		detail := ""
		if r.Err == nil {
			detail = describeEvent(r.Event)
		}
		rows = append(rows, []string{
			r.OccurredAt.Local().Format("2006-01-02 15:04:05"),
			shortID(r.EntityID),
			r.EventType,
			detail,
		})
	}
	writeTable(w, []string{"TIME", "JOB", "EVENT", "DETAIL"}, rows, nil)
}

func describeEvent(e events.Event) string {
	switch ev := e.(type) {
	case *events.JobCreated:
		return fmt.Sprintf("%s [%s] via %s", ev.Name, ev.Category, ev.Input)
	case *events.JobStateChanged:
		return fmt.Sprintf("%s -> %s (%s)", ev.From, ev.To, formatProgress(ev.Progress))
	case *events.JobMaterialized:
		if len(ev.Paths) == 1 {
			return ev.Paths[0]
		}
		return fmt.Sprintf("%d files under %s", len(ev.Paths), ev.Root)
	case *events.JobFailed:
		return ev.Reason
	case *events.JobDeleted:
		parts := []string{}
		if ev.Cancelled {
			parts = append(parts, "cancelled upstream")
		}
		if ev.PurgeFiles {
			parts = append(parts, "purge requested")
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
