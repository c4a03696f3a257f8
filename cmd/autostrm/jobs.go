package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/autostrm/internal/config"
	"github.com/vmunix/autostrm/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "Manage jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <magnet|file.torrent>",
	Short: "Submit a magnet URI or torrent file",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAdd,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Mark jobs deleted and cancel them upstream",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJobsDelete,
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <id>...",
	Short: "Stop polling jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsApply(cmd, args, "paused", func(m *jobs.Manager) func(context.Context, string) error { return m.PauseJob })
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <id>...",
	Short: "Resume polling paused jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsApply(cmd, args, "resumed", func(m *jobs.Manager) func(context.Context, string) error { return m.ResumeJob })
	},
}

var (
	listStates   []string
	listCategory string
	listQuery    string
	addName      string
	addCategory  string
	deletePurge  bool
)

func init() {
	jobsListCmd.Flags().StringSliceVar(&listStates, "state", nil, "Only jobs in these states")
	jobsListCmd.Flags().StringVar(&listCategory, "category", "", "Only jobs in this category")
	jobsListCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Fuzzy match on name")

	jobsAddCmd.Flags().StringVar(&addName, "name", "", "Display name (default: from the magnet or file)")
	jobsAddCmd.Flags().StringVar(&addCategory, "category", "", "Category (default: guessed from the name)")

	jobsDeleteCmd.Flags().BoolVar(&deletePurge, "purge", false, "Also ask for produced files to be removed")

	jobsCmd.AddCommand(jobsListCmd, jobsAddCmd, jobsDeleteCmd, jobsPauseCmd, jobsResumeCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	f := jobs.Filter{Category: listCategory, Query: listQuery}
	for _, s := range listStates {
		st, err := jobs.ParseState(s)
		if err != nil {
			return err
		}
		f.States = append(f.States, st)
	}

	a, closeApp, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	list, err := a.manager.ListJobs(cmd.Context(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if list == nil {
			list = []*jobs.Job{}
		}
		return printJSON(out, list)
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs.")
		return nil
	}
	printJobs(out, list, time.Now())
	return nil
}

func printJobs(w io.Writer, list []*jobs.Job, now time.Time) {
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		rows = append(rows, []string{
			shortID(j.ID),
			truncate(j.Name, 50),
			j.Category,
			string(j.State),
			formatProgress(j.Progress),
			formatSize(j.Size),
			formatTimeAgo(j.CreatedAt, now),
		})
	}
	writeTable(w,
		[]string{"ID", "NAME", "CATEGORY", "STATE", "PROGRESS", "SIZE", "ADDED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	a, closeApp, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	req, err := createRequest(a.cfg, args[0], addName, addCategory)
	if err != nil {
		return err
	}

	job, err := a.manager.CreateJob(cmd.Context(), req)
	if err != nil && job == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if perr := printJSON(out, job); perr != nil {
			return perr
		}
		return err
	}
	if err != nil {
		_, _ = fmt.Fprintf(out, "Recorded %s in error state: %s\n", shortID(job.ID), job.Error)
		return err
	}
	_, _ = fmt.Fprintf(out, "Added %s (%s) as %s\n", job.Name, job.Category, job.ID)
	return nil
}

// createRequest builds a submission from a magnet URI or a path to a
// .torrent file.
func createRequest(cfg *config.Config, input, name, category string) (jobs.CreateRequest, error) {
	input = strings.TrimSpace(input)
	var req jobs.CreateRequest
	if strings.HasPrefix(strings.ToLower(input), "magnet:") {
		req = jobs.CreateRequest{Kind: jobs.InputMagnet, Magnet: input, Name: jobs.MagnetDisplayName(input)}
	} else {
		data, err := os.ReadFile(input)
		if err != nil {
			return jobs.CreateRequest{}, fmt.Errorf("read torrent: %w", err)
		}
		req = jobs.CreateRequest{Kind: jobs.InputTorrent, Torrent: data, Name: filepath.Base(input)}
	}
	if name != "" {
		req.Name = name
	}
	req.Category = jobs.GuessCategory(category, req.Name, cfg.Library.TVCategory, cfg.Library.MoviesCategory)
	return req, nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	a, closeApp, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	ids, err := resolveIDs(cmd.Context(), a.manager, args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := a.manager.DeleteJob(cmd.Context(), id, deletePurge); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", shortID(id))
	}
	return nil
}

func runJobsApply(cmd *cobra.Command, args []string, verb string, op func(*jobs.Manager) func(context.Context, string) error) error {
	a, closeApp, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()

	ids, err := resolveIDs(cmd.Context(), a.manager, args)
	if err != nil {
		return err
	}
	fn := op(a.manager)
	var failed error
	for _, id := range ids {
		if err := fn(cmd.Context(), id); err != nil {
			failed = errors.Join(failed, err)
			continue
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", strings.ToUpper(verb[:1])+verb[1:], shortID(id))
	}
	return failed
}

func resolveIDs(ctx context.Context, m *jobs.Manager, args []string) ([]string, error) {
	list, err := m.ListJobs(ctx, jobs.Filter{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		id, err := matchID(list, arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// matchID resolves a full id or a unique prefix of one.
func matchID(list []*jobs.Job, arg string) (string, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return "", fmt.Errorf("empty job id: %w", jobs.ErrNotFound)
	}
	var found []string
	for _, j := range list {
		if j.ID == arg {
			return j.ID, nil
		}
		if strings.HasPrefix(j.ID, arg) {
			found = append(found, j.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s: %w", arg, jobs.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%s: ambiguous, matches %d jobs", arg, len(found))
	}
}
