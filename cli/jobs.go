package cli

import (
	"fmt"
	"strconv"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/polymer-relay/relayer/jobstore"
)

// GetJobsCommand builds the `jobs` diagnostic subcommand tree
// (`list`, `show <id>`), querying the Job Store directly for an
// operator-facing view without going through the dashboard API.
func GetJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "inspect relay jobs",
	}

	cmd.AddCommand(getJobsListCommand(), getJobsShowCommand())

	return cmd
}

type jobsDBParams struct {
	dbPath string
}

func (p *jobsDBParams) setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.dbPath, "db", "relayer.db", "path to the relay's database file")
}

func getJobsListCommand() *cobra.Command {
	params := &jobsDBParams{}
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "lists jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := jobstore.Open(params.dbPath)
			if err != nil {
				return fmt.Errorf("cli: failed to open job store: %w", err)
			}
			defer store.Close()

			var jobs []*jobstore.Job

			if status != "" {
				jobs, err = store.FindByStatus(jobstore.Status(status))
			} else {
				jobs, err = store.All()
			}

			if err != nil {
				return fmt.Errorf("cli: failed to list jobs: %w", err)
			}

			fmt.Println(formatJobsTable(jobs))

			return nil
		},
	}

	params.setFlags(cmd)
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, proof_requested, proof_ready, executing, completed, failed)")

	return cmd
}

func getJobsShowCommand() *cobra.Command {
	params := &jobsDBParams{}

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "shows one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("cli: invalid job id %q: %w", args[0], err)
			}

			store, err := jobstore.Open(params.dbPath)
			if err != nil {
				return fmt.Errorf("cli: failed to open job store: %w", err)
			}
			defer store.Close()

			job, err := store.FindByID(id)
			if err != nil {
				return fmt.Errorf("cli: failed to look up job %d: %w", id, err)
			}

			if job == nil {
				return fmt.Errorf("cli: no job with id %d", id)
			}

			fmt.Println(formatJobsTable([]*jobstore.Job{job}))

			return nil
		},
	}

	params.setFlags(cmd)

	return cmd
}

func formatJobsTable(jobs []*jobstore.Job) string {
	lines := []string{"ID | UNIQUE ID | SOURCE | DEST | STATUS | RETRIES | DEST TX"}

	for _, job := range jobs {
		destTx := ""
		if job.DestTxHash != nil {
			destTx = *job.DestTxHash
		}

		lines = append(lines, fmt.Sprintf("%d | %s | %s | %s | %s | %d | %s",
			job.ID, job.UniqueID, job.SourceChain, job.DestChain, job.Status, job.RetryCount, destTx))
	}

	return columnize.SimpleFormat(lines)
}
