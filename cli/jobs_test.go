package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polymer-relay/relayer/jobstore"
)

func TestFormatJobsTableIncludesHeaderAndEveryJob(t *testing.T) {
	txHash := "0xdeadbeef"

	jobs := []*jobstore.Job{
		{ID: 1, UniqueID: "u1", SourceChain: "chainA", DestChain: "chainB", Status: jobstore.StatusCompleted, RetryCount: 0, DestTxHash: &txHash},
		{ID: 2, UniqueID: "u2", SourceChain: "chainA", DestChain: "chainC", Status: jobstore.StatusFailed, RetryCount: 3},
	}

	table := formatJobsTable(jobs)
	lines := strings.Split(table, "\n")

	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "ID")
	require.Contains(t, lines[0], "STATUS")
	require.Contains(t, lines[1], "u1")
	require.Contains(t, lines[1], "0xdeadbeef")
	require.Contains(t, lines[2], "u2")
	require.Contains(t, lines[2], "3")
}

func TestFormatJobsTableHandlesNoJobs(t *testing.T) {
	table := formatJobsTable(nil)
	lines := strings.Split(table, "\n")

	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ID")
}

func TestGetJobsListCommandRejectsUnknownFlags(t *testing.T) {
	cmd := getJobsListCommand()

	cmd.SetArgs([]string{"--bogus-flag"})
	err := cmd.Execute()

	require.Error(t, err)
}

func TestGetJobsShowCommandRequiresExactlyOneArg(t *testing.T) {
	cmd := getJobsShowCommand()

	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
}

func TestGetJobsShowCommandRejectsNonNumericID(t *testing.T) {
	cmd := getJobsShowCommand()

	cmd.SetArgs([]string{"not-a-number"})
	err := cmd.Execute()

	require.Error(t, err)
}
