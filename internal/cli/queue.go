package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/booklet/internal/queue"
)

// QueueListing is the output of "queue list".
type QueueListing struct {
	Count   int            `json:"count"`
	Actions []queue.Action `json:"actions"`
}

// Text renders the listing as a table.
func (l QueueListing) Text() string {
	if l.Count == 0 {
		return "Queue is empty"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tRETRIES\tENQUEUED\tLAST ERROR")
	for _, a := range l.Actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Kind, a.Status, a.RetryCount, a.EnqueuedAt.UTC().Format(time.RFC3339), a.LastError)
	}
	tw.Flush()
	fmt.Fprintf(&b, "%d queued action(s)", l.Count)
	return b.String()
}

// QueueCleared is the output of "queue clear".
type QueueCleared struct {
	Cleared int `json:"cleared"`
}

// Text renders the result.
func (c QueueCleared) Text() string {
	return fmt.Sprintf("Cleared %d queued action(s)", c.Cleared)
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the durable mutation queue",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued mutations in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(rootOpts, dbPath, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every queued mutation",
		Long: `Drop every queued mutation without replaying it.

Changes made offline that have not synced yet are lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueClear(rootOpts, dbPath, cmd)
		},
	})

	return cmd
}

// loadQueue opens the stored queue. Handlers are nil: these commands never
// drain.
func loadQueue(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command, dbPath string) (*queue.Queue, func(), error) {
	s, err := openDB(opts, f, dbPath)
	if err != nil {
		return nil, nil, err
	}
	q := queue.New(s, nil, queue.WithLogger(opts.Logger), queue.WithClock(opts.Clock))
	if err := q.Load(cmd.Context()); err != nil {
		s.Close()
		return nil, nil, f.Fail(ExitFailure, ErrCodeStorage, "load queue", err)
	}
	return q, func() {
		q.Close()
		s.Close()
	}, nil
}

func runQueueList(opts *RootOptions, dbPath string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	q, done, err := loadQueue(opts, f, cmd, dbPath)
	if err != nil {
		return err
	}
	defer done()

	actions := q.Pending()
	if actions == nil {
		actions = []queue.Action{}
	}
	return f.Success(QueueListing{Count: len(actions), Actions: actions})
}

func runQueueClear(opts *RootOptions, dbPath string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	q, done, err := loadQueue(opts, f, cmd, dbPath)
	if err != nil {
		return err
	}
	defer done()

	n := q.Len()
	if err := q.Clear(cmd.Context()); err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, "clear queue", err)
	}
	return f.Success(QueueCleared{Cleared: n})
}
