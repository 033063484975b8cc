package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/booklet/internal/cache"
)

// NamespaceStatus is one row of "cache status".
type NamespaceStatus struct {
	Namespace string     `json:"namespace"`
	Bytes     int        `json:"bytes"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	Age       string     `json:"age,omitempty"`
	MaxAge    string     `json:"max_age"`
	Stale     bool       `json:"stale"`
}

// CacheStatus is the output of "cache status".
type CacheStatus struct {
	Namespaces []NamespaceStatus `json:"namespaces"`
	TotalBytes int               `json:"total_bytes"`
}

// Text renders the status as a table.
func (s CacheStatus) Text() string {
	if len(s.Namespaces) == 0 {
		return "Cache is empty"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tBYTES\tAGE\tMAX AGE\tSTATE")
	for _, ns := range s.Namespaces {
		age := ns.Age
		if age == "" {
			age = "never synced"
		}
		state := "fresh"
		if ns.Stale {
			state = "stale"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", ns.Namespace, ns.Bytes, age, ns.MaxAge, state)
	}
	tw.Flush()
	fmt.Fprintf(&b, "%d namespace(s), %d bytes", len(s.Namespaces), s.TotalBytes)
	return b.String()
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the offline cache",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show cached namespaces, their age and staleness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStatus(rootOpts, dbPath, maxAge, cmd)
		},
	}
	status.Flags().DurationVar(&maxAge, "max-age", 0, "staleness window for every namespace (default from config)")
	cmd.AddCommand(status)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached namespace and sync time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(rootOpts, dbPath, cmd)
		},
	})

	return cmd
}

func runCacheStatus(opts *RootOptions, dbPath string, maxAge time.Duration, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := openDB(opts, f, dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	c := cache.New(s, cache.WithClock(opts.Clock), cache.WithLogger(opts.Logger))

	names, err := c.Namespaces(ctx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, "list namespaces", err)
	}
	syncs, err := c.SyncTimes(ctx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, "read sync times", err)
	}

	now := opts.Clock.Now()
	out := CacheStatus{Namespaces: make([]NamespaceStatus, 0, len(names))}
	for _, ns := range names {
		entry, err := c.Get(ctx, ns)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStorage, "read "+ns, err)
		}
		window := maxAge
		if window <= 0 {
			window = opts.Config.Cache.MaxAgeFor(ns)
		}

		row := NamespaceStatus{Namespace: ns, MaxAge: window.String(), Stale: true}
		if entry != nil {
			row.Bytes = len(entry.Payload)
			out.TotalBytes += row.Bytes
		}
		if last, ok := syncs[ns]; ok {
			last := last
			age := now.Sub(last)
			row.LastSync = &last
			row.Age = age.Truncate(time.Second).String()
			row.Stale = age > window
		}
		out.Namespaces = append(out.Namespaces, row)
	}
	return f.Success(out)
}

func runCacheClear(opts *RootOptions, dbPath string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := openDB(opts, f, dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	c := cache.New(s, cache.WithLogger(opts.Logger))
	if err := c.Clear(cmd.Context()); err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, "clear cache", err)
	}
	return f.Success("Cache cleared")
}
