package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/config"
	"github.com/IvanBrykalov/tagcache/durable"
)

const maxValueWidth = 40

func newInspectCmd() *cobra.Command {
	var (
		key        string
		asJSON     bool
		showValues bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the snapshot stored in the configured persistence backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if key != "" {
				cfg.Persistence.Key = key
			}
			snap, err := readSnapshot(cmd, cfg.Persistence)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSnapshot(cmd.OutOrStdout(), snap, time.Now(), showValues)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "snapshot key (overrides persistence.key)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decoded snapshot as JSON")
	cmd.Flags().BoolVar(&showValues, "values", false, "include a truncated VALUE column")
	return cmd
}

func readSnapshot(cmd *cobra.Command, p config.PersistenceConfig) (*cache.Snapshot, error) {
	if p.Backend == config.BackendMemory {
		return nil, fmt.Errorf("backend %q keeps no snapshot outside the serving process", p.Backend)
	}
	d, err := config.OpenDurable(cmd.Context(), p)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.New("persistence is disabled; set persistence.backend")
	}
	defer func() { _ = d.Close() }()

	data, err := d.Get(cmd.Context(), p.Key)
	if errors.Is(err, durable.ErrNotFound) {
		return nil, fmt.Errorf("no snapshot at key %q", p.Key)
	}
	if err != nil {
		return nil, err
	}
	return cache.DecodeSnapshot(data)
}

func printSnapshot(w io.Writer, snap *cache.Snapshot, now time.Time, showValues bool) error {
	taken := time.UnixMilli(snap.Timestamp)
	fmt.Fprintf(w, "taken:   %s (%s ago)\n", taken.UTC().Format(time.RFC3339), now.Sub(taken).Truncate(time.Second))
	fmt.Fprintf(w, "entries: %d\n", len(snap.Entries))
	fmt.Fprintf(w, "hits:    %d\n", snap.Stats.Hits)
	fmt.Fprintf(w, "misses:  %d\n\n", snap.Stats.Misses)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "KEY\tCREATED\tTTL\tACCESSES\tLAST ACCESS\tTAGS\tEXPIRED"
	if showValues {
		header += "\tVALUE"
	}
	fmt.Fprintln(tw, header)
	for _, e := range snap.Entries {
		ttl := "never"
		expired := false
		if e.TTL > 0 {
			d := time.Duration(e.TTL) * time.Millisecond
			ttl = d.String()
			expired = now.Sub(time.UnixMilli(e.CreatedAt)) > d
		}
		tags := strings.Join(e.Tags, ",")
		if tags == "" {
			tags = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%t",
			e.Key,
			time.UnixMilli(e.CreatedAt).UTC().Format(time.RFC3339),
			ttl,
			e.AccessCount,
			time.UnixMilli(e.LastAccessedAt).UTC().Format(time.RFC3339),
			tags,
			expired,
		)
		if showValues {
			fmt.Fprintf(tw, "\t%s", truncate(string(e.Value), maxValueWidth))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
