package loader

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"snowload/internal/dimension"
)

// Report summarizes one run.
type Report struct {
	RunID string

	// Rows counts source rows read, keyed by stage name.
	Rows map[string]int
	// Inserted counts rows written by insert statements, keyed by table name.
	// Leaf dimensions are counted in Resolves instead.
	Inserted map[string]int
	// Resolves holds per-leaf-table cache hits and store resolutions.
	Resolves map[string]dimension.ResolveStats

	Dangling  int64
	DryRun    bool
	Committed bool
	Duration  time.Duration
}

func newReport(runID string) Report {
	return Report{
		RunID:    runID,
		Rows:     make(map[string]int),
		Inserted: make(map[string]int),
	}
}

// String renders the report as one key=value line per section.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run_id=%s committed=%t dry_run=%t duration=%s dangling=%d\n",
		r.RunID, r.Committed, r.DryRun, r.Duration.Truncate(time.Millisecond), r.Dangling)

	for _, s := range Stages() {
		if n, ok := r.Rows[s.String()]; ok {
			fmt.Fprintf(&b, "rows stage=%s read=%d\n", s, n)
		}
	}
	for _, t := range sortedKeys(r.Inserted) {
		fmt.Fprintf(&b, "inserted table=%s rows=%d\n", t, r.Inserted[t])
	}
	for _, t := range sortedKeys(r.Resolves) {
		st := r.Resolves[t]
		fmt.Fprintf(&b, "resolved table=%s cache_hits=%d store_resolves=%d\n", t, st.CacheHits, st.StoreResolves)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
