package harness

import "time"

// Comparison is one row of a side-by-side report.
type Comparison struct {
	Backend  string
	AllocOp  time.Duration // mean time per Alloc
	FreeOp   time.Duration // mean time per Free
	Consumed uint64        // arena bytes no longer available at peak
	// Overhead is Consumed over the payload bytes handed out, 0 when the
	// backend reported no payload bytes.
	Overhead float64
	// Relative is the total time of this run over the total of the first.
	Relative float64
}

// Compare lines up results in the order given, the first one is the baseline.
func Compare(results ...*Result) []Comparison {
	rows := make([]Comparison, 0, len(results))
	var base time.Duration
	for i, r := range results {
		row := Comparison{Backend: r.Backend}
		if r.Allocated > 0 {
			row.AllocOp = r.AllocTime / time.Duration(r.Allocated)
			row.FreeOp = r.FreeTime / time.Duration(r.Allocated)
		}
		if r.Peak.TotalSize > r.Peak.FreeBytes {
			row.Consumed = r.Peak.TotalSize - r.Peak.FreeBytes
		}
		if r.Peak.UsedBytes > 0 {
			row.Overhead = float64(row.Consumed) / float64(r.Peak.UsedBytes)
		}
		total := r.AllocTime + r.FreeTime
		if i == 0 {
			base = total
		}
		if base > 0 {
			row.Relative = float64(total) / float64(base)
		}
		rows = append(rows, row)
	}
	return rows
}
