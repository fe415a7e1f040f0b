package usecase

import (
	"regexp"
	"strconv"
)

// defaultEstimatedBytes is the default response-size estimate used when the
// caller supplies none. Typical comparison/chat responses from the inference
// service land in the low tens of kilobytes.
const defaultEstimatedBytes = 16 * 1024

// statusFractionRe matches an explicit progress hint in a status line, e.g.
// "[STATUS]: Comparing documents (2/5)".
var statusFractionRe = regexp.MustCompile(`\((\d+)\s*/\s*(\d+)\)\s*$`)

// progressMeter derives a 0–100 percentage for the snapshot stream. It is
// monotonically non-decreasing: byte counts give a coarse estimate capped at
// 99, explicit "(n/m)" status hints override when larger, and 100 is
// reserved for completion.
type progressMeter struct {
	estimate int
	percent  int
}

func newProgressMeter(estimatedBytes int) *progressMeter {
	if estimatedBytes <= 0 {
		estimatedBytes = defaultEstimatedBytes
	}
	return &progressMeter{estimate: estimatedBytes}
}

// observeBytes folds the total bytes seen so far into the estimate.
func (m *progressMeter) observeBytes(total int) {
	p := total * 100 / m.estimate
	if p > 99 {
		p = 99
	}
	if p > m.percent {
		m.percent = p
	}
}

// observeStatus folds an explicit "(n/m)" hint from a status line, if any.
func (m *progressMeter) observeStatus(status string) {
	match := statusFractionRe.FindStringSubmatch(status)
	if match == nil {
		return
	}
	n, _ := strconv.Atoi(match[1])
	total, _ := strconv.Atoi(match[2])
	if total <= 0 || n < 0 {
		return
	}
	p := n * 100 / total
	if p > 99 {
		p = 99
	}
	if p > m.percent {
		m.percent = p
	}
}

// complete pins progress to 100. Only called on normal completion.
func (m *progressMeter) complete() {
	m.percent = 100
}

func (m *progressMeter) value() int { return m.percent }
