package download

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Progress is a snapshot of a running batch.
type Progress struct {
	FilesDone      int
	FilesTotal     int
	BytesDone      int64
	BytesTotal     int64
	BytesPerSecond float64
	FailingWorkers int
	Elapsed        time.Duration
}

// Percent is the byte-weighted completion, falling back to file counts.
func (p Progress) Percent() int {
	switch {
	case p.BytesTotal > 0:
		return int(min(100, p.BytesDone*100/p.BytesTotal))
	case p.FilesTotal > 0:
		return p.FilesDone * 100 / p.FilesTotal
	default:
		return 100
	}
}

func (p Progress) String() string {
	s := fmt.Sprintf("Updating dependencies: %3d%% (%d/%d), %s/%s",
		p.Percent(), p.FilesDone, p.FilesTotal,
		humanize.Bytes(uint64(max(p.BytesDone, 0))), humanize.Bytes(uint64(max(p.BytesTotal, 0))))
	if p.BytesPerSecond > 0 {
		s += " | " + humanize.Bytes(uint64(p.BytesPerSecond)) + "/s"
	}
	if p.FailingWorkers > 0 {
		s += fmt.Sprintf(" | %d failing", p.FailingWorkers)
	}
	return s
}

type rateSample struct {
	at    time.Time
	bytes int64
}

// rateMeter computes throughput over a ring of recent samples.
type rateMeter struct {
	samples []rateSample
	next    int
	full    bool
}

func newRateMeter(size int) *rateMeter {
	if size < 2 {
		size = 2
	}
	return &rateMeter{samples: make([]rateSample, size)}
}

func (m *rateMeter) add(at time.Time, bytes int64) {
	m.samples[m.next] = rateSample{at: at, bytes: bytes}
	m.next = (m.next + 1) % len(m.samples)
	if m.next == 0 {
		m.full = true
	}
}

// rate returns bytes per second between the oldest and newest sample.
func (m *rateMeter) rate() float64 {
	count := m.next
	oldest := 0
	if m.full {
		count = len(m.samples)
		oldest = m.next
	}
	if count < 2 {
		return 0
	}
	newest := (m.next - 1 + len(m.samples)) % len(m.samples)
	first, last := m.samples[oldest], m.samples[newest]
	dt := last.at.Sub(first.at).Seconds()
	if dt <= 0 || last.bytes < first.bytes {
		return 0
	}
	return float64(last.bytes-first.bytes) / dt
}
