package services

// progressTracker derives the completion fraction of a run. Callers hold the
// scanner lock.
type progressTracker struct {
	total     int64
	processed int64
	failed    int64
	bytes     int64
	last      float64
}

func (p *progressTracker) reset() {
	*p = progressTracker{}
}

func (p *progressTracker) setTotal(total int64) {
	p.total = total
}

// advance counts one finished item, failed or not, and returns the new
// fraction
func (p *progressTracker) advance(bytes int64, failed bool) float64 {
	p.processed++
	p.bytes += bytes
	if failed {
		p.failed++
	}
	return p.fraction()
}

// fraction is processed/max(total,1) clamped to [0,1], never lower than a
// value already reported in this run
func (p *progressTracker) fraction() float64 {
	f := float64(p.processed) / float64(max(p.total, 1))
	f = min(max(f, 0), 1)
	if f < p.last {
		f = p.last
	}
	p.last = f
	return f
}
