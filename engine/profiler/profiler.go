package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer"
)

// Report is what the profiler logs once per interval.
type Report struct {
	FPS float64
	// AvgPasses and AvgSkipped are compositor passes per frame.
	AvgPasses, AvgSkipped float64
	// AvgTransitions is resource transitions per frame.
	AvgTransitions float64
	// LiveTextures and LiveBuffers come from the last frame of the interval.
	LiveTextures, LiveBuffers  int
	HeapMB, AllocRateMB, SysMB float64
	NumGC                      uint32
	LastPauseUs, MaxPauseUs    uint64
}

// Profiler tracks frame rate, compositor workload and memory statistics.
// Outputs a Report to the log at a configurable interval.
type Profiler struct {
	log *slog.Logger
	now func() time.Time

	frameCount     int
	passes         int
	skipped        int
	transitions    int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Report
}

// NewProfiler creates a new Profiler reporting every interval. A non-positive interval
// defaults to 1 second.
//
// Parameters:
//   - interval: the reporting interval
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	p := &Profiler{
		log:            common.ComponentLogger("profiler"),
		now:            time.Now,
		updateInterval: interval,
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per frame with the renderer counters of that frame.
// Logs a Report when the update interval has elapsed.
//
// Parameters:
//   - stats: the counters of the frame just rendered
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats renderer.FrameStats) bool {
	p.frameCount++
	p.passes += stats.Passes
	p.skipped += stats.Skipped
	p.transitions += stats.Transitions

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	frames := float64(p.frameCount)
	r := Report{
		FPS:            frames / elapsed.Seconds(),
		AvgPasses:      float64(p.passes) / frames,
		AvgSkipped:     float64(p.skipped) / frames,
		AvgTransitions: float64(p.transitions) / frames,
		LiveTextures:   stats.LiveTextures,
		LiveBuffers:    stats.LiveBuffers,
	}
	p.readMemStats(&r, elapsed)

	p.log.Info("frame stats",
		"fps", r.FPS,
		"passes", r.AvgPasses,
		"skipped", r.AvgSkipped,
		"transitions", r.AvgTransitions,
		"textures", r.LiveTextures,
		"buffers", r.LiveBuffers,
		"heapMB", r.HeapMB,
		"allocMBps", r.AllocRateMB,
		"gc", r.NumGC,
		"gcLastUs", r.LastPauseUs,
		"gcMaxUs", r.MaxPauseUs,
		"sysMB", r.SysMB,
	)

	p.frameCount, p.passes, p.skipped, p.transitions = 0, 0, 0, 0
	p.lastTime = currentTime
	p.last = r
	return true
}

// LastReport returns the last logged report.
func (p *Profiler) LastReport() Report {
	return p.last
}

func (p *Profiler) readMemStats(r *Report, elapsed time.Duration) {
	runtime.ReadMemStats(&p.memStats)
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	r.NumGC = gcCount
	if gcCount > 0 {
		r.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
}
