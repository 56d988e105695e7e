package sensor

import (
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"propsync/pkg/timeutil"
)

// Sensor watches the filesystem holding the property surface and the Go
// heap, logging when either crosses its threshold and again once it has
// stayed below the low-water mark for the recovery window.
type Sensor struct {
	path          string
	config        MonitorConfig
	stopCh        chan struct{}
	stopOnce      sync.Once
	mu            sync.Mutex
	diskAlert     bool
	heapAlert     bool
	lastDiskAlert time.Time
	lastHeapAlert time.Time
}

// monitor config
type MonitorConfig struct {
	PollInterval   time.Duration
	DiskHighPct    int
	DiskLowPct     int
	HeapHighPct    int
	HeapLowPct     int
	RecoveryWindow time.Duration
}

// NewSensor builds a sensor watching the filesystem that holds path.
func NewSensor(path string, config MonitorConfig) *Sensor {
	if path == "" {
		path = "/"
	}
	return &Sensor{
		path:   path,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// start sensor
func (s *Sensor) Start() {
	go s.run()
}

// stop sensor
func (s *Sensor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Alerts reports the current alert latches.
func (s *Sensor) Alerts() (disk, heap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskAlert, s.heapAlert
}

// run loop
func (s *Sensor) run() {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.checkHardware()
		case <-s.stopCh:
			return
		}
	}
}

// check hardware
func (s *Sensor) checkHardware() {
	now := timeutil.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	// check storage under the surface path
	var stat unix.Statfs_t
	err := unix.Statfs(s.path, &stat)
	if err != nil {
		log.Printf("failed to get disk stat for %s: %v", s.path, err)
		return
	}
	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return
	}
	usedPct := float64(total-available) / float64(total) * 100

	if usedPct > float64(s.config.DiskHighPct) {
		if !s.diskAlert {
			log.Printf("disk usage high on %s: %.2f%% (threshold: %d%%)", s.path, usedPct, s.config.DiskHighPct)
			s.diskAlert = true
			s.lastDiskAlert = now
		}
	} else if usedPct < float64(s.config.DiskLowPct) && s.diskAlert {
		// below the low-water mark for the whole recovery window
		if now.Sub(s.lastDiskAlert) >= s.config.RecoveryWindow {
			log.Printf("disk usage recovered on %s: %.2f%% (below %d%% for %v)", s.path, usedPct, s.config.DiskLowPct, s.config.RecoveryWindow)
			s.diskAlert = false
		}
	}

	// check heap
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return
	}
	heapUsedPct := float64(m.HeapInuse) / float64(m.HeapSys) * 100

	if heapUsedPct > float64(s.config.HeapHighPct) {
		if !s.heapAlert {
			log.Printf("heap usage high: %.2f%% (threshold: %d%%)", heapUsedPct, s.config.HeapHighPct)
			s.heapAlert = true
			s.lastHeapAlert = now
		}
	} else if heapUsedPct < float64(s.config.HeapLowPct) && s.heapAlert {
		if now.Sub(s.lastHeapAlert) >= s.config.RecoveryWindow {
			log.Printf("heap usage recovered: %.2f%% (below %d%% for %v)", heapUsedPct, s.config.HeapLowPct, s.config.RecoveryWindow)
			s.heapAlert = false
		}
	}
}
