package stats

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
	TERABYTE
)

const dumpFile = "metrics.txt"

// EnableMemoryStatistics enables go routine that periodically logs memory
// usage of the go process. Once ctx is done, the metrics gathered by
// gatherer are dumped to a file in dir.
func EnableMemoryStatistics(
	ctx context.Context, interval time.Duration, gatherer prometheus.Gatherer,
	dir string, logger *log.Entry,
) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics(logger)
				PrintNumOfRoutines(logger)
			case <-ctx.Done():
				path := filepath.Join(dir, dumpFile)
				if err := DumpMetrics(gatherer, path); err != nil {
					logger.WithError(err).Warn("failed to dump metrics")
				}
				return
			}
		}
	}()
}

// toGigabytes returns given memory in bytes to gigabytes.
func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / GIGABYTE
}

// PrintMemoryStatistics logs memory statistics using go runtime library.
func PrintMemoryStatistics(logger *log.Entry) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	logger.Infof(
		"Total allocated: %.3fGB, Heap allocated: %.3fGB, "+
			"Allocated objects count: %v, Freed objects count: %v",
		toGigabytes(memStats.TotalAlloc),
		toGigabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// DumpMetrics appends the metrics gathered by gatherer to the file at path.
func DumpMetrics(gatherer prometheus.Gatherer, path string) error {
	metricFamily, err := gatherer.Gather()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, v := range metricFamily {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// PrintNumOfRoutines logs number of go routines currently running
func PrintNumOfRoutines(logger *log.Entry) {
	logger.Infof("Num of go routines: %v", runtime.NumGoroutine())
}
