package queue

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pcrguild/pcrdb-collector/internal/metrics"
)

const progressBarWidth = 30

// refreshRate caps the progress bar at 5Hz (testable property 7) via a
// token-bucket limiter rather than a raw ticker.
var refreshRate = rate.Every(monitorInterval)

// monitorProgress refreshes a textual progress bar at most 5Hz, mirroring
// base.py's `_monitor`: filled percentage, count, rate, ETA, and a final
// summary line with total elapsed time.
func monitorProgress(processedCount *int64, total int64, done <-chan struct{}, pipelineName string, log *logrus.Entry) {
	gauge := metrics.QueueDepth.WithLabelValues(pipelineName)
	if total <= 0 {
		<-done
		gauge.Set(0)
		return
	}
	start := time.Now()
	limiter := rate.NewLimiter(refreshRate, 1)

	for {
		select {
		case <-done:
			printProgress(atomic.LoadInt64(processedCount), total, start)
			fmt.Fprintln(os.Stdout)
			gauge.Set(0)
			return
		default:
			processed := atomic.LoadInt64(processedCount)
			if limiter.Allow() {
				printProgress(processed, total, start)
				gauge.Set(float64(total - processed))
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func printProgress(processed, total int64, start time.Time) {
	pct := float64(processed) / float64(total)
	elapsed := time.Since(start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(processed) / elapsed
	}
	eta := time.Duration(0)
	if rate > 0 {
		eta = time.Duration((float64(total-processed)/rate)*1000) * time.Millisecond
	}

	filled := int(float64(progressBarWidth) * pct)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	bar := ""
	for i := 0; i < progressBarWidth; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "-"
		}
	}

	fmt.Fprintf(os.Stdout, "\r|%s| %.1f%% %d/%d [%.1fit/s] ETA: %02d:%02d",
		bar, pct*100, processed, total, rate, int(eta.Minutes()), int(eta.Seconds())%60)
}
