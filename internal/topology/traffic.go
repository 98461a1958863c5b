package topology

import (
	"time"

	"github.com/user/topomon/internal/model"
)

// ComputeRates fills InBps and OutBps of each current sample from the
// counter delta against the previous sample of the same interface.
// Counters are unsigned 64-bit, so subtraction wraps correctly. A rate
// above the interface speed is taken as a counter reset and reported as 0.
func ComputeRates(prev map[int]model.InterfaceSample, cur []model.InterfaceSample) {
	for i := range cur {
		c := &cur[i]
		c.InBps, c.OutBps = 0, 0

		p, ok := prev[c.PortIndex]
		if !ok {
			continue
		}
		elapsed := c.SampledAt.Sub(p.SampledAt)
		if elapsed <= 0 {
			continue
		}

		c.InBps = rate(p.InOctets, c.InOctets, elapsed, c.SpeedMbps)
		c.OutBps = rate(p.OutOctets, c.OutOctets, elapsed, c.SpeedMbps)
	}
}

func rate(prev, cur uint64, elapsed time.Duration, speedMbps int64) int64 {
	delta := cur - prev
	bps := float64(delta) * 8 / elapsed.Seconds()
	if speedMbps > 0 && bps > float64(speedMbps)*1e6 {
		return 0
	}
	return int64(bps)
}
