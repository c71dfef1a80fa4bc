package election

import (
	"strings"
	"time"

	"github.com/khenidak/crossdc/pkg/types"
)

// activeClusterRatio is the share of all actively assigned clusters that are
// assigned to dataCenter. A cluster counts for a dc only when its active dc
// is that same dc. Empty topology yields 0.
func activeClusterRatio(topology *types.Topology, dataCenter string) float64 {
	if topology == nil {
		return 0
	}

	var total, own int64
	for key, dc := range topology.Dcs {
		if dc == nil {
			continue
		}
		dcID := dc.ID
		if dcID == "" {
			dcID = key
		}

		var count int64
		for _, cluster := range dc.Clusters {
			if cluster == nil || cluster.ActiveDc != dcID {
				continue
			}
			count++
		}

		if strings.EqualFold(dcID, dataCenter) {
			own += count
		}
		total += count
	}

	if total == 0 {
		return 0
	}
	return float64(own) / float64(total)
}

func electDelay(ratio float64, maxDelay time.Duration) time.Duration {
	return time.Duration(ratio * float64(maxDelay))
}
