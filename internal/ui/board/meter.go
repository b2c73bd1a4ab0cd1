package board

import (
	"fmt"
	"strings"
	"time"
)

var (
	filledBlock = "■"
	emptyBlock  = "□"
)

// maxMeterCells is the widest channel limit drawn as blocks.
const maxMeterCells = 12

// meter renders channel occupancy: "■■□ 2/3", or "2/∞" when unbounded.
func meter(active, limit int) string {
	if limit < 0 {
		return fmt.Sprintf("%d/∞", active)
	}
	count := fmt.Sprintf("%d/%d", active, limit)
	if limit == 0 || limit > maxMeterCells {
		return count
	}
	filled := min(active, limit)
	return strings.Repeat(filledBlock, filled) + strings.Repeat(emptyBlock, limit-filled) + " " + count
}

// formatPosition renders a playhead as seconds with one decimal.
func formatPosition(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
