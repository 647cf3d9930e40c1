package risk

import "github.com/Alias1177/Trader/models"

// PortfolioMetrics summarizes current portfolio risk for reporting
type PortfolioMetrics struct {
	TotalExposure      float64            `json:"total_exposure"`
	ExposurePct        float64            `json:"exposure_pct"`
	LargestPositionPct float64            `json:"largest_position_pct"`
	NumPositions       int                `json:"num_positions"`
	SectorAllocations  map[string]float64 `json:"sector_allocations"`
}

// CalculatePortfolioMetrics computes exposure and concentration figures from
// the current positions
func CalculatePortfolioMetrics(positions []models.Position, portfolioValue float64) PortfolioMetrics {
	m := PortfolioMetrics{
		NumPositions:      len(positions),
		SectorAllocations: make(map[string]float64),
	}

	largest := 0.0
	for _, p := range positions {
		mv := p.MarketValue()
		m.TotalExposure += mv
		if mv > largest {
			largest = mv
		}
		if portfolioValue > 0 {
			m.SectorAllocations[positionSector(p.Symbol, p.Sector)] += mv / portfolioValue
		}
	}

	if portfolioValue > 0 {
		m.ExposurePct = m.TotalExposure / portfolioValue
		m.LargestPositionPct = largest / portfolioValue
	}
	return m
}
