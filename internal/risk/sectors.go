package risk

// sectorMap classifies common tickers into industry sectors for the
// concentration check. Symbols not listed fall back to the position's own
// Sector field, then to "Unknown".
var sectorMap = map[string]string{
	// Technology
	"AAPL": "Technology",
	"MSFT": "Technology",
	"GOOGL": "Technology",
	"META": "Technology",
	"NVDA": "Technology",
	"AMD":  "Technology",
	"AVGO": "Technology",
	"NFLX": "Technology",

	// Finance
	"JPM": "Finance",
	"BAC": "Finance",
	"WFC": "Finance",
	"GS":  "Finance",
	"MS":  "Finance",

	// Energy
	"XOM": "Energy",
	"CVX": "Energy",
	"COP": "Energy",

	// Healthcare
	"LLY": "Healthcare",
	"JNJ": "Healthcare",
	"PFE": "Healthcare",
	"UNH": "Healthcare",

	// Consumer
	"TSLA": "Consumer",
	"AMZN": "Consumer",
	"KO":   "Consumer",
	"PEP":  "Consumer",
	"MCD":  "Consumer",

	// ETFs
	"VTI": "Broad Market",
	"VGK": "International",
	"GLD": "Commodities",
	"SPY": "Broad Market",
	"QQQ": "Technology",
}

// SectorOf resolves the sector for a symbol
func SectorOf(symbol string) string {
	if s, ok := sectorMap[symbol]; ok {
		return s
	}
	return "Unknown"
}

func positionSector(symbol, declared string) string {
	if s, ok := sectorMap[symbol]; ok {
		return s
	}
	if declared != "" {
		return declared
	}
	return "Unknown"
}
