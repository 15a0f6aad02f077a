package ledger

import "strings"

// DefaultCosts is the token price of each quality label. Audio-only
// downloads are billed as "audio".
var DefaultCosts = Costs{
	"360p":  1,
	"720p":  2,
	"1080p": 3,
	"2160p": 4,
	"audio": 1,
}

// Costs maps a quality label to its token price.
type Costs map[string]int

// For returns the price of a quality. Unknown qualities cost 1.
func (c Costs) For(quality string) int {
	if cost, ok := c[strings.ToLower(strings.TrimSpace(quality))]; ok && cost >= 0 {
		return cost
	}
	return 1
}
