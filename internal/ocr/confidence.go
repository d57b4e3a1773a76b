package ocr

// DefaultConfidence is reported when no line carries a confidence value.
const DefaultConfidence = 0.85

// AggregateConfidence averages LINE confidences, scaled from 0-100 to 0-1.
func AggregateConfidence(blocks []Block) float64 {
	var sum float64
	var n int
	for _, b := range blocks {
		if b.BlockType != BlockTypeLine || b.Confidence == nil {
			continue
		}
		sum += *b.Confidence / 100
		n++
	}
	if n == 0 {
		return DefaultConfidence
	}
	return sum / float64(n)
}
