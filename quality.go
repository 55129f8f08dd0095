package tidepool

// ScoreExtraction is a heuristic confidence in an extraction, 0-100. It
// starts from a neutral base and rewards the signals of a well-formed
// article: an identified title, a byline, a publication date, substantial
// text, and a healthy number of links.
func ScoreExtraction(hasTitle, hasByline, hasPublished bool, wordCount, linkCount int) int {
	score := 30
	if hasTitle {
		score += 15
	}
	if hasByline {
		score += 10
	}
	if hasPublished {
		score += 10
	}
	switch {
	case wordCount > 500:
		score += 20
	case wordCount > 100:
		score += 10
	}
	switch {
	case linkCount > 10:
		score += 10
	case linkCount > 5:
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}
