package fetcher

var CalculateBackoff = calculateBackoff
