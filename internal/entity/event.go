package entity

// RankingUpdatedEvent is published to JetStream whenever a market's ranking
// board has been rebuilt.
type RankingUpdatedEvent struct {
	RetryCount int          `json:"retry_count"`
	Data       RankingBoard `json:"data"`
}
