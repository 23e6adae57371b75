package constant

import "time"

const (
	// SnapshotChunkLimit is the gateway's hard per-call ceiling for snapshot
	// queries. It is a protocol constant, not configuration.
	SnapshotChunkLimit = 400

	// DefaultSubscriptionQuota is the gateway's default cap on simultaneous
	// live subscriptions per session.
	DefaultSubscriptionQuota = 300

	// DefaultMaxConnAge bounds state accumulation on a long-lived gateway
	// session by proactively replacing it.
	DefaultMaxConnAge = 30 * time.Minute

	PlateCNMain = "SH.LIST0600"
	PlateHKMain = "HK.LIST1600"

	SortFieldChangeRate = "CHANGE_RATE"
	SortFieldTurnover   = "TURNOVER"
)

const (
	RankingStreamName           = "market_ranking"
	RankingStreamSubjectAll     = "market_ranking.*"
	RankingStreamSubjectUpdated = "market_ranking.updated"
	RankingNotifyQueueGroup     = "market_ranking_notify_group"
)
