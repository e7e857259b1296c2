package storage

type SubscriptionRow struct {
	ID          string
	Name        string
	PriceCents  int64
	Cycle       string
	RenewalAtMs int64
	Notes       string
	CreatedAtMs int64
}

type NotificationRow struct {
	Identifier     string
	SubscriptionID string
	Title          string
	Body           string
	DataJSON       string
	ChannelID      string
	TriggerAtMs    int64
	CreatedAtMs    int64
}
