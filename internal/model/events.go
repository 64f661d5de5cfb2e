package model

// MarketCreatedEventData is the decoded factory MarketCreated payload.
type MarketCreatedEventData struct {
	Market      string `json:"market"`
	Creator     string `json:"creator"`
	Question    string `json:"question"`
	ResolveDate string `json:"resolve_date"`
}

// BetPlacedEventData is the decoded BetPlaced payload.
type BetPlacedEventData struct {
	User   string `json:"user"`
	Side   Side   `json:"side"`
	Amount string `json:"amount"`
}

// MarketResolvedEventData is the decoded MarketResolved payload.
type MarketResolvedEventData struct {
	WinningSide    Side   `json:"winning_side"`
	TotalPrincipal string `json:"total_principal"`
	Interest       string `json:"interest"`
}

// ClaimedEventData is the decoded Claimed payload.
type ClaimedEventData struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

// MarketCancelledEventData is the (empty) MarketCancelled payload.
type MarketCancelledEventData struct{}
