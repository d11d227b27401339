package transfer

import "time"

type PinSchedule struct {
	AccountID    string    `json:"account_id"`
	BoardID      string    `json:"board_id"`
	Title        string    `json:"title"`
	MediaType    string    `json:"media_type"`
	MediaURL     string    `json:"media_url"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Description  string    `json:"description"`
	Link         string    `json:"link"`
	RichPinType  string    `json:"rich_pin_type"`
	Price        *float64  `json:"price"`
	Availability string    `json:"availability"`
}

type PinReschedule struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type PinUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Link        *string `json:"link"`
}

type PinFilter struct {
	BoardID string
	Status  string
	Limit   int
	Offset  int
}
