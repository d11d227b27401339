package models

import "time"

type Pin struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	PinterestAccountID string     `db:"pinterest_account_id" json:"pinterest_account_id"`
	BoardID            string     `db:"board_id" json:"board_id"`
	Title              string     `db:"title" json:"title"`
	MediaType          string     `db:"media_type" json:"media_type"`
	ImageURL           string     `db:"image_url" json:"image_url,omitempty"`
	VideoURL           string     `db:"video_url" json:"video_url,omitempty"`
	Description        string     `db:"description" json:"description,omitempty"`
	Link               string     `db:"link" json:"link,omitempty"`
	RichPinType        string     `db:"rich_pin_type" json:"rich_pin_type,omitempty"`
	Price              *float64   `db:"price" json:"price,omitempty"`
	Availability       string     `db:"availability" json:"availability,omitempty"`
	ScheduledAt        time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Status             string     `db:"status" json:"status"` // scheduled, posted, failed, cancelled
	ExternalPinID      string     `db:"external_pin_id" json:"external_pin_id,omitempty"`
	LastError          string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// MediaURL returns the locator matching MediaType.
func (p *Pin) MediaURL() string {
	if p.MediaType == MediaTypeVideo {
		return p.VideoURL
	}
	return p.ImageURL
}

func (p *Pin) Deleted() bool {
	return p.DeletedAt != nil
}

const (
	PinStatusScheduled = "scheduled"
	PinStatusPosted    = "posted"
	PinStatusFailed    = "failed"
	PinStatusCancelled = "cancelled"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

const (
	RichPinRecipe  = "recipe"
	RichPinArticle = "article"
	RichPinProduct = "product"
)

const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
	AvailabilityPreorder   = "preorder"
)
