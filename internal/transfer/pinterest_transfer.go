package transfer

type PinterestMediaSource struct {
	SourceType    string `json:"source_type"`
	URL           string `json:"url,omitempty"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
}

type PinterestRichMetadata struct {
	Type         string   `json:"type"`
	Price        *float64 `json:"price,omitempty"`
	Availability string   `json:"availability,omitempty"`
}

type PinterestCreatePin struct {
	BoardID      string                 `json:"board_id"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description,omitempty"`
	Link         string                 `json:"link,omitempty"`
	MediaSource  PinterestMediaSource   `json:"media_source"`
	RichMetadata *PinterestRichMetadata `json:"rich_metadata,omitempty"`
}

type PinterestPin struct {
	ID string `json:"id"`
}

type PinterestUserAccount struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	AccountType  string `json:"account_type"`
	ProfileImage string `json:"profile_image"`
}

type PinterestBoard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PinterestBoardList struct {
	Items    []PinterestBoard `json:"items"`
	Bookmark string           `json:"bookmark"`
}

type AccountBoards struct {
	PinterestAccountID string           `json:"pinterest_account_id"`
	Boards             []PinterestBoard `json:"boards"`
	Error              string           `json:"error,omitempty"`
}

type MediaUpload struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}
