package entities

type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

type OutboundMessage struct {
	Header EventHeader `json:"header"`

	ChatID   int64      `json:"chat_id"`
	Text     string     `json:"text"`
	ImageRef string     `json:"image_ref,omitempty"`
	Buttons  [][]Button `json:"buttons,omitempty"`
}
