package entities

type RefreshCatalog_v1 struct {
	Header EventHeader `json:"header"`
}

// ImportCatalog_v1 adds shows and upserts price options. Shows that already
// exist with the same name, date and time keep their counters.
type ImportCatalog_v1 struct {
	Header EventHeader `json:"header"`

	Shows   []Show        `json:"shows"`
	Options []PriceOption `json:"options"`
}
