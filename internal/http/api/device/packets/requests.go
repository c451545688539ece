package packets

// body for POST /device/fetch/lookahead; Days defaults to the configured window
type LookaheadRequest struct {
	Days *int `json:"days"`
}

// body for POST /device/time/sync
type SyncRequest struct {
	OffsetHours *int   `json:"offset_hours"`
	Label       string `json:"label"`
}

// body for POST /device/alerts/test
type AlertTestRequest struct {
	Kind string `json:"kind" binding:"required"`
}
