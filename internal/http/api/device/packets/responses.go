package packets

import "github.com/Nixie-Tech-LLC/muezzin/internal/model"

type ScheduleResponse struct {
	Date     string         `json:"date"`
	Origin   model.Origin   `json:"origin"`
	Prayers  []model.Prayer `json:"prayers"`
	Readable string         `json:"readable"`
	Timezone string         `json:"timezone"`
}

type SyncResponse struct {
	Timezone    string `json:"timezone"`
	OffsetHours int    `json:"offset_hours"`
	Abbr        string `json:"abbr"`
	Time        string `json:"time,omitempty"`
}

type AlertResponse struct {
	Mode string `json:"mode"`
}

// NewScheduleResponse flattens a record for display.
func NewScheduleResponse(date model.Date, origin model.Origin, rec *model.ScheduleRecord) ScheduleResponse {
	out := ScheduleResponse{Date: date.String(), Origin: origin}
	if rec == nil {
		return out
	}
	out.Readable = rec.Data.Date.Readable
	out.Timezone = rec.Data.Meta.Timezone
	if prayers, err := rec.Prayers(); err == nil {
		out.Prayers = prayers
	}
	return out
}
