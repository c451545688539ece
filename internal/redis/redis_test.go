package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

type setCall struct {
	key   string
	value []byte
	ttl   time.Duration
}

type fakeSetter struct {
	calls []setCall
	err   error
}

func (f *fakeSetter) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.calls = append(f.calls, setCall{key: key, value: value.([]byte), ttl: ttl})
	cmd := redis.NewStatusCmd(ctx, "set", key)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

var k = model.Key{Location: "Nganjuk", Date: model.Date{Year: 2025, Month: time.January, Day: 2}}

func rec() *model.ScheduleRecord {
	return &model.ScheduleRecord{
		Code:   200,
		Status: "OK",
		Data: model.ScheduleData{
			Timings: model.Timings{Fajr: "04:12", Dhuhr: "11:40", Asr: "15:03", Maghrib: "17:52", Isha: "19:05"},
			Date:    model.DateInfo{Readable: "02 Jan 2025", Timestamp: 1735776000},
			Meta:    model.Meta{Timezone: "Asia/Jakarta"},
		},
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "athan:Nganjuk:02-01-2025", Key(k))
}

func TestMirrorWritesJSONWithTTL(t *testing.T) {
	f := &fakeSetter{}
	m := NewMirror(f, time.Hour)

	require.NoError(t, m.Mirror(context.Background(), k, rec()))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "athan:Nganjuk:02-01-2025", f.calls[0].key)
	assert.Equal(t, time.Hour, f.calls[0].ttl)

	var got model.ScheduleRecord
	require.NoError(t, json.Unmarshal(f.calls[0].value, &got))
	assert.Equal(t, *rec(), got)
}

func TestMirrorDefaultTTL(t *testing.T) {
	f := &fakeSetter{}
	require.NoError(t, NewMirror(f, 0).Mirror(context.Background(), k, rec()))
	assert.Equal(t, DefaultTTL, f.calls[0].ttl)
}

func TestMirrorSurfacesErrors(t *testing.T) {
	f := &fakeSetter{err: errors.New("connection refused")}
	err := NewMirror(f, 0).Mirror(context.Background(), k, rec())
	assert.ErrorContains(t, err, "connection refused")
}

func TestCloseWithoutClient(t *testing.T) {
	assert.NoError(t, NewMirror(&fakeSetter{}, 0).Close())
}
