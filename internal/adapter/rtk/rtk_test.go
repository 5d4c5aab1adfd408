package rtk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlowhardChen/diyue-geoengine/internal/domain/models"
	"github.com/BlowhardChen/diyue-geoengine/internal/domain/types"
	"github.com/BlowhardChen/diyue-geoengine/pkg/clock"
	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
)

var now = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestCheckToken(t *testing.T) {
	assert.NoError(t, CheckToken("plain-session-token", now))
	assert.NoError(t, CheckToken(signed(t, now.Add(time.Hour)), now))
	assert.ErrorIs(t, CheckToken(signed(t, now.Add(-time.Minute)), now), types.ErrSessionExpired)
}

func TestURL(t *testing.T) {
	d := NewDialer(Config{BaseURL: "wss://rtk.example.com/ws/location", Token: "a b", IMEI: "860000000000001"}, clock.NewMock(now))
	got, err := d.URL()
	require.NoError(t, err)
	assert.Equal(t, "wss://rtk.example.com/ws/location?imei=860000000000001&token=a+b", got)
}

func TestDialExpiredTokenDoesNotConnect(t *testing.T) {
	d := NewDialer(Config{BaseURL: "ws://127.0.0.1:1/ws", Token: signed(t, now.Add(-time.Second))}, clock.NewMock(now))
	_, err := d.Dial(context.Background())
	assert.ErrorIs(t, err, types.ErrSessionExpired)
}

func TestDialAgainstServer(t *testing.T) {
	queries := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"location","data":{"lat":39.9,"lon":116.3}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	d := NewDialer(Config{BaseURL: base, Token: "tok", IMEI: "42", HandshakeTimeout: time.Second}, clock.NewMock(now))

	sock, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer sock.Close()

	_, data, err := sock.ReadMessage()
	require.NoError(t, err)
	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, models.Coordinate{Lon: 116.3, Lat: 39.9}, f.Location)
	assert.Equal(t, "imei=42&token=tok", <-queries)
}

func TestDecodeFrame(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    Frame
		wantErr error
	}{
		{
			name: "location",
			in:   `{"type":"location","data":{"lat":31.23,"lon":121.47}}`,
			want: Frame{Kind: FrameLocation, Type: "location", Location: models.Coordinate{Lon: 121.47, Lat: 31.23}},
		},
		{
			name: "unknown type ignored",
			in:   `{"type":"status","data":{"battery":80}}`,
			want: Frame{Kind: FrameIgnored, Type: "status"},
		},
		{name: "not json", in: `hello`, wantErr: types.ErrMalformedMessage},
		{name: "missing lon", in: `{"type":"location","data":{"lat":1}}`, wantErr: types.ErrMalformedMessage},
		{name: "bad data", in: `{"type":"location","data":"x"}`, wantErr: types.ErrMalformedMessage},
		{name: "out of range", in: `{"type":"location","data":{"lat":91,"lon":0}}`, wantErr: types.ErrMalformedMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tc.in))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("frame mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeartbeatFrame(t *testing.T) {
	assert.JSONEq(t, `[{"imei":"860000000000001"}]`, string(HeartbeatFrame("860000000000001")))
}

func TestMessageHandler(t *testing.T) {
	var got []models.LocationSample
	h := NewMessageHandler(clock.NewMock(now), logger.Nop(), func(_ context.Context, s models.LocationSample) {
		got = append(got, s)
	})

	ctx := context.Background()
	h(ctx, []byte(`{"type":"location","data":{"lat":39.9,"lon":116.3}}`))
	h(ctx, []byte(`{"type":"other"}`))
	h(ctx, []byte(`{broken`))

	require.Len(t, got, 1)
	assert.Equal(t, types.SourceSocket, got[0].Source)
	assert.Equal(t, now, got[0].Timestamp)
}
