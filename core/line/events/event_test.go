package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/linephoto/core/logger"
)

const testSecret = "test-channel-secret"

const deliveryBody = `{"destination":"Ubot","events":[
{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":"01HGW9V5K1YQ7ZB6T0Y0G3S9AA",
 "deliveryContext":{"isRedelivery":false},"replyToken":"rt-image",
 "source":{"type":"user","userId":"Uimage"},
 "message":{"type":"image","id":"m-100","contentProvider":{"type":"line"},"quoteToken":"q1"}},
{"type":"message","mode":"active","timestamp":1700000000001,"webhookEventId":"01HGW9V5K1YQ7ZB6T0Y0G3S9AB",
 "deliveryContext":{"isRedelivery":true},"replyToken":"rt-loc",
 "source":{"type":"group","groupId":"Cgroup","userId":"Uloc"},
 "message":{"type":"location","id":"m-101","title":"Shibuya","address":"Tokyo","latitude":35.659,"longitude":139.703}},
{"type":"message","mode":"active","timestamp":1700000000002,"webhookEventId":"01HGW9V5K1YQ7ZB6T0Y0G3S9AC",
 "deliveryContext":{"isRedelivery":false},"replyToken":"rt-text",
 "source":{"type":"user","userId":"Utext"},
 "message":{"type":"text","id":"m-102","text":"キャンセル","quoteToken":"q2"}},
{"type":"follow","mode":"active","timestamp":1700000000003,"webhookEventId":"01HGW9V5K1YQ7ZB6T0Y0G3S9AD",
 "deliveryContext":{"isRedelivery":false},"replyToken":"rt-follow",
 "source":{"type":"user","userId":"Ufollow"},"follow":{"isUnblocked":false}}
]}`

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestParseNormalizesMessages(t *testing.T) {
	evs, err := Parse(testSecret, sign(deliveryBody), []byte(deliveryBody))
	require.NoError(t, err)
	require.Len(t, evs, 4)

	img := evs[0]
	assert.True(t, img.IsMessage())
	assert.Equal(t, KindImage, img.Kind)
	assert.Equal(t, "m-100", img.MessageID)
	assert.Equal(t, "Uimage", img.UserID)
	assert.Equal(t, SourceUser, img.SourceType)
	assert.Equal(t, "rt-image", img.ReplyToken)
	assert.Equal(t, "01HGW9V5K1YQ7ZB6T0Y0G3S9AA", img.RID())

	loc := evs[1]
	assert.Equal(t, KindLocation, loc.Kind)
	assert.Equal(t, SourceGroup, loc.SourceType)
	assert.Equal(t, "Uloc", loc.UserID)
	assert.True(t, loc.Redelivery)
	require.NotNil(t, loc.Location)
	assert.InDelta(t, 35.659, loc.Location.Latitude, 1e-9)
	assert.InDelta(t, 139.703, loc.Location.Longitude, 1e-9)
	assert.Equal(t, "Tokyo", loc.Location.Address)

	txt := evs[2]
	assert.Equal(t, KindText, txt.Kind)
	assert.Equal(t, "キャンセル", txt.Text)

	follow := evs[3]
	assert.False(t, follow.IsMessage())
	assert.Equal(t, "follow", follow.Type)
	assert.Equal(t, 3, follow.Index)
}

func TestParseRejectsBadSignature(t *testing.T) {
	_, err := Parse(testSecret, "bogus", []byte(deliveryBody))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseRejectsMalformedBody(t *testing.T) {
	body := `{"events":[`
	_, err := Parse(testSecret, sign(body), []byte(body))
	assert.ErrorIs(t, err, ErrMalformed)
}

func newApp(sink Sink) *fiber.App {
	app := fiber.New()
	app.All("/callback", Handler(testSecret, sink))
	return app
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	resp, err := newApp(nil).Test(httptest.NewRequest(http.MethodGet, "/callback", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandlerBadSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(deliveryBody))
	req.Header.Set("X-Line-Signature", "bogus")
	resp, err := newApp(nil).Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerDispatchesAndAnswersOK(t *testing.T) {
	var got atomic.Int32
	sink := func(_ context.Context, evs []Event) { got.Store(int32(len(evs))) }

	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(deliveryBody))
	req.Header.Set("X-Line-Signature", sign(deliveryBody))
	resp, err := newApp(sink).Test(req)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(4), got.Load())
}

func TestHandlerPassesRequestIDAsTrace(t *testing.T) {
	var trace string
	app := fiber.New()
	app.Use(requestid.New())
	app.All("/callback", Handler(testSecret, func(ctx context.Context, _ []Event) {
		trace = logger.TraceIDFrom(ctx)
	}))

	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(deliveryBody))
	req.Header.Set("X-Line-Signature", sign(deliveryBody))
	req.Header.Set(fiber.HeaderXRequestID, "delivery-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "delivery-42", trace)
}

func TestTypeNameFallback(t *testing.T) {
	assert.Equal(t, "unknown", typeName(nil))
}
