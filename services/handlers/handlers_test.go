package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zawadi-market/guard_api/dto"
	"github.com/zawadi-market/guard_api/shared"
)

type fakeTrapService struct {
	token       string
	generateErr error
	valid       bool
}

func (f *fakeTrapService) Generate(context.Context) (string, error) {
	return f.token, f.generateErr
}

func (f *fakeTrapService) Validate(context.Context, string) bool {
	return f.valid
}

func (f *fakeTrapService) LooksLikeTrapField(name string) bool {
	return strings.HasPrefix(name, "website_") && strings.Count(name, "_") == 2
}

type fakeAbuseService struct {
	reasons []string
}

func (f *fakeAbuseService) RecordValidityViolation(_ context.Context, _ *fiber.Ctx, isInvalid bool, reason string) bool {
	if !isInvalid {
		return false
	}
	f.reasons = append(f.reasons, reason)
	return true
}

func (f *fakeAbuseService) IsBanned(context.Context, string) bool { return false }

func (f *fakeAbuseService) Status(_ context.Context, identity string) (*dto.BanStatusResponse, error) {
	return &dto.BanStatusResponse{IP: identity}, nil
}

func (f *fakeAbuseService) Unban(context.Context, string) error { return nil }

type fakeRateLimitService struct {
	configs []dto.RateLimitConfigInfo
}

func (f *fakeRateLimitService) ConfigList() []dto.RateLimitConfigInfo {
	return f.configs
}

func decodeResponse(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

// ==================== WEBHOOK GATE ====================

func TestHandlePaypalWebhook_ValidTransmission(t *testing.T) {
	abuse := &fakeAbuseService{}
	h := NewHookHandler(abuse)

	app := fiber.New()
	app.Post(shared.PaypalWebhookPath, h.HandlePaypalWebhook)

	req := httptest.NewRequest("POST", shared.PaypalWebhookPath, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.PaypalSignatureHeader, "sig")
	req.Header.Set(shared.PaypalTransmissionID, "tx-1")
	req.Header.Set(shared.PaypalCertURLHeader, "https://api.paypal.com/cert")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, abuse.reasons)
}

func TestHandlePaypalWebhook_MissingHeadersStrikesButAnswersOK(t *testing.T) {
	headers := map[string]string{
		shared.PaypalSignatureHeader: "sig",
		shared.PaypalTransmissionID:  "tx-1",
		shared.PaypalCertURLHeader:   "https://api.paypal.com/cert",
	}

	for missing := range headers {
		t.Run("missing "+missing, func(t *testing.T) {
			abuse := &fakeAbuseService{}
			h := NewHookHandler(abuse)

			app := fiber.New()
			app.Post(shared.PaypalWebhookPath, h.HandlePaypalWebhook)

			req := httptest.NewRequest("POST", shared.PaypalWebhookPath, strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			for name, value := range headers {
				if name != missing {
					req.Header.Set(name, value)
				}
			}

			resp, err := app.Test(req)
			require.NoError(t, err)

			// A forged callback gets the same generic acknowledgement as a
			// real one; only the strike reveals anything, and only internally.
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			require.Len(t, abuse.reasons, 1)
			assert.Equal(t, shared.ReasonBadWebhookSig, abuse.reasons[0])
		})
	}
}

// ==================== ADMIN HANDLERS ====================

func TestGetRateLimits(t *testing.T) {
	rate := &fakeRateLimitService{configs: []dto.RateLimitConfigInfo{
		{Kind: "booking", Algorithm: "fixed_window", MaxRequests: 2, WindowSeconds: 300, IsActive: true},
		{Kind: "default", Algorithm: "sliding_window", MaxRequests: 5, WindowSeconds: 60, IsActive: true},
	}}
	h := NewAbuseHandler(&fakeAbuseService{}, rate, nil)

	app := fiber.New()
	app.Get("/admin/abuse/limits", h.GetRateLimits)

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/abuse/limits", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeResponse(t, resp.Body)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)

	first, ok := data[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "booking", first["kind"])
	assert.Equal(t, "fixed_window", first["algorithm"])
}

// ==================== FORM HANDLERS ====================

func TestGetTrapToken(t *testing.T) {
	h := NewFormHandler(&fakeTrapService{token: "website_1700000000000_abcd1234"}, &fakeAbuseService{})

	app := fiber.New()
	app.Get("/form/token", h.GetTrapToken)

	resp, err := app.Test(httptest.NewRequest("GET", "/form/token", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeResponse(t, resp.Body)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "website_1700000000000_abcd1234", data["field"])
}

func TestGetTrapToken_GenerateFailure(t *testing.T) {
	h := NewFormHandler(&fakeTrapService{generateErr: errors.New("store down")}, &fakeAbuseService{})

	app := fiber.New()
	app.Get("/form/token", h.GetTrapToken)

	resp, err := app.Test(httptest.NewRequest("GET", "/form/token", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestCreateBooking_Accepted(t *testing.T) {
	abuse := &fakeAbuseService{}
	h := NewFormHandler(&fakeTrapService{valid: true}, abuse)

	app := fiber.New()
	app.Post("/bookings", h.CreateBooking)

	payload := `{
		"name": "Asha Mwangi",
		"email": "asha@example.com",
		"date": "2026-09-15",
		"guests": 2,
		"website_1700000000000_abcd1234": ""
	}`
	req := httptest.NewRequest("POST", "/bookings", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, abuse.reasons)

	body := decodeResponse(t, resp.Body)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "received", data["status"])
	assert.NotEmpty(t, data["reference"])
}

func TestCreateBooking_FilledTrapField(t *testing.T) {
	abuse := &fakeAbuseService{}
	h := NewFormHandler(&fakeTrapService{valid: true}, abuse)

	app := fiber.New()
	app.Post("/bookings", h.CreateBooking)

	payload := `{
		"name": "Bot",
		"website_1700000000000_abcd1234": "https://spam.example"
	}`
	req := httptest.NewRequest("POST", "/bookings", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	// The bot receives a normal-looking acceptance
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp.Body)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "received", data["status"])

	require.Len(t, abuse.reasons, 1)
	assert.Equal(t, shared.ReasonTrapFieldFilled, abuse.reasons[0])
}

func TestCreateBooking_StaleTrapToken(t *testing.T) {
	abuse := &fakeAbuseService{}
	h := NewFormHandler(&fakeTrapService{valid: false}, abuse)

	app := fiber.New()
	app.Post("/bookings", h.CreateBooking)

	payload := `{
		"name": "Bot",
		"website_1000000000000_deadbeef": ""
	}`
	req := httptest.NewRequest("POST", "/bookings", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, abuse.reasons, 1)
	assert.Equal(t, shared.ReasonInvalidTrapToken, abuse.reasons[0])
}

func TestCreateBooking_ValidationErrors(t *testing.T) {
	abuse := &fakeAbuseService{}
	h := NewFormHandler(&fakeTrapService{valid: true}, abuse)

	app := fiber.New()
	app.Post("/bookings", h.CreateBooking)

	payload := `{
		"name": "A",
		"email": "not-an-email",
		"guests": 0
	}`
	req := httptest.NewRequest("POST", "/bookings", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, abuse.reasons)
}
