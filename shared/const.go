package shared

const (
	// Violation reasons recorded on abuse incidents
	ReasonIPSoftLimit      = "ip_soft_limit"
	ReasonTrapFieldFilled  = "trap_field_filled"
	ReasonInvalidTrapToken = "invalid_trap_token"
	ReasonBadWebhookSig    = "bad_webhook_signature"

	// Limiter kinds
	LimiterDefault = "default"
	LimiterBooking = "booking"

	// Quota store key prefixes. These are a contract with external tooling
	// (dashboards, manual redis inspection), keep them stable.
	KeyPrefixTrap       = "trap:"
	KeyPrefixBlock      = "block:ip:"
	KeyPrefixSoftStrike = "softstrike:"
	KeyPrefixIPQuota    = "quota:ip:"
	KeyPrefixCountryLog = "log:country:"
	KeyPrefixRateLimit  = "ratelimit:"
	KeyPrefixGeoCache   = "geolocation:country:"

	// PayPal server-to-server callbacks are signature-verified by the webhook
	// handler itself and must never be rate limited
	PaypalWebhookPath     = "/api/v1/webhooks/paypal"
	PaypalSignatureHeader = "Paypal-Transmission-Sig"
	PaypalTransmissionID  = "Paypal-Transmission-Id"
	PaypalCertURLHeader   = "Paypal-Cert-Url"
)
