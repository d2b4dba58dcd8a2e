package x402

import (
	"net/http"
	"net/url"
)

// Tier is the pricing tier an endpoint belongs to.
type Tier string

const (
	TierBasic   Tier = "Basic"
	TierPremium Tier = "Premium"
)

// Endpoint describes one logical API operation. Values are immutable once
// built; use the With* methods to derive a modified copy.
type Endpoint struct {
	path            string
	method          string
	name            string
	description     string
	tier            Tier
	requiresPayment bool
	defaultBody     []byte
}

// NewEndpoint builds an endpoint descriptor. An empty method means GET.
func NewEndpoint(method, path, name string, tier Tier, requiresPayment bool) Endpoint {
	if method == "" {
		method = http.MethodGet
	}
	return Endpoint{
		path:            path,
		method:          method,
		name:            name,
		tier:            tier,
		requiresPayment: requiresPayment,
	}
}

func (e Endpoint) Path() string          { return e.path }
func (e Endpoint) Method() string        { return e.method }
func (e Endpoint) Name() string          { return e.name }
func (e Endpoint) Description() string   { return e.description }
func (e Endpoint) Tier() Tier            { return e.tier }
func (e Endpoint) RequiresPayment() bool { return e.requiresPayment }

// DefaultBody returns a copy of the body used when the caller passes none.
func (e Endpoint) DefaultBody() []byte {
	if e.defaultBody == nil {
		return nil
	}
	return append([]byte(nil), e.defaultBody...)
}

// WithDescription returns a copy with the description set.
func (e Endpoint) WithDescription(description string) Endpoint {
	e.description = description
	return e
}

// WithDefaultBody returns a copy carrying a default request body.
func (e Endpoint) WithDefaultBody(body []byte) Endpoint {
	e.defaultBody = append([]byte(nil), body...)
	return e
}

// HasBody reports whether the verb sends a request body.
func (e Endpoint) HasBody() bool {
	switch e.method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// URL joins the endpoint path onto baseURL.
func (e Endpoint) URL(baseURL string) string {
	return baseURL + e.path
}

// ============================================================================
// Endpoint factories
// ============================================================================

// ProfileEndpoint looks up a profile by numeric id or by username.
func ProfileEndpoint(query string, byID bool) Endpoint {
	path := "/api/profiles/username/" + url.PathEscape(query)
	if byID {
		path = "/api/profiles/" + url.PathEscape(query)
	}
	return NewEndpoint(http.MethodGet, path, "Get Profile", TierBasic, true).
		WithDescription("Get user profile")
}

// SocialEndpoint fetches the social analysis for a profile.
func SocialEndpoint(query string, byID bool) Endpoint {
	path := "/api/social/username/" + url.PathEscape(query)
	if byID {
		path = "/api/social/" + url.PathEscape(query)
	}
	return NewEndpoint(http.MethodGet, path, "Get Social Data", TierPremium, true).
		WithDescription("Get social analysis")
}

// MbtiEndpoint fetches the personality analysis for a profile.
func MbtiEndpoint(query string, byID bool) Endpoint {
	path := "/api/mbti/username/" + url.PathEscape(query)
	if byID {
		path = "/api/mbti/" + url.PathEscape(query)
	}
	return NewEndpoint(http.MethodGet, path, "Get MBTI Analysis", TierPremium, true).
		WithDescription("Get personality analysis")
}

// ChatSessionEndpoint creates a chat session. It is free.
func ChatSessionEndpoint() Endpoint {
	return NewEndpoint(http.MethodPost, "/api/chat/create", "Create Chat", TierPremium, false).
		WithDescription("Create chat session")
}

// ChatMessageEndpoint sends a message in an existing chat session.
func ChatMessageEndpoint() Endpoint {
	return NewEndpoint(http.MethodPost, "/api/chat/message", "Send Chat Message", TierPremium, true).
		WithDescription("Send chat message")
}
