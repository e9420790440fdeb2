package api

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amoralabs/amora-client/internal/model/enum"
)

func TestSignatureDeterministic(t *testing.T) {
	a := signature("GET", "https://api.amora.app/api/v1/profile/me", url.Values{"a": {"1"}, "b": {"2"}}, nil)
	b := signature("get", "https://api.amora.app/api/v1/profile/me/", url.Values{"b": {"2"}, "a": {"1"}}, nil)
	assert.Equal(t, a, b)
}

func TestSignatureDistinguishes(t *testing.T) {
	base := signature("GET", "https://api.amora.app/api/v1/profile/me", nil, nil)

	assert.NotEqual(t, base, signature("POST", "https://api.amora.app/api/v1/profile/me", nil, nil))
	assert.NotEqual(t, base, signature("GET", "https://api.amora.app/api/v1/profile/other", nil, nil))
	assert.NotEqual(t, base, signature("GET", "https://api.amora.app/api/v1/profile/me", url.Values{"page": {"2"}}, nil))
	assert.NotEqual(t, base, signature("GET", "https://api.amora.app/api/v1/profile/me", nil, []byte(`{"x":1}`)))
}

func TestSignatureQueryOrderInsideURL(t *testing.T) {
	a := signature("GET", "https://api.amora.app/api/v1/discovery?b=2&a=1", nil, nil)
	b := signature("GET", "https://api.amora.app/api/v1/discovery?a=1&b=2", nil, nil)
	assert.Equal(t, a, b)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, enum.PriorityHigh, classify("/api/v1/messages/123"))
	assert.Equal(t, enum.PriorityHigh, classify("/api/v1/auth/refresh"))
	assert.Equal(t, enum.PriorityHigh, classify("/api/v1/broadcasting/auth"))
	assert.Equal(t, enum.PriorityMedium, classify("/api/v1/matches"))
	assert.Equal(t, enum.PriorityMedium, classify("/api/v1/profile/me"))
	assert.Equal(t, enum.PriorityLow, classify("/api/v1/discovery/feed"))
	assert.Equal(t, enum.PriorityMedium, classify("/api/v1/unmapped"))
}
