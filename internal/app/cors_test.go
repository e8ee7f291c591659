package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"admin.example.com", "*.review.example.com", "localhost:*", " "})

	assert.True(t, p.Allow("https://admin.example.com"))
	assert.True(t, p.Allow("https://ADMIN.example.com"))
	assert.True(t, p.Allow("https://eu.review.example.com"))
	assert.True(t, p.Allow("http://localhost:5173"))
	assert.True(t, p.Allow("http://localhost"))

	assert.False(t, p.Allow("https://review.example.com.evil.io"))
	assert.False(t, p.Allow("https://example.com"))
	assert.False(t, p.Allow("http://localhost.evil.io:80"))
	assert.False(t, p.Allow(""))
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "42s", humanizeDuration(42*time.Second+300*time.Millisecond))
	assert.Equal(t, "5m0s", humanizeDuration(5*time.Minute+10*time.Second))
	assert.Equal(t, "3h0m0s", humanizeDuration(3*time.Hour+20*time.Minute))
	assert.Equal(t, "48h0m0s", humanizeDuration(50*time.Hour))
}
