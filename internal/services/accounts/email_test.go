package accounts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
	assert.Equal(t, "bob@example.com", NormalizeEmail("bob@example.com"))
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"first.last+tag@sub.example.co",
		"x@y.zz",
	}
	for _, email := range valid {
		assert.True(t, ValidEmail(email), email)
	}

	invalid := []string{
		"",
		"no-at-sign",
		"missing@tld",
		"two@@example.com",
		"a@b@c.example",
		"spaces in@example.com",
		"trailing@example.com ",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, email := range invalid {
		assert.False(t, ValidEmail(email), email)
	}
}
