package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.b@sub.example.com", "sub.example.com"},
		{"not-an-email", Other},
		{"Contact us at promo.shop.io", "promo.shop.io"},
		{"Alice <alice@Example.COM>", "example.com"},
		{`"Shop" <news@mail.shop.co>`, "mail.shop.co"},
		{"noreply@host.example.org.", "host.example.org"},
		{"Updates from github.com today", "github.com"},
		{"", Other},
		{"@", Other},
		{"Unknown", Other},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Domain(tc.in), "Domain(%q)", tc.in)
	}
}

func TestDomainIsDeterministic(t *testing.T) {
	in := "Team <team@lists.example.net>"
	first := Domain(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Domain(in))
	}
}
