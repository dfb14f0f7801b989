package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{"short address", "a@b.co", true},
		{"mixed case with tag", "A.B+tag@Example.COM", true},
		{"subdomain", "user_1%x@mail.example.org", true},
		{"exactly 32 characters", strings.Repeat("a", 26) + "@b.com", true},
		{"empty", "", false},
		{"missing at", "ab.co", false},
		{"missing local part", "@b.co", false},
		{"one letter tld", "a@b.c", false},
		{"five letter tld", "a@b.comma", false},
		{"numeric tld", "a@b.c0", false},
		{"space in local part", "a b@c.de", false},
		{"33 characters", strings.Repeat("a", 27) + "@b.com", false},
		{"two at signs", "a@b@c.de", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.email))
		})
	}
}
