package recipient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainAllowList(t *testing.T) {
	p := NewDomainAllowList("gmail.com")

	tests := []struct {
		name string
		addr string
		want error
	}{
		{"allowed domain", "help@gmail.com", nil},
		{"case insensitive", "Help@GMAIL.com", nil},
		{"surrounding space", "  help@gmail.com ", nil},
		{"other provider", "help@yahoo.com", ErrDomainBlocked},
		{"lookalike suffix", "help@notgmail.com", ErrDomainBlocked},
		{"subdomain", "help@mail.gmail.com", ErrDomainBlocked},
		{"empty", "", ErrMalformed},
		{"no at sign", "gmail.com", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.addr)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDomainAllowListNormalizesConfig(t *testing.T) {
	p := NewDomainAllowList(" @Campus.EDU ", "", "gmail.com")

	assert.ElementsMatch(t, []string{"campus.edu", "gmail.com"}, p.Domains())
	assert.NoError(t, p.Check("desk@campus.edu"))
}

func TestPolicyFunc(t *testing.T) {
	var seen string
	p := PolicyFunc(func(addr string) error {
		seen = addr
		return nil
	})

	assert.NoError(t, p.Check("a@b.c"))
	assert.Equal(t, "a@b.c", seen)
}
