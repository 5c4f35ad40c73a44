// Package recipient decides which caller-supplied notification addresses are accepted.
package recipient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed     = errors.New("malformed email address")
	ErrDomainBlocked = errors.New("email domain not allowed")
)

// Policy validates a recipient address before anything is written or sent.
type Policy interface {
	Check(addr string) error
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(addr string) error

func (f PolicyFunc) Check(addr string) error { return f(addr) }

// DomainAllowList accepts syntactically valid addresses whose domain is listed.
type DomainAllowList struct {
	domains  map[string]struct{}
	validate *validator.Validate
}

func NewDomainAllowList(domains ...string) *DomainAllowList {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return &DomainAllowList{domains: set, validate: validator.New()}
}

func (p *DomainAllowList) Check(addr string) error {
	addr = strings.TrimSpace(addr)
	if err := p.validate.Var(addr, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrMalformed, addr)
	}
	at := strings.LastIndex(addr, "@")
	domain := strings.ToLower(addr[at+1:])
	if _, ok := p.domains[domain]; !ok {
		return fmt.Errorf("%w: %s", ErrDomainBlocked, domain)
	}
	return nil
}

// Domains lists the allowed domains, for messages shown to the reporter.
func (p *DomainAllowList) Domains() []string {
	out := make([]string, 0, len(p.domains))
	for d := range p.domains {
		out = append(out, d)
	}
	return out
}
