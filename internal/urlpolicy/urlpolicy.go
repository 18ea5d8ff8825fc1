// Package urlpolicy checks candidate video URLs against the registration policy:
// scheme, domain allow-list and a bounded reachability probe. Every step fails closed.
package urlpolicy

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/errs"
)

// User-facing messages, one per rejection reason.
const (
	MsgHTTPSRequired    = "Video URL must use HTTPS protocol."
	MsgInvalidFormat    = "Invalid URL format."
	MsgDomainNotAllowed = "Video domain is not whitelisted."
	MsgUnreachable      = "Video URL is not accessible (unreachable or invalid)."
)

// DefaultTimeout bounds the reachability probe when Policy.Timeout is unset.
const DefaultTimeout = 3 * time.Second

// Policy is the registration policy.
type Policy struct {
	AllowedDomains []string
	RequireHTTPS   bool
	Timeout        time.Duration
}

// Doer performs HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator applies a Policy. It holds no locks; the probe may block up to Policy.Timeout.
type Validator struct {
	domains      []string
	requireHTTPS bool
	timeout      time.Duration
	client       Doer
	log          *zap.Logger
}

// New constructs a Validator. A nil client means a default *http.Client bounded by the policy timeout.
func New(p Policy, client Doer, log *zap.Logger) *Validator {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	domains := make([]string, 0, len(p.AllowedDomains))
	for _, d := range p.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return &Validator{
		domains:      domains,
		requireHTTPS: p.RequireHTTPS,
		timeout:      timeout,
		client:       client,
		log:          log,
	}
}

// Validate returns nil when raw passes every check, or *errs.ValidationError otherwise.
func (v *Validator) Validate(ctx context.Context, raw string) error {
	u, perr := url.Parse(strings.TrimSpace(raw))

	if v.requireHTTPS {
		if perr != nil || !strings.EqualFold(u.Scheme, "https") {
			return errs.NewValidation(errs.ReasonInvalidScheme, MsgHTTPSRequired)
		}
	} else if perr == nil && u.Scheme != "" && !strings.EqualFold(u.Scheme, "https") && !strings.EqualFold(u.Scheme, "http") {
		return errs.NewValidation(errs.ReasonInvalidScheme, MsgInvalidFormat)
	}

	if perr != nil || u.Hostname() == "" {
		return errs.NewValidation(errs.ReasonInvalidFormat, MsgInvalidFormat)
	}

	if !v.DomainAllowed(u.Hostname()) {
		return errs.NewValidation(errs.ReasonDomainNotAllowed, MsgDomainNotAllowed)
	}

	if err := v.probe(ctx, u.String()); err != nil {
		v.log.Info("video url probe failed", zap.String("host", u.Hostname()), zap.Error(err))
		return errs.NewValidation(errs.ReasonUnreachable, MsgUnreachable)
	}
	return nil
}

// DomainAllowed reports whether host equals an allow-listed domain or is a subdomain of one.
// "evilexample.com" does not match "example.com".
func (v *Validator) DomainAllowed(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, d := range v.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type statusError int

func (s statusError) Error() string { return "unexpected status " + http.StatusText(int(s)) }

// probe issues a HEAD request, following redirects, and requires a 2xx final response.
func (v *Validator) probe(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode)
	}
	return nil
}
