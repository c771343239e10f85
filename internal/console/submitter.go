package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/api/validation"
	"github.com/hugh/reconsole/internal/models"
)

// ScanCreator is the slice of the API the submitter needs.
type ScanCreator interface {
	CreateScan(ctx context.Context, req models.ScanRequest) (*models.ScanRecord, error)
}

// Resolver answers whether a domain has any address records.
type Resolver interface {
	Resolve(ctx context.Context, domain string) ([]string, error)
}

type Submitter struct {
	api      ScanCreator
	resolver Resolver
	logger   *slog.Logger
}

// NewSubmitter creates a submitter. resolver may be nil to skip preflight.
func NewSubmitter(api ScanCreator, resolver Resolver, logger *slog.Logger) *Submitter {
	return &Submitter{api: api, resolver: resolver, logger: logger}
}

// Prepare normalizes the input into a request, or fails with a
// ValidationError. Nothing is sent.
func (s *Submitter) Prepare(rawDomain, scanType string) (models.ScanRequest, error) {
	domain := validation.NormalizeDomain(rawDomain)
	if domain == "" {
		return models.ScanRequest{}, &ValidationError{Field: "domain", Message: "Please enter a domain"}
	}
	return models.ScanRequest{Domain: domain, ScanType: models.ParseScanType(scanType)}, nil
}

// Submit validates, then issues the create request.
func (s *Submitter) Submit(ctx context.Context, rawDomain, scanType string) (*models.ScanRecord, error) {
	req, err := s.Prepare(rawDomain, scanType)
	if err != nil {
		return nil, err
	}

	rec, err := s.api.CreateScan(ctx, req)
	if err != nil {
		msg := defaultSubmissionMessage
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		s.logger.Error("scan submission failed", "domain", req.Domain, "error", err)
		return nil, &SubmissionError{Message: msg, Err: err}
	}

	s.logger.Info("scan submitted", "scan_id", rec.ScanID, "domain", rec.Domain, "scan_type", rec.ScanType)
	return rec, nil
}

// Preflight resolves the domain. A non-nil error is a warning for the user,
// never a reason to block submission.
func (s *Submitter) Preflight(ctx context.Context, domain string) error {
	if s.resolver == nil {
		return nil
	}
	if !validation.IsValidDomain(domain) {
		return fmt.Errorf("%s does not look like a domain name", domain)
	}
	addrs, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		return fmt.Errorf("could not resolve %s: %w", domain, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%s has no A or AAAA records", domain)
	}
	s.logger.Debug("preflight resolved", "domain", domain, "addresses", addrs)
	return nil
}

// DNSResolver queries one nameserver for A and AAAA records.
type DNSResolver struct {
	server string
	client *dns.Client
}

func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (r *DNSResolver) Resolve(ctx context.Context, domain string) ([]string, error) {
	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(domain), qtype)
		msg.RecursionDesired = true

		resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
		if err != nil {
			return nil, err
		}
		if resp.Rcode == dns.RcodeNameError {
			return nil, fmt.Errorf("domain not found (NXDOMAIN)")
		}
		if resp.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("DNS error: %s", dns.RcodeToString[resp.Rcode])
		}

		for _, ans := range resp.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				addrs = append(addrs, rr.A.String())
			case *dns.AAAA:
				addrs = append(addrs, rr.AAAA.String())
			}
		}
	}
	return addrs, nil
}
