package collyfetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

var (
	errTooManyRedirects  = errors.New("too many redirects")
	errUnsupportedScheme = errors.New("scheme must be http or https")
	errMissingHost       = errors.New("url has no host")
	errNoResponse        = errors.New("no response received")
)

// Classify maps a transport error onto the recorded error kind.
func Classify(err error) crawler.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return crawler.ErrorKindCanceled
	}
	if errors.Is(err, errTooManyRedirects) {
		return crawler.ErrorKindRedirect
	}
	if errors.Is(err, errUnsupportedScheme) || errors.Is(err, errMissingHost) {
		return crawler.ErrorKindInvalidURL
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return crawler.ErrorKindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return crawler.ErrorKindTimeout
		}
		return crawler.ErrorKindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawler.ErrorKindTimeout
	}
	if isTLSError(err) {
		return crawler.ErrorKindTLS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return crawler.ErrorKindConnect
	}
	return crawler.ErrorKindOther
}

func isTLSError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
		recordHeader     tls.RecordHeaderError
		verifyErr        *tls.CertificateVerificationError
		alertErr         tls.AlertError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &recordHeader) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &alertErr)
}
