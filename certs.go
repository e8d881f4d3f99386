// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LoadClientIdentity loads the PEM encoded client certificate and key.
//
// A missing file yields [ErrFileNotFound] and a parse or pairing
// failure yields [ErrMalformedCertificate], both wrapped in an [*Error]
// with [KindConfiguration].
func LoadClientIdentity(certPath, keyPath string) (tls.Certificate, error) {
	certPEM, err := readPEMFile(certPath, "certificate")
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := readPEMFile(keyPath, "key")
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, newError(KindConfiguration, fmt.Errorf(
			"%w: failed to load certificate from %s and %s: %s", ErrMalformedCertificate, certPath, keyPath, err))
	}
	return cert, nil
}

// PinnedCertificate is the certificate the server must present.
//
// Pinning is the sole trust anchor: there is no hostname check, no chain of
// trust validation, and no revocation check. It is equivalent to trust on
// first use where the first use is the provisioning of the PEM file.
type PinnedCertificate struct {
	cert        *x509.Certificate
	fingerprint [sha256.Size]byte
}

// LoadPinnedCertificate loads the first PEM certificate contained in path.
func LoadPinnedCertificate(path string) (*PinnedCertificate, error) {
	data, err := readPEMFile(path, "certificate")
	if err != nil {
		return nil, err
	}
	for rest := data; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, newError(KindConfiguration, fmt.Errorf("%w: %s: %s", ErrMalformedCertificate, path, err))
		}
		return NewPinnedCertificate(cert), nil
	}
	return nil, newError(KindConfiguration, fmt.Errorf("%w: %s: no PEM certificate found", ErrMalformedCertificate, path))
}

// NewPinnedCertificate pins an already parsed certificate.
func NewPinnedCertificate(cert *x509.Certificate) *PinnedCertificate {
	return &PinnedCertificate{cert: cert, fingerprint: sha256.Sum256(cert.Raw)}
}

// Certificate returns the pinned certificate.
func (p *PinnedCertificate) Certificate() *x509.Certificate {
	return p.cert
}

// Fingerprint returns the SHA-256 of the DER encoding of the pinned certificate.
func (p *PinnedCertificate) Fingerprint() [sha256.Size]byte {
	return p.fingerprint
}

// String returns the hex encoded fingerprint.
func (p *PinnedCertificate) String() string {
	return hex.EncodeToString(p.fingerprint[:])
}

// Matches reports whether the DER encoded certificate equals the pinned one.
func (p *PinnedCertificate) Matches(rawCert []byte) bool {
	sum := sha256.Sum256(rawCert)
	return bytes.Equal(sum[:], p.fingerprint[:])
}

// VerifyPeerCertificate is suitable for [tls.Config.VerifyPeerCertificate].
//
// It checks the leaf certificate only and ignores verifiedChains, which is
// empty anyway when [tls.Config.InsecureSkipVerify] is set.
func (p *PinnedCertificate) VerifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) < 1 {
		return ErrNoPeerCertificate
	}
	if !p.Matches(rawCerts[0]) {
		return ErrCertificatePinMismatch
	}
	return nil
}

// readPEMFile reads a file distinguishing a missing file from other errors.
func readPEMFile(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, newError(KindConfiguration, fmt.Errorf("%w: %s file %s", ErrFileNotFound, what, path))
	case err != nil:
		return nil, newError(KindConfiguration, fmt.Errorf("failed to read %s file %s: %w", what, path, err))
	default:
		return data, nil
	}
}
