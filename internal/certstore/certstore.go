// Package certstore keeps the user's per-host TLS trust decisions for
// servers with certificates the system roots reject.
package certstore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/eventbus"
)

// Prompt asks the user whether to trust a certificate. Implementations
// typically raise a dialog; returning an error or panicking counts as a
// refusal.
type Prompt func(ctx context.Context, req eventbus.CertTrustRequestEvent) (bool, error)

// Store maps host -> serialized trusted certificate. Trust is exact: a host
// whose certificate changes must be re-approved, and approving the new one
// replaces the old entry rather than accumulating next to it.
type Store struct {
	store  *store.Store
	bus    *eventbus.Bus
	prompt Prompt

	mu      sync.Mutex
	certs   map[string]string
	pending map[string]*pendingPrompt
}

// pendingPrompt coalesces concurrent trust requests for one fingerprint.
type pendingPrompt struct {
	done    chan struct{}
	trusted bool
}

// Option customises trust store construction.
type Option func(*Store)

// WithPrompt installs the user-facing trust prompt. Without one every
// unknown certificate is refused.
func WithPrompt(prompt Prompt) Option {
	return func(s *Store) {
		s.prompt = prompt
	}
}

// New loads the persisted trust decisions. A failing store is logged and
// the trust store starts empty, refusing everything unknown.
func New(st *store.Store, bus *eventbus.Bus, opts ...Option) *Store {
	s := &Store{
		store:   st,
		bus:     bus,
		certs:   make(map[string]string),
		pending: make(map[string]*pendingPrompt),
	}
	for _, opt := range opts {
		opt(s)
	}

	if st != nil {
		certs, err := st.ListCertificates(context.Background())
		if err != nil {
			log.Printf("[CertStore] Failed to load certificates, starting empty: %v", err)
		} else {
			s.certs = certs
		}
	}
	return s
}

// Serialize produces the stored form of a certificate: the issuer name and
// the DER bytes, joined so a byte-level change in either invalidates trust.
func Serialize(issuerName string, der []byte) string {
	return issuerName + "\n" + base64.StdEncoding.EncodeToString(der)
}

// Fingerprint identifies a certificate for prompt coalescing.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return fmt.Sprintf("sha256:%x", sum)
}

// IsTrusted reports whether host already has exactly this certificate
// approved.
func (s *Store) IsTrusted(host, issuerName string, der []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certs[host] == Serialize(issuerName, der)
}

// RequestTrust decides whether to proceed with a certificate the system
// rejected. Already-approved certificates pass without a prompt. Otherwise
// the user is asked once per fingerprint: concurrent requests for the same
// certificate share a single prompt and all receive the same answer. A
// missing or failing prompt refuses (fail closed).
func (s *Store) RequestTrust(ctx context.Context, host, issuerName string, der []byte, certErr string) bool {
	serialized := Serialize(issuerName, der)

	s.mu.Lock()
	existing, known := s.certs[host]
	if known && existing == serialized {
		s.mu.Unlock()
		return true
	}
	isReplacing := known

	fingerprint := Fingerprint(der)
	if p, inFlight := s.pending[fingerprint]; inFlight {
		s.mu.Unlock()
		<-p.done
		return p.trusted
	}

	p := &pendingPrompt{done: make(chan struct{})}
	s.pending[fingerprint] = p
	s.mu.Unlock()

	req := eventbus.CertTrustRequestEvent{
		Host:        host,
		Fingerprint: fingerprint,
		IssuerName:  issuerName,
		Error:       certErr,
		IsReplacing: isReplacing,
	}
	eventbus.Publish(ctx, s.bus, eventbus.Certs.RequestTrust, eventbus.SourceCertStore, req)

	p.trusted = s.ask(ctx, req)

	s.mu.Lock()
	delete(s.pending, fingerprint)
	if p.trusted {
		s.certs[host] = serialized
	}
	s.mu.Unlock()
	close(p.done)

	if p.trusted {
		if s.store != nil {
			if err := s.store.PutCertificate(ctx, host, serialized); err != nil {
				log.Printf("[CertStore] Failed to persist certificate for %s: %v", host, err)
			}
		}
		eventbus.Publish(ctx, s.bus, eventbus.Certs.Added, eventbus.SourceCertStore, eventbus.CertAddedEvent{
			Host:        host,
			Fingerprint: fingerprint,
		})
	}
	return p.trusted
}

// ask runs the prompt, treating every failure mode as a refusal.
func (s *Store) ask(ctx context.Context, req eventbus.CertTrustRequestEvent) (trusted bool) {
	if s.prompt == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CertStore] Trust prompt panicked, refusing %s: %v", req.Host, r)
			trusted = false
		}
	}()

	trusted, err := s.prompt(ctx, req)
	if err != nil {
		log.Printf("[CertStore] Trust prompt failed, refusing %s: %v", req.Host, err)
		return false
	}
	return trusted
}

// Clear forgets every trust decision.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.certs = make(map[string]string)
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.DeleteAllCertificates(ctx); err != nil {
		return fmt.Errorf("certstore: clear: %w", err)
	}
	return nil
}

// Count returns the number of trusted hosts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.certs)
}
