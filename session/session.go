// Package session keeps generated key pairs, signatures and verification
// results in memory for the lifetime of a user session.
//
// Nothing in this package touches durable storage. Private keys are
// destroyed whenever they leave a session: when the slot is replaced or
// cleared, when the session is dropped or idles out, and when the Store is
// closed.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vitalvas/docsign/keys"
	"github.com/vitalvas/docsign/signing"
)

var (
	// ErrUnknownSlot is returned by Put for a slot that is not defined.
	ErrUnknownSlot = errors.New("session: unknown slot")

	// ErrSlotType is returned by Put when the value type does not match
	// the slot.
	ErrSlotType = errors.New("session: value type does not match slot")

	// ErrEmptySlot is returned by WithKeyPair when no key pair is stored.
	ErrEmptySlot = errors.New("session: slot is empty")
)

// Slot identifies a value kept in a session.
type Slot string

const (
	// SlotKeyPair holds a *keys.KeyPair.
	SlotKeyPair Slot = "rsaKeys"

	// SlotSignature holds a SignatureEntry.
	SlotSignature Slot = "documentSignature"

	// SlotVerification holds a VerificationEntry.
	SlotVerification Slot = "verificationData"
)

// SignatureEntry is a signature together with the display name of the
// document it was produced for. The name is for presentation only.
type SignatureEntry struct {
	Signature    signing.Signature
	DocumentName string
}

// VerificationEntry is a verification outcome together with the display
// name of the verified document.
type VerificationEntry struct {
	Result       signing.VerificationResult
	DocumentName string
}

// Session holds at most one value per slot. All methods are safe for
// concurrent use.
type Session struct {
	id string

	mu    sync.Mutex
	slots map[Slot]any
}

func newSession(id string) *Session {
	return &Session{
		id:    id,
		slots: make(map[Slot]any, 3),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Put stores value in slot, replacing and discarding any previous value.
func (s *Session) Put(slot Slot, value any) error {
	if err := checkSlotValue(slot, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.slots[slot]; ok {
		if pair, isPair := prev.(*keys.KeyPair); isPair && pair != value {
			pair.Destroy()
		}
	}

	s.slots[slot] = value

	return nil
}

// Get returns the value stored in slot. A *keys.KeyPair returned by Get
// may be destroyed by a concurrent Put or Clear; use WithKeyPair to read
// key material.
func (s *Session) Get(slot Slot) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.slots[slot]

	return v, ok
}

// Clear removes the value stored in slot.
func (s *Session) Clear(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked(slot)
}

// ClearAll removes every value from the session.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot := range s.slots {
		s.clearLocked(slot)
	}
}

// Len returns the number of occupied slots.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.slots)
}

func (s *Session) clearLocked(slot Slot) {
	if pair, ok := s.slots[slot].(*keys.KeyPair); ok {
		pair.Destroy()
	}

	delete(s.slots, slot)
}

// PutKeyPair stores pair, destroying any pair stored before it.
func (s *Session) PutKeyPair(pair *keys.KeyPair) error {
	return s.Put(SlotKeyPair, pair)
}

// WithKeyPair calls fn with the stored key pair while holding the session
// lock, so the pair is neither replaced nor destroyed while fn runs. fn
// must not retain the pair or call other Session methods. ErrEmptySlot is
// returned without calling fn when no pair is stored.
func (s *Session) WithKeyPair(fn func(pair *keys.KeyPair) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.slots[SlotKeyPair].(*keys.KeyPair)
	if !ok {
		return ErrEmptySlot
	}

	return fn(pair)
}

// HasKeyPair reports whether a key pair is stored.
func (s *Session) HasKeyPair() bool {
	_, ok := s.Get(SlotKeyPair)

	return ok
}

// PutSignature stores a signature and the name of the signed document.
func (s *Session) PutSignature(entry SignatureEntry) error {
	return s.Put(SlotSignature, entry)
}

// Signature returns the stored signature entry.
func (s *Session) Signature() (SignatureEntry, bool) {
	v, ok := s.Get(SlotSignature)
	if !ok {
		return SignatureEntry{}, false
	}

	entry, ok := v.(SignatureEntry)

	return entry, ok
}

// PutVerification stores the latest verification outcome.
func (s *Session) PutVerification(entry VerificationEntry) error {
	return s.Put(SlotVerification, entry)
}

// Verification returns the latest verification outcome.
func (s *Session) Verification() (VerificationEntry, bool) {
	v, ok := s.Get(SlotVerification)
	if !ok {
		return VerificationEntry{}, false
	}

	entry, ok := v.(VerificationEntry)

	return entry, ok
}

func checkSlotValue(slot Slot, value any) error {
	var ok bool

	switch slot {
	case SlotKeyPair:
		var pair *keys.KeyPair
		pair, ok = value.(*keys.KeyPair)
		ok = ok && pair != nil
	case SlotSignature:
		_, ok = value.(SignatureEntry)
	case SlotVerification:
		_, ok = value.(VerificationEntry)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}

	if !ok {
		return fmt.Errorf("%w: %T for %q", ErrSlotType, value, slot)
	}

	return nil
}
