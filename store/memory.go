package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/casper-member-portal/interfaces"
)

const (
	// numAccountShards spreads per-account transactions over independent mutexes.
	numAccountShards = 128

	defaultTxTimeout = 5 * time.Second
)

type verificationKey struct {
	email string
	kind  interfaces.VerificationKind
}

// MemoryStore is an in-process AccountStore. It is safe for concurrent use.
// Used for local development and tests; state is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[interfaces.AccountID]*interfaces.Account
	byEmail  map[string]interfaces.AccountID
	profiles map[interfaces.AccountID]*interfaces.Profile
	owners   map[interfaces.AccountID][]interfaces.OwnerNode
	aml      map[interfaces.AccountID]*interfaces.AMLReference
	codes    map[verificationKey]*interfaces.EmailVerification

	shards  [numAccountShards]sync.Mutex
	timeout time.Duration
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[interfaces.AccountID]*interfaces.Account),
		byEmail:  make(map[string]interfaces.AccountID),
		profiles: make(map[interfaces.AccountID]*interfaces.Profile),
		owners:   make(map[interfaces.AccountID][]interfaces.OwnerNode),
		aml:      make(map[interfaces.AccountID]*interfaces.AMLReference),
		codes:    make(map[verificationKey]*interfaces.EmailVerification),
		timeout:  defaultTxTimeout,
	}
}

// RunInTx runs fn while holding the account's shard lock. Writes made through
// the store passed to fn are undone in reverse order if fn returns an error
// or panics.
func (s *MemoryStore) RunInTx(ctx context.Context, id interfaces.AccountID, fn func(ctx context.Context, store interfaces.AccountStore) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := &s.shards[shardFor(id)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	tx := &memoryTx{base: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(ctx, tx)
}

// shardFor hashes the account id with FNV-1a.
func shardFor(id interfaces.AccountID) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range id {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return int(h % numAccountShards)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetAccount returns a copy of the account.
func (s *MemoryStore) GetAccount(ctx context.Context, id interfaces.AccountID) (*interfaces.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return a.Clone(), nil
}

// GetAccountByEmail looks up an account by case-insensitive email.
func (s *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*interfaces.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

// SaveAccount inserts or replaces the account.
func (s *MemoryStore) SaveAccount(ctx context.Context, account *interfaces.Account) error {
	_, err := s.saveAccount(account)
	return err
}

func (s *MemoryStore) saveAccount(account *interfaces.Account) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(account.Email)
	if owner, ok := s.byEmail[email]; ok && owner != account.ID {
		return nil, fmt.Errorf("%w: email already in use", interfaces.ErrValidation)
	}

	prev := s.accounts[account.ID]
	if prev != nil {
		delete(s.byEmail, normalizeEmail(prev.Email))
	}
	s.accounts[account.ID] = account.Clone()
	if email != "" {
		s.byEmail[email] = account.ID
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.byEmail, email)
		if prev == nil {
			delete(s.accounts, account.ID)
			return
		}
		s.accounts[account.ID] = prev
		s.byEmail[normalizeEmail(prev.Email)] = prev.ID
	}, nil
}

// GetProfile returns the member's KYC profile.
func (s *MemoryStore) GetProfile(ctx context.Context, userID interfaces.AccountID) (*interfaces.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	c := *p
	return &c, nil
}

// SaveProfile inserts or replaces the member's profile.
func (s *MemoryStore) SaveProfile(ctx context.Context, profile *interfaces.Profile) error {
	s.saveProfile(profile)
	return nil
}

func (s *MemoryStore) saveProfile(profile *interfaces.Profile) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.profiles[profile.UserID]
	c := *profile
	s.profiles[profile.UserID] = &c

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !existed {
			delete(s.profiles, profile.UserID)
			return
		}
		s.profiles[profile.UserID] = prev
	}
}

// ReplaceOwnerNodes replaces the member's declared owners.
func (s *MemoryStore) ReplaceOwnerNodes(ctx context.Context, userID interfaces.AccountID, nodes []interfaces.OwnerNode) error {
	s.replaceOwnerNodes(userID, nodes)
	return nil
}

func (s *MemoryStore) replaceOwnerNodes(userID interfaces.AccountID, nodes []interfaces.OwnerNode) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.owners[userID]
	if len(nodes) == 0 {
		delete(s.owners, userID)
	} else {
		s.owners[userID] = append([]interfaces.OwnerNode(nil), nodes...)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !existed {
			delete(s.owners, userID)
			return
		}
		s.owners[userID] = prev
	}
}

// ListOwnerNodes returns the member's declared owners ordered by email.
func (s *MemoryStore) ListOwnerNodes(ctx context.Context, userID interfaces.AccountID) ([]interfaces.OwnerNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := append([]interfaces.OwnerNode(nil), s.owners[userID]...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Email < nodes[j].Email })
	return nodes, nil
}

// SaveAMLReference replaces the member's AML reference.
func (s *MemoryStore) SaveAMLReference(ctx context.Context, ref *interfaces.AMLReference) error {
	s.saveAMLReference(ref)
	return nil
}

func (s *MemoryStore) saveAMLReference(ref *interfaces.AMLReference) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.aml[ref.UserID]
	c := *ref
	s.aml[ref.UserID] = &c

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !existed {
			delete(s.aml, ref.UserID)
			return
		}
		s.aml[ref.UserID] = prev
	}
}

// GetAMLReference returns the member's reference if it matches referenceID.
func (s *MemoryStore) GetAMLReference(ctx context.Context, userID interfaces.AccountID, referenceID string) (*interfaces.AMLReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.aml[userID]
	if !ok || ref.ReferenceID != referenceID {
		return nil, interfaces.ErrNotFound
	}
	c := *ref
	return &c, nil
}

// SaveEmailVerification upserts the code for (email, kind).
func (s *MemoryStore) SaveEmailVerification(ctx context.Context, v *interfaces.EmailVerification) error {
	s.saveEmailVerification(v)
	return nil
}

func (s *MemoryStore) saveEmailVerification(v *interfaces.EmailVerification) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := verificationKey{email: normalizeEmail(v.Email), kind: v.Kind}
	prev, existed := s.codes[key]
	c := *v
	s.codes[key] = &c

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !existed {
			delete(s.codes, key)
			return
		}
		s.codes[key] = prev
	}
}

// GetEmailVerification returns the outstanding code for (email, kind).
func (s *MemoryStore) GetEmailVerification(ctx context.Context, email string, kind interfaces.VerificationKind) (*interfaces.EmailVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.codes[verificationKey{email: normalizeEmail(email), kind: kind}]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	c := *v
	return &c, nil
}

// DeleteEmailVerificationsBefore removes codes created before cutoff.
func (s *MemoryStore) DeleteEmailVerificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, v := range s.codes {
		if v.CreatedAt.Before(cutoff) {
			delete(s.codes, key)
			deleted++
		}
	}
	return deleted, nil
}

// memoryTx records an undo entry for every write so a failed transaction
// leaves no trace.
type memoryTx struct {
	base *MemoryStore
	undo []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) GetAccount(ctx context.Context, id interfaces.AccountID) (*interfaces.Account, error) {
	return t.base.GetAccount(ctx, id)
}

func (t *memoryTx) GetAccountByEmail(ctx context.Context, email string) (*interfaces.Account, error) {
	return t.base.GetAccountByEmail(ctx, email)
}

func (t *memoryTx) SaveAccount(ctx context.Context, account *interfaces.Account) error {
	undo, err := t.base.saveAccount(account)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undo)
	return nil
}

func (t *memoryTx) GetProfile(ctx context.Context, userID interfaces.AccountID) (*interfaces.Profile, error) {
	return t.base.GetProfile(ctx, userID)
}

func (t *memoryTx) SaveProfile(ctx context.Context, profile *interfaces.Profile) error {
	t.undo = append(t.undo, t.base.saveProfile(profile))
	return nil
}

func (t *memoryTx) ReplaceOwnerNodes(ctx context.Context, userID interfaces.AccountID, nodes []interfaces.OwnerNode) error {
	t.undo = append(t.undo, t.base.replaceOwnerNodes(userID, nodes))
	return nil
}

func (t *memoryTx) ListOwnerNodes(ctx context.Context, userID interfaces.AccountID) ([]interfaces.OwnerNode, error) {
	return t.base.ListOwnerNodes(ctx, userID)
}

func (t *memoryTx) SaveAMLReference(ctx context.Context, ref *interfaces.AMLReference) error {
	t.undo = append(t.undo, t.base.saveAMLReference(ref))
	return nil
}

func (t *memoryTx) GetAMLReference(ctx context.Context, userID interfaces.AccountID, referenceID string) (*interfaces.AMLReference, error) {
	return t.base.GetAMLReference(ctx, userID, referenceID)
}

func (t *memoryTx) SaveEmailVerification(ctx context.Context, v *interfaces.EmailVerification) error {
	t.undo = append(t.undo, t.base.saveEmailVerification(v))
	return nil
}

func (t *memoryTx) GetEmailVerification(ctx context.Context, email string, kind interfaces.VerificationKind) (*interfaces.EmailVerification, error) {
	return t.base.GetEmailVerification(ctx, email, kind)
}

func (t *memoryTx) DeleteEmailVerificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	// not undoable; expired codes are never needed again
	return t.base.DeleteEmailVerificationsBefore(ctx, cutoff)
}
