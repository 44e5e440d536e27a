package relay

import (
	"fmt"
	"time"

	"github.com/SWAI-Ltd/Sealbox/internal/proto"
)

// Conn is a live transport session attached to an account. The relay only
// ever hands frames to a Conn; it never reads from one.
type Conn interface {
	Send(*proto.Frame) error
	Open() bool
	RemoteAddr() string
}

// Account is a registered identity. PublicKey and Username are fixed at first
// registration; later registrations of the same id only attach connections.
type Account struct {
	ID           string
	PublicKey    []byte
	Username     string
	RegisteredAt time.Time

	conns map[Conn]struct{}
}

// OpenConns returns the account's connections whose transport is still open.
// Closed-but-not-yet-reaped handles are excluded.
func (a *Account) OpenConns() []Conn {
	out := make([]Conn, 0, len(a.conns))
	for c := range a.conns {
		if c.Open() {
			out = append(out, c)
		}
	}
	return out
}

// Online reports whether the account can receive a live delivery right now
func (a *Account) Online() bool {
	for c := range a.conns {
		if c.Open() {
			return true
		}
	}
	return false
}

// Directory maps account ids to accounts and their live connections.
// It is not safe for concurrent use; the owning Relay serializes access.
type Directory struct {
	accounts map[string]*Account
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]*Account)}
}

// Register creates the account on first sight and attaches the connection.
// Re-registering an existing id never overwrites its key or username.
// Attaching the same handle twice is a no-op. Returns the total number of
// known account ids.
func (d *Directory) Register(id string, publicKey []byte, username string, c Conn, now time.Time) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("register: account id: %w", ErrValidation)
	}
	if len(publicKey) == 0 {
		return 0, fmt.Errorf("register: public key: %w", ErrValidation)
	}
	acct, ok := d.accounts[id]
	if !ok {
		acct = &Account{
			ID:           id,
			PublicKey:    publicKey,
			Username:     username,
			RegisteredAt: now,
			conns:        make(map[Conn]struct{}),
		}
		d.accounts[id] = acct
	}
	if c != nil {
		acct.conns[c] = struct{}{}
	}
	return len(d.accounts), nil
}

// Lookup returns the account for id
func (d *Directory) Lookup(id string) (*Account, error) {
	acct, ok := d.accounts[id]
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", id, ErrNotFound)
	}
	return acct, nil
}

// RemoveConnection detaches a closed handle from the account. Idempotent;
// the account itself is never deleted.
func (d *Directory) RemoveConnection(id string, c Conn) {
	if acct, ok := d.accounts[id]; ok {
		delete(acct.conns, c)
	}
}

// Count returns the number of known account ids
func (d *Directory) Count() int {
	return len(d.accounts)
}
