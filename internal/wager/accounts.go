package wager

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// slot is one positional entry of an instruction's account manifest.
type slot struct {
	role     string
	dst      **AccountInfo
	signer   bool
	writable bool
	want     func() (solana.PublicKey, error)
}

func account(role string, dst **AccountInfo) slot {
	return slot{role: role, dst: dst}
}

func (s slot) Signer() slot {
	s.signer = true
	return s
}

func (s slot) Writable() slot {
	s.writable = true
	return s
}

// Is pins the slot to a static address such as a program id or sysvar.
func (s slot) Is(key solana.PublicKey) slot {
	s.want = func() (solana.PublicKey, error) { return key, nil }
	return s
}

// Expect pins the slot to an address computed from earlier slots.
func (s slot) Expect(fn func() (solana.PublicKey, error)) slot {
	s.want = fn
	return s
}

// Derived pins the slot to a program derived address and keeps the
// derivation in out so the caller can sign for it.
func (s slot) Derived(out *Derived, fn func() (Derived, error)) slot {
	s.want = func() (solana.PublicKey, error) {
		d, err := fn()
		if err != nil {
			return solana.PublicKey{}, err
		}
		if out != nil {
			*out = d
		}
		return d.Address, nil
	}
	return s
}

// resolve binds accounts to the manifest by position and then validates
// every expectation in manifest order. Binding happens first so that
// expectations may refer to any bound account.
func resolve(accounts []*AccountInfo, slots ...slot) error {
	if len(accounts) < len(slots) {
		return invalidAccount(slots[len(accounts)].role, "missing account (got %d, want %d)", len(accounts), len(slots))
	}
	for i, s := range slots {
		*s.dst = accounts[i]
	}
	for _, s := range slots {
		acc := *s.dst
		if s.signer && !acc.IsSigner {
			return fmt.Errorf("%w: %s: %s must sign", ErrUnauthorisedAccess, s.role, acc.Key)
		}
		if s.want != nil {
			if err := expectKey(s.role, acc, s.want); err != nil {
				return err
			}
		}
		if s.writable && !acc.IsWritable {
			return invalidAccount(s.role, "%s must be writable", acc.Key)
		}
	}
	return nil
}

func expectKey(role string, acc *AccountInfo, want func() (solana.PublicKey, error)) error {
	key, err := want()
	if err != nil {
		return invalidAccount(role, "derive address: %v", err)
	}
	if !acc.Key.Equals(key) {
		return invalidAccount(role, "got %s, want %s", acc.Key, key)
	}
	return nil
}

func matches(key solana.PublicKey) func() (solana.PublicKey, error) {
	return func() (solana.PublicKey, error) { return key, nil }
}

func associated(wallet, mint **AccountInfo) func() (solana.PublicKey, error) {
	return func() (solana.PublicKey, error) {
		address, _, err := solana.FindAssociatedTokenAddress((*wallet).Key, (*mint).Key)
		return address, err
	}
}
