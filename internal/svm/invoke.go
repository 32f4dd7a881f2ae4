package svm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/oracle"
	"github.com/coldbell/wager/backend/internal/wager"
)

const maxInvokeDepth = 5

var (
	ErrPrivilegeEscalation = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrReadonlyModified    = errors.New("instruction modified a read-only account")
	ErrExternalModified    = errors.New("instruction modified an account it does not own")
	ErrUnbalanced          = errors.New("sum of account balances changed")
	ErrMissingAccount      = errors.New("account is not available to the instruction")
)

// workingSet holds the uncommitted accounts of one transaction.
type workingSet struct {
	bank     *Bank
	accounts map[solana.PublicKey]*wager.AccountInfo
	order    []solana.PublicKey
	initial  uint64
}

func newWorkingSet(b *Bank, metas []*solana.AccountMeta) *workingSet {
	w := &workingSet{bank: b, accounts: make(map[solana.PublicKey]*wager.AccountInfo, len(metas))}
	for _, m := range metas {
		if _, ok := w.accounts[m.PublicKey]; ok {
			continue
		}
		acc := b.accounts[m.PublicKey]
		w.accounts[m.PublicKey] = &wager.AccountInfo{
			Key:        m.PublicKey,
			Owner:      acc.Owner,
			Lamports:   acc.Lamports,
			Data:       append([]byte(nil), acc.Data...),
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
			Executable: acc.Executable,
		}
		w.order = append(w.order, m.PublicKey)
		w.initial += acc.Lamports
	}
	return w
}

func (w *workingSet) checkBalanced(fee uint64) error {
	var total uint64
	for _, acc := range w.accounts {
		total += acc.Lamports
	}
	if total+fee != w.initial {
		return fmt.Errorf("%w: before %d, after %d plus fee %d", ErrUnbalanced, w.initial, total, fee)
	}
	return nil
}

func (w *workingSet) commit() {
	for _, key := range w.order {
		acc := w.accounts[key]
		if !acc.IsWritable {
			continue
		}
		w.bank.setAccountLocked(key, Account{
			Owner:      acc.Owner,
			Lamports:   acc.Lamports,
			Data:       acc.Data,
			Executable: acc.Executable,
		})
	}
}

func (w *workingSet) execute(logs *[]string, programID solana.PublicKey, accounts []*wager.AccountInfo, data []byte, depth int) error {
	program, ok := w.bank.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	*logs = append(*logs, fmt.Sprintf("Program %s invoke [%d]", programID, depth))
	f := &frame{
		set:       w,
		programID: programID,
		accounts:  accounts,
		depth:     depth,
		logs:      logs,
		builtin:   w.bank.builtins[programID],
	}
	f.snapshot()
	err := program.Process(f, accounts, data)
	if err == nil {
		err = f.verify()
	}
	if err != nil {
		*logs = append(*logs, fmt.Sprintf("Program %s failed: %v", programID, err))
		return err
	}
	*logs = append(*logs, fmt.Sprintf("Program %s success", programID))
	return nil
}

type snapshot struct {
	owner    solana.PublicKey
	lamports uint64
	data     []byte
}

// frame is one program invocation. It is the wager.Host the program sees.
type frame struct {
	set       *workingSet
	programID solana.PublicKey
	accounts  []*wager.AccountInfo
	depth     int
	logs      *[]string
	builtin   bool
	pre       map[solana.PublicKey]snapshot
}

func (f *frame) snapshot() {
	f.pre = make(map[solana.PublicKey]snapshot, len(f.accounts))
	for _, acc := range f.accounts {
		f.pre[acc.Key] = snapshot{owner: acc.Owner, lamports: acc.Lamports, data: append([]byte(nil), acc.Data...)}
	}
}

// verify checks the changes the program made since the last snapshot.
func (f *frame) verify() error {
	for _, acc := range f.accounts {
		pre := f.pre[acc.Key]
		dataChanged := !bytes.Equal(pre.data, acc.Data)
		changed := dataChanged || pre.lamports != acc.Lamports || !pre.owner.Equals(acc.Owner)
		if changed && !acc.IsWritable {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, acc.Key)
		}
		if f.builtin {
			continue
		}
		owned := pre.owner.Equals(f.programID)
		if !owned && (dataChanged || acc.Lamports < pre.lamports || !pre.owner.Equals(acc.Owner)) {
			return fmt.Errorf("%w: %s", ErrExternalModified, acc.Key)
		}
	}
	return nil
}

func (f *frame) Invoke(ix solana.Instruction, proofs ...wager.AuthorityProof) error {
	if f.depth >= maxInvokeDepth {
		return fmt.Errorf("invocation depth %d exceeded", maxInvokeDepth)
	}
	if err := f.verify(); err != nil {
		return err
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("encode instruction: %w", err)
	}

	signers := make(map[solana.PublicKey]bool, len(proofs))
	for _, proof := range proofs {
		address, err := solana.CreateProgramAddress(proof.Seeds, f.programID)
		if err != nil || !address.Equals(proof.Address) {
			return fmt.Errorf("%w: seeds do not derive %s", ErrPrivilegeEscalation, proof.Address)
		}
		signers[address] = true
	}

	callers := make(map[solana.PublicKey]*wager.AccountInfo, len(f.accounts))
	for _, acc := range f.accounts {
		if _, ok := callers[acc.Key]; !ok {
			callers[acc.Key] = acc
		}
	}
	views := make(map[solana.PublicKey]*wager.AccountInfo)
	accounts := make([]*wager.AccountInfo, 0, len(ix.Accounts()))
	for _, meta := range ix.Accounts() {
		caller, ok := callers[meta.PublicKey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.PublicKey)
		}
		if meta.IsSigner && !caller.IsSigner && !signers[meta.PublicKey] {
			return fmt.Errorf("%w: %s must sign", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s is read-only", ErrPrivilegeEscalation, meta.PublicKey)
		}
		view, ok := views[meta.PublicKey]
		if !ok {
			copied := *caller
			copied.IsSigner = false
			copied.IsWritable = false
			view = &copied
			views[meta.PublicKey] = view
		}
		view.IsSigner = view.IsSigner || meta.IsSigner
		view.IsWritable = view.IsWritable || meta.IsWritable
		accounts = append(accounts, view)
	}

	if err := f.set.execute(f.logs, ix.ProgramID(), accounts, data, f.depth+1); err != nil {
		return err
	}
	for key, view := range views {
		caller := callers[key]
		caller.Owner = view.Owner
		caller.Lamports = view.Lamports
		caller.Data = view.Data
		caller.Executable = view.Executable
	}
	f.snapshot()
	return nil
}

func (f *frame) UnixTimestamp() int64 { return f.set.bank.unixTime }

func (f *frame) MinimumBalance(size uint64) uint64 { return MinimumBalance(size) }

func (f *frame) LatestAnswer(_, feed *wager.AccountInfo) (*big.Int, error) {
	return oracle.LatestAnswer(feed.Owner, feed.Data)
}

func (f *frame) Log(message string) {
	*f.logs = append(*f.logs, "Program log: "+message)
}
