// Package svm is an in-process ledger that executes signed transactions
// against the wager program and the builtin programs it calls. It backs the
// test suites and the CLI's offline simulation.
package svm

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/wager"
)

const (
	LamportsPerSignature uint64 = 5_000

	lamportsPerByteYear    = 3_480
	exemptionThreshold     = 2
	accountStorageOverhead = 128
	recentBlockhashes      = 150
)

var (
	ErrBlockhashNotFound = errors.New("blockhash not found")
	ErrAlreadyProcessed  = errors.New("transaction already processed")
	ErrInsufficientFunds = errors.New("insufficient funds for fee")
	ErrUnknownProgram    = errors.New("program is not deployed")
)

// Program is anything the ledger can dispatch an instruction to.
type Program interface {
	Process(host wager.Host, accounts []*wager.AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(host wager.Host, accounts []*wager.AccountInfo, data []byte) error

func (f ProgramFunc) Process(host wager.Host, accounts []*wager.AccountInfo, data []byte) error {
	return f(host, accounts, data)
}

// Account is the committed state of one address.
type Account struct {
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

type txStatus struct {
	slot uint64
	err  error
}

// Result describes one executed transaction.
type Result struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
	Fee       uint64
}

type Bank struct {
	mu        sync.Mutex
	accounts  map[solana.PublicKey]Account
	programs  map[solana.PublicKey]Program
	builtins  map[solana.PublicKey]bool
	blockhash solana.Hash
	recent    []solana.Hash
	processed map[solana.Signature]*txStatus
	slot      uint64
	unixTime  int64
	logs      []string
}

func New() *Bank {
	b := &Bank{
		accounts:  make(map[solana.PublicKey]Account),
		programs:  make(map[solana.PublicKey]Program),
		builtins:  make(map[solana.PublicKey]bool),
		processed: make(map[solana.Signature]*txStatus),
		slot:      1,
		unixTime:  time.Now().Unix(),
	}
	b.registerBuiltin(solana.SystemProgramID, ProgramFunc(processSystem))
	b.registerBuiltin(solana.TokenProgramID, ProgramFunc(processToken))
	b.registerBuiltin(solana.SPLAssociatedTokenAccountProgramID, ProgramFunc(processAssociatedTokenAccount))
	b.registerBuiltin(solana.ComputeBudget, ProgramFunc(processComputeBudget))
	b.accounts[solana.SysVarRentPubkey] = Account{Owner: sysvarOwner, Lamports: 1, Data: make([]byte, 17)}
	b.advanceBlockhash()
	return b
}

var (
	sysvarOwner  = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")
	nativeLoader = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")
)

func (b *Bank) registerBuiltin(id solana.PublicKey, program Program) {
	b.programs[id] = program
	b.builtins[id] = true
	b.accounts[id] = Account{Owner: nativeLoader, Lamports: 1, Executable: true}
}

// RegisterProgram deploys program at id.
func (b *Bank) RegisterProgram(id solana.PublicKey, program Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs[id] = program
	b.accounts[id] = Account{Owner: solana.BPFLoaderUpgradeableProgramID, Lamports: 1, Executable: true}
}

// MinimumBalance is the rent exempt reserve for an account of size bytes.
func MinimumBalance(size uint64) uint64 {
	return (accountStorageOverhead + size) * lamportsPerByteYear * exemptionThreshold
}

func (b *Bank) LatestBlockhash() solana.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockhash
}

func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

func (b *Bank) UnixTime() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unixTime
}

func (b *Bank) SetClock(unix int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unixTime = unix
}

func (b *Bank) AdvanceClock(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unixTime += int64(d / time.Second)
}

// Account returns a copy of the committed account at key.
func (b *Bank) Account(key solana.PublicKey) (Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[key]
	if !ok {
		return Account{}, false
	}
	acc.Data = append([]byte(nil), acc.Data...)
	return acc, true
}

// SetAccount overwrites the committed state at key. A zero lamport account
// is removed.
func (b *Bank) SetAccount(key solana.PublicKey, acc Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setAccountLocked(key, acc)
}

func (b *Bank) setAccountLocked(key solana.PublicKey, acc Account) {
	if acc.Lamports == 0 {
		delete(b.accounts, key)
		return
	}
	acc.Data = append([]byte(nil), acc.Data...)
	b.accounts[key] = acc
}

// Logs returns every log line emitted since the ledger was created.
func (b *Bank) Logs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.logs...)
}

// Execute signs ixs with signers, the first of which pays the fee, and
// processes the resulting transaction.
func (b *Bank) Execute(signers []solana.PrivateKey, ixs ...solana.Instruction) (*Result, error) {
	tx, err := b.Sign(signers, ixs...)
	if err != nil {
		return nil, err
	}
	return b.ProcessTransaction(tx)
}

func (b *Bank) Sign(signers []solana.PrivateKey, ixs ...solana.Instruction) (*solana.Transaction, error) {
	if len(signers) == 0 {
		return nil, errors.New("at least one signer is required")
	}
	tx, err := solana.NewTransaction(ixs, b.LatestBlockhash(), solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	keys := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, s := range signers {
		keys[s.PublicKey()] = s
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s, ok := keys[key]; ok {
			return &s
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// ProcessTransaction executes tx atomically. The fee is charged even when
// an instruction fails; every other change is discarded on failure.
func (b *Bank) ProcessTransaction(tx *solana.Transaction) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.run(tx, true)
	if res != nil {
		b.logs = append(b.logs, res.Logs...)
		if status, ok := b.processed[res.Signature]; ok {
			status.err = err
		}
	}
	return res, err
}

// Simulate executes tx without committing anything.
func (b *Bank) Simulate(tx *solana.Transaction) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run(tx, false)
}

func (b *Bank) run(tx *solana.Transaction, commit bool) (*Result, error) {
	if err := b.checkBlockhash(tx.Message.RecentBlockhash); err != nil {
		return nil, err
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("verify signatures: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return nil, errors.New("transaction has no signatures")
	}
	sig := tx.Signatures[0]
	if _, ok := b.processed[sig]; ok {
		return nil, ErrAlreadyProcessed
	}

	metas, err := tx.Message.AccountMetaList()
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}
	feePayer := metas[0].PublicKey
	fee := LamportsPerSignature * uint64(len(tx.Signatures))
	payer, ok := b.accounts[feePayer]
	if !ok || payer.Lamports < fee {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, feePayer)
	}

	res := &Result{Signature: sig, Slot: b.slot, Fee: fee}
	ledger := newWorkingSet(b, metas)
	ledger.accounts[feePayer].Lamports -= fee
	if commit {
		payer.Lamports -= fee
		b.setAccountLocked(feePayer, payer)
		b.processed[sig] = &txStatus{slot: b.slot}
		b.slot++
		b.advanceBlockhash()
	}

	for i := range tx.Message.Instructions {
		ci := &tx.Message.Instructions[i]
		programID, err := tx.Message.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return res, fmt.Errorf("instruction %d: %w", i, err)
		}
		ixMetas, err := ci.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return res, fmt.Errorf("instruction %d: %w", i, err)
		}
		accounts := make([]*wager.AccountInfo, len(ixMetas))
		for j, m := range ixMetas {
			accounts[j] = ledger.accounts[m.PublicKey]
		}
		err = ledger.execute(&res.Logs, programID, accounts, ci.Data, 1)
		if err != nil {
			return res, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	if err := ledger.checkBalanced(fee); err != nil {
		return res, err
	}
	if commit {
		ledger.commit()
	}
	return res, nil
}

func (b *Bank) checkBlockhash(hash solana.Hash) error {
	for _, h := range b.recent {
		if h.Equals(hash) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrBlockhashNotFound, hash)
}

func (b *Bank) advanceBlockhash() {
	var raw [32]byte
	_, _ = rand.Read(raw[:])
	b.blockhash = solana.HashFromBytes(raw[:])
	b.recent = append(b.recent, b.blockhash)
	if len(b.recent) > recentBlockhashes {
		b.recent = b.recent[len(b.recent)-recentBlockhashes:]
	}
}
