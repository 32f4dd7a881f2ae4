package wager

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/oracle"
)

// Processor executes instructions for one deployment of the program.
type Processor struct {
	programID      solana.PublicKey
	admin          solana.PublicKey
	oraclePrograms map[solana.PublicKey]struct{}
}

type Option func(*Processor)

func WithAdmin(admin solana.PublicKey) Option {
	return func(p *Processor) { p.admin = admin }
}

// WithOraclePrograms replaces the set of price feed owners the program
// accepts.
func WithOraclePrograms(ids ...solana.PublicKey) Option {
	return func(p *Processor) {
		p.oraclePrograms = make(map[solana.PublicKey]struct{}, len(ids))
		for _, id := range ids {
			p.oraclePrograms[id] = struct{}{}
		}
	}
}

func NewProcessor(programID solana.PublicKey, opts ...Option) *Processor {
	p := &Processor{programID: programID, admin: DefaultAdmin}
	WithOraclePrograms(oracle.ChainlinkStoreProgramID, oracle.PythPushOracleProgramID)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) ProgramID() solana.PublicKey { return p.programID }

func (p *Processor) Admin() solana.PublicKey { return p.admin }

// Process decodes data and runs the matching handler against accounts.
func (p *Processor) Process(host Host, accounts []*AccountInfo, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		host.Log(fmt.Sprintf("failed to decode instruction: %v", err))
		return err
	}
	host.Log("Instruction: " + ix.Tag().String())

	switch ix := ix.(type) {
	case *Init:
		return p.init(host, accounts, ix)
	case *ChangeCloseDelay:
		return p.changeCloseDelay(accounts, ix)
	case *LockBets:
		return p.setAcceptBets(accounts, false)
	case *UnlockBets:
		return p.setAcceptBets(accounts, true)
	case *AddSupportedToken:
		return p.addSupportedToken(host, accounts, ix)
	case *Registration:
		return p.registration(host, accounts, ix)
	case *NewManager:
		return p.newManager(accounts, ix)
	case *SetGlobalFee:
		// Settlement charges twice the global fee.
		return p.setFee(accounts, ix.Fee, feeCap(maxPercent/2), func(r *Registry) { r.GlobalFee = ix.Fee })
	case *SetAdminFee:
		return p.setFee(accounts, ix.Fee, sharedFee(func(r *Registry) uint64 { return r.ReferrerFee }),
			func(r *Registry) { r.AdminFee = ix.Fee })
	case *SetWinnerFee:
		return p.setFee(accounts, ix.Fee, sharedFee(func(r *Registry) uint64 { return r.AdminFee }),
			func(r *Registry) { r.ReferrerFee = ix.Fee })
	case *SetTransactionFee:
		return p.setFee(accounts, ix.Fee, nil, func(r *Registry) { r.TransactionFee = ix.Fee })
	case *AddBot:
		return p.addBot(host, accounts, ix)
	case *NewGame:
		return p.newGame(host, accounts, ix)
	case *JoinGame:
		return p.joinGame(host, accounts, ix)
	case *ForcedClose:
		return p.forcedClose(host, accounts, ix)
	case *ManuallyClose:
		return p.manuallyClose(host, accounts)
	case *Close:
		return p.settle(host, accounts, ix)
	case *SetTypePrice:
		return p.setTypePrice(host, accounts, ix)
	default:
		return fmt.Errorf("%w: unhandled %s", ErrInvalidInstructionData, ix.Tag())
	}
}

func (p *Processor) requireAdmin(payer *AccountInfo) error {
	if !payer.Key.Equals(p.admin) {
		return fmt.Errorf("%w: %s is not the admin", ErrUnauthorisedAccess, payer.Key)
	}
	return nil
}

func requireManager(payer *AccountInfo, registry *Registry) error {
	if !payer.Key.Equals(registry.Manager) {
		return fmt.Errorf("%w: %s is not the manager", ErrUnauthorisedAccess, payer.Key)
	}
	return nil
}

func (p *Processor) requireOracle(oracleProgram, feed *AccountInfo) error {
	if _, ok := p.oraclePrograms[oracleProgram.Key]; !ok {
		return invalidAccount("oracle program", "%s is not an accepted price oracle", oracleProgram.Key)
	}
	if !feed.Owner.Equals(oracleProgram.Key) {
		return invalidAccount("feed", "%s is not owned by %s", feed.Key, oracleProgram.Key)
	}
	return nil
}

// quote reads the latest feed answer as a positive u64.
func (p *Processor) quote(host Host, oracleProgram, feed *AccountInfo) (uint64, error) {
	if err := p.requireOracle(oracleProgram, feed); err != nil {
		return 0, err
	}
	answer, err := host.LatestAnswer(oracleProgram, feed)
	if err != nil {
		return 0, fmt.Errorf("%w: read feed %s: %v", ErrDeserialize, feed.Key, err)
	}
	if answer.Sign() <= 0 {
		return 0, &RequireError{Message: "invalid price feed answer"}
	}
	if !answer.IsUint64() {
		return 0, fmt.Errorf("%w: feed answer %s", ErrConvertWithOverflow, answer)
	}
	return answer.Uint64(), nil
}

func unixNow(host Host) (uint64, error) {
	now := host.UnixTimestamp()
	if now < 0 {
		return 0, fmt.Errorf("%w: negative clock %d", ErrConvertWithOverflow, now)
	}
	return uint64(now), nil
}
