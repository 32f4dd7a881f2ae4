package wager

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

func (p *Processor) init(host Host, accounts []*AccountInfo, ix *Init) error {
	var payer, systemProgram, registry, rent, whitelist *AccountInfo
	var registryPDA, whitelistPDA Derived
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("registry", &registry).Writable().Derived(&registryPDA, p.registryAddress),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("supported token", &whitelist).Writable().Derived(&whitelistPDA, func() (Derived, error) {
			return p.whitelistAddress(ix.SupportedToken)
		}),
	)
	if err != nil {
		return err
	}
	if err := p.requireAdmin(payer); err != nil {
		return err
	}
	if err := require(!registry.Owner.Equals(p.programID), "already initialized"); err != nil {
		return err
	}

	if _, err := p.ensureProgramAccount(host, payer, registry, registryPDA, RegistrySize); err != nil {
		return err
	}
	err = storeRecord(registry, &Registry{
		ReferrerFee:    DefaultReferrerFee,
		AdminFee:       DefaultAdminFee,
		GlobalFee:      DefaultGlobalFee,
		TransactionFee: DefaultTransactionFee,
		AcceptBets:     true,
		CloseDelay:     DefaultCloseDelay,
		Manager:        ix.Manager,
	})
	if err != nil {
		return err
	}

	if _, err := p.ensureProgramAccount(host, payer, whitelist, whitelistPDA, WhitelistSize); err != nil {
		return err
	}
	return storeRecord(whitelist, &Whitelist{Mint: ix.SupportedToken, Feed: ix.Feed, IsStablecoin: ix.IsStablecoin})
}

// registryUpdate resolves the [payer, system, registry] manifest shared by
// the admin and manager setters and loads the registry.
func (p *Processor) registryUpdate(accounts []*AccountInfo) (*AccountInfo, *AccountInfo, *Registry, error) {
	var payer, systemProgram, registry *AccountInfo
	err := resolve(accounts,
		account("payer", &payer).Signer(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("registry", &registry).Writable().Derived(nil, p.registryAddress),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	state := new(Registry)
	if err := p.loadRecord(registry, RegistrySize, state); err != nil {
		return nil, nil, nil, err
	}
	return payer, registry, state, nil
}

func (p *Processor) changeCloseDelay(accounts []*AccountInfo, ix *ChangeCloseDelay) error {
	payer, registry, state, err := p.registryUpdate(accounts)
	if err != nil {
		return err
	}
	if err := p.requireAdmin(payer); err != nil {
		return err
	}
	state.CloseDelay = ix.NewDelay
	return storeRecord(registry, state)
}

func (p *Processor) setAcceptBets(accounts []*AccountInfo, accept bool) error {
	payer, registry, state, err := p.registryUpdate(accounts)
	if err != nil {
		return err
	}
	if err := p.requireAdmin(payer); err != nil {
		return err
	}
	state.AcceptBets = accept
	return storeRecord(registry, state)
}

func (p *Processor) newManager(accounts []*AccountInfo, ix *NewManager) error {
	payer, registry, state, err := p.registryUpdate(accounts)
	if err != nil {
		return err
	}
	if err := p.requireAdmin(payer); err != nil {
		return err
	}
	state.Manager = ix.Manager
	return storeRecord(registry, state)
}

// feeRule validates a new fee value against the registry it will land in.
type feeRule func(r *Registry, fee uint64) error

// feeCap bounds a percentage fee.
func feeCap(limit uint64) feeRule {
	return func(_ *Registry, fee uint64) error {
		return require(fee <= limit, fmt.Sprintf("fee must not exceed %d", limit))
	}
}

// sharedFee bounds a fee so that, together with the fee other reads, it
// does not commit more than the whole settlement fee.
func sharedFee(other func(*Registry) uint64) feeRule {
	return func(r *Registry, fee uint64) error {
		if err := feeCap(maxPercent)(r, fee); err != nil {
			return err
		}
		return require(fee+other(r) <= maxPercent,
			fmt.Sprintf("admin fee and referrer fee must not exceed %d together", maxPercent))
	}
}

func (p *Processor) setFee(accounts []*AccountInfo, fee uint64, rule feeRule, apply func(*Registry)) error {
	payer, registry, state, err := p.registryUpdate(accounts)
	if err != nil {
		return err
	}
	if err := requireManager(payer, state); err != nil {
		return err
	}
	if rule != nil {
		if err := rule(state, fee); err != nil {
			return err
		}
	}
	apply(state)
	return storeRecord(registry, state)
}

func (p *Processor) addSupportedToken(host Host, accounts []*AccountInfo, ix *AddSupportedToken) error {
	var payer, systemProgram, rent, whitelist *AccountInfo
	var whitelistPDA Derived
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("supported token", &whitelist).Writable().Derived(&whitelistPDA, func() (Derived, error) {
			return p.whitelistAddress(ix.SupportedToken)
		}),
	)
	if err != nil {
		return err
	}
	if err := p.requireAdmin(payer); err != nil {
		return err
	}
	if _, err := p.ensureProgramAccount(host, payer, whitelist, whitelistPDA, WhitelistSize); err != nil {
		return err
	}
	return storeRecord(whitelist, &Whitelist{Mint: ix.SupportedToken, Feed: ix.Feed, IsStablecoin: ix.IsStablecoin})
}

func (p *Processor) setTypePrice(host Host, accounts []*AccountInfo, ix *SetTypePrice) error {
	var payer, systemProgram, rent, registry, tier *AccountInfo
	var tierPDA Derived
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("registry", &registry).Derived(nil, p.registryAddress),
		account("type price", &tier).Writable().Derived(&tierPDA, func() (Derived, error) {
			return p.typePriceAddress(ix.TypePrice)
		}),
	)
	if err != nil {
		return err
	}
	state := new(Registry)
	if err := p.loadRecord(registry, RegistrySize, state); err != nil {
		return err
	}
	if err := requireManager(payer, state); err != nil {
		return err
	}
	if _, err := p.ensureProgramAccount(host, payer, tier, tierPDA, TypePriceSize); err != nil {
		return err
	}
	return storeRecord(tier, &TypePrice{Price: ix.Price})
}
