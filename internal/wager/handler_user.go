package wager

import "github.com/gagliardetto/solana-go"

func (p *Processor) registration(host Host, accounts []*AccountInfo, ix *Registration) error {
	var payer, systemProgram, rent, user *AccountInfo
	var userPDA Derived
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("user", &user).Writable().Derived(&userPDA, func() (Derived, error) {
			return p.userAddress(payer.Key)
		}),
	)
	if err != nil {
		return err
	}
	if err := require(!ix.Referrer.Equals(payer.Key), "refferer must not be equal to user wallet"); err != nil {
		return err
	}
	if err := require(!user.Owner.Equals(p.programID), "already registered"); err != nil {
		return err
	}
	if _, err := p.ensureProgramAccount(host, payer, user, userPDA, UserSize); err != nil {
		return err
	}
	return storeRecord(user, &User{Address: payer.Key, Referrer: ix.Referrer})
}

func (p *Processor) addBot(host Host, accounts []*AccountInfo, ix *AddBot) error {
	var payer, systemProgram, rent, bot *AccountInfo
	var botPDA Derived
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("bot", &bot).Writable().Derived(&botPDA, func() (Derived, error) {
			return p.userAddress(ix.Bot)
		}),
	)
	if err != nil {
		return err
	}
	if err := p.requireAdmin(payer); err != nil {
		return err
	}
	if err := require(!bot.Owner.Equals(p.programID), "already registered"); err != nil {
		return err
	}
	if _, err := p.ensureProgramAccount(host, payer, bot, botPDA, UserSize); err != nil {
		return err
	}
	return storeRecord(bot, &User{Address: ix.Bot, IsBot: true})
}

// loadProfile reads a user profile, reporting an unregistered wallet as a
// requirement failure rather than a decoding error.
func (p *Processor) loadProfile(account *AccountInfo) (*User, error) {
	if !account.Owner.Equals(p.programID) {
		return nil, &RequireError{Message: "register first"}
	}
	profile := new(User)
	if err := p.loadRecord(account, UserSize, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
