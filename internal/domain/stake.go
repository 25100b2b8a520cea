package domain

import "time"

// StakePosition is the amount a holder has locked in the stake vault.
// StakedAt is refreshed by every stake and left untouched by unstake.
type StakePosition struct {
	Holder   Address   `json:"holder"`
	Staked   Amount    `json:"staked"`
	StakedAt time.Time `json:"staked_at"`
}
