package domain

import "time"

// Token is a minted non-fungible token held in custody.
type Token struct {
	Collection Address   `json:"collection"`
	ID         TokenID   `json:"id"`
	Owner      Address   `json:"owner"`
	Approved   *Address  `json:"approved,omitempty"`
	URI        string    `json:"uri"`
	Price      Amount    `json:"price"`
	MintedAt   time.Time `json:"minted_at"`
}
