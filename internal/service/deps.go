package service

import (
	"log/slog"

	"github.com/alanyoungcy/portfolioledger/internal/custody"
	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

// Deps are the collaborators shared by the ledger components.
type Deps struct {
	Committer *Committer
	Vault     *custody.Vault
	Accounts  domain.SystemAccounts
	Contracts domain.Contracts
	Clock     domain.Clock
	Logger    *slog.Logger
}

func (d Deps) clock() domain.Clock {
	if d.Clock == nil {
		return domain.SystemClock{}
	}
	return d.Clock
}

func (d Deps) logger(component string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", component))
}

func requireAddress(addr domain.Address, role string) error {
	if addr == domain.ZeroAddress {
		return domain.ErrInvalidAddress.Withf("%s is the zero address", role)
	}
	return nil
}

func lastSeq(events []domain.Event) uint64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Seq
}
