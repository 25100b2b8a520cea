package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/ledger?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "ledger", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestClassify(t *testing.T) {
	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := classify(fmt.Errorf("update: %w", &pgconn.PgError{Code: code, Message: "could not serialize"}))
		assert.ErrorIs(t, err, domain.ErrSerialization, code)
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, code)
	}

	err := classify(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "auctions_open_token"})
	assert.ErrorIs(t, err, domain.ErrAuctionExists)

	other := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "listings_pkey"}
	assert.Same(t, other, classify(other))

	ledgerErr := domain.ErrAlreadySold.Withf("listing 1")
	assert.Equal(t, ledgerErr, classify(ledgerErr))

	plain := errors.New("boom")
	assert.Equal(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

func TestParseAmount(t *testing.T) {
	a, err := parseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	assert.NoError(t, err)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", a.String())

	_, err = parseAmount("1.5")
	assert.Error(t, err)
}
