package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

func TestStakeThenUnstake(t *testing.T) {
	h := newHarness(t)
	stakeToken := h.contracts.StakeToken
	h.credit(stakeToken, holder, 250)
	h.approve(holder, h.accounts.StakeVault, domain.FungibleAsset(stakeToken, amt(100)))

	pos, err := h.stakes.Stake(h.ctx, holder, amt(100))
	require.NoError(t, err)
	assert.Equal(t, "100", pos.Staked.String())
	assert.Equal(t, h.clock.Now(), pos.StakedAt)

	avail, err := h.stakes.AvailableBalance(h.ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, "150", avail.String())

	h.clock.Advance(time.Hour)
	returned, err := h.stakes.Unstake(h.ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, "100", returned.String())

	staked, err := h.stakes.GetStakedBalance(h.ctx, holder)
	require.NoError(t, err)
	assert.True(t, staked.IsZero())

	avail, err = h.stakes.AvailableBalance(h.ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, "250", avail.String())

	ts, err := h.stakes.GetStakingTimestamp(h.ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(-time.Hour), ts, "unstake leaves the timestamp untouched")
}

func TestStakeAccumulatesAndRefreshesTimestamp(t *testing.T) {
	h := newHarness(t)
	h.credit(h.contracts.StakeToken, holder, 100)
	h.approve(holder, h.accounts.StakeVault, domain.FungibleAsset(h.contracts.StakeToken, amt(100)))

	_, err := h.stakes.Stake(h.ctx, holder, amt(30))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	pos, err := h.stakes.Stake(h.ctx, holder, amt(20))
	require.NoError(t, err)
	assert.Equal(t, "50", pos.Staked.String())
	assert.Equal(t, h.clock.Now(), pos.StakedAt)

	events, err := h.events.After(h.ctx, 0, 0)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventStaked, last.Type)
	assert.JSONEq(t, `{"holder":"`+strings.ToLower(holder.Hex())+`","amount":"20","new_staked_total":"50"}`, string(last.Payload))
}

func TestStakeRejections(t *testing.T) {
	h := newHarness(t)
	h.credit(h.contracts.StakeToken, holder, 10)

	_, err := h.stakes.Stake(h.ctx, holder, amt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.stakes.Stake(h.ctx, holder, amt(11))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = h.stakes.Stake(h.ctx, holder, amt(5))
	assert.ErrorIs(t, err, domain.ErrNoCustodyGrant)

	_, err = h.stakes.Unstake(h.ctx, holder)
	assert.ErrorIs(t, err, domain.ErrNothingStaked)

	ts, err := h.stakes.GetStakingTimestamp(h.ctx, holder)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestStakeConservationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		initial := uint64(rapid.IntRange(0, 500).Draw(rt, "initial").(int))
		if initial > 0 {
			h.credit(h.contracts.StakeToken, holder, initial)
		}
		h.approve(holder, h.accounts.StakeVault, domain.FungibleAsset(h.contracts.StakeToken, amt(10_000)))

		steps := rapid.IntRange(1, 30).Draw(rt, "steps").(int)
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "unstake").(bool) {
				_, err := h.stakes.Unstake(h.ctx, holder)
				if err != nil {
					require.ErrorIs(rt, err, domain.ErrNothingStaked)
				}
			} else {
				n := uint64(rapid.IntRange(1, 200).Draw(rt, "amount").(int))
				_, err := h.stakes.Stake(h.ctx, holder, amt(n))
				if err != nil {
					require.ErrorIs(rt, err, domain.ErrInsufficientBalance)
				}
			}

			avail, err := h.stakes.AvailableBalance(h.ctx, holder)
			require.NoError(rt, err)
			staked, err := h.stakes.GetStakedBalance(h.ctx, holder)
			require.NoError(rt, err)
			total, err := avail.Add(staked)
			require.NoError(rt, err)
			require.Equal(rt, amt(initial).String(), total.String())
			require.Equal(rt, staked.String(), amt(h.balance(h.contracts.StakeToken, h.accounts.StakeVault)).String())
		}
	})
}
