package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEntryCanonicalIDs(t *testing.T) {
	for id, family := range map[int]EntryFamily{
		101: FamilyTrendPullback,
		102: FamilyTrendPullback,
		103: FamilyEMAMomentum,
		104: FamilyTrendPullback,
		105: FamilyBreakout,
		111: FamilyCoreTrend,
		112: FamilySwingPullback,
	} {
		p, err := ResolveEntry(id, 25, 100)
		require.NoError(t, err, "id %d", id)
		assert.Equal(t, family, p.Family, "id %d", id)
		assert.Equal(t, id, p.ID, "id %d", id)
	}
}

func TestResolveEntryAliases(t *testing.T) {
	for alias, canonical := range map[int]int{
		2:   101,
		3:   103,
		106: 103,
		107: 102,
		108: 103,
	} {
		p, err := ResolveEntry(alias, 25, 100)
		require.NoError(t, err, "alias %d", alias)
		assert.Equal(t, canonical, p.ID, "alias %d", alias)
	}

	_, err := ResolveEntry(999, 25, 100)
	assert.Error(t, err)
}

func TestResolveEntryGoldenCrossFromBaseConfig(t *testing.T) {
	p, err := ResolveEntry(1, 25, 100)
	require.NoError(t, err)
	assert.Equal(t, FamilyGoldenCross, p.Family)
	require.NotNil(t, p.GoldenCross)
	assert.Equal(t, 25, p.GoldenCross.MAFastPeriod)
	assert.Equal(t, 100, p.GoldenCross.MASlowPeriod)
	assert.Equal(t, 101, p.MinCandles())
}

func TestMinCandles(t *testing.T) {
	conservative, err := ResolveEntry(101, 25, 100)
	require.NoError(t, err)
	// Dominated by the 200-period slow MA.
	assert.Equal(t, 200, conservative.MinCandles())

	scalping, err := ResolveEntry(103, 25, 100)
	require.NoError(t, err)
	// Dominated by the slow EMA plus the previous bar for the crossover.
	assert.Equal(t, 22, scalping.MinCandles())

	breakout, err := ResolveEntry(105, 25, 100)
	require.NoError(t, err)
	assert.Equal(t, 21, breakout.MinCandles())

	core, err := ResolveEntry(111, 25, 100)
	require.NoError(t, err)
	// Dominated by the 50-period slow EMA.
	assert.Equal(t, 50, core.MinCandles())

	swing, err := ResolveEntry(112, 25, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, swing.MinCandles())
}

func TestExitPresetCatalog(t *testing.T) {
	p, ok := ExitPresetByID(7)
	require.True(t, ok)
	assert.Equal(t, "Breakout Mode", p.Name)
	assert.Equal(t, 5.0, p.TP)
	assert.Nil(t, p.ATR)

	p, ok = ExitPresetByID(11)
	require.True(t, ok)
	require.NotNil(t, p.ATR)
	assert.Equal(t, 2.0, p.ATR.InitialATRMult)

	_, ok = ExitPresetByID(99)
	assert.False(t, ok)
}

func TestExitAliases(t *testing.T) {
	p, ok := ExitPresetByID(9)
	require.True(t, ok)
	assert.Equal(t, 7, p.ID)
}

func TestResolveExitConfigNormalizes(t *testing.T) {
	base := ExitConfig{
		StopLossPct:         0.012,
		TakeProfitPct:       0.024,
		TrailStartPct:       0.012,
		TrailDistancePct:    0.006,
		CandleExitEnabled:   true,
		CandleRedTriggerPct: 0.4,
	}

	cfg := ResolveExitConfig(1, base)
	assert.InDelta(t, 0.012, cfg.StopLossPct, 1e-9)
	assert.InDelta(t, 0.024, cfg.TakeProfitPct, 1e-9)
	assert.InDelta(t, 0.006, cfg.TrailDistancePct, 1e-9)
	assert.InDelta(t, 0.60, cfg.CandleRedTriggerPct, 1e-9)
	// Enablement always comes from the base config.
	assert.True(t, cfg.CandleExitEnabled)
}

func TestResolveExitConfigFallsBackToBase(t *testing.T) {
	base := ExitConfig{StopLossPct: 0.05, TakeProfitPct: 0.1}
	assert.Equal(t, base, ResolveExitConfig(0, base))
	assert.Equal(t, base, ResolveExitConfig(42, base))
	// ATR presets do not override the percent config.
	assert.Equal(t, base, ResolveExitConfig(11, base))
}

func TestResolveExitConfigIdempotent(t *testing.T) {
	base := ExitConfig{StopLossPct: 0.012, TakeProfitPct: 0.024, CandleExitEnabled: true}
	once := ResolveExitConfig(3, base)
	twice := ResolveExitConfig(3, base)
	assert.Equal(t, once, twice)
}
