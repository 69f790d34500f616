package cube

import (
	"context"
	"errors"
	"math"
	"testing"

	"PowerPlantCube/src/processor"

	"github.com/stretchr/testify/require"
)

func sampleTable() *processor.Table {
	records := []processor.Record{
		{ID: 0, Key: "0", CommissioningYear: 2012, Decade: 2010, Age: 13, Country: "A", CapacityMW: 100, CapacityPerYear: 100.0 / 13},
		{ID: 1, Key: "1", CommissioningYear: 2012, Decade: 2010, Age: 13, Country: "B", CapacityMW: 50, CapacityPerYear: 50.0 / 13},
		{ID: 2, Key: "2", CommissioningYear: 1999, Decade: 1990, Age: 26, Country: "A", CapacityMW: 30, CapacityPerYear: 30.0 / 26},
		{ID: 3, Key: "3", CommissioningYear: 2003, Decade: 2000, Age: 22, Country: "C", CapacityMW: math.NaN(), CapacityPerYear: math.NaN()},
	}
	return processor.NewTable(records, processor.ColID)
}

func newTestCube(t *testing.T, store Store) *Cube {
	t.Helper()
	c := New("PowerPlantCube", store)
	require.NoError(t, c.DeclareDimension("Time", processor.ColDecade, processor.ColCommissioningYear))
	require.NoError(t, c.DeclareDimension("Location", processor.ColCountry))
	require.NoError(t, c.DeclareMeasure("TotalCapacity", processor.ColCapacityMW, AggSum))
	require.NoError(t, c.DeclareMeasure("CapacityPerYear", processor.ColCapacityPerYear, AggSum))
	return c
}

func TestCube_Query(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestCube(t, NewMemoryStore())
	require.NoError(t, c.Load(ctx, sampleTable()))
	require.True(t, c.Ready())

	res, err := c.Query(ctx, "TotalCapacity", []string{processor.ColDecade})
	require.NoError(t, err)
	require.Equal(t, []Row{
		{Members: []string{"1990"}, Value: 30},
		{Members: []string{"2000"}, Value: 0},
		{Members: []string{"2010"}, Value: 150},
	}, res.Rows)

	total, err := c.Query(ctx, "TotalCapacity", nil)
	require.NoError(t, err)
	require.Len(t, total.Rows, 1)
	require.Equal(t, 180.0, total.Scalar())

	byCountry, err := c.Query(ctx, "TotalCapacity", []string{processor.ColDecade, processor.ColCountry},
		Eq(processor.ColDecade, 2010))
	require.NoError(t, err)
	require.Len(t, byCountry.Rows, 2)
	require.Equal(t, "A", byCountry.Member(0, processor.ColCountry))
	require.Equal(t, 100.0, byCountry.Rows[0].Value)

	years, err := c.Query(ctx, "TotalCapacity", []string{processor.ColCommissioningYear})
	require.NoError(t, err)
	require.Equal(t, "1999", years.Rows[0].Members[0])
	require.Equal(t, "2012", years.Rows[2].Members[0])
}

func TestCube_EmptyFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestCube(t, NewMemoryStore())
	require.NoError(t, c.Load(ctx, sampleTable()))

	res, err := c.Query(ctx, "TotalCapacity", []string{processor.ColDecade, processor.ColCountry},
		Eq(processor.ColDecade, 1950))
	require.NoError(t, err)
	require.True(t, res.Empty())

	res, err = c.Query(ctx, "TotalCapacity", nil, Eq(processor.ColCountry, "Z"))
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestCube_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestCube(t, NewMemoryStore())
	_, err := c.Query(ctx, "TotalCapacity", []string{processor.ColDecade})
	require.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, c.Load(ctx, sampleTable()))

	_, err = c.Query(ctx, "TotalCapacity", []string{"fuel"})
	var levelErr *InvalidLevelError
	require.True(t, errors.As(err, &levelErr))
	require.Equal(t, "fuel", levelErr.Level)
	require.ErrorIs(t, err, ErrInvalidLevel)

	_, err = c.Query(ctx, "TotalCapacity", nil, Eq(processor.ColAge, 13))
	require.ErrorIs(t, err, ErrInvalidLevel)

	_, err = c.Query(ctx, "Average", nil)
	require.ErrorIs(t, err, ErrUnknownMeasure)

	require.ErrorIs(t, c.DeclareDimension("Fuel", "fuel"), ErrUnknownColumn)
	require.ErrorIs(t, c.DeclareMeasure("Names", processor.ColCountry, AggSum), ErrUnknownColumn)
	require.Error(t, c.DeclareDimension("Other", processor.ColCountry))
}

func TestCube_DuplicateKey(t *testing.T) {
	t.Parallel()

	table := processor.NewTable([]processor.Record{
		{ID: 0, Key: "X1", CommissioningYear: 2000, Decade: 2000, Age: 25, Country: "A", CapacityMW: 1},
		{ID: 1, Key: "X1", CommissioningYear: 2001, Decade: 2000, Age: 24, Country: "B", CapacityMW: 2},
	}, processor.ColGppdIDNR)

	c := newTestCube(t, NewMemoryStore())
	require.ErrorIs(t, c.Load(context.Background(), table), ErrDuplicateKey)
	require.False(t, c.Ready())
}

func TestCube_EmptyTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newTestCube(t, NewMemoryStore())
	require.NoError(t, c.Load(ctx, processor.NewTable(nil, "")))

	total, err := c.Query(ctx, "TotalCapacity", nil)
	require.NoError(t, err)
	require.Len(t, total.Rows, 1)
	require.Zero(t, total.Scalar())

	res, err := c.Query(ctx, "TotalCapacity", []string{processor.ColDecade})
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestCube_CancelledContext(t *testing.T) {
	t.Parallel()

	c := newTestCube(t, NewMemoryStore())
	require.NoError(t, c.Load(context.Background(), sampleTable()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Query(ctx, "TotalCapacity", nil)
	require.ErrorIs(t, err, context.Canceled)
}
