package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"PowerPlantCube/src/cube"
	"PowerPlantCube/src/metrics"
	"PowerPlantCube/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func cleanedTable(t *testing.T, years, countries, capacities []string) *processor.Table {
	t.Helper()
	df := dataframe.New(
		series.New(years, series.String, processor.ColCommissioningYear),
		series.New(countries, series.String, processor.ColCountry),
		series.New(capacities, series.String, processor.ColCapacityMW),
	)
	require.NoError(t, df.Err)
	table, _, err := processor.NewCleaner(processor.Options{Logger: discard}).Clean(df)
	require.NoError(t, err)
	return table
}

func loadedEngine(t *testing.T, table *processor.Table) *Engine {
	t.Helper()
	e, err := NewEngine(cube.NewMemoryStore(), discard)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), table))
	return e
}

func TestEngine_Example(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := loadedEngine(t, cleanedTable(t,
		[]string{"2012", "2012", "1999"},
		[]string{"A", "B", "A"},
		[]string{"100", "50", "30"}))

	byDecade, err := e.CapacityByDecade(ctx)
	require.NoError(t, err)
	require.Equal(t, []cube.Row{
		{Members: []string{"1990"}, Value: 30},
		{Members: []string{"2010"}, Value: 150},
	}, byDecade.Rows)

	top, err := e.TopCountryInDecade(ctx, 2010)
	require.NoError(t, err)
	require.Len(t, top.Rows, 1)
	require.Equal(t, "A", top.Member(0, processor.ColCountry))
	require.Equal(t, 100.0, top.Rows[0].Value)

	topTotal, err := e.TopCountryByTotalCapacity(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", topTotal.Member(0, processor.ColCountry))
	require.Equal(t, 130.0, topTotal.Rows[0].Value)

	global, err := e.GlobalTotalCapacity(ctx)
	require.NoError(t, err)
	require.Equal(t, 180.0, global.Scalar())

	perYear, err := e.GlobalCapacityPerYear(ctx)
	require.NoError(t, err)
	require.InDelta(t, 100.0/13+50.0/13+30.0/26, perYear.Scalar(), 1e-9)

	topPerYear, err := e.TopCountryByCapacityPerYear(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", topPerYear.Member(0, processor.ColCountry))
	require.InDelta(t, 100.0/13+30.0/26, topPerYear.Rows[0].Value, 1e-9)

	perDecade, err := e.CapacityPerYearByDecade(ctx)
	require.NoError(t, err)
	require.Len(t, perDecade.Rows, 2)
}

func TestEngine_SumsAgree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := loadedEngine(t, cleanedTable(t,
		[]string{"1961", "1975", "1975.5", "1988", "2003", "2019", "2021", "bad"},
		[]string{"A", "B", "C", "A", "B", "C", "A", "D"},
		[]string{"10", "20.5", "", "40", "7.25", "3", "100", "99"}))

	global, err := e.GlobalTotalCapacity(ctx)
	require.NoError(t, err)
	byDecade, err := e.CapacityByDecade(ctx)
	require.NoError(t, err)

	sum := 0.0
	for i, r := range byDecade.Rows {
		sum += r.Value
		if i > 0 {
			require.Less(t, byDecade.Rows[i-1].Members[0], r.Members[0])
		}
	}
	require.InDelta(t, global.Scalar(), sum, 1e-9)
	require.InDelta(t, 180.75, global.Scalar(), 1e-9)

	perYear, err := e.GlobalCapacityPerYear(ctx)
	require.NoError(t, err)
	perDecade, err := e.CapacityPerYearByDecade(ctx)
	require.NoError(t, err)
	sum = 0
	for _, r := range perDecade.Rows {
		sum += r.Value
	}
	require.InDelta(t, perYear.Scalar(), sum, 1e-9)
}

func TestEngine_TieBreak(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := loadedEngine(t, cleanedTable(t,
		[]string{"2011", "2012", "2013"},
		[]string{"Zambia", "Brazil", "Chile"},
		[]string{"50", "50", "10"}))

	top, err := e.TopCountryByTotalCapacity(ctx)
	require.NoError(t, err)
	require.Equal(t, "Brazil", top.Member(0, processor.ColCountry))

	top, err = e.TopCountryInDecade(ctx, 2010)
	require.NoError(t, err)
	require.Equal(t, "Brazil", top.Member(0, processor.ColCountry))
	require.Equal(t, "2010", top.Member(0, processor.ColDecade))
}

func TestEngine_EmptyDecade(t *testing.T) {
	t.Parallel()

	e := loadedEngine(t, cleanedTable(t, []string{"1999"}, []string{"A"}, []string{"1"}))
	res, err := e.TopCountryInDecade(context.Background(), 2010)
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e, err := NewEngine(cube.NewMemoryStore(), discard)
	require.NoError(t, err)
	_, err = e.CapacityByDecade(ctx)
	require.ErrorIs(t, err, cube.ErrNotReady)

	require.NoError(t, e.Load(ctx, cleanedTable(t, []string{"2000"}, []string{"A"}, []string{"1"})))
	_, err = e.Cube().Query(ctx, MeasureTotalCapacity, []string{"primary_fuel"})
	var levelErr *cube.InvalidLevelError
	require.True(t, errors.As(err, &levelErr))
}

func TestEngine_Questions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := loadedEngine(t, cleanedTable(t,
		[]string{"2012", "2012", "1999"},
		[]string{"A", "B", "A"},
		[]string{"100", "50", "30"}))

	qs := e.Questions(DefaultDecade)
	require.Len(t, qs, 6)
	for i, q := range qs {
		require.Equal(t, i+1, q.ID)
		require.NotEmpty(t, q.Title)

		before := testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(q.Name, "ok"))
		first, err := q.Run(ctx)
		require.NoError(t, err)
		second, err := q.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, before+2, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(q.Name, "ok")))
	}
	require.Contains(t, qs[5].Title, "2010s")
}
