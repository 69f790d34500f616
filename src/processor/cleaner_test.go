package processor

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/require"
)

func frameOf(t *testing.T, cols map[string][]string, order ...string) dataframe.DataFrame {
	t.Helper()
	list := make([]series.Series, 0, len(order))
	for _, name := range order {
		list = append(list, series.New(cols[name], series.String, name))
	}
	df := dataframe.New(list...)
	require.NoError(t, df.Err)
	return df
}

func quietCleaner() *Cleaner {
	return NewCleaner(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestClean_Example(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"2012", "2012", "1999"},
		"country":            {"A", "B", "A"},
		"capacity_mw":        {"100", "50", "30"},
	}, "commissioning_year", "country", "capacity_mw")

	table, report, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	require.Equal(t, ColID, table.KeyColumn())

	var decades []int
	for i, r := range table.Records() {
		require.Equal(t, i, r.ID)
		decades = append(decades, r.Decade)
	}
	require.Equal(t, []int{2010, 2010, 1990}, decades)

	first := table.Records()[0]
	require.Equal(t, "A", first.Country)
	require.InDelta(t, 13.0, first.Age, 1e-9)
	require.InDelta(t, 100.0/13.0, first.CapacityPerYear, 1e-9)

	require.Equal(t, []string{ColID, ColCommissioningYear, ColCountry, ColCapacityMW, ColDecade, ColAge, ColCapacityPerYear},
		table.Frame().Names())
	require.Equal(t, "2010", table.Frame().Col(ColDecade).Elem(1).String())
	require.Equal(t, 3, report.RawRows)
	require.Equal(t, 0, report.DroppedTotal())
}

func TestClean_DropsUncoercibleYears(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"N/A", "0", "2001.5", "abc", "NaN", "-3", "inf"},
		"country":            {"A", "B", "C", "D", "E", "F", "G"},
		"capacity_mw":        {"1", "2", "3", "4", "5", "6", "7"},
	}, "commissioning_year", "country", "capacity_mw")

	table, report, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	r := table.Records()[0]
	require.Equal(t, 0, r.ID)
	require.Equal(t, "C", r.Country)
	require.Equal(t, 2000, r.Decade)
	require.InDelta(t, 2001.5, r.CommissioningYear, 1e-9)

	// "NaN" 由 gota 读作缺失值
	require.Equal(t, map[string]int{
		DropMissing:     1,
		DropNotNumeric:  3,
		DropNonPositive: 2,
	}, report.Dropped)
	require.Equal(t, 7, report.RawRows)
	require.Equal(t, 6, report.DroppedTotal())
}

func TestClean_DropsYearBeyondDecadeRange(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"3e9", "2012"},
		"country":            {"A", "B"},
		"capacity_mw":        {"1", "2"},
	}, "commissioning_year", "country", "capacity_mw")

	table, report, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	require.Equal(t, "B", table.Records()[0].Country)
	require.Equal(t, map[string]int{DropDecade: 1}, report.Dropped)
}

func TestClean_AgeClampedToOne(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"2025", "2030", "2024.5", "2024.9"},
		"country":            {"A", "A", "A", "A"},
		"capacity_mw":        {"10", "20", "20", "7"},
	}, "commissioning_year", "country", "capacity_mw")

	table, _, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())
	for _, r := range table.Records() {
		require.Equal(t, 1.0, r.Age)
		require.Equal(t, r.CapacityMW, r.CapacityPerYear)
	}
}

func TestClean_Invariants(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"1950", "1988.7", "2019", "x", "2024", "", "1"},
		"country":            {"A", "", "B", "C", "NaN", "D", "E"},
		"capacity_mw":        {"5", "n/a", "7.5", "1", "100", "3", "0.25"},
	}, "commissioning_year", "country", "capacity_mw")

	table, _, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.Equal(t, 5, table.Len())

	for i, r := range table.Records() {
		require.Equal(t, i, r.ID)
		require.Greater(t, r.CommissioningYear, 0.0)
		require.Equal(t, int(math.Floor(r.CommissioningYear/10))*10, r.Decade)
		require.Zero(t, r.Decade%10)
		require.GreaterOrEqual(t, r.Age, 1.0)
		if math.IsNaN(r.CapacityMW) {
			require.True(t, math.IsNaN(r.CapacityPerYear))
		} else {
			require.InDelta(t, r.CapacityMW/r.Age, r.CapacityPerYear, 1e-12)
		}
		require.NotEmpty(t, r.Country)
	}
	// 空 country 被填充
	require.Equal(t, "Unknown", table.Records()[1].Country)
	require.Equal(t, "Unknown", table.Records()[3].Country)
	require.True(t, math.IsNaN(table.Records()[1].CapacityMW))
	require.Zero(t, table.Frame().Col(ColDecade).IsNaN()[0])
}

func TestClean_SchemaError(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"country": {"A"},
		"name":    {"x"},
	}, "country", "name")

	table, report, err := quietCleaner().Clean(df)
	require.Nil(t, table)
	require.Nil(t, report)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	require.Equal(t, []string{ColCommissioningYear, ColCapacityMW}, schemaErr.Missing)
	require.Contains(t, err.Error(), "commissioning_year")
}

func TestClean_KeyColumn(t *testing.T) {
	t.Parallel()

	base := map[string][]string{
		"commissioning_year": {"2000", "2001", "bad"},
		"country":            {"A", "B", "C"},
		"capacity_mw":        {"1", "2", "3"},
	}
	order := []string{"gppd_idnr", "name", "commissioning_year", "country", "capacity_mw"}

	tests := []struct {
		name    string
		ids     []string
		names   []string
		wantKey string
	}{
		{"unique identifier", []string{"G1", "G2", "G2"}, []string{"a", "b", "c"}, ColGppdIDNR},
		{"duplicate identifier", []string{"G1", "G1", "G3"}, []string{"a", "b", "c"}, ColID},
		{"missing identifier", []string{"G1", "NaN", "G3"}, []string{"a", "b", "c"}, ColID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := map[string][]string{"gppd_idnr": tt.ids, "name": tt.names}
			for k, v := range base {
				cols[k] = v
			}
			table, report, err := quietCleaner().Clean(frameOf(t, cols, order...))
			require.NoError(t, err)
			require.Equal(t, tt.wantKey, table.KeyColumn())
			require.Equal(t, tt.wantKey, report.KeyColumn)

			seen := map[string]bool{}
			for _, r := range table.Records() {
				require.False(t, seen[r.Key])
				seen[r.Key] = true
			}
		})
	}

	t.Run("name fallback", func(t *testing.T) {
		cols := map[string][]string{"name": {"a", "b", "c"}}
		for k, v := range base {
			cols[k] = v
		}
		table, _, err := quietCleaner().Clean(frameOf(t, cols, "name", "commissioning_year", "country", "capacity_mw"))
		require.NoError(t, err)
		require.Equal(t, ColName, table.KeyColumn())
		require.Equal(t, "b", table.Records()[1].Key)
	})
}

func TestClean_NumericColumnsNotFilled(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"2000", "2001"},
		"country":            {"A", "B"},
		"capacity_mw":        {"1", "2"},
		"generation_gwh":     {"3.5", "NaN"},
		"fuel":               {"NaN", "Coal"},
	}, "commissioning_year", "country", "capacity_mw", "generation_gwh", "fuel")

	table, report, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.True(t, table.Frame().Col("generation_gwh").Elem(1).IsNA())
	require.Equal(t, "Unknown", table.Frame().Col("fuel").Elem(0).String())
	require.Equal(t, 1, report.NullCounts["generation_gwh"])
	require.Equal(t, 0, report.NullCounts["fuel"])
}

func TestClean_AllRowsDropped(t *testing.T) {
	t.Parallel()

	df := frameOf(t, map[string][]string{
		"commissioning_year": {"NaN", "0"},
		"country":            {"A", "B"},
		"capacity_mw":        {"1", "2"},
	}, "commissioning_year", "country", "capacity_mw")

	table, report, err := quietCleaner().Clean(df)
	require.NoError(t, err)
	require.Zero(t, table.Len())
	require.Zero(t, table.Frame().Nrow())
	require.Equal(t, 2, report.DroppedTotal())
}
