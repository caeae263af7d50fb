package marketdata

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSVSortsAscending(t *testing.T) {
	series, err := LoadCSV(filepath.Join("testdata", "pair.csv"))
	require.NoError(t, err)
	require.Equal(t, 3, series.Len())
	assert.False(t, series.HasBetaTrue())

	want := []time.Time{
		time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	for i, obs := range series.Observations {
		assert.True(t, obs.Ts.Equal(want[i]), "bar %d at %s", i, obs.Ts)
	}
	assert.Equal(t, 51.0, series.Observations[0].PriceY)
	assert.Equal(t, 100.0, series.Observations[0].PriceX)
}

func TestLoadCSVWithGroundTruth(t *testing.T) {
	series, err := LoadCSV(filepath.Join("testdata", "synthetic.csv"))
	require.NoError(t, err)
	require.True(t, series.HasBetaTrue())
	assert.Equal(t, []float64{0.80, 0.81, 0.80}, series.BetaTrue)
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"header only":    "ts,asset_x,asset_y\n",
		"missing column": "ts,asset_x,price\n2023-01-01,1,2\n",
		"zero price":     "ts,asset_x,asset_y\n2023-01-01,0,2\n",
		"negative price": "ts,asset_x,asset_y\n2023-01-01,1,-2\n",
		"blank price":    "ts,asset_x,asset_y\n2023-01-01,,2\n",
		"bad timestamp":  "ts,asset_x,asset_y\nyesterday,1,2\n",
		"duplicate time": "ts,asset_x,asset_y\n2023-01-01,1,2\n2023-01-01,1,2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidData), "unexpected error %v", err)
		})
	}
}

func TestAllIsRestartable(t *testing.T) {
	series, err := LoadCSV(filepath.Join("testdata", "pair.csv"))
	require.NoError(t, err)

	count := func() int {
		n := 0
		for _, err := range series.All() {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 3, count())
	assert.Equal(t, 3, count())

	for obs := range series.All() {
		assert.Equal(t, 51.0, obs.PriceY)
		break
	}
}

func TestGenerateDeterministic(t *testing.T) {
	params := DefaultSynthetic()
	params.Points = 300

	a, err := Generate(params)
	require.NoError(t, err)
	b, err := Generate(params)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NoError(t, a.Validate())
	require.True(t, a.HasBetaTrue())
	assert.Equal(t, params.X0, a.Observations[0].PriceX)
	assert.InDelta(t, params.BetaStart, a.BetaTrue[0], 0.1)
	assert.InDelta(t, params.BetaEnd, a.BetaTrue[len(a.BetaTrue)-1], 0.1)

	params.Seed++
	c, err := Generate(params)
	require.NoError(t, err)
	assert.NotEqual(t, a.Observations[1].PriceY, c.Observations[1].PriceY)
}

func TestGenerateRejectsTinySeries(t *testing.T) {
	params := DefaultSynthetic()
	params.Points = 1
	_, err := Generate(params)
	require.Error(t, err)
}

func TestWriteCSVReadBack(t *testing.T) {
	params := DefaultSynthetic()
	params.Points = 25
	series, err := Generate(params)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, series))
	assert.True(t, strings.HasPrefix(buf.String(), "timestamp,asset_x,asset_y,beta_true\n"))

	decoded, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, series.Len(), decoded.Len())
	for i := range series.Observations {
		assert.True(t, series.Observations[i].Ts.Equal(decoded.Observations[i].Ts))
		assert.Equal(t, series.Observations[i].PriceY, decoded.Observations[i].PriceY)
	}
	assert.Equal(t, series.BetaTrue, decoded.BetaTrue)
}

func TestSaveCSVCreatesDirectories(t *testing.T) {
	params := DefaultSynthetic()
	params.Points = 5
	series, err := Generate(params)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "raw", "synthetic_cointegration.csv")
	require.NoError(t, SaveCSV(path, series))

	loaded, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Len())
}
