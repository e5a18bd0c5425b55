package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPredictions(t *testing.T) {
	in := "pred,SecurityID,time\n0.5,1,20240102\n-0.1,600000,1704153600\n0.2,000002.SZ,20240103\n"

	preds, err := ReadPredictions(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, preds, 3)

	assert.Equal(t, types.Prediction{Code: "000001", Day: day(2), Pred: 0.5}, preds[0])
	assert.Equal(t, types.Prediction{Code: "600000", Day: day(2), Pred: -0.1}, preds[1])
	assert.Equal(t, "000002", preds[2].Code)
	assert.Equal(t, day(3), preds[2].Day)
}

func TestReadPredictionsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing column": "SecurityID,pred\n1,0.5\n",
		"bad pred":       "SecurityID,time,pred\n1,20240102,abc\n",
		"bad code":       "SecurityID,time,pred\nxyz,20240102,0.1\n",
		"bad time":       "SecurityID,time,pred\n1,yesterday,0.1\n",
		"short row":      "SecurityID,time,pred\n1,20240102\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPredictions(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformedRow)
		})
	}

	_, err := ReadPredictions(strings.NewReader("SecurityID,time,pred\n"))
	assert.ErrorIs(t, err, ErrNoPredictions)
}

func TestReadNames(t *testing.T) {
	stocks, err := ReadNames(strings.NewReader("code,name\n1,Ping An Bank\n600001, ST Foo \n"))
	require.NoError(t, err)
	assert.Equal(t, []types.Stock{
		{Code: "000001", Name: "Ping An Bank"},
		{Code: "600001", Name: "ST Foo"},
	}, stocks)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	barsPath := filepath.Join(dir, "bars", "daily.parquet")
	predsPath := filepath.Join(dir, "preds.csv")
	namesPath := filepath.Join(dir, "names.csv")

	require.NoError(t, WriteBarsFile(barsPath, sampleBars()))
	require.NoError(t, os.WriteFile(predsPath, []byte("SecurityID,time,pred\n1,20240102,0.3\n2,20240102,0.4\n1,20240103,0.1\n"), 0o644))
	require.NoError(t, os.WriteFile(namesPath, []byte("code,name\n2,*ST Two\n"), 0o644))

	m, err := LoadFiles(context.Background(), FileSources{BarsFile: barsPath, PredictionsFile: predsPath, NamesFile: namesPath}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"000002", "000001"}, m.TopRanked(day(2), 5))
	assert.True(t, m.IsSpecialTreatment("000002"))
	assert.Len(t, m.TradingDays(), 2)

	closePrice, err := m.Close("000001", day(3))
	require.NoError(t, err)
	assert.True(t, closePrice.Equal(decimal.RequireFromString("10.2")))
}

func TestLoadFilesCanceled(t *testing.T) {
	dir := t.TempDir()
	barsPath := filepath.Join(dir, "daily.parquet")
	require.NoError(t, WriteBarsFile(barsPath, sampleBars()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadFiles(ctx, FileSources{BarsFile: barsPath, PredictionsFile: filepath.Join(dir, "none.csv")}, quietLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadBarsFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.parquet")
	bars := []types.DailyBar{{Code: "not-a-code", Day: day(2), Open: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)}}
	require.NoError(t, WriteBarsFile(path, bars))

	_, err := ReadBarsFile(path)
	assert.ErrorIs(t, err, ErrMalformedRow)

	_, err = ReadBarsFile(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)
}
