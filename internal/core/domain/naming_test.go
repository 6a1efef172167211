package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasterDarkName(t *testing.T) {
	assert.Equal(t, "MDark-Exp1s0.fts", MasterDarkName(1.0))
	assert.Equal(t, "MDark-Exp30s0.fts", MasterDarkName(30))
	assert.Equal(t, "MDark-Exp12s5.fts", MasterDarkName(12.5))
	assert.Equal(t, "MDark-Exp0s001.fts", MasterDarkName(0.001))
}

func TestMasterFlatName(t *testing.T) {
	assert.Equal(t, "MFlat-Clear.fts", MasterFlatName("Clear"))
	assert.Equal(t, "MFlat-Ha.fts", MasterFlatName("Ha"))
}

func TestCorrectedName(t *testing.T) {
	f := NewFrame("/lights/m31-001.fts")
	f.Object = "m31"
	f.DateObs = "2017-05-21T04:23:11"
	f.CCDTemp = -20.2
	f.Binning = 2
	f.ExpTime = 30.0
	f.Filter = "Clear"

	assert.Equal(t, "m31-20170521at042311-Tempm20-Bin2-Exp30s0-Clear.fts", CorrectedName(f))
}

func TestCorrectedNamePositiveTemp(t *testing.T) {
	f := NewFrame("/lights/sun-001.fts")
	f.Object = "sun"
	f.DateObs = "17-05-21T04:23:11"
	f.CCDTemp = 10.6
	f.Binning = 1
	f.ExpTime = 0.5
	f.Filter = "Ha"

	assert.Equal(t, "sun-170521at042311-Temp11-Bin1-Exp0s5-Ha.fts", CorrectedName(f))
}
