package domain

import (
	"math"
	"strconv"
	"strings"
)

// Output file naming. These formats are a compatibility surface with existing
// archives and downstream tooling and must not drift.

// MasterDarkName returns the output file name for a master dark, e.g.
// "MDark-Exp1s0.fts" for a 1.0s exposure.
func MasterDarkName(expTime float64) string {
	return "MDark-Exp" + expToken(expTime) + ".fts"
}

// MasterFlatName returns the output file name for a master flat, e.g.
// "MFlat-Clear.fts".
func MasterFlatName(filter string) string {
	return "MFlat-" + filter + ".fts"
}

// CorrectedName returns the output file name for a corrected light frame:
// object, punctuation-free timestamp, signed temperature, binning, exposure
// and filter, e.g. "m31-20170521at042311-Tempm20-Bin2-Exp30s0-Clear.fts".
func CorrectedName(f *Frame) string {
	return f.Object +
		"-" + dateToken(f.DateObs) +
		"-Temp" + tempToken(f.CCDTemp) +
		"-Bin" + strconv.Itoa(f.Binning) +
		"-Exp" + expToken(f.ExpTime) +
		"-" + f.Filter +
		".fts"
}

// expToken renders an exposure time with the decimal point replaced by "s".
// Whole seconds keep one decimal place ("1s0", not "1") to match the archive
// convention.
func expToken(expTime float64) string {
	s := strconv.FormatFloat(expTime, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return strings.ReplaceAll(s, ".", "s")
}

// dateToken strips punctuation from a DATE-OBS timestamp and marks the
// date/time boundary with "at": "2017-05-21T04:23:11" -> "20170521at042311".
func dateToken(dateObs string) string {
	s := strings.ReplaceAll(dateObs, "-", "")
	s = strings.ReplaceAll(s, "T", "at")
	return strings.ReplaceAll(s, ":", "")
}

// tempToken renders a sensor temperature as a rounded integer with "m" in
// place of a minus sign.
func tempToken(ccdTemp float64) string {
	t := strconv.Itoa(int(math.Round(ccdTemp)))
	return strings.ReplaceAll(t, "-", "m")
}
