package domain

import "strings"

// Kind classifies a frame by its role in the reduction pipeline.
type Kind int

const (
	KindUnknown Kind = iota
	KindRaw
	KindCorrected
	KindFlat
	KindMasterFlat
	KindDark
	KindMasterDark
)

// String returns the lowercase tag used in log output and file name prefixes.
func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindCorrected:
		return "corrected"
	case KindFlat:
		return "flat"
	case KindMasterFlat:
		return "mflat"
	case KindDark:
		return "dark"
	case KindMasterDark:
		return "mdark"
	default:
		return "unknown"
	}
}

// KindFromFileName infers the frame kind from the file name prefix
// (the part before the first "-", lowercased). Anything that is not a
// recognized calibration prefix is a raw light frame.
func KindFromFileName(name string) Kind {
	prefix, _, _ := strings.Cut(name, "-")
	switch strings.ToLower(prefix) {
	case "dark":
		return KindDark
	case "mdark":
		return KindMasterDark
	case "flat":
		return KindFlat
	case "mflat":
		return KindMasterFlat
	default:
		return KindRaw
	}
}
