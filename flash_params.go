package qspi

import "time"

type flashParams struct {
	name string

	// tW: write registers (WRR) cycle time
	tW time.Duration
}

// IDs as returned by READ_ID (0x90): manufacturer, device.
var (
	flashIDSpansionS25FL128S = [2]byte{0x01, 0x17}
	flashIDSpansionS25FL256S = [2]byte{0x01, 0x18}
	flashIDSpansionS25FL512S = [2]byte{0x01, 0x19}
)

var knownFlash = map[[2]byte]flashParams{
	// [S25FL-S|Table: Program and Erase Performance] tW max
	flashIDSpansionS25FL128S: {
		name: "Spansion S25FL128S 128Mb",
		tW:   time.Duration(2000 * time.Millisecond),
	},
	flashIDSpansionS25FL256S: {
		name: "Spansion S25FL256S 256Mb",
		tW:   time.Duration(2000 * time.Millisecond),
	},
	flashIDSpansionS25FL512S: {
		name: "Spansion S25FL512S 512Mb",
		tW:   time.Duration(2000 * time.Millisecond),
	},
}

func (f *Flash) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	// get parameter if identified
	if f.pr != nil {
		return get(f.pr)
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

func (f *Flash) tW() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tW })
}
