package model

// Source tags the venue that produced a trade leg.
type Source string

const (
	SourceNone     Source = ""
	SourcePool     Source = "pool"
	SourceOTC      Source = "otc"
	SourceAMM      Source = "amm"
	SourceMint     Source = "mint"
	SourceMultiple Source = "mult"
)

// Merge combines two leg tags: equal or empty tags collapse, anything else is "mult".
func (s Source) Merge(other Source) Source {
	switch {
	case other == SourceNone || other == s:
		return s
	case s == SourceNone:
		return other
	default:
		return SourceMultiple
	}
}
