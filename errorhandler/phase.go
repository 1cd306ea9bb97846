package errorhandler

// ErrorPhase indicates where in the pipeline an error occurred
type ErrorPhase int

const (
	PhaseUnknown  ErrorPhase = iota // zero value - uninitialized phase
	PhaseDecode                     // error while decoding and validating the payload
	PhaseDelivery                   // error while writing to the feature store
	PhaseCommit                     // error while advancing or committing offsets
)

func (p ErrorPhase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseDecode:
		return "decode"
	case PhaseDelivery:
		return "delivery"
	case PhaseCommit:
		return "commit"
	default:
		return "unknown"
	}
}
