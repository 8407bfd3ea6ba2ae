package vv

// Home for stringers and other telemetry related distractions
func (f Fame) String() string {
	switch f {
	case FameUndecided:
		return "FameUndecided"
	case FameTrue:
		return "FameTrue"
	case FameFalse:
		return "FameFalse"
	default:
		return "<unknown>"
	}
}

func (s LinkStatus) String() string {
	switch s {
	case LinkRejected:
		return "LinkRejected"
	case LinkLinked:
		return "LinkLinked"
	case LinkBuffered:
		return "LinkBuffered"
	case LinkDuplicate:
		return "LinkDuplicate"
	case LinkAncient:
		return "LinkAncient"
	default:
		return "<unknown>"
	}
}
