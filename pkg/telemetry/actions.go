package telemetry

type ActionCategory int

const (
	Discovering ActionCategory = iota
	Building
	Fuzzing
	Correlating
	Reporting
	Backtrace
)

func (a ActionCategory) String() string {
	switch a {
	case Discovering:
		return "discovering"
	case Building:
		return "building"
	case Fuzzing:
		return "fuzzing"
	case Correlating:
		return "correlating"
	case Reporting:
		return "reporting"
	case Backtrace:
		return "backtrace"
	default:
		return "unknown"
	}
}
