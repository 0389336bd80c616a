package lifecycle

// Operation is one hardware or transport call made by the controller
type Operation int

const (
	OpOpenTransport Operation = iota
	OpProbe
	OpReadVersion
	OpReadSerial
	OpSetAutoClean
	OpStartMeasurement
	OpReadMeasurement
	OpStopMeasurement
	OpSleep
	OpWakeUp
	OpCloseTransport
)

var operationNames = map[Operation]string{
	OpOpenTransport:    "open-transport",
	OpProbe:            "probe",
	OpReadVersion:      "read-version",
	OpReadSerial:       "read-serial",
	OpSetAutoClean:     "set-auto-clean",
	OpStartMeasurement: "start-measurement",
	OpReadMeasurement:  "read-measurement",
	OpStopMeasurement:  "stop-measurement",
	OpSleep:            "sleep",
	OpWakeUp:           "wake-up",
	OpCloseTransport:   "close-transport",
}

func (o Operation) String() string {
	name, found := operationNames[o]
	if !found {
		return "unknown"
	}
	return name
}

// Policy tells what happens when operation fails
type Policy int

const (
	RetryUnbounded Policy = iota //Retry until success, environment is expected to recover
	RetryBounded                 //Retry up to configured attempts, exhaustion is fatal
	LogOnly                      //Log and carry on, no retry within same tick
	Fatal                        //Stop the controller
)

func (p Policy) String() string {
	switch p {
	case RetryUnbounded:
		return "retry-unbounded"
	case RetryBounded:
		return "retry-bounded"
	case LogOnly:
		return "log-only"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

var policies = map[Operation]Policy{
	OpOpenTransport:    RetryUnbounded,
	OpProbe:            RetryBounded,
	OpReadVersion:      LogOnly,
	OpReadSerial:       LogOnly,
	OpSetAutoClean:     LogOnly,
	OpStartMeasurement: LogOnly,
	OpReadMeasurement:  LogOnly,
	OpStopMeasurement:  LogOnly,
	OpSleep:            LogOnly,
	OpWakeUp:           LogOnly,
	OpCloseTransport:   LogOnly,
}

// PolicyOf returns failure policy of operation. Unlisted operations are fatal
func PolicyOf(op Operation) Policy {
	policy, found := policies[op]
	if !found {
		return Fatal
	}
	return policy
}
