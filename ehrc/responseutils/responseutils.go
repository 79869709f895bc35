package responseutils

// Issue severity and type values from the FHIR value sets
// http://hl7.org/fhir/issue-severity and http://hl7.org/fhir/issue-type,
// limited to the ones the fixture actually raises.
const (
	Fatal       = "fatal"
	Error       = "error"
	Warning     = "warning"
	Information = "information"
)

const (
	Invalid   = "invalid"
	Security  = "security"
	Not_found = "not-found"
	Exception = "exception"
	Throttled = "throttled"
	Transient = "transient"
)

// Internal codes: These will be modified over time
const (
	TokenErr        = "Invalid Token"
	FormatErr       = "Formatting Error"
	InternalErr     = "Internal Error"
	RequestErr      = "Request Error"
	UnauthorizedErr = "Unauthorized Error"
	NotFoundErr     = "Not Found Error"
	ScriptedErr     = "Scripted Failure"
)
