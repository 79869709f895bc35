package constants

// Identifier and coding systems recognized by the parsers.
const (
	MRNSystem            = "http://hospital.carenexus.org/mrn"
	IdentifierTypeSystem = "http://terminology.hl7.org/CodeSystem/v2-0203"
	MRNTypeCode          = "MR"

	ICD10System  = "http://hl7.org/fhir/sid/icd-10"
	SNOMEDSystem = "http://snomed.info/sct"
	RxNormSystem = "http://www.nlm.nih.gov/research/umls/rxnorm"
	NDCSystem    = "http://hl7.org/fhir/sid/ndc"
)

// Clinical status values surfaced by the condition parser.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
	StatusUnknown  = "unknown"
)

// Fallback display used when a medication carries neither a coded display nor
// free text.
const UnknownMedication = "Unknown Medication"

const (
	ContentType         = "Content-Type"
	JsonContentType     = "application/json"
	FHIRJsonContentType = "application/fhir+json"
	Authorization       = "Authorization"
	UserAgent           = "ehrc-app"
	TransactionIDHeader = "X-Transaction-Id"
)

// Retry policy defaults. MaxAttempts counts the first try.
const (
	DefaultMaxAttempts       = 3
	DefaultRequestTimeoutSec = 30
	DefaultBackoffBaseMS     = 500
	DefaultTokenMarginSec    = 60
	DefaultTokenLifetimeSec  = 300
)

// This is set during compilation.  See build_and_package.sh in the ops repo
var Version = "latest"
