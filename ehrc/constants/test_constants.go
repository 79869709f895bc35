package constants

// Identifiers baked into the built-in fixture dataset. Edit them here to
// prevent breaking tests.
const (
	FixtureMRNSmith = "12345678"
	FixtureMRNJones = "87651234"

	FixturePatientSmith = "pat-10001"
	FixturePatientJones = "pat-10002"

	FixtureClientID = "fixture-client"
)
