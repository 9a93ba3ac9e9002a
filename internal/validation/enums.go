package validation

// Common enum values - these MUST match DB CHECK constraints in the database package.
var (
	ValidVendorTypes = []string{"manufacturer", "supplier"}
	ValidRoles       = []string{"user", "manager"}
	ValidWebsites    = []string{"digikey", "mouser"}
)
