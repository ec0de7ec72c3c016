package config

import "os"

// Tenancy is configuration, not a magic constant: single-tenant deployments
// set DEFAULT_COMPANY_ID and the auth middleware injects it for tokens that
// carry no company claim. Multi-tenant deployments leave it empty, making the
// company id on the token mandatory.
func DefaultCompanyId() string {
	return os.Getenv("DEFAULT_COMPANY_ID")
}
