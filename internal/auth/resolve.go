package auth

import (
	"strings"

	"bar-pos/internal/apperr"
	"bar-pos/internal/models"
)

// Account is a stored user together with its credential hash.
type Account struct {
	models.User
	PasswordHash string `json:"-"`
}

// IsPlatformLogin reports whether business names no tenant, in which case
// the username alone has to identify the account.
func IsPlatformLogin(business string) bool {
	b := strings.TrimSpace(business)
	return b == "" || strings.EqualFold(b, models.PlatformTenant)
}

// ResolvePlatformLogin picks the account a login without a business name
// refers to. A platform administrator wins; otherwise the name must belong
// to exactly one tenant user. Guessing between tenants is never done.
func ResolvePlatformLogin(candidates []Account) (Account, error) {
	var platform, tenant []Account
	for _, a := range candidates {
		if a.Role.SeesAllTenants() {
			platform = append(platform, a)
		} else {
			tenant = append(tenant, a)
		}
	}

	switch {
	case len(platform) == 1:
		return platform[0], nil
	case len(platform) > 1:
		return Account{}, apperr.Conflict("multiple accounts found, please specify business")
	}

	switch len(tenant) {
	case 0:
		return Account{}, apperr.ErrCredentialMismatch
	case 1:
		return tenant[0], nil
	}
	return Account{}, apperr.Conflict("multiple accounts found, please specify business")
}
