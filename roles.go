package auth

// Authority names seeded by the migrations
const (
	AuthorityUser   = "USER"
	AuthorityAdmin  = "ADMIN"
	AuthorityVendor = "VENDOR"
)

// DefaultAuthority is granted to every new registration
const DefaultAuthority = AuthorityUser

// GetAllAuthorities returns all predefined authorities
func GetAllAuthorities() []string {
	return []string{
		AuthorityUser,
		AuthorityAdmin,
		AuthorityVendor,
	}
}

// IsKnownAuthority checks if the name is one of the predefined authorities
func IsKnownAuthority(name string) bool {
	switch name {
	case AuthorityUser, AuthorityAdmin, AuthorityVendor:
		return true
	default:
		return false
	}
}
