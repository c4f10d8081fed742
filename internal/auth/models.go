package auth

import "time"

// Account is a client account that can log in with its code and password.
type Account struct {
	ID           int64
	Code         string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// SafeAccount removes sensitive fields for response payloads.
func (a Account) SafeAccount() Account {
	a.PasswordHash = ""
	return a
}

// SeedAccount describes an account to provision at startup.
type SeedAccount struct {
	Code     string
	Name     string
	Password string
}

// DemoAccounts are provisioned when SEED_DEMO_ACCOUNTS is enabled.
var DemoAccounts = []SeedAccount{
	{Code: "DEMO123", Name: "Γιάννης Παπαδόπουλος", Password: "demo2024"},
	{Code: "CLIENT456", Name: "Μαρία Κωνσταντίνου", Password: "client2024"},
}
