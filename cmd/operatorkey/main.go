package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/database"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
)

// Creates an operator API key and prints the token once.
func main() {
	tenantID := flag.Uint("tenant", 0, "tenant id the key is bound to")
	name := flag.String("name", "", "display name recorded in audit trails")
	role := flag.String("role", models.OperatorRoleViewer, "viewer, operator or admin")
	ttl := flag.Duration("ttl", 0, "key lifetime, 0 for no expiry")
	flag.Parse()

	if *tenantID == 0 {
		fmt.Fprintln(os.Stderr, "-tenant is required")
		os.Exit(2)
	}
	switch *role {
	case models.OperatorRoleViewer, models.OperatorRoleOperator, models.OperatorRoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().Add(*ttl)
		expiresAt = &t
	}

	env.SetupEnvFile()
	database.SetupDatabase()
	keys := repository.NewOperatorKeyRepository(database.GetDB())

	key, token, err := models.NewOperatorAPIKey(*tenantID, *name, *role, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generating key failed: %v\n", err)
		os.Exit(1)
	}
	if err := keys.Create(key); err != nil {
		fmt.Fprintf(os.Stderr, "storing key failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("key id: %s\nrole:   %s\ntenant: %d\n", key.KeyID, key.Role, key.TenantID)
	fmt.Printf("token:  %s\n", token)
	fmt.Println("The token is not stored and cannot be shown again.")
}
