// Package main provides a CLI tool for generating dev credentials for the
// linkhub API. Tokens minted here use the dev signing key and will NOT work
// against a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"linkhub/internal/token"
	"linkhub/pkg/secrets"
)

// Matches config.go when LINKHUB_JWT_SIGNING_KEY is not set.
const devSigningKey = "dev-secret-key-change-in-production"

const defaultTokenTTL = time.Hour

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in,omitempty"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	tenantCmd := flag.NewFlagSet("tenant", flag.ExitOnError)
	tenantID := tenantCmd.String("tenant-id", "", "Tenant ID the token is scoped to (required)")
	subject := tenantCmd.String("subject", "dashboard-dev", "Token subject")
	ttl := tenantCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	signingKey := tenantCmd.String("signing-key", devSigningKey, "HS256 signing key")
	tenantJSON := tenantCmd.Bool("json", false, "Output as JSON")

	sealingCmd := flag.NewFlagSet("sealing-key", flag.ExitOnError)
	sealingJSON := sealingCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "tenant":
		_ = tenantCmd.Parse(os.Args[2:])
		generateTenantToken(*tenantID, *subject, *ttl, *signingKey, *tenantJSON)
	case "sealing-key":
		_ = sealingCmd.Parse(os.Args[2:])
		generateSealingKey(*sealingJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate dev credentials for the linkhub API

WARNING: Tokens use the dev signing key and will NOT work in production.

Usage:
  tokengen <command> [flags]

Commands:
  tenant        Generate a tenant-scoped bearer token
  sealing-key   Generate a credential sealing key for LINKHUB_SEALING_KEY

Examples:
  # Token for driving tenant acme-1's session locally
  tokengen tenant -tenant-id acme-1

  # Longer-lived token, JSON output
  tokengen tenant -tenant-id acme-1 -ttl 8h -json

  # Fresh sealing key for local config
  tokengen sealing-key

Use "tokengen <command> -h" for more information about a command.`)
}

func generateTenantToken(tenantID, subject string, ttl time.Duration, signingKey string, jsonOutput bool) {
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "-tenant-id is required")
		os.Exit(1)
	}

	svc := token.New(signingKey, ttl)
	signed, err := svc.Generate(tenantID, subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     signed,
			Type:      "tenant_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"tenant_id": tenantID,
				"sub":       subject,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Tenant Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Tenant ID:  %s\n", tenantID)
	fmt.Printf("Subject:    %s\n", subject)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(signed)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/tenants/%s/session\n", tenantID)
}

func generateSealingKey(jsonOutput bool) {
	key, err := secrets.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating sealing key: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token: key,
			Type:  "sealing_key",
			Usage: map[string]string{
				"env": "LINKHUB_SEALING_KEY=" + key,
			},
		})
		return
	}

	fmt.Println("Credential Sealing Key")
	fmt.Println("======================")
	fmt.Printf("LINKHUB_SEALING_KEY=%s\n", key)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
