package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide explains how tokens are stored and used for host
func ShowTokenGuide(w io.Writer, host string) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "MIRROR TOKEN FOR %s\n", strings.ToUpper(host))
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Most mirrors serve archives without authentication. Some grant")
	fmt.Fprintln(w, "higher rate limits to registered users through an API token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token is sent as \"Authorization: Bearer <token>\" on every")
	fmt.Fprintln(w, "download request to this host and to no other host.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage, in order of preference:")
	fmt.Fprintln(w, "  1. The system keychain")
	fmt.Fprintln(w, "  2. An encrypted file in the collectordl config directory")
	fmt.Fprintf(w, "  3. The %s environment variable (read-only)\n", EnvVar(host))
	fmt.Fprintln(w)
}
