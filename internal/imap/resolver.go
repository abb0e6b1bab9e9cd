package imap

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// IMAPS servers for providers that support OAuth bearer authentication
var knownServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"msn.com":        "outlook.office365.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"aol.com":        "imap.aol.com:993",
	"fastmail.com":   "imap.fastmail.com:993",
}

// Resolve determines the IMAPS server for a mailbox identity when none is
// configured. Known providers win; otherwise common host patterns are probed
// and MX records consulted as a last resort.
func Resolve(identity string) (string, error) {
	at := strings.LastIndex(identity, "@")
	if at < 1 || at == len(identity)-1 {
		return "", fmt.Errorf("invalid mailbox identity %q", identity)
	}
	domain := strings.ToLower(identity[at+1:])

	if server, ok := knownServers[domain]; ok {
		return server, nil
	}

	for _, host := range []string{"imap." + domain, "mail." + domain} {
		if reachable(host) {
			return host + ":993", nil
		}
	}

	if server, err := resolveViaMX(domain); err == nil {
		return server, nil
	}

	// Last guess; the dial will report the real failure
	return "imap." + domain + ":993", nil
}

// reachable checks whether host accepts connections on the IMAPS port
func reachable(host string) bool {
	conn, err := net.DialTimeout("tcp", host+":993", 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// resolveViaMX derives an IMAP host from the domain's primary MX record,
// e.g. mx.example.com -> imap.example.com
func resolveViaMX(domain string) (string, error) {
	mxRecords, err := net.LookupMX(domain)
	if err != nil || len(mxRecords) == 0 {
		return "", fmt.Errorf("no MX records for %s", domain)
	}

	mxHost := strings.TrimSuffix(mxRecords[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("cannot derive IMAP host from MX %s", mxHost)
	}

	for _, host := range []string{"imap." + parts[1], "mail." + parts[1]} {
		if reachable(host) {
			return host + ":993", nil
		}
	}

	return "", fmt.Errorf("no reachable IMAP host for %s", domain)
}
