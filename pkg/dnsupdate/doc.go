// Package dnsupdate is a small RFC 2136 Dynamic DNS Update client.
//
// It replaces the address RRset of a set of names in one zone with a single
// new address, optionally signing the UPDATE with TSIG (RFC 2845). Any
// RFC 2136-compliant server works, including BIND, Knot DNS and PowerDNS.
//
// # Usage
//
//	config, err := dnsupdate.LoadConfigFromMap(map[string]string{
//	    "SERVER":      "ns1.example.com",
//	    "ZONE":        "example.com.",
//	    "TSIG_KEY":    "ddns.",
//	    "TSIG_SECRET": "c2VjcmV0",
//	})
//	if err != nil {
//	    return err
//	}
//
//	client, err := dnsupdate.NewClient(config)
//	if err != nil {
//	    return err
//	}
//
//	err = client.ReplaceAddress(ctx, []string{"@", "*"}, "203.0.113.7", 300)
//
// # Names
//
// Record names are relative to the zone. "@" is the zone apex, "*" the
// wildcard. A name ending in a dot is taken as fully qualified and must lie
// inside the zone.
//
// # TSIG Authentication
//
// Generate a key with BIND's tsig-keygen:
//
//	tsig-keygen -a hmac-sha256 ddns.
//
// Supported algorithms are hmac-sha256 (default), hmac-sha512 and hmac-md5.
package dnsupdate
