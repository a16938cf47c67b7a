// Package discovery advertises and finds wsecho servers over mDNS.
//
// Servers register themselves under the "_wsecho._tcp" service type with TXT
// records carrying the WebSocket path and server version. Clients browse for
// that type and build ws:// URLs from the answers.
//
// # Usage Example
//
//	// Server side
//	adv, err := discovery.Advertise("", 8080, "/")
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	// Client side
//	services, err := discovery.NewScanner().Scan(ctx)
//	for _, svc := range services {
//	    fmt.Println(svc.Instance, svc.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Server and client must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
