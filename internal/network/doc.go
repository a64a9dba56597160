// Package network provides the link-level primitives the bridge relies on:
// hardware address lookup from the kernel neighbour table, ICMP
// reachability probes, Wake-on-LAN and mDNS announcement browsing.
//
// None of these return hard failures for the common "nothing there" case.
// ARPTable yields identity.Unknown and ICMPProber yields false.
package network
