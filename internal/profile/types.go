package profile

import (
	"net"
	"strings"
)

// Cluster is the local record of a root or leaf cluster as materialized
// from its profile file, optionally enriched by an authenticated call.
type Cluster struct {
	// URI uniquely identifies the cluster (e.g. "/clusters/teleport.example.com").
	URI string

	// Name is the cluster name, derived from the profile file name.
	Name string

	// ProxyHost is the hostname of the cluster's proxy, without the port.
	ProxyHost string

	// SSOHost is the hostname of the SSO provider used for login, if any.
	SSOHost string

	// Connected reports whether the profile holds valid credentials.
	Connected bool

	// Leaf reports whether this is a leaf cluster reached through a root.
	Leaf bool

	// ProfileStatusError carries the reason a profile could not be used
	// (expired credentials, unreadable file). Empty when the profile is
	// healthy.
	ProfileStatusError string

	// LoggedInUser is the identity cached in the profile.
	LoggedInUser LoggedInUser

	// AuthClusterID is the ID of the cluster's auth service. Only populated
	// by an authenticated call, never from the profile directory.
	AuthClusterID string

	// ProxyVersion is the version reported by the proxy. Only populated by
	// an authenticated call, never from the profile directory.
	ProxyVersion string
}

// LoggedInUser is the identity stored in a profile.
type LoggedInUser struct {
	// Name is the username the profile is logged in as.
	Name string

	// Roles are the roles assigned to the user.
	Roles []string

	// IsDeviceTrusted reports whether the session is backed by a trusted
	// device.
	IsDeviceTrusted bool

	// ActiveRequests are the IDs of assumed access requests. Only populated
	// by an authenticated call, never from the profile directory.
	ActiveRequests []string
}

// uriPrefix is the namespace for cluster URIs.
const uriPrefix = "/clusters/"

// ClusterURI returns the URI for a cluster with the given name.
func ClusterURI(name string) string {
	return uriPrefix + name
}

// hostFromAddr strips an optional port from a proxy address.
func hostFromAddr(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(addr, ":")
}
