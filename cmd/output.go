package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"clusterwatch/internal/profile"
	"clusterwatch/internal/watcher"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutputFormat(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (supported: table, json)", format)
	}
}

// clusterRecord is the JSON shape of one cluster.
type clusterRecord struct {
	URI                string   `json:"uri"`
	Name               string   `json:"name,omitempty"`
	Connected          bool     `json:"connected"`
	Leaf               bool     `json:"leaf,omitempty"`
	ProfileStatusError string   `json:"profileStatusError,omitempty"`
	ProxyHost          string   `json:"proxyHost,omitempty"`
	SSOHost            string   `json:"ssoHost,omitempty"`
	UserName           string   `json:"userName,omitempty"`
	UserRoles          []string `json:"userRoles,omitempty"`
	DeviceTrusted      bool     `json:"deviceTrusted,omitempty"`
}

func recordFromCluster(c profile.Cluster) clusterRecord {
	return clusterRecord{
		URI:                c.URI,
		Name:               c.Name,
		Connected:          c.Connected,
		Leaf:               c.Leaf,
		ProfileStatusError: c.ProfileStatusError,
		ProxyHost:          c.ProxyHost,
		SSOHost:            c.SSOHost,
		UserName:           c.LoggedInUser.Name,
		UserRoles:          c.LoggedInUser.Roles,
		DeviceTrusted:      c.LoggedInUser.IsDeviceTrusted,
	}
}

func recordFromEntry(e watcher.SnapshotEntry) clusterRecord {
	return clusterRecord{
		URI:                e.URI,
		Connected:          e.Connected,
		Leaf:               e.Leaf,
		ProfileStatusError: e.ProfileStatusError,
		ProxyHost:          e.ProxyHost,
		SSOHost:            e.SSOHost,
		UserName:           e.UserName,
		UserRoles:          e.UserRoles,
		DeviceTrusted:      e.DeviceTrusted,
	}
}

// changeRecord is the JSON shape of one detected change.
type changeRecord struct {
	Op       string         `json:"op"`
	Cluster  string         `json:"cluster"`
	Previous *clusterRecord `json:"previous,omitempty"`
	Next     *clusterRecord `json:"next,omitempty"`
}

// renderClusters writes the cluster list in the requested format.
func renderClusters(w io.Writer, format string, clusters []profile.Cluster) error {
	if format == outputJSON {
		records := make([]clusterRecord, 0, len(clusters))
		for _, c := range clusters {
			records = append(records, recordFromCluster(c))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(clusters) == 0 {
		fmt.Fprintln(w, "No clusters found")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"NAME", "CONNECTED", "PROXY", "USER", "STATUS"})
	for _, c := range clusters {
		status := "ok"
		if c.ProfileStatusError != "" {
			status = c.ProfileStatusError
		}
		t.AppendRow(table.Row{c.Name, c.Connected, c.ProxyHost, c.LoggedInUser.Name, status})
	}
	t.Render()
	return nil
}

// renderChangeSet writes one change set in the requested format.
func renderChangeSet(w io.Writer, format string, changes watcher.ChangeSet) error {
	if format == outputJSON {
		records := make([]changeRecord, 0, len(changes))
		for _, change := range changes {
			record := changeRecord{
				Op:      string(change.Op),
				Cluster: change.Entry().URI,
			}
			if change.Op != watcher.OpAdded {
				prev := recordFromEntry(change.Previous)
				record.Previous = &prev
			}
			if change.Op != watcher.OpRemoved {
				next := recordFromEntry(change.Next)
				record.Next = &next
			}
			records = append(records, record)
		}
		return json.NewEncoder(w).Encode(records)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"CHANGE", "CLUSTER", "CONNECTED", "PROXY", "USER"})
	for _, change := range changes {
		entry := change.Entry()
		t.AppendRow(table.Row{
			strings.ToUpper(string(change.Op)),
			entry.URI,
			entry.Connected,
			entry.ProxyHost,
			entry.UserName,
		})
	}
	t.Render()
	return nil
}
