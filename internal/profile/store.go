package profile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"clusterwatch/pkg/logging"
)

// ErrNoProfileDir is returned by ListClusters when the profile directory
// does not exist. Callers use it to distinguish "nothing is known yet" from
// a real read failure.
var ErrNoProfileDir = errors.New("profile directory does not exist")

const (
	userConfigDir  = ".config/clusterwatch"
	profileSubdir  = "profiles"
	profileFileExt = ".yaml"
)

// DefaultDir returns the default profile directory under the user's home.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user home directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, profileSubdir), nil
}

// Store reads cluster records from a profile directory.
//
// Concurrent ListClusters calls are collapsed into a single directory read;
// several watch sessions can share one Store without multiplying disk I/O.
type Store struct {
	dir   string
	group singleflight.Group
}

// NewStore creates a Store for the given profile directory. The directory
// does not need to exist yet.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the profile directory this store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// ListClusters reads every profile in the directory and returns the cluster
// records sorted by URI. A missing directory returns ErrNoProfileDir. A
// profile file that cannot be read or parsed still yields a cluster, with
// ProfileStatusError describing the problem, so a half-written file never
// hides a known cluster.
func (s *Store) ListClusters(ctx context.Context) ([]Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do("list", func() (interface{}, error) {
		return s.listClusters()
	})
	if err != nil {
		return nil, err
	}
	return v.([]Cluster), nil
}

func (s *Store) listClusters() ([]Cluster, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoProfileDir
		}
		return nil, fmt.Errorf("reading profile directory %s: %w", s.dir, err)
	}

	var clusters []Cluster
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), profileFileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), profileFileExt)
		clusters = append(clusters, s.readProfile(name))
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].URI < clusters[j].URI
	})

	return clusters, nil
}

// profileFile is the YAML schema of a single profile.
type profileFile struct {
	WebProxyAddr string      `yaml:"web_proxy_addr"`
	SSOHost      string      `yaml:"sso_host,omitempty"`
	Connected    bool        `yaml:"connected"`
	StatusError  string      `yaml:"status_error,omitempty"`
	User         profileUser `yaml:"user,omitempty"`
}

type profileUser struct {
	Name          string   `yaml:"name"`
	Roles         []string `yaml:"roles,omitempty"`
	DeviceTrusted bool     `yaml:"device_trusted,omitempty"`
}

// readProfile loads one profile file. A broken file is reported through
// ProfileStatusError rather than failing the whole listing.
func (s *Store) readProfile(name string) Cluster {
	cluster := Cluster{
		URI:  ClusterURI(name),
		Name: name,
	}

	path := filepath.Join(s.dir, name+profileFileExt)
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("ProfileStore", "Failed to read profile %s: %v", name, err)
		cluster.ProfileStatusError = fmt.Sprintf("failed to read profile: %v", err)
		return cluster
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		logging.Warn("ProfileStore", "Failed to parse profile %s: %v", name, err)
		cluster.ProfileStatusError = fmt.Sprintf("failed to parse profile: %v", err)
		return cluster
	}

	cluster.ProxyHost = hostFromAddr(pf.WebProxyAddr)
	cluster.SSOHost = pf.SSOHost
	cluster.Connected = pf.Connected
	cluster.ProfileStatusError = pf.StatusError
	cluster.LoggedInUser = LoggedInUser{
		Name:            pf.User.Name,
		Roles:           pf.User.Roles,
		IsDeviceTrusted: pf.User.DeviceTrusted,
	}

	return cluster
}

// SaveProfile writes a profile file for the given cluster. It exists for
// tooling and tests; the watcher itself never writes profiles.
func (s *Store) SaveProfile(c Cluster) error {
	pf := profileFile{
		WebProxyAddr: c.ProxyHost,
		SSOHost:      c.SSOHost,
		Connected:    c.Connected,
		StatusError:  c.ProfileStatusError,
		User: profileUser{
			Name:          c.LoggedInUser.Name,
			Roles:         c.LoggedInUser.Roles,
			DeviceTrusted: c.LoggedInUser.IsDeviceTrusted,
		},
	}

	data, err := yaml.Marshal(&pf)
	if err != nil {
		return fmt.Errorf("marshaling profile %s: %w", c.Name, err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating profile directory %s: %w", s.dir, err)
	}

	path := filepath.Join(s.dir, c.Name+profileFileExt)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing profile %s: %w", c.Name, err)
	}

	return nil
}
