package deploy

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DeploymentRecord is the identity a previous bootstrap left behind in
// its configuration file. It decides whether re-bootstrapping the same
// directory is a refresh, a conflict, or a forced overwrite.
type DeploymentRecord struct {
	RouterName  string
	ClusterName string
	RouterID    uint32
	AccountUser string
}

// ConflictError reports a directory already bootstrapped against a
// different cluster.
type ConflictError struct {
	Dir      string
	Existing string
	Wanted   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"directory %s already contains a configuration for cluster '%s'. "+
			"If you'd like to replace it, please use the --force option",
		e.Dir, e.Existing)
}

// readDeploymentRecord extracts the router name and cluster name from
// an existing configuration file. It returns nil when the file does not
// exist.
func readDeploymentRecord(configPath string) (*DeploymentRecord, error) {
	f, err := os.Open(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading existing configuration %s: %w", configPath, err)
	}
	defer f.Close()

	rec := &DeploymentRecord{}
	section := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			section = line[1 : len(line)-1]
		case section == "DEFAULT" && strings.HasPrefix(line, "name="):
			rec.RouterName = strings.TrimPrefix(line, "name=")
		case strings.HasPrefix(section, "metadata_cache:") && strings.HasPrefix(line, "metadata_cluster="):
			rec.ClusterName = strings.TrimPrefix(line, "metadata_cluster=")
		case strings.HasPrefix(section, "metadata_cache:") && strings.HasPrefix(line, "router_id="):
			// unparseable ids are treated as absent: the run registers anew
			if id, perr := strconv.ParseUint(strings.TrimPrefix(line, "router_id="), 10, 32); perr == nil {
				rec.RouterID = uint32(id)
			}
		case strings.HasPrefix(section, "metadata_cache:") && strings.HasPrefix(line, "user="):
			rec.AccountUser = strings.TrimPrefix(line, "user=")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading existing configuration %s: %w", configPath, err)
	}
	return rec, nil
}
