package deploy

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeScripts drops start/stop helpers next to the configuration so a
// directory deployment is self-contained.
func writeScripts(dir, configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		executable = "clustergate"
	}

	start := fmt.Sprintf(`#!/bin/bash
basedir=%s
%s -c %s &
disown %%-
echo $! > $basedir/pidfile
`, dir, executable, configPath)

	stop := fmt.Sprintf(`#!/bin/bash
if [ -f %[1]s/pidfile ]; then
  kill -HUP $(cat %[1]s/pidfile)
  rm -f %[1]s/pidfile
fi
`, dir)

	if err := os.WriteFile(filepath.Join(dir, "start.sh"), []byte(start), 0o700); err != nil {
		return fmt.Errorf("writing start script: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stop.sh"), []byte(stop), 0o700); err != nil {
		return fmt.Errorf("writing stop script: %w", err)
	}
	return nil
}
