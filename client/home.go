package client

import (
	"os"
	"os/user"
	"path/filepath"
)

// HomeDir returns the gitdrop home directory
// By default this is ~/.gitdrop, but can be overriden by setting the GITDROP_HOME
// environment variable
func HomeDir() string {
	if os.Getenv("GITDROP_HOME") != "" {
		return os.Getenv("GITDROP_HOME")
	}

	u, err := user.Current()
	if err != nil {
		return ""
	}
	return filepath.Join(u.HomeDir, ".gitdrop")
}

func LogsDir() string {
	return filepath.Join(HomeDir(), "logs")
}
