// Package attachment resolves the ambient, filesystem-derived inputs to
// prompt rendering that the orchestrator core itself has no opinion about:
// a snapshot of the working environment and a depth-bounded listing of
// nearby files, grounded in the teacher's sysprompt.PromptContext system-
// information block (pkg/sysprompt/context.go).
package attachment

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Environment is the "environment" key of the prompt template context: a
// snapshot of the working directory, OS, and date the agent is running in.
type Environment struct {
	WorkingDirectory string `json:"working_directory"`
	IsGitRepo        bool   `json:"is_git_repo"`
	Platform         string `json:"platform"`
	OSVersion        string `json:"os_version"`
	Date             string `json:"date"`
}

// NewEnvironment snapshots the process's current working directory, OS, and
// date for prompt rendering.
func NewEnvironment() Environment {
	pwd, _ := os.Getwd()
	return Environment{
		WorkingDirectory: pwd,
		IsGitRepo:        isGitRepo(pwd),
		Platform:         runtime.GOOS,
		OSVersion:        osVersion(),
		Date:             time.Now().Format("2006-01-02"),
	}
}

func isGitRepo(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(dir + "/.git")
	return err == nil
}

func osVersion() string {
	switch runtime.GOOS {
	case "darwin":
		if out, err := exec.Command("sw_vers", "-productVersion").Output(); err == nil {
			return "macOS " + strings.TrimSpace(string(out))
		}
	case "linux":
		if out, err := exec.Command("uname", "-r").Output(); err == nil {
			return "Linux " + strings.TrimSpace(string(out))
		}
	case "windows":
		if out, err := exec.Command("cmd", "/c", "ver").Output(); err == nil {
			return strings.TrimSpace(string(out))
		}
	}
	return runtime.GOOS
}
