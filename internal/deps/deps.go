// Package deps resolves the external binaries shelfarr shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// Requirement names a binary and whether shelfarr can run without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after lookup. Command holds the resolved path when
// Available, otherwise Detail says what went wrong.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries looks each requirement up on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = lookup(req)
	}
	return results
}

func lookup(req Requirement) Status {
	if req.Command == "" {
		return Status{Requirement: req, Detail: "command not configured"}
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		return Status{Requirement: req, Detail: fmt.Sprintf("binary %q not found", req.Command)}
	}
	req.Command = path
	return Status{Requirement: req, Available: true}
}

// Missing filters statuses down to unavailable required binaries.
func Missing(statuses []Status) []Status {
	return slices.DeleteFunc(slices.Clone(statuses), func(s Status) bool {
		return s.Available || s.Optional
	})
}
