package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/user"
	"regexp"
	"strings"

	"agentterm/internal/userutil"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\agentterm-[a-z0-9._-]{1,128}$`)

const defaultPipePrefix = `\\.\pipe\agentterm-`

// Command names accepted over the activation pipe.
const (
	// CommandActivate asks the running instance to bring its window to the
	// foreground. Sent by a second launch before it exits.
	CommandActivate = "activate"
	// CommandNewSession asks the running instance to open a new terminal
	// session. Args[0], when present, is the working directory.
	CommandNewSession = "new-session"
)

// Request is a single command forwarded from a secondary launch to the
// running instance.
type Request struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Response is the result of executing a Request.
type Response struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// CommandExecutor handles an activation request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

func sanitizeUsername(value string) string {
	return userutil.SanitizeUsername(value)
}

// DefaultPipeName returns the pipe path to use. If the AGENTTERM_PIPE
// environment variable is set and passes pattern validation, its value is
// used; otherwise a per-user default is constructed from the current username.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}

	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return defaultPipePrefix + sanitizeUsername(username)
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("AGENTTERM_PIPE"))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] AGENTTERM_PIPE rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(raw, &req)
	if err != nil {
		return Request{}, err
	}
	if req.Env == nil {
		req.Env = map[string]string{}
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	err := json.Unmarshal(raw, &resp)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
