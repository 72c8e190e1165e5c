// Package sshexec is the SSH host collaborator for the Multi-Host Compute
// Element: it dials configured hosts, runs remote commands, and stages the
// per-job directory tree. The HostExecutor interface is the seam the
// dispatcher tests against; RealExecutor backs it with golang.org/x/crypto/ssh.
package sshexec

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// HostExecutor is everything the Multi-Host Compute Element needs from a
// remote login host.
type HostExecutor interface {
	// RunCommand executes cmd on host via a fresh SSH session and returns
	// its combined stdout.
	RunCommand(host, cmd string) (string, error)
	// PrepareHost ensures the given directories exist (as a single
	// `mkdir -p` invocation), run once per host at dispatcher startup.
	PrepareHost(host string, dirs []string) error
}

// RealExecutor dials hosts with golang.org/x/crypto/ssh using the supplied
// client config (key or agent based auth is the caller's concern).
type RealExecutor struct {
	Config  *ssh.ClientConfig
	Port    int
	Timeout time.Duration
}

// NewRealExecutor builds a RealExecutor, filling in port 22 and a 15s dial
// timeout when unset and recording a 120s Timeout on the executor.
// RunCommand does not apply Timeout to the remote session.
func NewRealExecutor(cfg *ssh.ClientConfig, port int) *RealExecutor {
	if port == 0 {
		port = 22
	}
	cfgCopy := *cfg
	if cfgCopy.Timeout == 0 {
		cfgCopy.Timeout = 15 * time.Second
	}
	return &RealExecutor{Config: &cfgCopy, Port: port, Timeout: 120 * time.Second}
}

// AgentClientConfig builds an ssh.ClientConfig that authenticates through
// a running ssh-agent (SSH_AUTH_SOCK), the same delegation model the
// login hosts already expect from an interactive operator. Host key
// verification is left to the caller's ssh.ClientConfig.HostKeyCallback
// override; InsecureIgnoreHostKey here only covers the zero-config path.
func AgentClientConfig(user string) (*ssh.ClientConfig, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set: no ssh-agent to delegate to")
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("dial ssh-agent: %w", err)
	}

	agentClient := agent.NewClient(conn)
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

func (e *RealExecutor) dial(host string) (*ssh.Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", e.Port))
	client, err := ssh.Dial("tcp", addr, e.Config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return client, nil
}

// RunCommand opens a new session per call, mirroring how a short-lived CLI
// (rather than a long-lived multiplexed connection) would be used for
// infrequent batch operations like submit/kill/status.
func (e *RealExecutor) RunCommand(host, cmd string) (string, error) {
	client, err := e.dial(host)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session on %s: %w", host, err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return "", fmt.Errorf("run %q on %s: %w", cmd, host, err)
	}
	return string(out), nil
}

// PrepareHost creates the shared-area subdirectory tree under one
// `mkdir -p` call, grounded on SSHBatchComputingElement.py's one-time
// per-host sanity preparation.
func (e *RealExecutor) PrepareHost(host string, dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}
	cmd := "mkdir -p " + strings.Join(dirs, " ")
	_, err := e.RunCommand(host, cmd)
	return err
}
