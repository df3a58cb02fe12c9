package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// buildClientConfig creates the SSH client config from key and password settings
func buildClientConfig(config SSHExecutorConfig) (*ssh.ClientConfig, error) {
	if config.User == "" {
		return nil, fmt.Errorf("ssh user not configured")
	}

	var auth []ssh.AuthMethod

	keyData := config.PrivateKey
	if len(keyData) == 0 && config.KeyPath != "" {
		data, err := os.ReadFile(config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		keyData = data
	}
	if len(keyData) > 0 {
		var signer ssh.Signer
		var err error
		if config.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(config.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh authentication method configured")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHostsPath != "" {
		cb, err := knownhosts.New(config.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.ConnectionTimeout,
	}, nil
}

// connect establishes an SSH connection to ip on the configured port
func (s *SSHExecutor) connect(ctx context.Context, ip string) (*ssh.Client, error) {
	addr := s.hostPort(ip)

	dialer := &net.Dialer{Timeout: s.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	// The handshake is bounded by the connection timeout as well
	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, s.clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runCommand executes a command in its own session and returns its stdout.
// A non-zero exit status still yields the output.
func (s *SSHExecutor) runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(cmd)
		done <- result{output: out, err: err}
	}()

	timer := time.NewTimer(s.config.CommandTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		var exitErr *ssh.ExitError
		if r.err != nil && !errors.As(r.err, &exitErr) {
			return "", fmt.Errorf("command failed: %w", r.err)
		}
		return string(r.output), nil
	case <-timer.C:
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command timeout after %s", s.config.CommandTimeout)
	}
}
