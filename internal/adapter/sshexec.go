package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"assetlens/internal/correlate"
	"assetlens/internal/domain"
)

// ErrExecutorClosed is returned by Dispatch after Close
var ErrExecutorClosed = errors.New("executor closed")

// SSHExecutorConfig holds configuration for the SSH executor
type SSHExecutorConfig struct {
	User string
	// KeyPath or PrivateKey select key authentication; Password is tried as well when set
	KeyPath    string
	PrivateKey []byte
	Passphrase string
	Password   string
	Port       int
	// Kinds lists the source kinds whose records may answer for an entity.
	// Empty means any record.
	Kinds []string
	// KnownHostsPath enables host key checking
	KnownHostsPath string
	// Timeout for SSH connections
	ConnectionTimeout time.Duration
	// Timeout for each command
	CommandTimeout time.Duration
	// MaxConcurrent limits parallel SSH sessions
	MaxConcurrent int
	// DialRate limits connection attempts per second; zero disables pacing
	DialRate  float64
	DialBurst int
}

// DefaultSSHExecutorConfig returns sensible defaults
func DefaultSSHExecutorConfig() SSHExecutorConfig {
	return SSHExecutorConfig{
		Port:              22,
		ConnectionTimeout: 10 * time.Second,
		CommandTimeout:    30 * time.Second,
		MaxConcurrent:     5,
	}
}

// SSHExecutor runs identification commands on assets over SSH
type SSHExecutor struct {
	config       SSHExecutorConfig
	clientConfig *ssh.ClientConfig
	kinds        map[string]struct{}
	sem          *semaphore.Weighted
	limiter      *rate.Limiter
	logger       *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSSHExecutor creates an SSH executor
func NewSSHExecutor(config SSHExecutorConfig, logger *zap.Logger) (*SSHExecutor, error) {
	defaults := DefaultSSHExecutorConfig()
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = defaults.ConnectionTimeout
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = defaults.CommandTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}

	clientConfig, err := buildClientConfig(config)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.DialRate > 0 {
		burst := config.DialBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.DialRate), burst)
	}

	kinds := make(map[string]struct{}, len(config.Kinds))
	for _, k := range config.Kinds {
		kinds[k] = struct{}{}
	}

	return &SSHExecutor{
		config:       config,
		clientConfig: clientConfig,
		kinds:        kinds,
		sem:          semaphore.NewWeighted(int64(config.MaxConcurrent)),
		limiter:      limiter,
		logger:       logger.Named("sshexec"),
	}, nil
}

// Dispatch starts running the request's commands on the entity and returns
// immediately. Asset-side failures settle the future with StatusFailed.
func (s *SSHExecutor) Dispatch(ctx context.Context, req correlate.ExecutionRequest) (correlate.Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrExecutorClosed
	}

	responder, ok := s.pickResponder(req.Entity)
	if !ok {
		return correlate.Resolved(correlate.ExecutionOutcome{
			Status:  correlate.StatusFailed,
			Message: "no ssh-reachable record",
		}), nil
	}

	addrs := entityAddresses(req.Entity, responder)
	if len(addrs) == 0 {
		return correlate.Resolved(correlate.ExecutionOutcome{
			Status:    correlate.StatusFailed,
			Responder: responder.Ref(),
			Message:   "entity has no ip address",
		}), nil
	}

	promise := correlate.NewPromise()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		promise.Resolve(s.execute(context.WithoutCancel(ctx), req, responder.Ref(), addrs))
	}()
	return promise, nil
}

// Close refuses new requests and waits for in-flight ones to settle
func (s *SSHExecutor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *SSHExecutor) execute(ctx context.Context, req correlate.ExecutionRequest, responder domain.RecordRef, addrs []string) correlate.ExecutionOutcome {
	outcome := correlate.ExecutionOutcome{Status: correlate.StatusFailed, Responder: responder}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		outcome.Message = err.Error()
		return outcome
	}
	defer s.sem.Release(1)

	var lastErr error
	for _, addr := range addrs {
		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		client, err := s.connect(ctx, addr)
		if err != nil {
			s.logger.Debug("SSH connect failed",
				zap.String("entity", req.EntityID),
				zap.String("addr", addr),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		outputs, err := s.runCommands(client, req.Commands)
		client.Close()
		if err != nil {
			s.logger.Info("Identification commands failed",
				zap.String("entity", req.EntityID),
				zap.String("addr", addr),
				zap.Error(err),
			)
			outcome.Message = err.Error()
			return outcome
		}

		s.logger.Debug("Identification commands completed",
			zap.String("entity", req.EntityID),
			zap.String("addr", addr),
			zap.Int("commands", len(outputs)),
		)
		outcome.Status = correlate.StatusSuccess
		outcome.Outputs = outputs
		return outcome
	}

	if lastErr != nil {
		outcome.Message = lastErr.Error()
	}
	return outcome
}

func (s *SSHExecutor) runCommands(client *ssh.Client, commands []string) ([]string, error) {
	outputs := make([]string, len(commands))
	for i, cmd := range commands {
		out, err := s.runCommand(client, cmd)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		outputs[i] = out
	}
	return outputs, nil
}

// pickResponder returns the first record of an SSH-reachable kind
func (s *SSHExecutor) pickResponder(entity domain.Entity) (domain.SourceRecord, bool) {
	for _, r := range entity.Records {
		if len(s.kinds) == 0 {
			return r, true
		}
		if _, ok := s.kinds[r.SourceKind]; ok {
			return r, true
		}
	}
	return domain.SourceRecord{}, false
}

// entityAddresses lists the responder's IPs, then the rest of the entity's, once each
func entityAddresses(entity domain.Entity, responder domain.SourceRecord) []string {
	seen := make(map[netip.Addr]struct{})
	var addrs []string
	add := func(ips []string) {
		for _, raw := range ips {
			ip, err := netip.ParseAddr(raw)
			if err != nil {
				continue
			}
			ip = ip.Unmap()
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			addrs = append(addrs, ip.String())
		}
	}

	add(responder.IPs)
	for _, r := range entity.Records {
		add(r.IPs)
	}
	return addrs
}

func (s *SSHExecutor) hostPort(ip string) string {
	return net.JoinHostPort(ip, strconv.Itoa(s.config.Port))
}
