package feed

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
	"golang.org/x/crypto/ssh"
)

// Publisher implements interfaces.FeedPublisher by streaming the feed
// body to the remote path over SSH, equivalent to an SFTP-style upload
// without depending on a full SFTP client library: a single "cat >
// path" remote command fed from the session's stdin overwrites the
// file atomically from the shell's point of view.
type Publisher struct {
	cfg    common.RemoteConfig
	logger arbor.ILogger
}

var _ interfaces.FeedPublisher = (*Publisher)(nil)

func NewPublisher(cfg common.RemoteConfig, logger arbor.ILogger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger}
}

// Publish uploads body, retrying with backoff up to 3 attempts per
// 4.4. The existing remote file is left untouched until the new
// content is fully delivered; it is never deleted, only overwritten.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	attempt := 0
	operation := func() error {
		attempt++
		return p.uploadOnce(ctx, body)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return fmt.Errorf("feed publish failed after %d attempt(s): %w", attempt, err)
	}

	p.logger.Info().Str("host", p.cfg.Host).Str("path", p.cfg.Path).Int("bytes", len(body)).Msg("feed published")
	return nil
}

func (p *Publisher) uploadOnce(ctx context.Context, body []byte) error {
	sshConfig := &ssh.ClientConfig{
		User:            p.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(p.cfg.Password)},
		HostKeyCallback: p.hostKeyCallback(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to dial remote file drop: %w", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(body)
	cmd := fmt.Sprintf("cat > %s", shellQuote(p.cfg.Path))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("remote upload command failed: %w", err)
	}
	return nil
}

// hostKeyCallback pins the configured host key when one is set;
// otherwise it accepts any host key, logging a warning once per
// process so operators notice an unpinned deployment.
func (p *Publisher) hostKeyCallback() ssh.HostKeyCallback {
	if p.cfg.HostKeyFingerprint == "" {
		p.logger.Warn().Msg("feed publisher has no host_key_fingerprint configured; accepting any remote host key")
		return ssh.InsecureIgnoreHostKey()
	}
	raw, err := base64.StdEncoding.DecodeString(p.cfg.HostKeyFingerprint)
	if err != nil {
		p.logger.Warn().Err(err).Msg("invalid host_key_fingerprint, accepting any remote host key")
		return ssh.InsecureIgnoreHostKey()
	}
	key, err := ssh.ParsePublicKey(raw)
	if err != nil {
		p.logger.Warn().Err(err).Msg("unparseable host_key_fingerprint, accepting any remote host key")
		return ssh.InsecureIgnoreHostKey()
	}
	return ssh.FixedHostKey(key)
}

// shellQuote wraps path in single quotes for the remote shell, escaping
// any embedded single quote.
func shellQuote(path string) string {
	escaped := ""
	for _, r := range path {
		if r == '\'' {
			escaped += `'\''`
			continue
		}
		escaped += string(r)
	}
	return "'" + escaped + "'"
}
