// Package syncer pushes the local msk state (profile database and
// config) to another machine over SSH, so a second computer can reuse
// the stored refresh tokens without logging in again.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// RemoteDir is where pushed files land, relative to the remote home.
const RemoteDir = ".local/share/msk"

// Dest is a parsed sync destination of the form user@host[:port].
type Dest struct {
	User string
	Host string
	Port string
}

// ParseDest parses user@host[:port]. The port defaults to 22.
func ParseDest(s string) (Dest, error) {
	user, hostPort, ok := strings.Cut(s, "@")
	if !ok || user == "" {
		return Dest{}, fmt.Errorf("destination %q: want user@host[:port]", s)
	}

	host, port := hostPort, "22"
	if h, p, err := net.SplitHostPort(hostPort); err == nil {
		host, port = h, p
	}
	if host == "" {
		return Dest{}, fmt.Errorf("destination %q: empty host", s)
	}

	return Dest{User: user, Host: host, Port: port}, nil
}

// Addr returns the host:port dial address.
func (d Dest) Addr() string {
	return net.JoinHostPort(d.Host, d.Port)
}

func (d Dest) String() string {
	if d.Port != "" && d.Port != "22" {
		return d.User + "@" + d.Host + ":" + d.Port
	}
	return d.User + "@" + d.Host
}

// Syncer uploads local files to one destination.
type Syncer struct {
	dest     Dest
	identity string
	logger   *slog.Logger
}

// New creates a syncer. identity is an optional private key path; when
// empty, the SSH agent is used.
func New(dest Dest, identity string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{dest: dest, identity: identity, logger: logger}
}

// Push uploads the given local files into RemoteDir on the destination.
// Files that do not exist locally are skipped with a log line, so a
// fresh install with no config yet still syncs its database.
func (s *Syncer) Push(ctx context.Context, paths []string) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("open sftp session: %w", err)
	}
	defer client.Close()

	if err := client.MkdirAll(RemoteDir); err != nil {
		return fmt.Errorf("create remote dir %s: %w", RemoteDir, err)
	}

	for _, local := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(local); os.IsNotExist(err) {
			s.logger.Info("skipping missing file", "path", local)
			continue
		}

		remote := path.Join(RemoteDir, filepath.Base(local))
		if err := s.upload(client, local, remote); err != nil {
			return fmt.Errorf("upload %s: %w", local, err)
		}
		s.logger.Info("uploaded", "path", local, "remote", remote)
	}

	return nil
}

// upload writes through a temp name and renames, so a dropped
// connection never leaves a truncated database on the remote.
func (s *Syncer) upload(client *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := remote + ".tmp"
	dst, err := client.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		client.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		client.Remove(tmp)
		return err
	}

	if err := client.PosixRename(tmp, remote); err != nil {
		client.Remove(tmp)
		return err
	}
	return nil
}

func (s *Syncer) dial(ctx context.Context) (*ssh.Client, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback()
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            s.dest.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
	}

	dialer := net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", s.dest.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.dest.Addr(), err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(raw, s.dest.Addr(), cfg)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", s.dest, err)
	}
	return ssh.NewClient(conn, chans, reqs), nil
}

func (s *Syncer) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if s.identity != "" {
		key, err := os.ReadFile(s.identity)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse identity file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH auth available: start an agent or pass an identity file")
	}
	return methods, nil
}

func hostKeyCallback() (ssh.HostKeyCallback, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}

	knownPath := filepath.Join(homeDir, ".ssh", "known_hosts")
	cb, err := knownhosts.New(knownPath)
	if err != nil {
		return nil, fmt.Errorf("load %s (connect once with ssh first): %w", knownPath, err)
	}
	return cb, nil
}
