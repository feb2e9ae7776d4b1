package gateway

import (
	"context"
	"fmt"

	"github.com/arborio/mcpgate/internal/catalog"
	"github.com/arborio/mcpgate/internal/config"
	"github.com/arborio/mcpgate/internal/downstream"
	"github.com/arborio/mcpgate/internal/secrets"
)

// startSession builds and starts a downstream session for the named
// server, recording it in the session table on success.
func (s *Server) startSession(ctx context.Context, name string) error {
	rec, ok := s.findServer(name)
	if !ok {
		return fmt.Errorf("unknown server %q", name)
	}

	var session *downstream.Session
	if rec.IsHTTP() {
		session = downstream.NewHTTPSession(name, rec.URL, s.httpTimeout)
	} else {
		descriptor, ok := s.config.LaunchDescriptor(name)
		if !ok {
			return fmt.Errorf("no launch descriptor for %q", name)
		}

		overlay := descriptor.Env
		if s.encryptor != nil {
			decrypted, err := s.encryptor.DecryptEnv(descriptor.Env)
			if err != nil {
				return fmt.Errorf("decrypt env for %q: %w", name, err)
			}
			overlay = decrypted
		} else {
			for k, v := range descriptor.Env {
				if secrets.IsCiphertext(v) {
					return fmt.Errorf("env value %q for %q is encrypted but no age identity is configured", k, name)
				}
			}
		}

		env := downstream.LaunchEnv(overlay)
		session = downstream.NewStdioSession(name, descriptor.Command, descriptor.Args, descriptor.Cwd, env, func(sessionName string, line []byte) {
			s.forwardNotification(line) //nolint:errcheck
		})
	}

	if err := session.Start(ctx); err != nil {
		return err
	}

	s.sessionsMu.Lock()
	s.sessions[name] = session
	s.sessionsMu.Unlock()
	return nil
}

// forwardNotification relays a downstream's unsolicited notification
// line to the client verbatim.
func (s *Server) forwardNotification(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("server not running")
	}
	data := append(append([]byte{}, line...), '\n')
	_, err := s.w.Write(data)
	return err
}

// stopSession stops and removes a downstream session, if running.
func (s *Server) stopSession(name string) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[name]
	delete(s.sessions, name)
	s.sessionsMu.Unlock()

	if ok {
		session.Stop()
	}
}

func (s *Server) stopAllSessions() {
	s.sessionsMu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*downstream.Session)
	s.sessionsMu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
}

func (s *Server) getSession(name string) *downstream.Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return s.sessions[name]
}

func (s *Server) findServer(name string) (config.ServerRecord, bool) {
	for _, rec := range s.config.Servers() {
		if rec.Name == name {
			return rec, true
		}
	}
	return config.ServerRecord{}, false
}

// listerSnapshot returns the currently running sessions as a
// catalog.Lister map, suitable for a Refresh fan-out.
func (s *Server) listerSnapshot() map[string]catalog.Lister {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	out := make(map[string]catalog.Lister, len(s.sessions))
	for name, session := range s.sessions {
		out[name] = session
	}
	return out
}
