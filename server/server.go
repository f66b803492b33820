// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/clock"
	"github.com/bureau-foundation/concord/lib/dirlock"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// SessionsDirectory holds one working directory per session, named by
// session identifier, under the server's working directory.
const SessionsDirectory = "sessions"

// Defaults for Config.
const (
	DefaultTickInterval = 20 * time.Millisecond
	DefaultSyncBudget   = 5 * time.Millisecond
)

// Config configures a Server.
type Config struct {
	// Name is reported to clients in the hello response.
	Name string

	// EndpointID identifies the server. Zero selects a random one.
	EndpointID uuid.UUID

	// WorkingDir holds the session working directories. Required.
	WorkingDir string

	// Registry records hosted sessions. Required.
	Registry *Registry

	// Inbox receives every handler invocation. Nil creates one.
	Inbox *transport.Inbox

	// TickInterval is how often Run ticks the workspaces. Zero selects
	// DefaultTickInterval.
	TickInterval time.Duration

	// SyncBudget bounds the replay work of each workspace per tick.
	// Zero still advances every joining client by one command per
	// tick.
	SyncBudget time.Duration

	// LedgerCacheBytes and RetainPackageHistory are passed to every
	// workspace.
	LedgerCacheBytes     int64
	RetainPackageHistory bool

	Clock  clock.Clock
	Logger *slog.Logger
}

type hostedSession struct {
	session   *transport.ServerSession
	workspace *Workspace
	lock      *dirlock.Lock
	directory string
}

// Server hosts sessions and answers admin requests. Apart from Serve,
// its methods must be called from the goroutine that pumps its inbox;
// Run is that goroutine in production.
type Server struct {
	transport    *transport.Server
	registry     *Registry
	workingDir   string
	tickInterval time.Duration
	syncBudget   time.Duration
	cacheBytes   int64
	retain       bool
	clock        clock.Clock
	logger       *slog.Logger

	sessions map[uuid.UUID]*hostedSession
}

// New returns a server with its admin handlers registered. It hosts
// nothing until a client creates or restores a session.
func New(config Config) (*Server, error) {
	if config.WorkingDir == "" {
		return nil, errors.New("server: working directory is required")
	}
	if config.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	serverClock := config.Clock
	if serverClock == nil {
		serverClock = clock.Real()
	}
	tickInterval := config.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if err := os.MkdirAll(filepath.Join(config.WorkingDir, SessionsDirectory), 0o755); err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}

	s := &Server{
		transport: transport.NewServer(transport.ServerConfig{
			EndpointID: config.EndpointID,
			Name:       config.Name,
			Inbox:      config.Inbox,
			Logger:     logger,
		}),
		registry:     config.Registry,
		workingDir:   config.WorkingDir,
		tickInterval: tickInterval,
		syncBudget:   config.SyncBudget,
		cacheBytes:   config.LedgerCacheBytes,
		retain:       config.RetainPackageHistory,
		clock:        serverClock,
		logger:       logger,
		sessions:     make(map[uuid.UUID]*hostedSession),
	}

	admin := s.transport.Admin()
	transport.OnRequest(admin, schema.KindCreateSession, s.handleCreateSession)
	transport.OnRequest(admin, schema.KindFindSession, s.handleFindSession)
	transport.OnRequest(admin, schema.KindDeleteSession, s.handleDeleteSession)
	transport.OnRequest(admin, schema.KindGetSessions, s.handleGetSessions)
	transport.OnRequest(admin, schema.KindGetSessionClients, s.handleGetSessionClients)
	transport.OnRequest(admin, schema.KindGetSavedSessionNames, s.handleGetSavedSessionNames)
	return s, nil
}

// Transport returns the underlying transport server.
func (s *Server) Transport() *transport.Server { return s.transport }

// Inbox returns the inbox the server's handlers run on.
func (s *Server) Inbox() *transport.Inbox { return s.transport.Inbox() }

// Serve accepts connections on listener until ctx is done. It may run
// on any goroutine.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	return s.transport.Serve(ctx, listener)
}

// Run pumps the inbox and ticks every workspace until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()
	inbox := s.transport.Inbox()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-inbox.Ready():
			inbox.Pump()
		case <-ticker.C:
			inbox.Pump()
			s.Tick()
		}
	}
}

// Tick advances every hosted workspace's sync queue and returns the
// number of commands run.
func (s *Server) Tick() int {
	processed := 0
	for _, session := range s.transport.Sessions() {
		if hosted, ok := s.sessions[session.ID()]; ok {
			processed += hosted.workspace.Tick(s.syncBudget)
		}
	}
	return processed
}

// Workspace returns the workspace of a hosted session.
func (s *Server) Workspace(id uuid.UUID) (*Workspace, bool) {
	hosted, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return hosted.workspace, true
}

// CreateSession hosts a session named name. A registered session of
// that name is restored with its ledgers and keeps its identifier and
// owner.
func (s *Server) CreateSession(ctx context.Context, name string, owner schema.ClientInfo) (schema.SessionInfo, error) {
	if name == "" {
		return schema.SessionInfo{}, transport.InvalidRequest("session name is required")
	}
	for _, hosted := range s.sessions {
		if hosted.session.Info().SessionName == name {
			return schema.SessionInfo{}, transport.Failed("session %q is already hosted", name)
		}
	}

	entry, restored, err := s.registry.FindByName(ctx, name)
	if err != nil {
		return schema.SessionInfo{}, err
	}
	if !restored {
		id := uuid.New()
		entry = RegistryEntry{
			Info: schema.SessionInfo{
				SessionID:       id,
				SessionName:     name,
				OwnerUserName:   owner.UserName,
				OwnerDeviceName: owner.DeviceName,
				CreatedAt:       s.clock.Now().UTC(),
			},
			Directory: filepath.Join(s.workingDir, SessionsDirectory, id.String()),
		}
	}

	hosted, err := s.host(entry)
	if err != nil {
		return schema.SessionInfo{}, err
	}
	if err := s.registry.Put(ctx, entry); err != nil {
		s.stopHosting(hosted)
		return schema.SessionInfo{}, err
	}
	info := hosted.session.Info()
	s.logger.Info("session created",
		"session", info.SessionID,
		"name", name,
		"owner", info.OwnerUserName,
		"restored", restored,
	)
	return info, nil
}

func (s *Server) host(entry RegistryEntry) (*hostedSession, error) {
	lock, err := dirlock.Acquire(entry.Directory)
	if err != nil {
		return nil, fmt.Errorf("locking session %q: %w", entry.Info.SessionName, err)
	}
	session := s.transport.HostSession(entry.Info)
	workspace, err := OpenWorkspace(WorkspaceConfig{
		Directory:            entry.Directory,
		Session:              session,
		Clock:                s.clock,
		Logger:               s.logger.With("session", entry.Info.SessionID),
		CacheBytes:           s.cacheBytes,
		RetainPackageHistory: s.retain,
	})
	if err != nil {
		session.Close()
		lock.Release()
		return nil, fmt.Errorf("opening session %q: %w", entry.Info.SessionName, err)
	}
	session.OnClientConnected(workspace.ClientConnected)
	session.OnClientDisconnected(workspace.ClientDisconnected)

	hosted := &hostedSession{
		session:   session,
		workspace: workspace,
		lock:      lock,
		directory: entry.Directory,
	}
	s.sessions[entry.Info.SessionID] = hosted
	return hosted, nil
}

// stopHosting removes every member and releases the directory. The
// registry entry and the ledgers stay.
func (s *Server) stopHosting(hosted *hostedSession) {
	hosted.session.Close()
	delete(s.sessions, hosted.session.ID())
	if err := hosted.lock.Release(); err != nil {
		s.logger.Warn("releasing session directory failed", "directory", hosted.directory, "error", err)
	}
}

// FindSession returns a hosted session.
func (s *Server) FindSession(id uuid.UUID) (schema.SessionInfo, bool) {
	hosted, ok := s.sessions[id]
	if !ok {
		return schema.SessionInfo{}, false
	}
	return hosted.session.Info(), true
}

// DeleteSession stops hosting a session and deletes its ledgers and
// registry entry. A saved session that is not hosted can be deleted
// too. Only the owner may delete.
func (s *Server) DeleteSession(ctx context.Context, id uuid.UUID, requester schema.ClientInfo) (schema.SessionInfo, error) {
	var entry RegistryEntry
	hosted, isHosted := s.sessions[id]
	if isHosted {
		entry = RegistryEntry{Info: hosted.session.Info(), Directory: hosted.directory}
	} else {
		found, ok, err := s.registry.Find(ctx, id)
		if err != nil {
			return schema.SessionInfo{}, err
		}
		if !ok {
			return schema.SessionInfo{}, transport.Failed("no session %s", id)
		}
		entry = found
	}
	if !entry.Info.IsOwnedBy(requester) {
		return schema.SessionInfo{}, transport.Failed("session %q is owned by %s on %s",
			entry.Info.SessionName, entry.Info.OwnerUserName, entry.Info.OwnerDeviceName)
	}

	if isHosted {
		s.stopHosting(hosted)
	}
	if err := s.registry.Remove(ctx, id); err != nil {
		return schema.SessionInfo{}, err
	}
	if err := os.RemoveAll(entry.Directory); err != nil {
		s.logger.Warn("deleting session directory failed", "directory", entry.Directory, "error", err)
	}
	s.logger.Info("session deleted", "session", id, "name", entry.Info.SessionName, "was_hosted", isHosted)
	return entry.Info, nil
}

// Sessions returns the hosted sessions ordered by creation time then
// name.
func (s *Server) Sessions() []schema.SessionInfo {
	sessions := s.transport.Sessions()
	infos := make([]schema.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.Info())
	}
	return infos
}

// SavedSessionNames returns the names of registered sessions that are
// not hosted, sorted.
func (s *Server) SavedSessionNames(ctx context.Context) ([]string, error) {
	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if _, hosted := s.sessions[entry.Info.SessionID]; !hosted {
			names = append(names, entry.Info.SessionName)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close stops hosting every session, keeping their ledgers, and closes
// every connection.
func (s *Server) Close() error {
	for _, session := range s.transport.Sessions() {
		if hosted, ok := s.sessions[session.ID()]; ok {
			s.stopHosting(hosted)
		}
	}
	return s.transport.Close()
}

func (s *Server) sender(ctx transport.MessageContext) schema.ClientInfo {
	info, _ := s.transport.ClientInfo(ctx.Sender)
	return info
}

func (s *Server) handleCreateSession(ctx transport.MessageContext, request schema.CreateSessionRequest) (schema.SessionInfoResponse, error) {
	owner := request.Owner
	if owner.UserName == "" {
		owner = s.sender(ctx)
	}
	info, err := s.CreateSession(context.Background(), request.SessionName, owner)
	return schema.SessionInfoResponse{Session: info}, err
}

func (s *Server) handleFindSession(ctx transport.MessageContext, request schema.FindSessionRequest) (schema.SessionInfoResponse, error) {
	info, ok := s.FindSession(request.SessionID)
	if !ok {
		return schema.SessionInfoResponse{}, transport.Failed("no session %s", request.SessionID)
	}
	return schema.SessionInfoResponse{Session: info}, nil
}

// handleDeleteSession checks ownership against the identity the
// requester gave at hello time, not the one in the request body.
func (s *Server) handleDeleteSession(ctx transport.MessageContext, request schema.DeleteSessionRequest) (schema.SessionInfoResponse, error) {
	info, err := s.DeleteSession(context.Background(), request.SessionID, s.sender(ctx))
	return schema.SessionInfoResponse{Session: info}, err
}

func (s *Server) handleGetSessions(transport.MessageContext, schema.GetSessionsRequest) (schema.GetSessionsResponse, error) {
	return schema.GetSessionsResponse{Sessions: s.Sessions()}, nil
}

func (s *Server) handleGetSessionClients(ctx transport.MessageContext, request schema.GetSessionClientsRequest) (schema.GetSessionClientsResponse, error) {
	hosted, ok := s.sessions[request.SessionID]
	if !ok {
		return schema.GetSessionClientsResponse{}, transport.Failed("no session %s", request.SessionID)
	}
	return schema.GetSessionClientsResponse{Clients: hosted.session.Clients()}, nil
}

func (s *Server) handleGetSavedSessionNames(ctx transport.MessageContext, _ schema.GetSavedSessionNamesRequest) (schema.GetSavedSessionNamesResponse, error) {
	names, err := s.SavedSessionNames(context.Background())
	return schema.GetSavedSessionNamesResponse{Names: names}, err
}
