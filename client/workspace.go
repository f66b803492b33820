// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/clock"
	"github.com/bureau-foundation/concord/lib/contenthash"
	"github.com/bureau-foundation/concord/lib/datastore"
	"github.com/bureau-foundation/concord/lib/ledger"
	"github.com/bureau-foundation/concord/lib/resourcelock"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/transport"
)

// ErrLockedByOtherClient is returned by package operations on a
// package another client holds the lock on.
var ErrLockedByOtherClient = errors.New("client: package is locked by another client")

// Session is the part of a joined session a workspace talks through.
// [transport.ClientSession] implements it.
type Session interface {
	transport.Requester
	Router() *transport.Router
	SendEvent(kind schema.MessageKind, payload any) error
	LocalEndpointID() uuid.UUID
	FindSessionClient(endpoint uuid.UUID) (schema.ClientInfo, bool)
}

// WorkspaceConfig configures a Workspace.
type WorkspaceConfig struct {
	// Directory holds the transient ledgers. Whatever it held is
	// deleted on open and on Close.
	Directory string

	Session Session
	Host    Host

	// Client is the local identity, used to attribute the client's own
	// live transactions.
	Client schema.ClientInfo

	// SnapshotTransactionsPerSecond caps how often an open transaction
	// is sent as a snapshot. Zero disables snapshots.
	SnapshotTransactionsPerSecond float64

	Filter     ClassFilter
	CacheBytes int64

	Clock  clock.Clock
	Logger *slog.Logger
}

type syncState uint8

const (
	stateUnsynced syncState = iota
	stateFinalizeRequested
	stateSynced
)

func (s syncState) String() string {
	switch s {
	case stateUnsynced:
		return "unsynced"
	case stateFinalizeRequested:
		return "finalize_requested"
	default:
		return "synced"
	}
}

type remoteTransaction struct {
	transaction schema.TransactionEventBase
	required    bool
}

// Workspace is the client side of one session: a transient mirror of
// the server's ledgers and lock table, rebuilt from the replicated
// stream, and the outgoing side of local edits.
type Workspace struct {
	session  Session
	host     Host
	local    schema.ClientInfo
	endpoint uuid.UUID
	clock    clock.Clock
	logger   *slog.Logger

	transactions *ledger.TransactionLedger
	packages     *ledger.PackageLedger
	activities   *ledger.ActivityLedger
	locks        *resourcelock.Table
	authors      *liveAuthors
	manager      *TransactionManager

	state            syncState
	activitiesSynced bool
	remainingWork    uint32

	// pending holds remote transactions waiting for the next tick.
	pending []remoteTransaction

	// updateIndices is the last applied update index per open remote
	// transaction.
	updateIndices map[uuid.UUID]uint8

	// reload and purge collect package changes made before sync
	// completes.
	reload map[string]struct{}
	purge  map[string]struct{}

	plays map[string][]uuid.UUID

	// dataStore caches the session data store; handlers run on changes
	// other members make.
	dataStore         *datastore.Store
	dataStoreHandlers map[string]func(schema.DataStoreValue)

	onSynchronized []func()
}

// OpenWorkspace opens the transient ledgers and registers the
// workspace's handlers on the session router.
func OpenWorkspace(config WorkspaceConfig) (*Workspace, error) {
	if config.Session == nil || config.Host == nil {
		return nil, errors.New("client: workspace requires a session and a host")
	}
	if config.Directory == "" {
		return nil, errors.New("client: workspace requires a directory")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workspaceClock := config.Clock
	if workspaceClock == nil {
		workspaceClock = clock.Real()
	}

	options := ledger.Options{
		Kind:       ledger.Transient,
		CacheBytes: config.CacheBytes,
		Clock:      workspaceClock,
		Logger:     logger,
	}
	transactions, err := ledger.OpenTransactionLedger(config.Directory, options)
	if err != nil {
		return nil, fmt.Errorf("opening transaction ledger: %w", err)
	}
	packages, err := ledger.OpenPackageLedger(config.Directory, options)
	if err != nil {
		return nil, fmt.Errorf("opening package ledger: %w", err)
	}
	activities, err := ledger.OpenActivityLedger(config.Directory, options)
	if err != nil {
		return nil, fmt.Errorf("opening activity ledger: %w", err)
	}

	endpoint := config.Session.LocalEndpointID()
	w := &Workspace{
		session:       config.Session,
		host:          config.Host,
		local:         config.Client,
		endpoint:      endpoint,
		clock:         workspaceClock,
		logger:        logger,
		transactions:  transactions,
		packages:      packages,
		activities:    activities,
		locks:         resourcelock.New(nil),
		authors:       newLiveAuthors(transactions, logger),
		updateIndices: make(map[uuid.UUID]uint8),
		reload:        make(map[string]struct{}),
		purge:         make(map[string]struct{}),
		plays:         make(map[string][]uuid.UUID),

		dataStore:         datastore.New(),
		dataStoreHandlers: make(map[string]func(schema.DataStoreValue)),
	}
	w.manager = newTransactionManager(workspaceClock, logger, endpoint,
		config.SnapshotTransactionsPerSecond, config.Filter, config.Session.SendEvent)

	transactions.OnTransactionAdded(func(index uint64, transaction schema.TransactionFinalizedEvent) {
		w.authors.add(index, w.authorOf(transaction.TransactionEndpointID))
	})
	transactions.OnLiveTransactionsTrimmed(func(string, uint64) { w.authors.prune() })

	router := config.Session.Router()
	transport.OnEvent(router, schema.KindSyncTransaction, w.handleSyncTransaction)
	transport.OnEvent(router, schema.KindSyncPackage, w.handleSyncPackage)
	transport.OnEvent(router, schema.KindSyncLock, w.handleSyncLock)
	transport.OnEvent(router, schema.KindResourceLockEvent, w.handleLockEvent)
	transport.OnEvent(router, schema.KindInitialSyncCompleted, w.handleInitialSyncCompleted)
	transport.OnEvent(router, schema.KindActivitiesSynced, w.handleActivitiesSynced)
	transport.OnEvent(router, schema.KindTransactionSnapshot, w.handleTransactionSnapshot)
	transport.OnEvent(router, schema.KindTransactionRejected, w.handleTransactionRejected)
	transport.OnEvent(router, schema.KindPlaySession, w.handlePlaySession)
	transport.OnEvent(router, schema.KindSyncDataStore, w.handleSyncDataStore)
	transport.OnEvent(router, schema.KindDataStoreValueUpdated, w.handleDataStoreValueUpdated)
	for _, kind := range []schema.MessageKind{
		schema.KindConnectionActivity,
		schema.KindTransactionActivity,
		schema.KindPackageActivity,
	} {
		transport.OnEvent(router, kind, w.handleActivity)
	}
	return w, nil
}

// Close deletes the transient ledgers and empties the data store
// cache.
func (w *Workspace) Close() error {
	w.authors.reset()
	w.dataStore = datastore.New()
	return errors.Join(w.transactions.Clear(), w.packages.Clear(), w.activities.Clear())
}

// OnWorkspaceSynchronized registers fn to run once the initial sync
// has been applied.
func (w *Workspace) OnWorkspaceSynchronized(fn func()) {
	w.onSynchronized = append(w.onSynchronized, fn)
}

// OnActivityAdded registers fn to run for every mirrored activity.
func (w *Workspace) OnActivityAdded(fn func(index uint64, activity schema.Activity)) {
	w.activities.OnActivityAdded(fn)
}

// IsSynced reports whether the initial sync has been applied.
func (w *Workspace) IsSynced() bool { return w.state == stateSynced }

// ActivitiesSynced reports whether the activity replay has finished.
func (w *Workspace) ActivitiesSynced() bool { return w.activitiesSynced }

// RemainingWork is the replay work the server reported still queued
// with the latest sync event.
func (w *Workspace) RemainingWork() uint32 { return w.remainingWork }

// Tick applies what the last pump delivered: the initial sync once the
// server reported it complete, then pending remote transactions and
// due local sends.
func (w *Workspace) Tick() {
	switch w.state {
	case stateUnsynced:
		return
	case stateFinalizeRequested:
		w.finalizeSync()
	case stateSynced:
		w.processPending()
	}
	w.manager.Flush()
}

func (w *Workspace) finalizeSync() {
	w.flushReloads()

	for _, index := range w.transactions.AllLiveTransactions() {
		transaction, err := w.transactions.FindTransaction(index)
		if err != nil {
			w.logger.Warn("live transaction unreadable, not replayed", "index", index, "error", err)
			continue
		}
		if transaction.TransactionEndpointID == w.endpoint {
			continue
		}
		w.pending = append(w.pending, remoteTransaction{transaction: transaction.TransactionEventBase, required: true})
	}
	replayed := len(w.pending)
	w.processPending()
	w.authors.resolve(w.activities)

	w.state = stateSynced
	w.logger.Info("workspace synchronized",
		"transactions", w.transactions.NextTransactionIndex(),
		"replayed", replayed,
		"packages", len(w.packages.PackageNames()),
	)
	for _, fn := range w.onSynchronized {
		fn()
	}
}

func (w *Workspace) flushReloads() {
	if len(w.reload) == 0 && len(w.purge) == 0 {
		return
	}
	changed := sortedKeys(w.reload)
	purged := sortedKeys(w.purge)
	clear(w.reload)
	clear(w.purge)
	w.host.ReloadPackages(changed, purged)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (w *Workspace) processPending() {
	pending := w.pending
	w.pending = nil
	for _, remote := range pending {
		id := remote.transaction.TransactionID
		last, seen := w.updateIndices[id]
		if !remote.required && seen && int8(remote.transaction.TransactionUpdateIndex-last) <= 0 {
			w.logger.Debug("dropping stale snapshot", "transaction", id, "update_index", remote.transaction.TransactionUpdateIndex)
			continue
		}
		if remote.required {
			delete(w.updateIndices, id)
		} else {
			w.updateIndices[id] = remote.transaction.TransactionUpdateIndex
		}
		if err := w.host.ApplyTransaction(remote.transaction, !remote.required); err != nil {
			w.logger.Warn("applying remote transaction failed", "transaction", id, "error", err)
		}
	}
}

func (w *Workspace) authorOf(endpoint uuid.UUID) schema.ClientInfo {
	if endpoint == w.endpoint {
		return w.local
	}
	info, _ := w.session.FindSessionClient(endpoint)
	return info
}

func (w *Workspace) handleSyncTransaction(_ transport.MessageContext, event schema.WorkspaceSyncTransactionEvent) {
	w.remainingWork = event.RemainingWork
	if err := w.transactions.AddTransactionAt(event.TransactionIndex, event.Transaction); err != nil {
		w.logger.Error("mirroring transaction failed", "index", event.TransactionIndex, "error", err)
	}
	if w.state == stateSynced && event.Transaction.TransactionEndpointID != w.endpoint {
		w.pending = append(w.pending, remoteTransaction{transaction: event.Transaction.TransactionEventBase, required: true})
	}
}

func (w *Workspace) handleTransactionSnapshot(_ transport.MessageContext, event schema.TransactionSnapshotEvent) {
	if w.state != stateSynced || event.TransactionEndpointID == w.endpoint {
		return
	}
	w.pending = append(w.pending, remoteTransaction{transaction: event.TransactionEventBase})
}

func (w *Workspace) handleTransactionRejected(_ transport.MessageContext, event schema.TransactionRejectedEvent) {
	w.logger.Info("transaction rejected by server", "transaction", event.TransactionID)
	w.host.UndoTransaction(event.TransactionID)
}

func (w *Workspace) handleSyncPackage(_ transport.MessageContext, event schema.WorkspaceSyncPackageEvent) {
	w.remainingWork = event.RemainingWork
	pkg := event.Package
	info := pkg.Info

	if len(pkg.Data) > 0 && info.ContentHash != "" && !contenthash.Verify(pkg.Data, info.ContentHash) {
		w.logger.Error("package content hash mismatch, file not written",
			"package", info.PackageName, "revision", event.PackageRevision)
	} else {
		w.applyPackageFile(pkg)
	}

	if err := w.packages.AddPackageAt(event.PackageRevision, pkg); err != nil {
		w.logger.Error("mirroring package failed", "package", info.PackageName, "revision", event.PackageRevision, "error", err)
	}
	w.transactions.TrimLiveTransactions(info.PackageName, info.NextTransactionIndexWhenSaved)

	if w.state == stateSynced {
		w.flushReloads()
	}
}

// applyPackageFile updates the host's copy of a package and notes what
// must be reloaded.
func (w *Workspace) applyPackageFile(pkg schema.Package) {
	info := pkg.Info
	switch info.UpdateType {
	case schema.PackageAdded, schema.PackageSaved:
		if len(pkg.Data) == 0 {
			return
		}
		if err := w.host.WritePackage(info, pkg.Data); err != nil {
			w.logger.Error("writing package failed", "package", info.PackageName, "error", err)
			return
		}
		w.reload[info.PackageName] = struct{}{}
	case schema.PackageRenamed:
		if err := w.host.RemovePackage(info.PackageName, info.FileExtension); err != nil {
			w.logger.Error("removing renamed package failed", "package", info.PackageName, "error", err)
		}
		w.purge[info.PackageName] = struct{}{}
		if len(pkg.Data) == 0 || info.NewPackageName == "" {
			return
		}
		if err := w.host.WritePackage(info, pkg.Data); err != nil {
			w.logger.Error("writing renamed package failed", "package", info.NewPackageName, "error", err)
			return
		}
		w.reload[info.NewPackageName] = struct{}{}
	case schema.PackageDeleted:
		if err := w.host.RemovePackage(info.PackageName, info.FileExtension); err != nil {
			w.logger.Error("removing deleted package failed", "package", info.PackageName, "error", err)
		}
		w.purge[info.PackageName] = struct{}{}
	}
}

func (w *Workspace) handleSyncLock(_ transport.MessageContext, event schema.WorkspaceSyncLockEvent) {
	w.remainingWork = event.RemainingWork
	w.locks.Replace(event.LockedResources)
}

func (w *Workspace) handleLockEvent(_ transport.MessageContext, event schema.ResourceLockEvent) {
	switch event.LockType {
	case schema.ResourceLock:
		w.locks.Lock(event.ResourceNames, event.ClientID, resourcelock.Explicit|resourcelock.Force)
	case schema.ResourceUnlock:
		w.locks.Unlock(event.ResourceNames, event.ClientID, resourcelock.Force)
	default:
		w.logger.Warn("dropping lock event of unknown type", "lock_type", event.LockType)
	}
}

func (w *Workspace) handleInitialSyncCompleted(transport.MessageContext, schema.WorkspaceInitialSyncCompletedEvent) {
	if w.state != stateUnsynced {
		return
	}
	w.remainingWork = 0
	w.state = stateFinalizeRequested
}

func (w *Workspace) handleActivitiesSynced(transport.MessageContext, schema.ActivitiesSyncedEvent) {
	w.activitiesSynced = true
}

func (w *Workspace) handleActivity(_ transport.MessageContext, event schema.ActivityEvent) {
	if err := w.activities.AddActivityAt(event.Index, event.Activity); err != nil {
		w.logger.Error("mirroring activity failed", "index", event.Index, "error", err)
	}
}

func (w *Workspace) handlePlaySession(_ transport.MessageContext, event schema.PlaySessionEvent) {
	w.trackPlay(event.PlayPackageName, event.PlayEndpointID, event.EventType)
}

func (w *Workspace) trackPlay(name string, endpoint uuid.UUID, eventType schema.PlaySessionEventType) {
	participants := w.plays[name]
	switch eventType {
	case schema.PlaySessionBegin:
		if !slices.Contains(participants, endpoint) {
			w.plays[name] = append(participants, endpoint)
		}
	case schema.PlaySessionEnd:
		participants = slices.DeleteFunc(participants, func(id uuid.UUID) bool { return id == endpoint })
		if len(participants) == 0 {
			delete(w.plays, name)
		} else {
			w.plays[name] = participants
		}
	}
}

// LockResources asks the server for explicit locks. The response lists
// the resources other clients hold.
func (w *Workspace) LockResources(names ...string) *transport.Future[schema.ResourceLockResponse] {
	return w.lockRequest(schema.ResourceLock, names)
}

// UnlockResources releases explicit locks.
func (w *Workspace) UnlockResources(names ...string) *transport.Future[schema.ResourceLockResponse] {
	return w.lockRequest(schema.ResourceUnlock, names)
}

func (w *Workspace) lockRequest(lockType schema.ResourceLockType, names []string) *transport.Future[schema.ResourceLockResponse] {
	return transport.Call[schema.ResourceLockResponse](w.session, schema.KindResourceLock, schema.ResourceLockRequest{
		ClientID:      w.endpoint,
		ResourceNames: names,
		LockType:      lockType,
	})
}

// SavePackage records and sends a saved revision.
func (w *Workspace) SavePackage(name, extension string, data []byte) error {
	return w.updatePackage(schema.PackageInfo{PackageName: name, FileExtension: extension, UpdateType: schema.PackageSaved}, data)
}

// AddPackage records and sends a newly created package.
func (w *Workspace) AddPackage(name, extension string, data []byte) error {
	return w.updatePackage(schema.PackageInfo{PackageName: name, FileExtension: extension, UpdateType: schema.PackageAdded}, data)
}

// DeletePackage records and sends a deletion.
func (w *Workspace) DeletePackage(name, extension string) error {
	return w.updatePackage(schema.PackageInfo{PackageName: name, FileExtension: extension, UpdateType: schema.PackageDeleted}, nil)
}

// RenamePackage records and sends a rename; data is the package as
// saved under its new name.
func (w *Workspace) RenamePackage(name, newName, extension string, data []byte) error {
	return w.updatePackage(schema.PackageInfo{
		PackageName:    name,
		NewPackageName: newName,
		FileExtension:  extension,
		UpdateType:     schema.PackageRenamed,
	}, data)
}

func (w *Workspace) updatePackage(info schema.PackageInfo, data []byte) error {
	if owner, ok := w.locks.Owner(info.PackageName); ok && owner != w.endpoint {
		return fmt.Errorf("%s %s: %w", info.UpdateType, info.PackageName, ErrLockedByOtherClient)
	}
	info.NextTransactionIndexWhenSaved = w.transactions.NextTransactionIndex()
	pkg := schema.Package{Info: info, Data: data}

	revision, err := w.packages.AddPackage(pkg)
	if err != nil {
		w.logger.Error("recording local package failed", "package", info.PackageName, "revision", revision, "error", err)
	}
	w.transactions.TrimLiveTransactions(info.PackageName, info.NextTransactionIndexWhenSaved)
	if err := w.session.SendEvent(schema.KindPackageUpdate, schema.PackageUpdateEvent{Package: pkg}); err != nil {
		return fmt.Errorf("sending %s %s: %w", info.UpdateType, info.PackageName, err)
	}
	return nil
}

// BeginPlay announces that this client started a play session in the
// play package name.
func (w *Workspace) BeginPlay(name string, simulating bool) error {
	return w.sendPlay(schema.PlaySessionBegin, name, simulating)
}

// SwitchPlay announces a toggle between playing and simulating.
func (w *Workspace) SwitchPlay(name string, simulating bool) error {
	return w.sendPlay(schema.PlaySessionSwitch, name, simulating)
}

// EndPlay announces that this client stopped playing.
func (w *Workspace) EndPlay(name string) error {
	return w.sendPlay(schema.PlaySessionEnd, name, false)
}

func (w *Workspace) sendPlay(eventType schema.PlaySessionEventType, name string, simulating bool) error {
	err := w.session.SendEvent(schema.KindPlaySession, schema.PlaySessionEvent{
		EventType:       eventType,
		PlayEndpointID:  w.endpoint,
		PlayPackageName: name,
		IsSimulating:    simulating,
	})
	if err != nil {
		return fmt.Errorf("sending play %s: %w", eventType, err)
	}
	w.trackPlay(name, w.endpoint, eventType)
	return nil
}

// Transactions returns the transaction manager for local edits.
func (w *Workspace) Transactions() *TransactionManager { return w.manager }

// FindTransaction returns a mirrored transaction.
func (w *Workspace) FindTransaction(index uint64) (schema.TransactionFinalizedEvent, error) {
	return w.transactions.FindTransaction(index)
}

// NextTransactionIndex is the save point a package saved now records.
func (w *Workspace) NextTransactionIndex() uint64 { return w.transactions.NextTransactionIndex() }

// FindPackage returns a mirrored package revision.
func (w *Workspace) FindPackage(name string, revision uint32, withData bool) (schema.Package, error) {
	return w.packages.FindPackage(name, revision, withData)
}

// FindHeadPackage returns the newest mirrored revision of a package.
func (w *Workspace) FindHeadPackage(name string, withData bool) (schema.Package, uint32, error) {
	return w.packages.FindHeadPackage(name, withData)
}

// PackageNames returns every mirrored package name in sorted order.
func (w *Workspace) PackageNames() []string { return w.packages.PackageNames() }

// LockOwner returns the endpoint holding the lock on name.
func (w *Workspace) LockOwner(name string) (uuid.UUID, bool) { return w.locks.Owner(name) }

// PlayParticipants returns the endpoints playing in the play package
// name.
func (w *Workspace) PlayParticipants(name string) []uuid.UUID { return slices.Clone(w.plays[name]) }

// LiveTransactions returns the live transaction indices of a resource.
func (w *Workspace) LiveTransactions(resource string) []uint64 {
	return w.transactions.LiveTransactions(resource)
}

// LiveTransactionAuthors returns the distinct authors of a resource's
// live transactions. When some are unattributed it returns the known
// authors and ErrUnattributedTransactions.
func (w *Workspace) LiveTransactionAuthors(resource string) ([]schema.ClientInfo, error) {
	return w.authors.authors(resource)
}

// IsResourceModifiedByOtherClients reports whether any live
// transaction of resource was made by another client.
func (w *Workspace) IsResourceModifiedByOtherClients(resource string) bool {
	authors, err := w.authors.authors(resource)
	if errors.Is(err, ErrUnattributedTransactions) {
		return true
	}
	for _, author := range authors {
		if author != w.local {
			return true
		}
	}
	return false
}

// ActivityCount returns the number of mirrored activities.
func (w *Workspace) ActivityCount() uint64 { return w.activities.ActivityCount() }

// GetActivities returns up to limit activities starting at offset.
func (w *Workspace) GetActivities(offset uint64, limit int) []schema.ActivityEvent {
	return w.activities.GetActivities(offset, limit)
}

// GetLastActivities returns the newest limit activities, oldest first.
func (w *Workspace) GetLastActivities(limit int) []schema.ActivityEvent {
	return w.activities.GetLastActivities(limit)
}
